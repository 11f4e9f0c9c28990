package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	cfg, err := Load(Flags{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 4444 {
		t.Errorf("Port = %d, want default 4444", cfg.Port)
	}
}

func TestLoadMissingRequiredFieldsNamesKey(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load(Flags{})
	if err == nil {
		t.Fatal("expected validation error when JWT_SECRET unset")
	}
	errs, ok := err.(Errors)
	if !ok {
		t.Fatalf("expected Errors, got %T", err)
	}
	found := false
	for _, fe := range errs {
		if fe.Key == "JWT_SECRET" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected JWT_SECRET to be named in errors, got %v", errs)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9100")

	cfg, err := Load(Flags{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want env override 9100", cfg.Port)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9100")

	cfg, err := Load(Flags{Port: 9200})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9200 {
		t.Errorf("Port = %d, want flag override 9200", cfg.Port)
	}
}

func TestJWTSecretFileResolution(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "jwt.secret")
	if err := os.WriteFile(secretPath, []byte("file-secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JWT_SECRET_FILE", secretPath)

	cfg, err := Load(Flags{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.JWTSecret != "file-secret" {
		t.Errorf("JWTSecret = %q, want file-secret", cfg.JWTSecret)
	}
}

func TestInvalidCacheBackendRejected(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CACHE_BACKEND", "memcached")
	_, err := Load(Flags{})
	if err == nil {
		t.Fatal("expected error for invalid CACHE_BACKEND")
	}
}
