package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Flags mirrors the subset of configuration that the `mcpgateway serve`
// command accepts as explicit process flags. Zero values are treated as
// "not set" and do not override lower-precedence sources, matching the
// teacher's convention of optional flags layering onto a loaded config.
type Flags struct {
	Host       string
	Port       int
	ConfigPath string
}

// Load resolves a Config from, in ascending precedence: the built-in
// defaults, an optional YAML file at flags.ConfigPath, environment
// variables, then flags themselves. It returns a validation error naming
// every offending key rather than failing on the first one, per spec.md
// §4.1 "fails fast ... naming the offending key".
func Load(flags Flags) (Config, error) {
	cfg := Default()

	if flags.ConfigPath != "" {
		if err := mergeFile(&cfg, flags.ConfigPath); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if flags.Host != "" {
		cfg.Host = flags.Host
	}
	if flags.Port != 0 {
		cfg.Port = flags.Port
	}

	if err := resolveSecretFiles(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// resolveSecretFiles reads *_FILE-suffixed secret overrides, the same
// file-based secret pattern the teacher uses for OAuth client secrets, kept
// out of config files and environment variables.
func resolveSecretFiles(cfg *Config) error {
	if cfg.JWTSecretFile != "" && cfg.JWTSecret == "" {
		data, err := os.ReadFile(cfg.JWTSecretFile)
		if err != nil {
			return fmt.Errorf("config: reading JWT_SECRET_FILE %s: %w", cfg.JWTSecretFile, err)
		}
		cfg.JWTSecret = strings.TrimSpace(string(data))
	}
	return nil
}

// applyEnv walks cfg's fields by their `env` struct tag and overrides any
// value found in the process environment. Supported kinds: string, bool,
// int, time.Duration, []string (comma-separated).
func applyEnv(cfg *Config) {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envKey := field.Tag.Get("env")
		if envKey == "" {
			continue
		}
		raw, ok := os.LookupEnv(envKey)
		if !ok {
			continue
		}
		setField(v.Field(i), field.Type, raw)
	}
}

func setField(fv reflect.Value, ft reflect.Type, raw string) {
	switch {
	case ft == reflect.TypeOf(time.Duration(0)):
		if d, err := time.ParseDuration(raw); err == nil {
			fv.SetInt(int64(d))
		} else if secs, err := strconv.Atoi(raw); err == nil {
			fv.SetInt(int64(time.Duration(secs) * time.Second))
		}
	case ft.Kind() == reflect.String:
		fv.SetString(raw)
	case ft.Kind() == reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			fv.SetBool(b)
		}
	case ft.Kind() == reflect.Int:
		if n, err := strconv.Atoi(raw); err == nil {
			fv.SetInt(int64(n))
		}
	case ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.String:
		parts := strings.Split(raw, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		fv.Set(reflect.ValueOf(parts))
	}
}
