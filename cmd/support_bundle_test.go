package cmd

import "testing"

func TestIsSecretConfigKey(t *testing.T) {
	cases := map[string]bool{
		"JWTSecret":    true,
		"JWTSecretFile": true,
		"DatabaseURL":  false,
		"Host":         false,
		"RedisURL":     false,
	}
	for key, want := range cases {
		if got := isSecretConfigKey(key); got != want {
			t.Errorf("isSecretConfigKey(%q) = %v, want %v", key, got, want)
		}
	}
}
