package config

import "strings"

var validCacheBackends = []string{"memory", "redis", "database"}
var validJWTAlgorithms = []string{"HS256", "HS384", "HS512", "RS256"}

// Validate checks c for internal consistency, returning an Errors value
// naming every offending key. A nil return means c is safe to run with.
func (c *Config) Validate() error {
	var errs Errors

	if c.Port <= 0 || c.Port > 65535 {
		errs.add("PORT", c.Port, "must be between 1 and 65535")
	}
	if strings.TrimSpace(c.Host) == "" {
		errs.add("HOST", c.Host, "must not be empty")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs.add("DATABASE_URL", c.DatabaseURL, "must not be empty")
	}
	if !oneOf(c.CacheBackend, validCacheBackends) {
		errs.add("CACHE_BACKEND", c.CacheBackend, "must be one of %v", validCacheBackends)
	}
	if c.CacheBackend == "redis" && strings.TrimSpace(c.RedisURL) == "" {
		errs.add("REDIS_URL", c.RedisURL, "is required when CACHE_BACKEND=redis")
	}
	if !oneOf(c.JWTAlgorithm, validJWTAlgorithms) {
		errs.add("JWT_ALGORITHM", c.JWTAlgorithm, "must be one of %v", validJWTAlgorithms)
	}
	if c.JWTSecret == "" && c.JWTSecretFile == "" {
		errs.add("JWT_SECRET", "", "JWT_SECRET or JWT_SECRET_FILE must be set")
	}
	if c.DBPoolSize <= 0 {
		errs.add("DB_POOL_SIZE", c.DBPoolSize, "must be positive")
	}
	if c.DBMaxOverflow < 0 {
		errs.add("DB_MAX_OVERFLOW", c.DBMaxOverflow, "must not be negative")
	}
	if c.ElicitationMaxConcurrent <= 0 {
		errs.add("MCPGATEWAY_ELICITATION_MAX_CONCURRENT", c.ElicitationMaxConcurrent, "must be positive")
	}
	if c.SSEKeepaliveInterval <= 0 {
		errs.add("SSE_KEEPALIVE_INTERVAL", c.SSEKeepaliveInterval, "must be positive")
	}
	if c.UpstreamMaxConcurrent <= 0 {
		errs.add("UPSTREAM_MAX_CONCURRENT", c.UpstreamMaxConcurrent, "must be positive")
	}
	if c.UpstreamRetryMaxAttempts <= 0 {
		errs.add("UPSTREAM_RETRY_MAX_ATTEMPTS", c.UpstreamRetryMaxAttempts, "must be positive")
	}
	if c.GatewayToolNameSeparator == "" {
		errs.add("GATEWAY_TOOL_NAME_SEPARATOR", c.GatewayToolNameSeparator, "must not be empty")
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
