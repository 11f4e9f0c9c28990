// Package config provides the gateway's immutable, env-overridable
// configuration. A Config is built once at startup from flags, environment,
// and an optional YAML file (in that precedence order) and handed down to
// every component; nothing reads os.Getenv after Load returns.
package config

import "time"

// Config is the fully resolved, immutable configuration for one gateway
// process. Every field maps to an option documented in spec.md §4.1.
type Config struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`

	DatabaseURL  string `yaml:"database_url" env:"DATABASE_URL"`
	CacheBackend string `yaml:"cache_backend" env:"CACHE_BACKEND"` // memory | redis | database
	RedisURL     string `yaml:"redis_url" env:"REDIS_URL"`

	JWTSecret              string `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTSecretFile          string `yaml:"jwt_secret_file" env:"JWT_SECRET_FILE"`
	JWTAlgorithm           string `yaml:"jwt_algorithm" env:"JWT_ALGORITHM"`
	RequireTokenExpiration bool   `yaml:"require_token_expiration" env:"REQUIRE_TOKEN_EXPIRATION"`

	DBPoolSize     int           `yaml:"db_pool_size" env:"DB_POOL_SIZE"`
	DBMaxOverflow  int           `yaml:"db_max_overflow" env:"DB_MAX_OVERFLOW"`
	DBPoolTimeout  time.Duration `yaml:"db_pool_timeout" env:"DB_POOL_TIMEOUT"`
	DBPoolRecycle  time.Duration `yaml:"db_pool_recycle" env:"DB_POOL_RECYCLE"`

	EnableFederation    bool `yaml:"enable_federation" env:"MCPGATEWAY_ENABLE_FEDERATION"`
	EnableMDNSDiscovery bool `yaml:"enable_mdns_discovery" env:"MCPGATEWAY_ENABLE_MDNS_DISCOVERY"`

	GatewayToolNameSeparator  string   `yaml:"gateway_tool_name_separator" env:"GATEWAY_TOOL_NAME_SEPARATOR"`
	DefaultPassthroughHeaders []string `yaml:"default_passthrough_headers" env:"DEFAULT_PASSTHROUGH_HEADERS"`

	PluginsEnabled   bool   `yaml:"plugins_enabled" env:"PLUGINS_ENABLED"`
	PluginConfigFile string `yaml:"plugin_config_file" env:"PLUGIN_CONFIG_FILE"`

	ElicitationEnabled       bool          `yaml:"elicitation_enabled" env:"MCPGATEWAY_ELICITATION_ENABLED"`
	ElicitationTimeout       time.Duration `yaml:"elicitation_timeout" env:"MCPGATEWAY_ELICITATION_TIMEOUT"`
	ElicitationMaxConcurrent int           `yaml:"elicitation_max_concurrent" env:"MCPGATEWAY_ELICITATION_MAX_CONCURRENT"`

	SSEKeepaliveInterval time.Duration `yaml:"sse_keepalive_interval" env:"SSE_KEEPALIVE_INTERVAL"`
	SessionIdleTimeout   time.Duration `yaml:"session_idle_timeout" env:"SESSION_IDLE_TIMEOUT"`

	LogRequests  bool   `yaml:"log_requests" env:"LOG_REQUESTS"`
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL"`
	LogToFile    bool   `yaml:"log_to_file" env:"LOG_TO_FILE"`
	LogFilePath  string `yaml:"log_file_path" env:"LOG_FILE_PATH"`
	LogMaxSizeMB int    `yaml:"log_max_size_mb" env:"LOG_MAX_SIZE_MB"`

	EnableHeaderPassthrough    bool `yaml:"enable_header_passthrough" env:"ENABLE_HEADER_PASSTHROUGH"`
	EnableOverwriteBaseHeaders bool `yaml:"enable_overwrite_base_headers" env:"ENABLE_OVERWRITE_BASE_HEADERS"`
	A2AEnabled                 bool `yaml:"a2a_enabled" env:"MCPGATEWAY_A2A_ENABLED"`
	CompressionEnabled         bool `yaml:"compression_enabled" env:"COMPRESSION_ENABLED"`

	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	PluginTimeout   time.Duration `yaml:"plugin_timeout" env:"PLUGIN_TIMEOUT"`
	ResourceTimeout time.Duration `yaml:"resource_timeout" env:"RESOURCE_TIMEOUT"`

	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	LeaderLockTTL       time.Duration `yaml:"leader_lock_ttl" env:"LEADER_LOCK_TTL"`
	LeaderRenewInterval time.Duration `yaml:"leader_renew_interval" env:"LEADER_RENEW_INTERVAL"`

	UpstreamMaxConcurrent  int `yaml:"upstream_max_concurrent" env:"UPSTREAM_MAX_CONCURRENT"`
	UpstreamRetryMaxAttempts int `yaml:"upstream_retry_max_attempts" env:"UPSTREAM_RETRY_MAX_ATTEMPTS"`
}

// Default returns the gateway's out-of-the-box configuration, the baseline
// that flags/env/file overrides are layered onto.
func Default() Config {
	return Config{
		Host:                       "0.0.0.0",
		Port:                       4444,
		DatabaseURL:                "sqlite:///./mcpgateway.db",
		CacheBackend:               "memory",
		JWTAlgorithm:               "HS256",
		RequireTokenExpiration:     true,
		DBPoolSize:                 20,
		DBMaxOverflow:              10,
		DBPoolTimeout:              30 * time.Second,
		DBPoolRecycle:              3600 * time.Second,
		EnableFederation:           true,
		EnableMDNSDiscovery:        false,
		GatewayToolNameSeparator:   "-",
		DefaultPassthroughHeaders:  []string{"X-Request-Id", "X-Tenant-Id"},
		PluginsEnabled:             false,
		ElicitationEnabled:         true,
		ElicitationTimeout:         60 * time.Second,
		ElicitationMaxConcurrent:   50,
		SSEKeepaliveInterval:       30 * time.Second,
		SessionIdleTimeout:         300 * time.Second,
		LogRequests:                true,
		LogLevel:                   "info",
		LogToFile:                  false,
		LogMaxSizeMB:               10,
		EnableHeaderPassthrough:    false,
		EnableOverwriteBaseHeaders: false,
		A2AEnabled:                 false,
		CompressionEnabled:         true,
		RequestTimeout:             60 * time.Second,
		PluginTimeout:              30 * time.Second,
		ResourceTimeout:            30 * time.Second,
		HealthCheckInterval:        60 * time.Second,
		LeaderLockTTL:              90 * time.Second,
		LeaderRenewInterval:        30 * time.Second,
		UpstreamMaxConcurrent:      64,
		UpstreamRetryMaxAttempts:   5,
	}
}
