// Package logging provides the gateway's process-wide structured logger
// (spec.md §4.1 LOG_LEVEL/LOG_TO_FILE/LOG_MAX_SIZE_MB), built on slog.
//
// # Usage
//
//	logging.InitForCLI(logging.ParseLevel(cfg.LogLevel), os.Stdout)
//	logging.Info("bootstrap", "application starting up")
//	logging.Warn("federation", "health check failed for gateway %s", name)
//	logging.Error("store", err, "opening database")
//
// Audit events for security-sensitive operations (registration, token
// exchange, plugin violations) go through Audit, which always logs at INFO
// with an [AUDIT] prefix so they're filterable independently of request
// logs.
package logging
