// Package config provides configuration management for the holds service.
//
// Configuration is read from a YAML file, completed with defaults, overridden
// from the environment and validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("holds.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention HOLDS_SECTION_FIELD:
//
//   - HOLDS_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - HOLDS_BULK_PAGE_SIZE overrides bulk.page_size
//   - HOLDS_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton and Hot Reload
//
// Initialize stores the configuration process-wide and GetConfig returns it.
// When watch.enabled is set, a Watcher reloads the file after it changes and
// hands the new value to a callback; an invalid file never replaces a valid
// configuration.
//
//	w := config.NewWatcher(path, cfg.Watch.Debounce)
//	go w.Watch(ctx, func(cfg *config.Config) {
//	    logging.SetLevel(cfg.Telemetry.Logging.Level)
//	})
package config
