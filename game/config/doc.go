// Package config loads the runtime settings of the tank tactics server.
//
// Settings come from environment variables, optionally seeded from a .env
// file:
//
//	if err := config.LoadDotEnv(); err != nil {
//		return err
//	}
//	settings, err := config.Load()
//	if err != nil {
//		return err
//	}
//	log, err := settings.NewLogger(os.Stderr)
//
// STORE_DRIVER selects memory, sqlite or postgres; the sql drivers need
// STORE_DSN. MAX_PLAYERS and the START_* values feed lifecycle.Rules.
package config
