package config

import "github.com/caarlos0/env/v11"

// EnvPrefix is prepended to every variable name in the Config env tags.
const EnvPrefix = "DLOGR_"

// parseEnv overlays Config with the DLOGR_* variables that are set.
// Unset variables leave the current value untouched.
func parseEnv(config *Config) {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(err)
	}
}
