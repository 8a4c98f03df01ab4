// Package config reads daemon configuration from GUILDS_* environment
// variables and provides the fatal-exit helper for entry points.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target's tagged fields from the environment. Defaults come
// from the struct tags, so a bare environment still yields a runnable config.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
