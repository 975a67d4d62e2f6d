package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/modma/internal/envvar"
)

// Environment is the deployment environment the process runs in.
type Environment string

const (
	// Development enables human-readable console logs.
	Development Environment = "development"

	// Production enables JSON logs.
	Production Environment = "production"
)

// FromEnv reads the environment from MODMA_ENV, defaulting to development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.ModmaEnv))
}

// Parse converts a raw value into an Environment.
func Parse(raw string) Environment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return Production
	default:
		return Development
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}
