package config

import "strings"

// Environment identifies the runtime environment where the proxy operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// DexName identifies the venue connector served by the proxy.
type DexName string

const (
	// DexHarbor selects the Harbor connector.
	DexHarbor DexName = "harbor"
)

func normalizeDexName(name string) DexName {
	return DexName(strings.ToLower(strings.TrimSpace(name)))
}
