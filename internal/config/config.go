// Package config loads daemon configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Registry backend selectors.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Gateway holds the authorization gateway's knobs. Defaults are provided via
// struct tags; the JWT secret fallback is insecure by design of the original
// deployment and must be overridden in production.
type Gateway struct {
	Port           int           `env:"PORT,default=8000"`
	JWTSecret      string        `env:"JWT_SECRET,default=your-secret-jwt-key-change-in-production"`
	FacilitatorURL string        `env:"FACILITATOR_URL,default=http://localhost:3000"`
	SettleTimeout  time.Duration `env:"SETTLE_TIMEOUT,default=30s"`
	Env            string        `env:"NODE_ENV,default=development"`

	RegistryBackend string `env:"REGISTRY_BACKEND,default=file"`
	RegistryFile    string `env:"REGISTRY_FILE,default=protected-websites.json"`
	RegistryDB      string `env:"REGISTRY_DB,default=porus.db"`

	// Optional CDP key pair for Coinbase-hosted facilitators.
	CDPAPIKey       string `env:"CDP_API_KEY"`
	CDPAPIKeySecret string `env:"CDP_API_KEY_SECRET"`
}

// Production reports whether the gateway runs with production hardening
// (secure cookies).
func (g Gateway) Production() bool { return g.Env == "production" }

// LoadGateway populates Gateway from the environment.
func LoadGateway() (Gateway, error) {
	var cfg Gateway
	if err := envdecode.Decode(&cfg); err != nil {
		return Gateway{}, fmt.Errorf("decode gateway config: %w", err)
	}
	switch cfg.RegistryBackend {
	case BackendFile, BackendSQLite:
	default:
		return Gateway{}, fmt.Errorf("unknown REGISTRY_BACKEND %q", cfg.RegistryBackend)
	}
	return cfg, nil
}

// Facilitator holds the facilitator daemon's knobs. A family whose key is
// absent is simply not offered.
type Facilitator struct {
	Port          int    `env:"PORT,default=3000"`
	EVMPrivateKey string `env:"EVM_PRIVATE_KEY"`
	SVMPrivateKey string `env:"SVM_PRIVATE_KEY"`
}

// LoadFacilitator populates Facilitator from the environment.
func LoadFacilitator() (Facilitator, error) {
	var cfg Facilitator
	if err := envdecode.Decode(&cfg); err != nil {
		return Facilitator{}, fmt.Errorf("decode facilitator config: %w", err)
	}
	return cfg, nil
}
