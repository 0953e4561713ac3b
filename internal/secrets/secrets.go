// Package secrets provides the shared-secret lookup used by the control
// surface auth middleware, outbound collaborator calls, and the health check.
package secrets

import (
	"fmt"
	"os"

	"newswire/internal/config"
)

// Provider resolves the crawler shared secret. Injected explicitly so tests
// can substitute a static value.
type Provider interface {
	CrawlerSecret() (string, error)
}

// Static returns a fixed secret. Used in tests and when the secret is given
// directly in config.
type Static struct {
	Secret string
}

func (s Static) CrawlerSecret() (string, error) {
	if s.Secret == "" {
		return "", fmt.Errorf("crawler secret is not set")
	}
	return s.Secret, nil
}

// Env resolves the secret from an environment variable at call time, so a
// rotated secret is picked up without a restart.
type Env struct {
	Var string
}

func (e Env) CrawlerSecret() (string, error) {
	if e.Var == "" {
		return "", fmt.Errorf("secret environment variable name is not set")
	}
	secret := os.Getenv(e.Var)
	if secret == "" {
		return "", fmt.Errorf("environment variable %s is empty", e.Var)
	}
	return secret, nil
}

// FromConfig picks the provider implied by the auth config: a literal secret
// wins over an env indirection.
func FromConfig(cfg config.AuthConfig) Provider {
	if cfg.Secret != "" {
		return Static{Secret: cfg.Secret}
	}
	if cfg.SecretEnv != "" {
		return Env{Var: cfg.SecretEnv}
	}
	return Env{Var: "CRAWLER_API_SECRET"}
}
