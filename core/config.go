package core

import (
	"fmt"
	"strings"
	"time"
)

type OAuthConfig struct {
	StateTTL         time.Duration `koanf:"state_ttl" mapstructure:"state_ttl"`
	RefreshMargin    time.Duration `koanf:"refresh_margin" mapstructure:"refresh_margin"`
	AllowedRedirects []string      `koanf:"allowed_redirects" mapstructure:"allowed_redirects"`
}

type SyncConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type Config struct {
	ServiceName string      `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig `koanf:"oauth" mapstructure:"oauth"`
	Sync        SyncConfig  `koanf:"sync" mapstructure:"sync"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "tasksync",
		OAuth: OAuthConfig{
			StateTTL:      defaultOAuthStateTTL,
			RefreshMargin: defaultRefreshMargin,
		},
		Sync: SyncConfig{
			MaxAttempts:    defaultRetryMaxAttempts,
			InitialBackoff: defaultRetryInitialBackoff,
			MaxBackoff:     defaultRetryMaxBackoff,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OAuth.StateTTL < 0 {
		return fmt.Errorf("core: oauth.state_ttl must not be negative")
	}
	if c.OAuth.RefreshMargin < 0 {
		return fmt.Errorf("core: oauth.refresh_margin must not be negative")
	}
	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("core: sync.max_attempts must not be negative")
	}
	return nil
}
