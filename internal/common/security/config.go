package security

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

// HandlerConfig is the handler's environment.
type HandlerConfig struct {
	Domain         string        `env:"DOMAIN,required"`
	Region         string        `env:"REGION,required"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadHandlerConfig reads the handler configuration from the process
// environment, or from environment when it is non-nil.
func LoadHandlerConfig(environment map[string]string) (HandlerConfig, error) {
	var cfg HandlerConfig
	opts := env.Options{}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return HandlerConfig{}, fmt.Errorf("failed to parse handler environment: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		return HandlerConfig{}, fmt.Errorf("REQUEST_TIMEOUT must be positive (got %s)", cfg.RequestTimeout)
	}
	return cfg, nil
}
