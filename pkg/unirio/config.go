package unirio

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/unirio/unirio_sdk_go/internal/httpx"
)

// Config holds the connection settings of a Client, usually read from a TOML
// file:
//
//	server = "https://sistemas.unirio.br/api"
//	api_key = "..."
//	debug = false
//	verify_cert = true
//	timeout = "5s"
type Config struct {
	Server        string        `toml:"server" validate:"required,url"`
	APIKey        string        `toml:"api_key" validate:"required"`
	Debug         bool          `toml:"debug"`
	VerifyCert    *bool         `toml:"verify_cert"`
	Timeout       time.Duration `toml:"timeout" validate:"gte=0"`
	OperatorField string        `toml:"operator_field"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads and validates a TOML configuration file.
func LoadConfig(filename string) (*Config, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("unirio: config filename is required")
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("unirio: read config: %w", err)
	}
	cfg := &Config{}
	if _, err := toml.Decode(string(content), cfg); err != nil {
		return nil, fmt.Errorf("unirio: parse config %s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can build a client.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("unirio: config is nil")
	}
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("unirio: invalid config: %w", err)
	}
	return nil
}

// Options translates the configuration into client options.
func (c *Config) Options() []Option {
	var opts []Option
	if c.Debug {
		opts = append(opts, WithDebug(true))
	}
	if c.VerifyCert != nil {
		opts = append(opts, WithCertVerification(*c.VerifyCert))
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = httpx.DefaultTimeout
	}
	opts = append(opts, WithTimeout(timeout))
	if c.OperatorField != "" {
		opts = append(opts, WithOperatorField(c.OperatorField))
	}
	return opts
}

// NewFromConfig validates cfg and builds a Client from it. Options in opts
// are applied after the ones derived from cfg.
func NewFromConfig(cfg *Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return New(cfg.Server, cfg.APIKey, append(cfg.Options(), opts...)...)
}
