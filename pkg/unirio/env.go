package unirio

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envConfig     = "UNIRIO_API_CONFIG"
	envServer     = "UNIRIO_API_SERVER"
	envKey        = "UNIRIO_API_KEY"
	envDebug      = "UNIRIO_API_DEBUG"
	envVerifyCert = "UNIRIO_API_VERIFY_CERT"
	envTimeout    = "UNIRIO_API_TIMEOUT"
)

// ConfigFromEnv builds a Config from UNIRIO_API_* variables. When
// UNIRIO_API_CONFIG names a file it is loaded first and the other variables
// override its values. The server defaults to ServerProduction.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if path := strings.TrimSpace(os.Getenv(envConfig)); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v := strings.TrimSpace(os.Getenv(envServer)); v != "" {
		cfg.Server = v
	}
	if cfg.Server == "" {
		cfg.Server = ServerProduction
	}
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envDebug)); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("unirio: invalid %s value %q", envDebug, v)
		}
		cfg.Debug = debug
	}
	if v := strings.TrimSpace(os.Getenv(envVerifyCert)); v != "" {
		verify, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("unirio: invalid %s value %q", envVerifyCert, v)
		}
		cfg.VerifyCert = &verify
	}
	if v := strings.TrimSpace(os.Getenv(envTimeout)); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("unirio: invalid %s value %q", envTimeout, v)
		}
		cfg.Timeout = timeout
	}
	return cfg, nil
}

// NewFromEnv initialises a Client from UNIRIO_API_* environment variables.
func NewFromEnv(opts ...Option) (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("unirio: %s is required", envKey)
	}
	return NewFromConfig(cfg, opts...)
}
