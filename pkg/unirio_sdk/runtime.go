package unirio_sdk

import (
	"fmt"
	"os"
	"strings"

	"github.com/unirio/unirio_sdk_go/internal/devseed"
	"github.com/unirio/unirio_sdk_go/pkg/unirio"
	"github.com/unirio/unirio_sdk_go/pkg/unirio/mock"
)

const (
	envMode     = "UNIRIO_RUNTIME_MODE"
	envServer   = "UNIRIO_API_SERVER"
	envKey      = "UNIRIO_API_KEY"
	envMockSeed = "UNIRIO_MOCK_SEED"

	modeAuto = "auto"
	modeHTTP = "http"
	modeMock = "mock"

	// MockKey is granted every endpoint in mock mode when UNIRIO_API_KEY is unset.
	MockKey = "mock-key"
)

// NewFromEnv initialises a client according to UNIRIO_RUNTIME_MODE and
// returns the resolved mode ("http" or "mock"). In auto mode (the default)
// the HTTP client is used when both UNIRIO_API_SERVER and UNIRIO_API_KEY are
// set. Options are applied to the client in either mode.
func NewFromEnv(opts ...unirio.Option) (*unirio.Client, string, error) {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv(envMode)))
	server := strings.TrimSpace(os.Getenv(envServer))
	key := strings.TrimSpace(os.Getenv(envKey))

	switch mode {
	case "", modeAuto:
		if server != "" && key != "" {
			return newHTTPClient(opts)
		}
		return newMockClient(key, opts)
	case modeHTTP:
		return newHTTPClient(opts)
	case modeMock:
		return newMockClient(key, opts)
	default:
		return nil, "", fmt.Errorf("unirio_sdk: unsupported %s value %q", envMode, mode)
	}
}

func newHTTPClient(opts []unirio.Option) (*unirio.Client, string, error) {
	client, err := unirio.NewFromEnv(opts...)
	if err != nil {
		return nil, "", fmt.Errorf("unirio_sdk: init HTTP client: %w", err)
	}
	return client, modeHTTP, nil
}

func newMockClient(key string, opts []unirio.Option) (*unirio.Client, string, error) {
	if key == "" {
		key = MockKey
	}
	svc := mock.New()
	svc.AddKey(key)
	if path := strings.TrimSpace(os.Getenv(envMockSeed)); path != "" {
		seed, err := devseed.Load(path)
		if err != nil {
			return nil, "", fmt.Errorf("unirio_sdk: load mock seed: %w", err)
		}
		if err := svc.Seed(seed); err != nil {
			return nil, "", fmt.Errorf("unirio_sdk: apply mock seed: %w", err)
		}
	}

	all := append([]unirio.Option{unirio.WithHTTPClient(svc.HTTPClient())}, opts...)
	client, err := unirio.New(mock.ServerURL, key, all...)
	if err != nil {
		return nil, "", fmt.Errorf("unirio_sdk: init mock client: %w", err)
	}
	return client, modeMock, nil
}
