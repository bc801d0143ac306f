// Command unirio-sandbox serves the in-memory UNIRIO API on a local port so
// clients can be exercised without access to the university systems.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/unirio/unirio_sdk_go/internal/devseed"
	"github.com/unirio/unirio_sdk_go/pkg/unirio/mock"
)

const (
	serverEnv = "UNIRIO_API_SERVER"
	keyEnv    = "UNIRIO_API_KEY"

	defaultKey = "sandbox-key"
)

type options struct {
	addr    string
	prefix  string
	seed    string
	key     string
	latency time.Duration
	fail    string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "unirio-sandbox",
		Short:         "Serve an in-memory UNIRIO API for local development",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", ":8000", "listen address")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "/api", "path prefix of the API root")
	cmd.Flags().StringVar(&opts.seed, "seed", "", "path to a YAML seed file")
	cmd.Flags().StringVar(&opts.key, "key", defaultKey, "API key granted every endpoint")
	cmd.Flags().DurationVar(&opts.latency, "latency", 0, "artificial latency to inject per request")
	cmd.Flags().StringVar(&opts.fail, "fail", "", "failure injection (rate=<float>,code=<httpStatus>)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every request")
	return cmd
}

func run(opts *options) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	if !opts.verbose {
		logger = logger.Level(zerolog.InfoLevel)
	}

	failCfg, err := parseFailConfig(opts.fail)
	if err != nil {
		return fmt.Errorf("parse fail flag: %w", err)
	}

	svc, err := newService(opts)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger), injectFaults(opts.latency, failCfg))
	router.Mount(normalizePrefix(opts.prefix), svc.Handler())

	server := &http.Server{
		Addr:              opts.addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().Str("addr", opts.addr).Strs("tables", svc.Tables()).Msg("unirio-sandbox listening")
	host := opts.addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	fmt.Println()
	fmt.Printf("export %s=http://%s%s\n", serverEnv, host, normalizePrefix(opts.prefix))
	fmt.Printf("export %s=%s\n", keyEnv, opts.key)
	fmt.Println()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func newService(opts *options) (*mock.Service, error) {
	svc := mock.New()
	if opts.key != "" {
		svc.AddKey(opts.key)
	}
	if opts.seed == "" {
		return svc, nil
	}
	seed, err := devseed.Load(opts.seed)
	if err != nil {
		return nil, fmt.Errorf("load seed: %w", err)
	}
	if err := svc.Seed(seed); err != nil {
		return nil, fmt.Errorf("apply seed: %w", err)
	}
	return svc, nil
}

func normalizePrefix(prefix string) string {
	prefix = "/" + strings.Trim(prefix, "/")
	return prefix
}
