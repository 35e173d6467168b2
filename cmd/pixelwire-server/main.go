// Command pixelwire-server runs the collaborative pixel-grid WebSocket
// server: it loads the users file, builds the rate limiter from flags, and
// serves upgraded connections until the listener fails.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hollowcrest/pixelwire/auth"
	"github.com/hollowcrest/pixelwire/metrics"
	"github.com/hollowcrest/pixelwire/ratelimit"
	"github.com/hollowcrest/pixelwire/server"
)

var (
	timePerMessage time.Duration
	burstSize      uint32
	dropVsBlock    bool
	bindAddr       string
	usersFile      string
	metricsAddr    string
	allowedOrigins []string
)

func main() {
	root := &cobra.Command{
		Use:   "pixelwire-server",
		Short: "Real-time collaborative pixel-grid WebSocket server",
		RunE:  run,
	}

	// Defaults taken from the original server's main: 1ms per message,
	// burst of 10, drop (not block) on excess.
	root.Flags().DurationVar(&timePerMessage, "time_per_message", time.Millisecond, "minimum spacing between admitted client messages")
	root.Flags().Uint32Var(&burstSize, "burst_size", 10, "accrued burst allowance (0 treated as 1)")
	root.Flags().BoolVar(&dropVsBlock, "drop_vs_block", true, "drop excess messages instead of blocking the reader")
	root.Flags().StringVar(&bindAddr, "bind_addr", "127.0.0.1:8080", "listen address")
	root.Flags().StringVar(&usersFile, "users_file", "", "path to the YAML users configuration file (required)")
	root.Flags().StringVar(&metricsAddr, "metrics_addr", "", "address to serve /metrics on (disabled if empty)")
	root.Flags().StringSliceVar(&allowedOrigins, "allowed_origin", nil, "hostname allowed in the handshake's Origin header (repeatable; empty allows any origin)")

	if err := root.MarkFlagRequired("users_file"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	users, err := loadUsers(usersFile)
	if err != nil {
		return fmt.Errorf("loading users file: %w", err)
	}

	rateLimit := ratelimit.New(timePerMessage).
		WithBurst(burstSize).
		WithDropInsteadOfBlocking(dropVsBlock)

	m := metrics.New()
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, m, logger)
	}

	srv := server.New(server.Config{
		BindAddr:       bindAddr,
		Users:          users,
		RateLimit:      rateLimit,
		Logger:         logger,
		Metrics:        m,
		AllowedOrigins: allowedOrigins,
	})

	logger.Info("listening", zap.String("bind_addr", bindAddr), zap.String("users_file", usersFile))
	return server.Run(bindAddr, srv)
}

func loadUsers(path string) (*auth.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return auth.ParseUsersFile(data)
}

func serveMetrics(addr string, m *metrics.Metrics, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener stopped", zap.Error(err))
	}
}
