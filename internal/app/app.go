// Package app wires configuration, storage and HTTP serving for the raibee
// command.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raibee/backend/internal/config"
	"github.com/raibee/backend/internal/handlers"
	"github.com/raibee/backend/internal/httpserver"
	"github.com/raibee/backend/internal/logging"
	"github.com/raibee/backend/internal/metrics"
	"github.com/raibee/backend/internal/middleware"
	"github.com/raibee/backend/internal/purchases"
)

const (
	amqpDialRetries = 5
	amqpDialDelay   = 2 * time.Second
)

// Run bootstraps the Rai Bee backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or seed")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx = logging.WithLogger(ctx, logger)

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		if err := seedDemo(ctx, st.users); err != nil {
			return fmt.Errorf("seed demo accounts: %w", err)
		}
	}

	blobs, err := openBlobs(ctx, cfg.Blob)
	if err != nil {
		return err
	}

	m := metrics.New()
	deps, recorder, err := buildDependencies(cfg, st, blobs, m)
	if err != nil {
		return err
	}

	if cfg.AMQP.URL != "" {
		stopConsumer, err := startConsumer(ctx, cfg.AMQP, recorder)
		if err != nil {
			return err
		}
		defer stopConsumer()
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)
	handler := middleware.RequestLogger(logger, m)(mux)

	srv := httpserver.New(cfg.AppPort, handler, cfg.StreamWriteTimeout)
	logger.Info("starting http server",
		"port", cfg.AppPort,
		"store", cfg.Store,
		"blob_backend", cfg.Blob.Backend,
		"amqp", cfg.AMQP.URL != "",
	)
	return srv.Run(ctx, logger)
}

// startConsumer runs the purchase event consumer until ctx is done or the
// channel closes. The returned func closes the channel, waits for the
// consumer and then closes the connection.
func startConsumer(ctx context.Context, cfg config.AMQPConfig, recorder *purchases.Recorder) (func(), error) {
	logger := logging.FromContext(ctx)

	conn, err := purchases.Connect(cfg.URL, amqpDialRetries, amqpDialDelay)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	consumer := purchases.NewConsumer(recorder, cfg.Queue, cfg.Prefetch)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx, ch); err != nil {
			logger.Error("purchase consumer stopped", "error", err)
		}
	}()

	return func() {
		_ = ch.Close()
		<-done
		_ = conn.Close()
	}, nil
}
