package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/layer-3/energygate/adapters/challenge"
	"github.com/layer-3/energygate/adapters/codec"
	"github.com/layer-3/energygate/adapters/events"
	"github.com/layer-3/energygate/adapters/verifier"
	"github.com/layer-3/energygate/internal/config"
	"github.com/layer-3/energygate/internal/logging"
	"github.com/layer-3/energygate/internal/supervisor"
	"github.com/layer-3/energygate/ports"
	"github.com/layer-3/energygate/service"
	transport "github.com/layer-3/energygate/transport/http"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		logger, logCloser, err := newLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
}

func newLogger(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	return logging.New(logging.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
}

func loadSchema(cfg config.SchemaConfig) (*codec.Schema, error) {
	if cfg.Path == "" {
		return codec.DefaultSchema()
	}
	return codec.LoadSchemaFile(cfg.Path)
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	schema, err := loadSchema(cfg.Schema)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Schema.Path).Msg("failed to load wire schema")
		return err
	}

	usage, usageCloser, err := openLedger(cfg.Ledger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Ledger.Driver).Msg("failed to open ledger")
		return err
	}
	defer usageCloser.Close()

	eventPub, pubCloser, err := newEventPublisher(cfg.Events)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create event publisher")
		return err
	}
	defer pubCloser.Close()

	gateway := service.NewGatewayService(
		codec.NewProtobufCodec(schema),
		challenge.NewUUIDIssuer(),
		verifier.NewEthVerifier(),
		usage,
		eventPub,
		logger,
		service.Options{
			MaxEnergy:               cfg.Gateway.MaxEnergy,
			RequireChallengeBinding: cfg.Gateway.RequireChallengeBinding,
			QuotaFailOpen:           cfg.Gateway.QuotaFailOpen,
		},
	)

	opts := transport.DefaultOptions()
	opts.ReadLimit = cfg.Server.ReadLimit
	opts.AuthTimeout = cfg.Gateway.AuthTimeout
	opts.AllowedOrigins = cfg.Server.AllowedOrigins

	gin.SetMode(gin.ReleaseMode)
	handlers := transport.NewGatewayHandlers(gateway, opts, logger)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           transport.SetupRouter(handlers, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logger, cfg.Server.ShutdownTimeout)
	tree.Add(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout, handlers.CloseAll))

	logger.Info().
		Str("addr", server.Addr).
		Str("ledger", cfg.Ledger.Driver).
		Int("max_energy", cfg.Gateway.MaxEnergy).
		Bool("challenge_binding", cfg.Gateway.RequireChallengeBinding).
		Bool("quota_fail_open", cfg.Gateway.QuotaFailOpen).
		Bool("events", cfg.Events.Enabled).
		Msg("gateway listening")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("supervisor stopped")
		return err
	}

	logger.Info().Msg("gateway stopped")
	return nil
}

func newEventPublisher(cfg config.EventsConfig) (ports.EventPublisher, io.Closer, error) {
	if !cfg.Enabled {
		return events.NopPublisher{}, closerFunc(func() error { return nil }), nil
	}

	client, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to create Redis publisher: %w", err)
	}

	return events.NewWatermillPublisher(publisher, cfg.Topic), closerFunc(func() error {
		return errors.Join(publisher.Close(), client.Close())
	}), nil
}
