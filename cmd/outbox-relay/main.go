// Command outbox-relay runs the C5 relay worker: it polls the outbox
// table, decodes each record's payload, publishes it to the configured
// broker, and records outcomes (processed, retried, quarantined).
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/lattice-systems/txoutbox"
	"github.com/lattice-systems/txoutbox/internal/broker"
	"github.com/lattice-systems/txoutbox/internal/config"
	"github.com/lattice-systems/txoutbox/internal/deadletter"
	"github.com/lattice-systems/txoutbox/internal/domain"
	"github.com/lattice-systems/txoutbox/internal/domainevent"
	"github.com/lattice-systems/txoutbox/internal/health"
	"github.com/lattice-systems/txoutbox/internal/platform/logging"
	"github.com/lattice-systems/txoutbox/postgres"
)

const dbPingInterval = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "outbox-relay: no .env file found, relying on the environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "outbox-relay: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Options{
		ServiceName: "outbox-relay",
		Level:       cfg.App.LogLevel,
		Console:     cfg.App.Console,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("outbox-relay: exiting", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	db, err := sql.Open("pgx", cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	store, err := postgres.NewStore(db,
		postgres.WithTable(cfg.DB.Table),
		postgres.WithMaxAttempts(cfg.Relay.MaxAttempts),
	)
	if err != nil {
		return fmt.Errorf("init outbox store: %w", err)
	}

	dlqRepo := deadletter.NewRepository(db)
	recorder := deadletter.NewRecorder(store, dlqRepo, deadletter.WithRecorderLogger(logger))

	registry := domainevent.NewRegistry()
	domain.RegisterAll(registry)

	probe := health.NewProbe(nil, txoutbox.SystemClock{})

	publisher, closePublisher, err := newPublisher(ctx, cfg, logger, probe)
	if err != nil {
		return fmt.Errorf("init broker publisher: %w", err)
	}
	defer closePublisher()

	handler := newHandler(registry, publisher, logger)

	relay := txoutbox.NewRelay(recorder, handler,
		txoutbox.WithBatchSize(cfg.Relay.BatchSize),
		txoutbox.WithPollInterval(cfg.Relay.PollInterval),
		txoutbox.WithWorkers(cfg.Relay.Workers),
		txoutbox.WithPartitionWindow(cfg.Relay.PartitionWindow),
		txoutbox.WithHandlerTimeout(cfg.Relay.HandlerTimeout),
		txoutbox.WithPendingInterval(cfg.Relay.PendingInterval),
		txoutbox.WithLogger(logger),
		txoutbox.WithMetrics(probe),
		txoutbox.WithFailureClassifier(classifyFailure),
	)

	go watchDB(ctx, db, probe)

	logger.Info("outbox-relay ready", "batch_size", cfg.Relay.BatchSize, "workers", cfg.Relay.Workers)

	return relay.Run(ctx)
}

// newPublisher builds the configured broker.Publisher. UseLoggingDev picks
// the logging fallback; otherwise it dials a real Pub/Sub client and marks
// the broker dependency reachable in probe, since constructing the client
// is itself a connectivity check.
func newPublisher(ctx context.Context, cfg *config.Config, logger *logging.Logger, probe *health.Probe) (broker.Publisher, func(), error) {
	if cfg.PubSub.UseLoggingDev {
		return broker.NewLoggingPublisher(logger), func() {}, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.GCP.ProjectID)
	if err != nil {
		probe.RecordBrokerPing(err)

		return nil, nil, fmt.Errorf("new pubsub client: %w", err)
	}
	probe.RecordBrokerPing(nil)

	pub := broker.NewPubSubPublisher(client, cfg.GCP.ProjectID,
		broker.WithDefaultTopic(cfg.PubSub.DefaultTopic),
		broker.WithPubSubLogger(logger),
	)

	return pub, func() {
		pub.Stop()
		_ = client.Close()
	}, nil
}

// newHandler decodes each record's payload via the domain-event registry
// before forwarding it, so a record with an unregistered type tag or a
// malformed payload never reaches the broker.
func newHandler(registry *domainevent.Registry, publisher broker.Publisher, logger txoutbox.Logger) txoutbox.Handler {
	return txoutbox.HandlerFunc(func(ctx context.Context, record txoutbox.Record) error {
		if _, err := registry.Decode(record.EventType, record.Payload); err != nil {
			logger.Error("outbox-relay: record has no decodable schema", "id", record.ID.String(), "event_type", record.EventType, "err", err)

			return err
		}

		msg := broker.Message{
			ID:          record.ID,
			TypeTag:     record.EventType,
			ContentType: "application/json",
			Body:        record.Payload,
		}

		if err := publisher.Publish(ctx, msg); err != nil {
			return fmt.Errorf("publish %s: %w", record.ID, err)
		}

		return nil
	})
}

// classifyFailure quarantines records whose payload cannot be decoded
// under any registered schema; everything else, permanent broker errors
// included, is retried until the store's max-attempts ceiling quarantines it.
func classifyFailure(_ context.Context, _ txoutbox.Record, err error) txoutbox.FailureAction {
	if errors.Is(err, domainevent.ErrUnknownType) || errors.Is(err, domainevent.ErrMalformed) {
		return txoutbox.FailureQuarantine
	}

	return txoutbox.FailureRetry
}

func watchDB(ctx context.Context, db *sql.DB, probe *health.Probe) {
	ticker := time.NewTicker(dbPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, dbPingInterval/2)
			probe.RecordDBPing(db.PingContext(pingCtx))
			cancel()
		}
	}
}
