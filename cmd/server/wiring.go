package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"agora/internal/platform/config"
	"agora/internal/platform/kafka"
	"agora/internal/platform/postgres"
	"agora/internal/platform/redis"
	"agora/internal/territory"
	"agora/internal/voting/archive"
	votingmetrics "agora/internal/voting/metrics"
	"agora/internal/voting/notify"
	"agora/internal/voting/ports"
	"agora/internal/voting/service"
	"agora/internal/voting/store/ballotrequest"
	"agora/internal/voting/store/memory"
	votingpostgres "agora/internal/voting/store/postgres"
	"agora/internal/voting/token"
)

// app holds the wired voting service and the connections it owns.
type app struct {
	service   *service.Service
	storeKind string

	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
}

func buildApp(ctx context.Context, cfg config.Config, reg prometheus.Registerer, log *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, requests, err := a.openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	directory := territory.NewInMemoryDirectory()
	if cfg.TerritorySeedPath != "" {
		if err := directory.LoadSeed(cfg.TerritorySeedPath); err != nil {
			return nil, fmt.Errorf("load territory seed: %w", err)
		}
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(votingmetrics.New(reg)),
		service.WithConfig(service.Config{
			SplitThreshold:        cfg.Voting.SplitThreshold,
			SplitFactor:           cfg.Voting.SplitFactor,
			AllowVoteModification: cfg.Voting.AllowVoteModification,
			BallotValidityMin:     cfg.Voting.BallotValidityMin,
			BallotValidityMax:     cfg.Voting.BallotValidityMax,
			RequestBlockMin:       cfg.Voting.RequestBlockMin,
			RequestBlockMax:       cfg.Voting.RequestBlockMax,
			BallotNumberFloor:     cfg.Voting.BallotNumberFloor,
		}),
	}

	notifierOpts, err := a.openNotifier(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	opts = append(opts, notifierOpts...)

	if cfg.Archive.Bucket != "" {
		client, err := archive.NewS3Client(ctx, cfg.Archive)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithAuditArchiver(archive.NewS3Archiver(client, cfg.Archive.Bucket, log)))
		log.Info("audit archive enabled", "bucket", cfg.Archive.Bucket)
	}

	params := token.DefaultParams
	params.Time = cfg.Token.Time
	params.Memory = cfg.Token.MemoryKiB
	params.Threads = cfg.Token.Threads

	a.service, err = service.New(store, requests, directory, token.NewHasher(params), opts...)
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func (a *app) openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (ports.Store, ports.BallotRequestStore, error) {
	var (
		store    ports.Store
		requests ports.BallotRequestStore
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database.URL, postgres.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		a.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, nil, err
		}
		store = votingpostgres.New(db, votingpostgres.WithTxTimeout(cfg.Database.TxTimeout))
		requests = ballotrequest.NewPostgresStore(db)
		a.storeKind = "postgres"
	} else {
		store = memory.New()
		requests = ballotrequest.NewInMemoryStore()
		a.storeKind = "memory"
		log.Warn("no database configured, voting data is kept in memory")
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client != nil {
		a.redis = client
		requests = ballotrequest.NewRedisStore(client.Client)
		log.Info("ballot request blocks stored in redis")
	}
	return store, requests, nil
}

func (a *app) openNotifier(ctx context.Context, cfg config.Config, log *slog.Logger) ([]service.Option, error) {
	client, err := kafka.NewClient(ctx, cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if client == nil {
		pub := notify.NewLogPublisher(log)
		return []service.Option{service.WithVoteNotifier(pub), service.WithParticipationRecorder(pub)}, nil
	}
	a.kafka = client
	if cfg.Kafka.CreateTopics {
		if err := kafka.EnsureTopics(ctx, client, 1, cfg.Kafka.VoteTopic, cfg.Kafka.ParticipationTopic); err != nil {
			return nil, err
		}
	}
	pub := notify.NewKafkaPublisher(client, cfg.Kafka.VoteTopic, cfg.Kafka.ParticipationTopic, log)
	log.Info("kafka notifications enabled", "brokers", cfg.Kafka.Brokers)
	return []service.Option{service.WithVoteNotifier(pub), service.WithParticipationRecorder(pub)}, nil
}

// Health reports the first unreachable backend.
func (a *app) Health(ctx context.Context) error {
	var errs []error
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending notifications and releases connections.
func (a *app) Close() {
	if a.kafka != nil {
		// Flush waits for buffered records; the deadline comes from kgo's
		// record delivery timeout.
		_ = a.kafka.Flush(context.Background())
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
