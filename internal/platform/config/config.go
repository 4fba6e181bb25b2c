// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, one struct per concern.
type Config struct {
	Server   Server
	Logging  Logging
	Database Database
	Redis    RedisConfig
	Kafka    Kafka
	Archive  Archive
	Auth     Auth
	Voting   Voting
	Token    Token
	Worker   Worker

	// TerritorySeedPath points at a JSON territory list for the in-memory
	// directory.
	TerritorySeedPath string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Logging struct {
	Level  string
	Format string
}

// Database selects the Postgres store. An empty URL keeps everything in memory.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
}

// RedisConfig enables the Redis ballot request store when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka enables the vote notifications when Brokers is set.
type Kafka struct {
	Brokers            []string
	ClientID           string
	VoteTopic          string
	ParticipationTopic string
	CreateTopics       bool
}

// Archive enables the S3 audit archive when Bucket is set.
type Archive struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

type Voting struct {
	SplitThreshold        int
	SplitFactor           int
	AllowVoteModification bool
	BallotValidityMin     time.Duration
	BallotValidityMax     time.Duration
	RequestBlockMin       time.Duration
	RequestBlockMax       time.Duration
	BallotNumberFloor     int
}

// Token holds the argon2id cost parameters of ballot security tokens.
type Token struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

type Worker struct {
	SweepInterval time.Duration
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Server:   Server{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Logging:  Logging{Level: "info", Format: "json"},
		Database: Database{MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute, TxTimeout: 5 * time.Second},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			ClientID:           "agora",
			VoteTopic:          "voting.vote-recorded",
			ParticipationTopic: "voting.participation",
		},
		Archive: Archive{Region: "us-east-1"},
		Auth: Auth{
			// development only, override in every real deployment
			JWTSigningKey: "dev-secret-key-change-in-production",
			Issuer:        "agora-identity",
			Audience:      "agora",
		},
		Voting: Voting{
			SplitThreshold:    30,
			SplitFactor:       2,
			BallotValidityMin: 12 * time.Hour,
			BallotValidityMax: 24 * time.Hour,
			RequestBlockMin:   time.Hour,
			RequestBlockMax:   12 * time.Hour,
			BallotNumberFloor: 1000,
		},
		Token:  Token{Time: 3, MemoryKiB: 64 * 1024, Threads: 4},
		Worker: Worker{SweepInterval: time.Minute},
	}
}

// FromEnv builds the configuration from AGORA_* variables over Default.
func FromEnv() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	e := env{lookup: lookup}

	e.str("AGORA_ADDR", &cfg.Server.Addr)
	e.duration("AGORA_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	e.str("AGORA_LOG_LEVEL", &cfg.Logging.Level)
	e.str("AGORA_LOG_FORMAT", &cfg.Logging.Format)

	e.str("AGORA_DATABASE_URL", &cfg.Database.URL)
	e.integer("AGORA_DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	e.integer("AGORA_DATABASE_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)
	e.duration("AGORA_DATABASE_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
	e.duration("AGORA_DATABASE_TX_TIMEOUT", &cfg.Database.TxTimeout)

	e.str("AGORA_REDIS_URL", &cfg.Redis.URL)
	e.integer("AGORA_REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	e.integer("AGORA_REDIS_MIN_IDLE_CONNS", &cfg.Redis.MinIdleConns)
	e.duration("AGORA_REDIS_DIAL_TIMEOUT", &cfg.Redis.DialTimeout)
	e.duration("AGORA_REDIS_READ_TIMEOUT", &cfg.Redis.ReadTimeout)
	e.duration("AGORA_REDIS_WRITE_TIMEOUT", &cfg.Redis.WriteTimeout)

	e.list("AGORA_KAFKA_BROKERS", &cfg.Kafka.Brokers)
	e.str("AGORA_KAFKA_CLIENT_ID", &cfg.Kafka.ClientID)
	e.str("AGORA_KAFKA_VOTE_TOPIC", &cfg.Kafka.VoteTopic)
	e.str("AGORA_KAFKA_PARTICIPATION_TOPIC", &cfg.Kafka.ParticipationTopic)
	e.boolean("AGORA_KAFKA_CREATE_TOPICS", &cfg.Kafka.CreateTopics)

	e.str("AGORA_ARCHIVE_BUCKET", &cfg.Archive.Bucket)
	e.str("AGORA_ARCHIVE_REGION", &cfg.Archive.Region)
	e.str("AGORA_ARCHIVE_ENDPOINT", &cfg.Archive.Endpoint)
	e.str("AGORA_ARCHIVE_ACCESS_KEY_ID", &cfg.Archive.AccessKeyID)
	e.str("AGORA_ARCHIVE_SECRET_ACCESS_KEY", &cfg.Archive.SecretAccessKey)

	e.str("AGORA_JWT_SIGNING_KEY", &cfg.Auth.JWTSigningKey)
	e.str("AGORA_JWT_ISSUER", &cfg.Auth.Issuer)
	e.str("AGORA_JWT_AUDIENCE", &cfg.Auth.Audience)

	e.integer("AGORA_SPLIT_THRESHOLD", &cfg.Voting.SplitThreshold)
	e.integer("AGORA_SPLIT_FACTOR", &cfg.Voting.SplitFactor)
	e.boolean("AGORA_ALLOW_VOTE_MODIFICATION", &cfg.Voting.AllowVoteModification)
	e.duration("AGORA_BALLOT_VALIDITY_MIN", &cfg.Voting.BallotValidityMin)
	e.duration("AGORA_BALLOT_VALIDITY_MAX", &cfg.Voting.BallotValidityMax)
	e.duration("AGORA_BALLOT_REQUEST_BLOCK_MIN", &cfg.Voting.RequestBlockMin)
	e.duration("AGORA_BALLOT_REQUEST_BLOCK_MAX", &cfg.Voting.RequestBlockMax)
	e.integer("AGORA_BALLOT_NUMBER_FLOOR", &cfg.Voting.BallotNumberFloor)

	e.uint32("AGORA_TOKEN_TIME", &cfg.Token.Time)
	e.uint32("AGORA_TOKEN_MEMORY_KIB", &cfg.Token.MemoryKiB)
	e.uint8("AGORA_TOKEN_THREADS", &cfg.Token.Threads)

	e.duration("AGORA_SWEEP_INTERVAL", &cfg.Worker.SweepInterval)
	e.str("AGORA_TERRITORY_SEED", &cfg.TerritorySeedPath)

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the process cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Server.Addr != "", "server address is required")
	check(c.Server.ShutdownTimeout > 0, "shutdown timeout must be positive")
	check(c.Auth.JWTSigningKey != "", "JWT signing key is required")
	check(c.Voting.SplitThreshold >= 1, "split threshold must be at least 1")
	check(c.Voting.SplitFactor >= 1, "split factor must be at least 1")
	check(c.Voting.BallotValidityMin > 0 && c.Voting.BallotValidityMin <= c.Voting.BallotValidityMax,
		"ballot validity window %s..%s is invalid", c.Voting.BallotValidityMin, c.Voting.BallotValidityMax)
	check(c.Voting.RequestBlockMin > 0 && c.Voting.RequestBlockMin <= c.Voting.RequestBlockMax,
		"ballot request block window %s..%s is invalid", c.Voting.RequestBlockMin, c.Voting.RequestBlockMax)
	check(c.Voting.BallotNumberFloor >= 1, "ballot number floor must be positive")
	check(c.Token.Time >= 1 && c.Token.MemoryKiB >= 8*uint32(c.Token.Threads) && c.Token.Threads >= 1,
		"token hashing parameters are invalid")
	check(c.Worker.SweepInterval > 0, "sweep interval must be positive")
	if len(c.Kafka.Brokers) > 0 {
		check(c.Kafka.VoteTopic != "" && c.Kafka.ParticipationTopic != "", "kafka topics are required when brokers are set")
	}
	if c.Archive.Bucket != "" {
		check(c.Archive.Region != "", "archive region is required when a bucket is set")
	}
	return errors.Join(errs...)
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *env) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
}

func (e *env) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *env) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *env) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *env) uint32(key string, dst *uint32) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = uint32(n)
	}
}

func (e *env) uint8(key string, dst *uint8) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = uint8(n)
	}
}

func (e *env) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = b
	}
}

func (e *env) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = d
	}
}
