// Package service implements the voting core: session lifecycle, anonymous
// ballot issuance, vote casting, ballot box splitting and the post-close
// tally and audit.
//
// The service holds no locks of its own. Every race it cares about is
// settled by a conditional write in the store: status compare-and-swap on
// boxes and sessions, and uniqueness on (session, territory) for boxes and
// (session, user) for voters.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	votingmetrics "agora/internal/voting/metrics"
	"agora/internal/voting/ports"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/sentinel"
)

// Config holds the tunables of the voting core.
type Config struct {
	// SplitThreshold is the vote count a subdivision needs before it may be
	// split off into its own box.
	SplitThreshold int
	// SplitFactor is the margin the parent box must keep: its votes must
	// exceed SplitFactor*SplitThreshold for a split to start.
	SplitFactor int

	AllowVoteModification bool

	BallotValidityMin time.Duration
	BallotValidityMax time.Duration
	RequestBlockMin   time.Duration
	RequestBlockMax   time.Duration

	// BallotNumberFloor is the smallest ballot number space of a box.
	BallotNumberFloor int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SplitThreshold:    30,
		SplitFactor:       2,
		BallotValidityMin: 12 * time.Hour,
		BallotValidityMax: 24 * time.Hour,
		RequestBlockMin:   time.Hour,
		RequestBlockMax:   12 * time.Hour,
		BallotNumberFloor: 1000,
	}
}

// Service orchestrates the voting core.
type Service struct {
	store         ports.Store
	requests      ports.BallotRequestStore
	territories   ports.TerritoryDirectory
	hasher        ports.TokenHasher
	notifier      ports.VoteNotifier
	participation ports.ParticipationRecorder
	archiver      ports.AuditArchiver
	metrics       *votingmetrics.Metrics
	logger        *slog.Logger
	tracer        trace.Tracer
	cfg           Config

	// intN returns a uniform value in [0, n). Swapped in tests.
	intN func(n int) int
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *votingmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

func WithVoteNotifier(n ports.VoteNotifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithParticipationRecorder(r ports.ParticipationRecorder) Option {
	return func(s *Service) {
		s.participation = r
	}
}

// WithAuditArchiver publishes every box's audit export when a session closes.
func WithAuditArchiver(a ports.AuditArchiver) Option {
	return func(s *Service) {
		s.archiver = a
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New constructs a Service.
func New(
	store ports.Store,
	requests ports.BallotRequestStore,
	territories ports.TerritoryDirectory,
	hasher ports.TokenHasher,
	opts ...Option,
) (*Service, error) {
	if store == nil {
		return nil, errors.New("voting store is required")
	}
	if requests == nil {
		return nil, errors.New("ballot request store is required")
	}
	if territories == nil {
		return nil, errors.New("territory directory is required")
	}
	if hasher == nil {
		return nil, errors.New("token hasher is required")
	}
	s := &Service{
		store:       store,
		requests:    requests,
		territories: territories,
		hasher:      hasher,
		logger:      slog.Default(),
		tracer:      otel.Tracer("agora/internal/voting/service"),
		cfg:         DefaultConfig(),
		intN:        rand.IntN,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.cfg.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (c Config) validate() error {
	switch {
	case c.SplitThreshold < 1:
		return fmt.Errorf("split threshold must be at least 1, got %d", c.SplitThreshold)
	case c.SplitFactor < 1:
		return fmt.Errorf("split factor must be at least 1, got %d", c.SplitFactor)
	case c.BallotValidityMin <= 0 || c.BallotValidityMax < c.BallotValidityMin:
		return errors.New("ballot validity window is invalid")
	case c.RequestBlockMin <= 0 || c.RequestBlockMax < c.RequestBlockMin:
		return errors.New("ballot request block window is invalid")
	case c.BallotNumberFloor < 1:
		return errors.New("ballot number floor must be positive")
	}
	return nil
}

// randomDuration returns a uniform duration in [lo, hi].
func (s *Service) randomDuration(lo, hi time.Duration) time.Duration {
	span := hi - lo
	if span <= 0 {
		return lo
	}
	const step = time.Second
	return lo + time.Duration(s.intN(int(span/step)+1))*step
}

// wrapStoreErr translates store sentinels into domain errors.
func wrapStoreErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, what+" already exists")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, what+" is in the wrong state")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "storage unavailable, retry later")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+what)
}

func errBoxBusy() error {
	return dErrors.New(dErrors.CodeUnavailable, "ballot box is being split, retry later")
}
