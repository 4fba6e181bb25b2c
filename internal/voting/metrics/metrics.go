package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the voting module.
// Tracks issuance, casting and split activity, never anything per citizen.
type Metrics struct {
	BallotsIssued      prometheus.Counter
	BallotRequestsHeld prometheus.Counter
	VotesCast          *prometheus.CounterVec
	TokenMismatches    prometheus.Counter
	SplitsStarted      prometheus.Counter
	SplitsCompleted    prometheus.Counter
	SplitsFailed       prometheus.Counter
	RecordsMigrated    *prometheus.CounterVec
	SessionsClosed     prometheus.Counter
	VoteDuration       prometheus.Histogram
	SplitDuration      prometheus.Histogram
	CloseDuration      prometheus.Histogram
	SweptBallots       prometheus.Counter
}

// New registers the voting metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BallotsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_ballots_issued_total",
			Help: "Total number of ballots issued",
		}),
		BallotRequestsHeld: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_ballot_requests_blocked_total",
			Help: "Ballot requests rejected because a block was active",
		}),
		VotesCast: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_votes_cast_total",
			Help: "Votes recorded, labelled first or modification",
		}, []string{"kind"}),
		TokenMismatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_ballot_token_mismatches_total",
			Help: "Votes rejected because the security token did not verify",
		}),
		SplitsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_ballot_box_splits_started_total",
			Help: "Splits that won the parent status transition",
		}),
		SplitsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_ballot_box_splits_completed_total",
			Help: "Splits that created and populated a child box",
		}),
		SplitsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_ballot_box_splits_failed_total",
			Help: "Splits aborted by an error",
		}),
		RecordsMigrated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_ballot_box_records_migrated_total",
			Help: "Ballots and voters moved into split-off boxes",
		}, []string{"record"}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_voting_sessions_closed_total",
			Help: "Voting sessions closed",
		}),
		VoteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_vote_duration_seconds",
			Help:    "Duration of vote operations including token verification",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		SplitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_ballot_box_split_duration_seconds",
			Help:    "Duration of ballot box splits",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CloseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_voting_session_close_duration_seconds",
			Help:    "Duration of session close including tally",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SweptBallots: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_expired_ballots_swept_total",
			Help: "Unused ballots deleted after their validity window",
		}),
	}
}

func (m *Metrics) IncrementBallotsIssued() {
	if m == nil {
		return
	}
	m.BallotsIssued.Inc()
}

func (m *Metrics) IncrementBallotRequestsBlocked() {
	if m == nil {
		return
	}
	m.BallotRequestsHeld.Inc()
}

// IncrementVotesCast records a vote; modified distinguishes re-votes.
func (m *Metrics) IncrementVotesCast(modified bool) {
	if m == nil {
		return
	}
	kind := "first"
	if modified {
		kind = "modification"
	}
	m.VotesCast.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementTokenMismatches() {
	if m == nil {
		return
	}
	m.TokenMismatches.Inc()
}

func (m *Metrics) IncrementSplitsStarted() {
	if m == nil {
		return
	}
	m.SplitsStarted.Inc()
}

func (m *Metrics) IncrementSplitsCompleted() {
	if m == nil {
		return
	}
	m.SplitsCompleted.Inc()
}

func (m *Metrics) IncrementSplitsFailed() {
	if m == nil {
		return
	}
	m.SplitsFailed.Inc()
}

func (m *Metrics) AddRecordsMigrated(voters, ballots int) {
	if m == nil {
		return
	}
	m.RecordsMigrated.WithLabelValues("voter").Add(float64(voters))
	m.RecordsMigrated.WithLabelValues("ballot").Add(float64(ballots))
}

func (m *Metrics) IncrementSessionsClosed() {
	if m == nil {
		return
	}
	m.SessionsClosed.Inc()
}

func (m *Metrics) AddSweptBallots(n int) {
	if m == nil {
		return
	}
	m.SweptBallots.Add(float64(n))
}

// ObserveVote records the duration of a vote operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveVote(start time.Time) {
	if m == nil {
		return
	}
	m.VoteDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveSplit(start time.Time) {
	if m == nil {
		return
	}
	m.SplitDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveClose(start time.Time) {
	if m == nil {
		return
	}
	m.CloseDuration.Observe(time.Since(start).Seconds())
}
