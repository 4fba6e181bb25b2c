package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	id "agora/pkg/domain"
	"agora/pkg/platform/circuit"
	"agora/pkg/requestcontext"
)

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaPublisher produces events asynchronously. Delivery failures are
// logged; the breaker collapses a broker outage into one open/close pair of
// log lines instead of one error per vote.
type KafkaPublisher struct {
	producer           Producer
	voteTopic          string
	participationTopic string
	breaker            *circuit.Breaker
	logger             *slog.Logger
}

func NewKafkaPublisher(producer Producer, voteTopic, participationTopic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer:           producer,
		voteTopic:          voteTopic,
		participationTopic: participationTopic,
		breaker:            circuit.New("kafka-notify", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(1)),
		logger:             logger,
	}
}

func (p *KafkaPublisher) NewVote(ctx context.Context, sessionID id.VotingSessionID) error {
	return p.publish(ctx, p.voteTopic, sessionID.String(), VoteRecorded{
		VotingSessionID: sessionID,
		OccurredAt:      requestcontext.Now(ctx),
	})
}

func (p *KafkaPublisher) RecordParticipation(ctx context.Context, userID id.UserID, sessionID id.VotingSessionID, modified bool) error {
	return p.publish(ctx, p.participationTopic, userID.String(), ParticipationRecorded{
		UserID:          userID,
		VotingSessionID: sessionID,
		Modified:        modified,
		OccurredAt:      requestcontext.Now(ctx),
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: payload}

	// The vote is committed; delivery must not depend on the request lifetime.
	p.producer.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.onFailure(r, err)
			return
		}
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.logger.Info("kafka notifications recovered", "topic", r.Topic)
		}
	})
	return nil
}

func (p *KafkaPublisher) onFailure(r *kgo.Record, err error) {
	suppressed, change := p.breaker.RecordFailure()
	switch {
	case change.Opened:
		p.logger.Error("kafka notifications degraded, suppressing further delivery errors",
			"topic", r.Topic,
			"error", err,
		)
	case !suppressed:
		p.logger.Warn("failed to deliver notification",
			"topic", r.Topic,
			"error", err,
		)
	}
}
