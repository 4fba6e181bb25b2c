package notify

import (
	"context"
	"log/slog"

	id "agora/pkg/domain"
)

// LogPublisher is used when no brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) NewVote(ctx context.Context, sessionID id.VotingSessionID) error {
	p.logger.InfoContext(ctx, "vote recorded", "voting_session_id", sessionID)
	return nil
}

func (p *LogPublisher) RecordParticipation(ctx context.Context, userID id.UserID, sessionID id.VotingSessionID, modified bool) error {
	p.logger.DebugContext(ctx, "participation recorded",
		"user_id", userID,
		"voting_session_id", sessionID,
		"modified", modified,
	)
	return nil
}
