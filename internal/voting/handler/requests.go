package handler

import (
	"strings"
	"time"

	"agora/internal/voting/models"
	"agora/internal/voting/service"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

const (
	maxChoicesPerRequest = 64
	maxSecretLength      = 256
)

type CreateSessionRequest struct {
	TerritoryID string     `json:"territory_id"`
	Type        string     `json:"type"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	MaxChoices  int        `json:"max_choices"`

	command service.CreateSessionCommand
}

func (r *CreateSessionRequest) Validate() error {
	territoryID, err := id.ParseTerritoryID(r.TerritoryID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(r.Type) == "" {
		return dErrors.New(dErrors.CodeValidation, "type is required")
	}
	if r.StartTime.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "start_time is required")
	}
	if r.MaxChoices < 1 {
		return dErrors.New(dErrors.CodeValidation, "max_choices must be at least 1")
	}
	r.command = service.CreateSessionCommand{
		TerritoryID: territoryID,
		Type:        models.SessionType(strings.TrimSpace(r.Type)),
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		MaxChoices:  r.MaxChoices,
	}
	return nil
}

type AddChoiceRequest struct {
	Choice     string `json:"choice"`
	Tiebreaker int    `json:"tiebreaker"`

	choice id.ChoiceID
}

func (r *AddChoiceRequest) Validate() error {
	choice, err := id.ParseChoiceID(r.Choice)
	if err != nil {
		return err
	}
	r.choice = choice
	return nil
}

type RequestBallotRequest struct {
	Secret string `json:"secret"`
}

func (r *RequestBallotRequest) Validate() error {
	if r.Secret == "" {
		return dErrors.New(dErrors.CodeValidation, "secret is required")
	}
	if len(r.Secret) > maxSecretLength {
		return dErrors.New(dErrors.CodeValidation, "secret is too long")
	}
	return nil
}

type VoteRequest struct {
	Secret  string        `json:"secret"`
	Choices []id.ChoiceID `json:"choices"`
	Modify  bool          `json:"modify,omitempty"`
}

func (r *VoteRequest) Validate() error {
	if r.Secret == "" {
		return dErrors.New(dErrors.CodeValidation, "secret is required")
	}
	if len(r.Secret) > maxSecretLength {
		return dErrors.New(dErrors.CodeValidation, "secret is too long")
	}
	if len(r.Choices) > maxChoicesPerRequest {
		return dErrors.New(dErrors.CodeValidation, "too many choices")
	}
	r.Choices = models.DedupeChoices(r.Choices)
	if len(r.Choices) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one choice is required")
	}
	return nil
}
