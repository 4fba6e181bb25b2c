// Package handler exposes the voting service over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agora/internal/voting/models"
	"agora/internal/voting/service"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/httputil"
	"agora/pkg/platform/middleware/admin"
	"agora/pkg/platform/middleware/auth"
	request "agora/pkg/platform/middleware/request"
	"agora/pkg/platform/middleware/requesttime"
	"agora/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the voting surface served over HTTP.
type Service interface {
	CreateVotingSession(ctx context.Context, cmd service.CreateSessionCommand) (*models.VotingSession, error)
	AddChoice(ctx context.Context, sessionID id.VotingSessionID, choice id.ChoiceID, tiebreaker int) error
	CloseVotingSession(ctx context.Context, sessionID id.VotingSessionID) (*models.VotingSession, error)
	ResetVote(ctx context.Context, sessionID id.VotingSessionID) error
	GetVotingSession(ctx context.Context, sessionID id.VotingSessionID) (*models.SessionView, error)
	GetVotingSessionResultsSummary(ctx context.Context, sessionID id.VotingSessionID) (*models.ResultsSummary, error)
	GetVotingSessionAuditableData(ctx context.Context, sessionID id.VotingSessionID, user requestcontext.AuthenticatedUser) (*models.AuditData, error)
	RequestBallot(ctx context.Context, user requestcontext.AuthenticatedUser, sessionID id.VotingSessionID, secret string) (*models.IssuedBallot, error)
	Vote(ctx context.Context, user requestcontext.AuthenticatedUser, cmd service.VoteCommand) error
}

// Handler handles voting endpoints.
type Handler struct {
	voting       Service
	jwtValidator auth.JWTValidator
	logger       *slog.Logger
}

func New(voting Service, jwtValidator auth.JWTValidator, logger *slog.Logger) *Handler {
	return &Handler{voting: voting, jwtValidator: jwtValidator, logger: logger}
}

// Register mounts the voting routes. Every route requires an identity token;
// session administration additionally requires the admin role.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requesttime.Middleware)
		r.Use(auth.RequireAuth(h.jwtValidator, h.logger))

		r.Route("/voting-sessions", func(r chi.Router) {
			r.With(admin.RequireAdmin(h.logger)).Post("/", h.handleCreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.handleGetSession)
				r.Get("/results", h.handleGetResults)
				r.Get("/audit", h.handleGetAudit)
				r.Post("/ballots", h.handleRequestBallot)

				r.Group(func(r chi.Router) {
					r.Use(admin.RequireAdmin(h.logger))
					r.Post("/choices", h.handleAddChoice)
					r.Post("/close", h.handleClose)
					r.Post("/reset", h.handleReset)
				})
			})
		})
		r.Post("/ballots/{ballotID}/vote", h.handleVote)
	})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateSessionRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	session, err := h.voting.CreateVotingSession(ctx, req.command)
	if err != nil {
		h.fail(ctx, w, err, "failed to create voting session")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleAddChoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddChoiceRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.voting.AddChoice(ctx, sessionID, req.choice, req.Tiebreaker); err != nil {
		h.fail(ctx, w, err, "failed to add choice")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.voting.CloseVotingSession(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, err, "failed to close voting session")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.voting.ResetVote(ctx, sessionID); err != nil {
		h.fail(ctx, w, err, "failed to reset vote")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.voting.GetVotingSession(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, err, "failed to get voting session")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGetResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	summary, err := h.voting.GetVotingSessionResultsSummary(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, err, "failed to get results")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	data, err := h.voting.GetVotingSessionAuditableData(ctx, sessionID, user)
	if err != nil {
		h.fail(ctx, w, err, "failed to get audit data")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, data)
}

func (h *Handler) handleRequestBallot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RequestBallotRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	issued, err := h.voting.RequestBallot(ctx, user, sessionID, req.Secret)
	if err != nil {
		h.fail(ctx, w, err, "failed to issue ballot")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, issued)
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ballotID, err := id.ParseBallotID(chi.URLParam(r, "ballotID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VoteRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	err = h.voting.Vote(ctx, user, service.VoteCommand{
		BallotID: ballotID,
		Secret:   req.Secret,
		Choices:  req.Choices,
		Modify:   req.Modify,
	})
	if err != nil {
		h.fail(ctx, w, err, "failed to record vote")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (id.VotingSessionID, bool) {
	sessionID, err := id.ParseVotingSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.VotingSessionID{}, false
	}
	return sessionID, true
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (requestcontext.AuthenticatedUser, bool) {
	user, ok := requestcontext.User(r.Context())
	if !ok {
		// RequireAuth guarantees a user; reaching here is a wiring bug.
		h.logger.ErrorContext(r.Context(), "user missing from context despite auth middleware",
			"request_id", request.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return requestcontext.AuthenticatedUser{}, false
	}
	return user, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
