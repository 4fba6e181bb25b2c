package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	jwttoken "agora/internal/jwt_token"
	"agora/internal/territory"
	votingmetrics "agora/internal/voting/metrics"
	"agora/internal/voting/models"
	"agora/internal/voting/service"
	"agora/internal/voting/store/ballotrequest"
	"agora/internal/voting/store/memory"
	"agora/internal/voting/token"
	"agora/pkg/testutil"
)

// TestFullVotingFlow drives a session end to end through the HTTP surface
// against the in-memory stores.
func (s *HandlerSuite) TestFullVotingFlow() {
	dir := territory.NewInMemoryDirectory()
	dir.Add(
		territory.Territory{ID: "T", Type: "city", Name: "Town"},
		territory.Territory{ID: "P01", Type: "station", Name: "Station 1", ParentID: "T"},
		territory.Territory{ID: "P02", Type: "station", Name: "Station 2", ParentID: "T"},
	)
	svc, err := service.New(
		memory.New(),
		ballotrequest.NewInMemoryStore(),
		dir,
		token.NewHasher(token.Params{Time: 1, Memory: 1024, Threads: 1}),
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithMetrics(votingmetrics.New(prometheus.NewRegistry())),
	)
	s.Require().NoError(err)
	jwt := jwttoken.NewJWTService("flow-key", "test-issuer", "agora")
	s.jwt = jwt
	s.router = newRouter(svc, jwt)

	rec := s.do(http.MethodPost, "/voting-sessions", &s.admin, map[string]any{
		"territory_id": "T",
		"type":         "general_vote",
		"start_time":   time.Now().Add(-time.Hour),
		"max_choices":  1,
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	session := testutil.UnmarshalResponse[models.VotingSession](s.T(), rec)
	base := "/voting-sessions/" + session.ID.String()

	for i, choice := range []string{"yes", "no"} {
		rec = s.do(http.MethodPost, base+"/choices", &s.admin, map[string]any{"choice": choice, "tiebreaker": i})
		s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())
	}

	votes := map[string]string{"Alice": "yes", "Bob": "yes", "Carol": "no"}
	for name, choice := range votes {
		citizen := testutil.Citizen(name, "P01")
		secret := "secret-" + name

		rec = s.do(http.MethodPost, base+"/ballots", &citizen, map[string]string{"secret": secret})
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
		issued := testutil.UnmarshalResponse[models.IssuedBallot](s.T(), rec)

		// a second request is rate limited
		rec = s.do(http.MethodPost, base+"/ballots", &citizen, map[string]string{"secret": secret})
		s.Equal(http.StatusTooManyRequests, rec.Code)

		rec = s.do(http.MethodPost, "/ballots/"+issued.BallotID.String()+"/vote", &citizen, map[string]any{
			"secret":  secret,
			"choices": []string{choice},
		})
		s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPost, base+"/close", &s.admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, base+"/results", &s.citizen, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	summary := testutil.UnmarshalResponse[models.ResultsSummary](s.T(), rec)
	s.Equal(3, summary.VotersCount)
	s.Require().Len(summary.Results, 2)
	s.Equal("yes", string(summary.Results[0].Choice))
	s.Equal(2, summary.Results[0].Votes)

	rec = s.do(http.MethodGet, base+"/audit", &s.citizen, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	audit := testutil.UnmarshalResponse[models.AuditData](s.T(), rec)
	s.Len(audit.Ballots, 3)
	s.Len(audit.Voters, 3)
	s.Equal("Town", audit.BallotBoxName)
}
