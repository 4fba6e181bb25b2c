// Package jwttoken verifies the identity tokens issued by the external
// identity provider. Tokens carry who the citizen is and which polling
// station they are registered to.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/requestcontext"
)

// Claims represents the JWT claims of an identity token.
type Claims struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	PollingStation string `json:"polling_station,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAccessToken signs a token for user. Production tokens come from the
// identity provider; this is used by tests and local tooling.
func (s *JWTService) GenerateAccessToken(user requestcontext.AuthenticatedUser, expiresIn time.Duration) (string, error) {
	now := time.Now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:         user.ID.String(),
		Name:           user.Name,
		Role:           string(user.Role),
		PollingStation: string(user.PollingStationID),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ToUser converts verified claims into the request identity.
func ToUser(claims *Claims) (requestcontext.AuthenticatedUser, error) {
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return requestcontext.AuthenticatedUser{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	role := requestcontext.Role(claims.Role)
	switch role {
	case requestcontext.RoleCitizen, requestcontext.RoleAdmin:
	case "":
		role = requestcontext.RoleCitizen
	default:
		return requestcontext.AuthenticatedUser{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token role")
	}
	return requestcontext.AuthenticatedUser{
		ID:               userID,
		Name:             claims.Name,
		Role:             role,
		PollingStationID: id.TerritoryID(claims.PollingStation),
	}, nil
}
