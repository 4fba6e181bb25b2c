package jwttoken

import (
	"agora/pkg/requestcontext"
)

// JWTServiceAdapter satisfies the auth middleware's validator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (requestcontext.AuthenticatedUser, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return requestcontext.AuthenticatedUser{}, err
	}
	return ToUser(claims)
}
