package service

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// AuthService verifies Firebase ID tokens and resolves the actor's global role.
type AuthService struct {
	client AuthClient
}

// AuthClient is the interface for Firebase token verification.
// Using an interface allows testing with mocks.
type AuthClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// NewAuthService creates an AuthService with the given Firebase auth client.
func NewAuthService(client AuthClient) *AuthService {
	return &AuthService{client: client}
}

// adminClaim is the Firebase custom claim this service checks to grant the
// admin role. Set via the Firebase Admin SDK (SetCustomUserClaims), not
// something a token holder can forge client-side.
const adminClaim = "admin"

// VerifyToken validates a Firebase ID token and resolves the caller's Actor.
// Role defaults to RoleEmployee unless the token carries admin:true.
func (s *AuthService) VerifyToken(ctx context.Context, idToken string) (*model.Actor, error) {
	if idToken == "" {
		return nil, fmt.Errorf("service.VerifyToken: token is empty")
	}

	token, err := s.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("service.VerifyToken: %w", err)
	}

	role := model.RoleEmployee
	if isAdmin, _ := token.Claims[adminClaim].(bool); isAdmin {
		role = model.RoleAdmin
	}

	return &model.Actor{UserID: token.UID, Role: role}, nil
}
