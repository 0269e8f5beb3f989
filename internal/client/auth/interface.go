package auth

import (
	"context"

	"github.com/iudanet/salesnav/pkg/api"
)

// APIClient defines server calls used by the auth service
type APIClient interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error)
	Logout(ctx context.Context, accessToken string) error
}
