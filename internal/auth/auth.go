// Package auth resolves bearer credentials to users and hashes passwords.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
)

// Resolver turns a bearer credential into the user it identifies. Any
// failure is an Unauthenticated error.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*domain.User, error)
}

// UserLookup is the part of the store a resolver needs.
type UserLookup interface {
	UserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", apperr.E(apperr.Unauthenticated, "auth.BearerToken", errors.New("missing bearer token"))
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}

func lookup(ctx context.Context, users UserLookup, op, username string) (*domain.User, error) {
	if username == "" {
		return nil, apperr.E(apperr.Unauthenticated, op, errors.New("token has no subject"))
	}
	u, err := users.UserByUsername(ctx, username)
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			return nil, apperr.Errorf(apperr.Unauthenticated, op, "unknown user %q", username)
		}
		return nil, err
	}
	return u, nil
}
