package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
	"github.com/Brownie44l1/pneumo-api/internal/storage"
)

func newTokenService(t *testing.T) (*TokenService, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	require.NoError(t, store.CreateUser(context.Background(), &domain.User{Username: "doc", PasswordHash: "x"}))

	s, err := NewTokenService("test-secret", time.Minute, store)
	require.NoError(t, err)
	return s, store
}

func TestTokenService_RoundTrip(t *testing.T) {
	s, _ := newTokenService(t)

	token, err := s.Issue("doc")
	require.NoError(t, err)

	u, err := s.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "doc", u.Username)
}

func TestTokenService_Expired(t *testing.T) {
	s, _ := newTokenService(t)
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }

	token, err := s.Issue("doc")
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = s.Resolve(context.Background(), token)
	require.True(t, apperr.IsKind(err, apperr.Unauthenticated))
}

func TestTokenService_RejectsForeignSignature(t *testing.T) {
	s, store := newTokenService(t)
	other, err := NewTokenService("another-secret", time.Minute, store)
	require.NoError(t, err)

	token, err := other.Issue("doc")
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), token)
	require.True(t, apperr.IsKind(err, apperr.Unauthenticated))

	_, err = s.Resolve(context.Background(), "not-a-jwt")
	require.True(t, apperr.IsKind(err, apperr.Unauthenticated))
}

func TestTokenService_UnknownUser(t *testing.T) {
	s, _ := newTokenService(t)

	token, err := s.Issue("ghost")
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), token)
	require.True(t, apperr.IsKind(err, apperr.Unauthenticated))
}

func TestNewTokenService_EmptySecret(t *testing.T) {
	_, err := NewTokenService("", time.Minute, storage.NewMemory())
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	require.Equal(t, "abc.def", tok)

	tok, err = BearerToken("bearer xyz")
	require.NoError(t, err)
	require.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer ", "Basic abc"} {
		_, err := BearerToken(h)
		require.True(t, apperr.IsKind(err, apperr.Unauthenticated), h)
	}
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hash)

	require.NoError(t, CheckPassword(hash, "s3cret"))
	err = CheckPassword(hash, "wrong")
	require.True(t, apperr.IsKind(err, apperr.Unauthenticated))
	require.ErrorIs(t, err, ErrBadCredentials)
}

func TestOktaResolver_RejectsMalformedToken(t *testing.T) {
	r := NewOktaResolver("example.okta.com", "client", storage.NewMemory())

	_, err := r.Resolve(context.Background(), "not-a-jwt")
	require.True(t, apperr.IsKind(err, apperr.Unauthenticated))
}
