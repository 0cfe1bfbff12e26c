package auth

import (
	"context"
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
)

const DefaultTokenTTL = 30 * time.Minute

// TokenService issues and verifies HS256 access tokens whose subject is the
// username.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	users  UserLookup
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration, users UserLookup) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		users:  users,
		now:    time.Now,
	}, nil
}

// Issue signs a token for username.
func (s *TokenService) Issue(username string) (string, error) {
	now := s.now()

	tok := jwt.New()
	if err := tok.Set(jwt.SubjectKey, username); err != nil {
		return "", err
	}
	if err := tok.Set(jwt.IssuedAtKey, now); err != nil {
		return "", err
	}
	if err := tok.Set(jwt.ExpirationKey, now.Add(s.ttl)); err != nil {
		return "", err
	}

	signed, err := jwt.Sign(tok, jwa.HS256, s.secret)
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func (s *TokenService) Resolve(ctx context.Context, token string) (*domain.User, error) {
	const op = "auth.TokenService.Resolve"

	tok, err := jwt.Parse([]byte(token),
		jwt.WithVerify(jwa.HS256, s.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	)
	if err != nil {
		return nil, apperr.E(apperr.Unauthenticated, op, err)
	}
	return lookup(ctx, s.users, op, tok.Subject())
}

var _ Resolver = (*TokenService)(nil)
