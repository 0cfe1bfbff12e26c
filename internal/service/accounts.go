package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/auth"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
	"github.com/Brownie44l1/pneumo-api/internal/storage"
)

// Issuer signs access tokens for a username. A nil Issuer means tokens come
// from an external identity provider: Register returns no token and Login
// is refused.
type Issuer interface {
	Issue(username string) (string, error)
}

type Registration struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type AccountService struct {
	store  storage.Store
	issuer Issuer
	logger *zap.Logger
}

func NewAccountService(store storage.Store, issuer Issuer, logger *zap.Logger) *AccountService {
	return &AccountService{store: store, issuer: issuer, logger: logger.Named("accounts")}
}

func (s *AccountService) Register(ctx context.Context, r Registration) (*Token, error) {
	const op = "service.Register"

	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" || r.Password == "" {
		return nil, apperr.E(apperr.InvalidInput, op, errors.New("username and password are required"))
	}

	hash, err := auth.HashPassword(r.Password)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		Username:     r.Username,
		PasswordHash: hash,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Email:        r.Email,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("userID", u.ID), zap.String("username", u.Username))
	return s.token(u.Username)
}

func (s *AccountService) Login(ctx context.Context, username, password string) (*Token, error) {
	const op = "service.Login"

	if s.issuer == nil {
		return nil, apperr.E(apperr.InvalidInput, op, errors.New("password login is disabled"))
	}
	u, err := s.store.UserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			return nil, apperr.E(apperr.Unauthenticated, op, auth.ErrBadCredentials)
		}
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, err
	}
	return s.token(u.Username)
}

func (s *AccountService) UpdateProfile(ctx context.Context, u *domain.User, p domain.Profile) (*domain.User, error) {
	updated := *u
	updated.Apply(p)
	if err := s.store.UpdateUser(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ChangePassword rejects a wrong current password as InvalidInput.
func (s *AccountService) ChangePassword(ctx context.Context, u *domain.User, current, next string) error {
	const op = "service.ChangePassword"

	if err := auth.CheckPassword(u.PasswordHash, current); err != nil {
		return apperr.E(apperr.InvalidInput, op, errors.New("current password is incorrect"))
	}
	if next == "" {
		return apperr.E(apperr.InvalidInput, op, errors.New("new password is required"))
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	updated := *u
	updated.PasswordHash = hash
	return s.store.UpdateUser(ctx, &updated)
}

func (s *AccountService) token(username string) (*Token, error) {
	if s.issuer == nil {
		return nil, nil
	}
	access, err := s.issuer.Issue(username)
	if err != nil {
		return nil, apperr.E(apperr.Internal, "service.token", err)
	}
	return &Token{AccessToken: access, TokenType: "bearer"}, nil
}
