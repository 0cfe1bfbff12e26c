package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
)

var ErrBadCredentials = errors.New("incorrect username or password")

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.E(apperr.InvalidInput, "auth.HashPassword", err)
	}
	return string(hash), nil
}

// CheckPassword reports a mismatch as an Unauthenticated error.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return apperr.E(apperr.Unauthenticated, "auth.CheckPassword", ErrBadCredentials)
	}
	return nil
}
