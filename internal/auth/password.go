package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

const (
	// MinPasswordLength applies to new passwords only.
	MinPasswordLength = 8
	bcryptCost        = bcrypt.DefaultCost
)

// HashPassword returns the bcrypt hash of pw.
func HashPassword(pw string) (string, error) {
	if len(pw) < MinPasswordLength {
		return "", xerrors.Invalid("password must be at least %d characters", MinPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", xerrors.Invalid("password is too long")
	}
	if err != nil {
		return "", xerrors.Wrap(err, "hash password")
	}
	return string(h), nil
}

// CheckPassword reports a mismatch as KindUnauthorized.
func CheckPassword(hash, pw string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return xerrors.Unauthorized("invalid password")
	}
	if err != nil {
		return xerrors.Wrap(err, "compare password")
	}
	return nil
}
