// Package auth manages the bearer token used to call the analysis service
// and exposes login state through the request cache.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmgilman/oceanctl/internal/keychain"
)

// ErrNotLoggedIn is returned when no usable token is stored.
var ErrNotLoggedIn = errors.New("not logged in")

// Credential is the stored login state.
type Credential struct {
	Token    string `json:"token"`
	Username string `json:"username,omitempty"`
}

// ExpiresAt returns the token's expiry, if it carries one. The signature is
// not verified; the service remains the authority on validity.
func (c Credential) ExpiresAt() (time.Time, bool) {
	return Expiry(c.Token)
}

// Expired reports whether the token carries an expiry before now.
func (c Credential) Expired(now time.Time) bool {
	exp, ok := c.ExpiresAt()
	return ok && !now.Before(exp)
}

// Expiry reads the exp claim of a JWT without verifying it. Tokens that are
// not JWTs, or carry no exp claim, report false.
func Expiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Storage abstracts credential storage backends.
//
//go:generate go run github.com/matryer/moq@latest -pkg mocks -out mocks/storage.go . Storage
type Storage interface {
	// Set stores a credential.
	Set(account, secret string) error

	// Get retrieves a credential.
	Get(account string) (string, error)

	// Delete removes a credential.
	Delete(account string) error
}

// StoreCredential stores cred in JSON format.
func StoreCredential(storage Storage, cred Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	return storage.Set(keychain.AccountToken, string(data))
}

// LoadCredential loads the stored credential. Returns ErrNotLoggedIn when
// none is stored.
func LoadCredential(storage Storage) (*Credential, error) {
	data, err := storage.Get(keychain.AccountToken)
	if errors.Is(err, keychain.ErrNotFound) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	if cred.Token == "" {
		return nil, ErrNotLoggedIn
	}
	return &cred, nil
}

// Tokens supplies the stored bearer token to the API client. Missing or
// expired tokens yield "", so requests go out anonymously.
type Tokens struct {
	storage Storage
	now     func() time.Time
}

// NewTokens creates a token source reading from storage.
func NewTokens(storage Storage) *Tokens {
	return &Tokens{storage: storage, now: time.Now}
}

// Token implements api.TokenSource.
func (t *Tokens) Token(context.Context) (string, error) {
	cred, err := LoadCredential(t.storage)
	if errors.Is(err, ErrNotLoggedIn) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if cred.Expired(t.now()) {
		return "", nil
	}
	return cred.Token, nil
}
