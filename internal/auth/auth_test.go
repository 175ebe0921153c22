package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/oceanctl/internal/keychain"
)

func signed(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	require.NoError(t, err)
	return s
}

func TestExpiry(t *testing.T) {
	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		token  string
		want   time.Time
		wantOK bool
	}{
		{
			name:   "jwt with exp",
			token:  signed(t, jwt.RegisteredClaims{Subject: "ana", ExpiresAt: jwt.NewNumericDate(exp)}),
			want:   exp,
			wantOK: true,
		},
		{
			name:  "jwt without exp",
			token: signed(t, jwt.RegisteredClaims{Subject: "ana"}),
		},
		{
			name:  "opaque token",
			token: "not-a-jwt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Expiry(tt.token)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %v", got)
			}
		})
	}
}

func TestCredential_Expired(t *testing.T) {
	now := time.Now()
	past := Credential{Token: signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))})}
	future := Credential{Token: signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})}
	opaque := Credential{Token: "opaque"}

	assert.True(t, past.Expired(now))
	assert.False(t, future.Expired(now))
	assert.False(t, opaque.Expired(now))
}

func TestCredentialStorage(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		kc := keychain.NewMemory()
		require.NoError(t, StoreCredential(kc, Credential{Token: "abc", Username: "ana"}))

		got, err := LoadCredential(kc)
		require.NoError(t, err)
		assert.Equal(t, &Credential{Token: "abc", Username: "ana"}, got)
	})

	t.Run("nothing stored", func(t *testing.T) {
		_, err := LoadCredential(keychain.NewMemory())
		assert.ErrorIs(t, err, ErrNotLoggedIn)
	})

	t.Run("corrupt entry", func(t *testing.T) {
		kc := keychain.NewMemory()
		require.NoError(t, kc.Set(keychain.AccountToken, "{"))

		_, err := LoadCredential(kc)
		assert.ErrorContains(t, err, "unmarshal credential")
	})
}

func TestTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous without a stored token", func(t *testing.T) {
		tok, err := NewTokens(keychain.NewMemory()).Token(ctx)
		require.NoError(t, err)
		assert.Empty(t, tok)
	})

	t.Run("returns a live token", func(t *testing.T) {
		kc := keychain.NewMemory()
		live := signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
		require.NoError(t, StoreCredential(kc, Credential{Token: live}))

		tok, err := NewTokens(kc).Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, live, tok)
	})

	t.Run("drops an expired token", func(t *testing.T) {
		kc := keychain.NewMemory()
		stale := signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))})
		require.NoError(t, StoreCredential(kc, Credential{Token: stale}))

		tok, err := NewTokens(kc).Token(ctx)
		require.NoError(t, err)
		assert.Empty(t, tok)
	})
}
