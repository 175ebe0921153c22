package keychain

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeychain(t *testing.T) {
	t.Run("set then get", func(t *testing.T) {
		kc := NewMemory()
		require.NoError(t, kc.Set(AccountToken, "abc"))

		got, err := kc.Get(AccountToken)
		require.NoError(t, err)
		assert.Equal(t, "abc", got)
	})

	t.Run("set replaces", func(t *testing.T) {
		kc := NewMemory()
		require.NoError(t, kc.Set(ServerAccount("1"), "old"))
		require.NoError(t, kc.Set(ServerAccount("1"), "new"))

		got, err := kc.Get(ServerAccount("1"))
		require.NoError(t, err)
		assert.Equal(t, "new", got)
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := NewMemory().Get("nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		kc := NewMemory()
		require.NoError(t, kc.Set(AccountToken, "abc"))
		require.NoError(t, kc.Delete(AccountToken))

		_, err := kc.Get(AccountToken)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, kc.Delete(AccountToken))
	})

	t.Run("items are labelled", func(t *testing.T) {
		kr := keyring.NewArrayKeyring(nil)
		require.NoError(t, New(kr).Set(AccountToken, "abc"))

		item, err := kr.Get(AccountToken)
		require.NoError(t, err)
		assert.Equal(t, "oceanctl - api-token", item.Label)
	})

	t.Run("file backend", func(t *testing.T) {
		kc, err := Open(Config{
			Backend:      string(keyring.FileBackend),
			FileDir:      t.TempDir(),
			FilePassword: keyring.FixedStringPrompt("hunter2"),
		})
		require.NoError(t, err)

		require.NoError(t, kc.Set(ServerAccount("noaa"), "s3cret"))
		got, err := kc.Get(ServerAccount("noaa"))
		require.NoError(t, err)
		assert.Equal(t, "s3cret", got)
	})
}

func TestServerAccount(t *testing.T) {
	assert.Equal(t, "thredds-server:42", ServerAccount("42"))
}

func TestLazy(t *testing.T) {
	t.Run("opens on first use only", func(t *testing.T) {
		opens := 0
		kc := &lazy{open: func() (Keychain, error) {
			opens++
			return NewMemory(), nil
		}}
		assert.Zero(t, opens)

		require.NoError(t, kc.Set(AccountToken, "abc"))
		got, err := kc.Get(AccountToken)
		require.NoError(t, err)
		assert.Equal(t, "abc", got)
		require.NoError(t, kc.Delete(AccountToken))
		assert.Equal(t, 1, opens)
	})

	t.Run("retries after a failed open", func(t *testing.T) {
		fail := true
		kc := &lazy{open: func() (Keychain, error) {
			if fail {
				return nil, errors.New("locked")
			}
			return NewMemory(), nil
		}}

		_, err := kc.Get(AccountToken)
		assert.EqualError(t, err, "locked")

		fail = false
		_, err = kc.Get(AccountToken)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("file backend", func(t *testing.T) {
		kc := Lazy(Config{
			Backend:      string(keyring.FileBackend),
			FileDir:      t.TempDir(),
			FilePassword: keyring.FixedStringPrompt("hunter2"),
		})
		require.NoError(t, kc.Set(AccountToken, "abc"))
		got, err := kc.Get(AccountToken)
		require.NoError(t, err)
		assert.Equal(t, "abc", got)
	})
}
