// Package keychain stores secrets (the API bearer token and THREDDS server
// passwords) in the operating system keyring.
package keychain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName identifies oceanctl items in the keyring.
const ServiceName = "oceanctl"

// ErrNotFound is returned when a secret is not in the keyring.
var ErrNotFound = errors.New("secret not found in keyring")

// Account names.
const (
	AccountToken = "api-token"
)

// ServerAccount returns the account holding the password of server id.
func ServerAccount(id string) string {
	return "thredds-server:" + id
}

// Keychain stores secrets by account name.
//
//go:generate go run github.com/matryer/moq@latest -pkg mocks -out mocks/keychain.go . Keychain
type Keychain interface {
	// Set stores a secret, replacing any existing one.
	Set(account, secret string) error

	// Get retrieves a secret.
	// Returns ErrNotFound if the secret does not exist.
	Get(account string) (string, error)

	// Delete removes a secret.
	// Returns nil if the secret does not exist.
	Delete(account string) error
}

// Config selects and configures the keyring backend.
type Config struct {
	// Backend is one of keychain, secret-service, kwallet, wincred, pass or
	// file. Empty lets the platform choose.
	Backend string

	// FileDir is the directory used by the file backend.
	FileDir string

	// FilePassword unlocks the file backend. When nil the user is prompted.
	FilePassword keyring.PromptFunc
}

type ring struct {
	kr keyring.Keyring
}

// Open opens the keyring described by cfg.
func Open(cfg Config) (Keychain, error) {
	kc := keyring.Config{
		ServiceName:                    ServiceName,
		KeychainName:                   "login",
		KeychainTrustApplication:       true,
		KeychainSynchronizable:         false,
		KeychainAccessibleWhenUnlocked: true,
		LibSecretCollectionName:        ServiceName,
		KWalletAppID:                   ServiceName,
		KWalletFolder:                  ServiceName,
		WinCredPrefix:                  ServiceName,
		PassPrefix:                     ServiceName,
		FileDir:                        cfg.FileDir,
		FilePasswordFunc:               cfg.FilePassword,
	}
	if cfg.Backend != "" {
		kc.AllowedBackends = []keyring.BackendType{keyring.BackendType(cfg.Backend)}
	}
	if kc.FilePasswordFunc == nil {
		kc.FilePasswordFunc = keyring.TerminalPrompt
	}

	kr, err := keyring.Open(kc)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return &ring{kr: kr}, nil
}

// New wraps an already opened keyring.
func New(kr keyring.Keyring) Keychain {
	return &ring{kr: kr}
}

// NewMemory returns a Keychain held in memory, for tests.
func NewMemory() Keychain {
	return New(keyring.NewArrayKeyring(nil))
}

func (r *ring) Set(account, secret string) error {
	err := r.kr.Set(keyring.Item{
		Key:   account,
		Data:  []byte(secret),
		Label: "oceanctl - " + account,
	})
	if err != nil {
		return fmt.Errorf("store secret %s: %w", account, err)
	}
	return nil
}

func (r *ring) Get(account string) (string, error) {
	item, err := r.kr.Get(account)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", account, err)
	}
	return string(item.Data), nil
}

func (r *ring) Delete(account string) error {
	err := r.kr.Remove(account)
	if err == nil || errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return fmt.Errorf("delete secret %s: %w", account, err)
}

// Lazy returns a Keychain that opens the keyring described by cfg on first
// use. A failed open is retried on the next call.
func Lazy(cfg Config) Keychain {
	return &lazy{open: func() (Keychain, error) { return Open(cfg) }}
}

type lazy struct {
	open func() (Keychain, error)

	mu sync.Mutex
	kc Keychain
}

func (l *lazy) get() (Keychain, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.kc != nil {
		return l.kc, nil
	}
	kc, err := l.open()
	if err != nil {
		return nil, err
	}
	l.kc = kc
	return kc, nil
}

func (l *lazy) Set(account, secret string) error {
	kc, err := l.get()
	if err != nil {
		return err
	}
	return kc.Set(account, secret)
}

func (l *lazy) Get(account string) (string, error) {
	kc, err := l.get()
	if err != nil {
		return "", err
	}
	return kc.Get(account)
}

func (l *lazy) Delete(account string) error {
	kc, err := l.get()
	if err != nil {
		return err
	}
	return kc.Delete(account)
}
