package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmgilman/oceanctl/internal/cache"
	"github.com/jmgilman/oceanctl/internal/keychain"
	"github.com/jmgilman/oceanctl/internal/model"
	"github.com/jmgilman/oceanctl/internal/validate"
)

// TagUser is attached to the current-user query.
const TagUser cache.Tag = "User"

const opCurrentUser = "getCurrentUser"

// Service is the part of the remote service the session uses.
type Service interface {
	Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error)
	CurrentUser(ctx context.Context) (*model.User, error)
}

// Status summarizes the stored login state.
type Status struct {
	LoggedIn  bool       `json:"loggedIn" yaml:"loggedIn"`
	Username  string     `json:"username,omitempty" yaml:"username,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	Expired   bool       `json:"expired,omitempty" yaml:"expired,omitempty"`
}

// Session logs in and out and queries the current user.
type Session struct {
	store   *cache.Store
	svc     Service
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used to judge token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSession creates a Session.
func NewSession(store *cache.Store, svc Service, storage Storage, opts ...Option) *Session {
	s := &Session{
		store:   store,
		svc:     svc,
		storage: storage,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginMutation returns the login mutation. On success the token is stored
// and the current-user query is invalidated.
func (s *Session) LoginMutation() *cache.Mutation[model.LoginRequest, *model.User] {
	return cache.NewMutation(s.store, func(ctx context.Context, req model.LoginRequest) (*model.User, error) {
		if err := validate.Struct(req); err != nil {
			return nil, err
		}
		resp, err := s.svc.Login(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("log in: %w", err)
		}
		if err := StoreCredential(s.storage, Credential{Token: resp.Token, Username: resp.User.Username}); err != nil {
			return nil, fmt.Errorf("store token: %w", err)
		}
		s.logger.Debug("logged in", "username", resp.User.Username)
		return &resp.User, nil
	}, cache.Tags[model.LoginRequest, *model.User](TagUser))
}

// Login exchanges credentials for a token and stores it.
func (s *Session) Login(ctx context.Context, req model.LoginRequest) (*model.User, error) {
	return s.LoginMutation().Execute(ctx, req)
}

// CurrentUser queries the account the stored token belongs to. Without a
// token the query fails with ErrNotLoggedIn and no request is made.
func (s *Session) CurrentUser() *cache.Handle[*model.User] {
	return cache.Watch(s.store, cache.NewKey(opCurrentUser, nil), []cache.Tag{TagUser}, func(ctx context.Context) (*model.User, error) {
		st, err := s.Status()
		if err != nil {
			return nil, err
		}
		if !st.LoggedIn || st.Expired {
			return nil, ErrNotLoggedIn
		}
		u, err := s.svc.CurrentUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("get current user: %w", err)
		}
		return u, nil
	})
}

// Logout deletes the stored token and resets the whole cache, since cached
// data may be specific to the account.
func (s *Session) Logout() error {
	if err := s.storage.Delete(keychain.AccountToken); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	s.store.Reset()
	s.logger.Debug("logged out")
	return nil
}

// Status reports the stored login state without contacting the service.
func (s *Session) Status() (Status, error) {
	cred, err := LoadCredential(s.storage)
	if errors.Is(err, ErrNotLoggedIn) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	st := Status{LoggedIn: true, Username: cred.Username}
	if exp, ok := cred.ExpiresAt(); ok {
		st.ExpiresAt = &exp
		st.Expired = cred.Expired(s.now())
	}
	return st, nil
}
