package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/jmgilman/oceanctl/internal/api"
	"github.com/jmgilman/oceanctl/internal/model"
	"github.com/jmgilman/oceanctl/internal/thredds"
)

// ServerLookup resolves a server id to its configuration.
type ServerLookup interface {
	Server(ctx context.Context, id string) (model.Server, error)
}

// PasswordFunc returns the stored password for a server, or "" for none.
type PasswordFunc func(ctx context.Context, server model.Server) (string, error)

// DirectSource reads catalogs straight from each THREDDS server.
type DirectSource struct {
	servers   ServerLookup
	passwords PasswordFunc
	http      *http.Client
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[string]*thredds.Client
}

// DirectOption configures a DirectSource.
type DirectOption func(*DirectSource)

// WithPasswords sets where server passwords come from.
func WithPasswords(fn PasswordFunc) DirectOption {
	return func(d *DirectSource) { d.passwords = fn }
}

// WithDirectHTTPClient sets the HTTP client used for catalog requests.
func WithDirectHTTPClient(hc *http.Client) DirectOption {
	return func(d *DirectSource) { d.http = hc }
}

// WithDirectLogger sets the logger.
func WithDirectLogger(l *slog.Logger) DirectOption {
	return func(d *DirectSource) { d.logger = l }
}

// NewDirectSource creates a source that resolves servers through lookup.
func NewDirectSource(lookup ServerLookup, opts ...DirectOption) *DirectSource {
	d := &DirectSource{
		servers: lookup,
		logger:  slog.New(slog.DiscardHandler),
		clients: make(map[string]*thredds.Client),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Catalog implements Source.
func (d *DirectSource) Catalog(ctx context.Context, serverID, path string) ([]model.Node, error) {
	c, err := d.client(ctx, serverID)
	if err != nil {
		return nil, err
	}
	nodes, err := c.Children(ctx, path)
	if err != nil {
		return nil, classify(err)
	}
	return nodes, nil
}

// Metadata implements Source.
func (d *DirectSource) Metadata(ctx context.Context, serverID, path string) (*model.DatasetMetadata, error) {
	c, err := d.client(ctx, serverID)
	if err != nil {
		return nil, err
	}
	md, err := c.Metadata(ctx, path)
	if err != nil {
		return nil, classify(err)
	}
	return md, nil
}

// AccessURLs returns the OPeNDAP, HTTP and NCSS URLs of a leaf.
func (d *DirectSource) AccessURLs(ctx context.Context, serverID, path string) (map[string]string, error) {
	c, err := d.client(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"opendap": c.OpenDAPURL(path),
		"http":    c.HTTPURL(path),
		"ncss":    c.NCSSURL(path),
	}, nil
}

func (d *DirectSource) client(ctx context.Context, serverID string) (*thredds.Client, error) {
	srv, err := d.servers.Server(ctx, serverID)
	if err != nil {
		return nil, err
	}

	key := srv.ID + "\x00" + srv.BaseURL
	d.mu.Lock()
	c, ok := d.clients[key]
	d.mu.Unlock()
	if ok {
		return c, nil
	}

	opts := []thredds.Option{thredds.WithLogger(d.logger)}
	if d.http != nil {
		opts = append(opts, thredds.WithHTTPClient(d.http))
	}
	if srv.Credentials != nil && srv.Credentials.Username != "" {
		password := srv.Credentials.Password
		if password == "" && d.passwords != nil {
			password, err = d.passwords(ctx, srv)
			if err != nil {
				return nil, fmt.Errorf("get password for server %s: %w", srv.ID, err)
			}
		}
		opts = append(opts, thredds.WithBasicAuth(srv.Credentials.Username, password))
	}

	c, err = thredds.New(srv.BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", srv.ID, err)
	}

	d.mu.Lock()
	d.clients[key] = c
	d.mu.Unlock()
	return c, nil
}

// classify maps catalog client errors onto the service error taxonomy.
func classify(err error) error {
	var ue *url.Error
	switch {
	case errors.Is(err, thredds.ErrNotFound):
		return fmt.Errorf("%w: %w", api.ErrNotFound, err)
	case errors.Is(err, thredds.ErrUnauthorized):
		return fmt.Errorf("%w: %w", api.ErrUnauthorized, err)
	case errors.As(err, &ue):
		return fmt.Errorf("%w: %w", api.ErrNetwork, err)
	default:
		return fmt.Errorf("%w: %w", api.ErrServer, err)
	}
}
