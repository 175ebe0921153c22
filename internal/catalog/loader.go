package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmgilman/oceanctl/internal/cache"
	"github.com/jmgilman/oceanctl/internal/model"
	"github.com/jmgilman/oceanctl/internal/validate"
)

// Loader exposes THREDDS server configuration and catalog browsing as cached
// queries and invalidating mutations.
type Loader struct {
	store  *cache.Store
	svc    Service
	source Source
	// scope separates the cache entries of sources sharing one store. The
	// service source has none.
	scope  string
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithSource browses catalogs through src instead of the service. name
// keeps the entries of src apart from those of other sources using the same
// store.
func WithSource(name string, src Source) Option {
	return func(l *Loader) {
		if src != nil {
			l.source = src
			l.scope = name
		}
	}
}

// WithDirect browses catalogs by reading each server's catalog documents
// directly.
func WithDirect(opts ...DirectOption) Option {
	return func(l *Loader) {
		l.source = NewDirectSource(l, opts...)
		l.scope = "direct"
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Loader. Catalogs are browsed through svc unless an option
// selects another source.
func New(store *cache.Store, svc Service, opts ...Option) *Loader {
	l := &Loader{
		store:  store,
		svc:    svc,
		source: svc,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Source returns the source catalogs are browsed through.
func (l *Loader) Source() Source {
	return l.source
}

// ListServers queries the configured servers.
func (l *Loader) ListServers() *cache.Handle[[]model.Server] {
	return cache.Watch(l.store, cache.NewKey(opServers, nil), []cache.Tag{TagServers}, l.svc.Servers)
}

// Server returns the configured server with id.
func (l *Loader) Server(ctx context.Context, id string) (model.Server, error) {
	h := l.ListServers()
	defer h.Release()

	servers, err := h.Wait(ctx)
	if err != nil {
		return model.Server{}, err
	}
	for _, s := range servers {
		if s.ID == id {
			return s, nil
		}
	}
	return model.Server{}, fmt.Errorf("%w: %s", ErrUnknownServer, id)
}

// AddServerMutation returns the add-server mutation. The configuration is
// validated locally before any request is made.
func (l *Loader) AddServerMutation() *cache.Mutation[model.ServerConfig, *model.Server] {
	return cache.NewMutation(l.store, func(ctx context.Context, cfg model.ServerConfig) (*model.Server, error) {
		if err := validate.Struct(cfg); err != nil {
			return nil, err
		}
		srv, err := l.svc.CreateServer(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("add server: %w", err)
		}
		l.logger.Debug("added server", "id", srv.ID, "name", srv.Name)
		return srv, nil
	}, cache.Tags[model.ServerConfig, *model.Server](TagServers))
}

// AddServer validates cfg and registers a new server.
func (l *Loader) AddServer(ctx context.Context, cfg model.ServerConfig) (*model.Server, error) {
	return l.AddServerMutation().Execute(ctx, cfg)
}

type replaceArg struct {
	id  string
	cfg model.ServerConfig
}

// ReplaceServer validates cfg and replaces the full configuration of server
// id. Cached catalogs of the server are invalidated.
func (l *Loader) ReplaceServer(ctx context.Context, id string, cfg model.ServerConfig) (*model.Server, error) {
	m := cache.NewMutation(l.store, func(ctx context.Context, arg replaceArg) (*model.Server, error) {
		if err := validate.Struct(arg.cfg); err != nil {
			return nil, err
		}
		srv, err := l.svc.ReplaceServer(ctx, arg.id, arg.cfg)
		if err != nil {
			return nil, fmt.Errorf("replace server: %w", err)
		}
		return srv, nil
	}, func(arg replaceArg, _ *model.Server) []cache.Tag {
		return []cache.Tag{TagServers, cache.Scoped(TagCatalog, arg.id)}
	})
	return m.Execute(ctx, replaceArg{id: id, cfg: cfg})
}

// RemoveServer deletes server id and invalidates its cached catalogs.
func (l *Loader) RemoveServer(ctx context.Context, id string) error {
	_, err := l.store.Mutate(ctx, func(ctx context.Context) (any, error) {
		if err := l.svc.DeleteServer(ctx, id); err != nil {
			return nil, fmt.Errorf("remove server: %w", err)
		}
		return id, nil
	}, TagServers, cache.Scoped(TagCatalog, id))
	return err
}

// Expand queries the children of path on serverID. The root is "". Paths
// differing only in leading or trailing slashes share one entry; the source
// receives path as given.
func (l *Loader) Expand(serverID, path string) *cache.Handle[[]model.Node] {
	key := cache.NewKey(opCatalog, l.catalogArg(serverID, path))
	return cache.Watch(l.store, key, catalogTags(serverID), func(ctx context.Context) ([]model.Node, error) {
		return l.source.Catalog(ctx, serverID, path)
	})
}

// Metadata queries the metadata of the leaf at path on serverID.
func (l *Loader) Metadata(serverID, path string) *cache.Handle[*model.DatasetMetadata] {
	key := cache.NewKey(opMetadata, l.catalogArg(serverID, path))
	return cache.Watch(l.store, key, catalogTags(serverID), func(ctx context.Context) (*model.DatasetMetadata, error) {
		return l.source.Metadata(ctx, serverID, path)
	})
}

// Refresh invalidates every cached catalog and metadata entry of serverID and
// returns how many were re-fetched.
func (l *Loader) Refresh(serverID string) int {
	return l.store.Invalidate(cache.Scoped(TagCatalog, serverID))
}

// ListDatasets queries the registered datasets.
func (l *Loader) ListDatasets() *cache.Handle[[]model.Dataset] {
	return cache.Watch(l.store, cache.NewKey(opDatasets, nil), []cache.Tag{TagDatasets}, l.svc.Datasets)
}

// Dataset queries one dataset.
func (l *Loader) Dataset(id string) *cache.Handle[*model.Dataset] {
	tags := []cache.Tag{TagDatasets, cache.Scoped(TagDatasets, id)}
	return cache.Watch(l.store, cache.NewKey(opDataset, id), tags, func(ctx context.Context) (*model.Dataset, error) {
		return l.svc.Dataset(ctx, id)
	})
}

// NewTree returns an unexpanded tree for serverID.
func (l *Loader) NewTree(serverID string) *Tree {
	return newTree(l, serverID)
}

func (l *Loader) catalogArg(serverID, path string) catalogArg {
	return catalogArg{Source: l.scope, ServerID: serverID, Path: normalize(path)}
}

func catalogTags(serverID string) []cache.Tag {
	return []cache.Tag{TagCatalog, cache.Scoped(TagCatalog, serverID)}
}

func normalize(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.Trim(path, "/")
}
