// Package catalog loads THREDDS server configuration and lazily browses
// server catalogs through the request cache.
package catalog

import (
	"context"
	"errors"

	"github.com/jmgilman/oceanctl/internal/cache"
	"github.com/jmgilman/oceanctl/internal/model"
)

// Sentinel errors for catalog operations.
var (
	ErrNotDirectory  = errors.New("not a directory")
	ErrUnknownPath   = errors.New("unknown catalog path")
	ErrUnknownServer = errors.New("unknown server")
	ErrNoServer      = errors.New("no server selected")
)

// Invalidation tags.
const (
	TagServers  cache.Tag = "ThreddsServers"
	TagCatalog  cache.Tag = "Catalog"
	TagDatasets cache.Tag = "Datasets"
)

// Cache operation names.
const (
	opServers  = "getThreddsServers"
	opCatalog  = "getThreddsCatalog"
	opMetadata = "getDatasetMetadata"
	opDatasets = "getDatasets"
	opDataset  = "getDatasetById"
)

// Source lists catalog entries and leaf metadata for a server.
//
//go:generate go run github.com/matryer/moq@latest -pkg mocks -out mocks/source.go . Source
type Source interface {
	// Catalog returns the children of path on serverID in server order.
	// The root is "". Returns an error matching api.ErrNotFound for
	// unknown paths.
	Catalog(ctx context.Context, serverID, path string) ([]model.Node, error)

	// Metadata returns the metadata of the leaf at path on serverID.
	Metadata(ctx context.Context, serverID, path string) (*model.DatasetMetadata, error)
}

// Service is the part of the remote service the loader uses.
type Service interface {
	Source

	// Servers lists configured THREDDS servers.
	Servers(ctx context.Context) ([]model.Server, error)

	// CreateServer registers a server and returns it with its assigned id.
	CreateServer(ctx context.Context, cfg model.ServerConfig) (*model.Server, error)

	// ReplaceServer replaces the full configuration of a server.
	ReplaceServer(ctx context.Context, id string, cfg model.ServerConfig) (*model.Server, error)

	// DeleteServer removes a server.
	DeleteServer(ctx context.Context, id string) error

	// Datasets lists registered datasets.
	Datasets(ctx context.Context) ([]model.Dataset, error)

	// Dataset returns one dataset.
	Dataset(ctx context.Context, id string) (*model.Dataset, error)
}

// catalogArg is the cache argument of catalog and metadata queries.
type catalogArg struct {
	Source   string `json:"source,omitempty"`
	ServerID string `json:"serverId"`
	Path     string `json:"path"`
}

// TreeNode is a catalog node with its materialized children.
type TreeNode struct {
	model.Node

	// Children is nil until the node is expanded.
	Children []*TreeNode
	Resolved bool
}
