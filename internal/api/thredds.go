package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jmgilman/oceanctl/internal/model"
)

// Servers lists the configured THREDDS servers.
func (c *Client) Servers(ctx context.Context) ([]model.Server, error) {
	raw, err := c.send(ctx, request{method: http.MethodGet, path: "thredds/servers"})
	if err != nil {
		return nil, err
	}
	out, err := decodeList[model.Server](raw, "servers")
	if err != nil {
		return nil, fmt.Errorf("%w: decode servers: %w", ErrServer, err)
	}
	return out, nil
}

// CreateServer registers a new server. The service may acknowledge with only
// an id, in which case the remaining fields are taken from cfg.
func (c *Client) CreateServer(ctx context.Context, cfg model.ServerConfig) (*model.Server, error) {
	var srv model.Server
	if err := c.do(ctx, request{method: http.MethodPost, path: "thredds/servers", body: cfg}, &srv); err != nil {
		return nil, err
	}
	return fillServer(srv, cfg), nil
}

// ReplaceServer replaces the full configuration of server id.
func (c *Client) ReplaceServer(ctx context.Context, id string, cfg model.ServerConfig) (*model.Server, error) {
	var srv model.Server
	path := "thredds/servers/" + url.PathEscape(id)
	if err := c.do(ctx, request{method: http.MethodPut, path: path, body: cfg}, &srv); err != nil {
		return nil, err
	}
	if srv.ID == "" {
		srv.ID = id
	}
	return fillServer(srv, cfg), nil
}

// DeleteServer removes server id.
func (c *Client) DeleteServer(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "thredds/servers/" + url.PathEscape(id)}, nil)
}

// Catalog lists the children of path on server serverID. The root is "".
func (c *Client) Catalog(ctx context.Context, serverID, path string) ([]model.Node, error) {
	raw, err := c.send(ctx, request{
		method: http.MethodGet,
		path:   "thredds/catalog",
		query:  url.Values{"server_id": {serverID}, "path": {path}},
	})
	if err != nil {
		return nil, err
	}
	out, err := decodeList[model.Node](raw, "catalog", "children")
	if err != nil {
		return nil, fmt.Errorf("%w: decode catalog: %w", ErrServer, err)
	}
	return out, nil
}

// Metadata returns the metadata of the leaf at path on server serverID.
func (c *Client) Metadata(ctx context.Context, serverID, path string) (*model.DatasetMetadata, error) {
	var md model.DatasetMetadata
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "thredds/metadata",
		query:  url.Values{"server_id": {serverID}, "path": {path}},
	}, &md)
	if err != nil {
		return nil, err
	}
	if md.Path == "" {
		md.Path = path
	}
	return &md, nil
}

func fillServer(srv model.Server, cfg model.ServerConfig) *model.Server {
	if srv.Name == "" {
		srv.Name = cfg.Name
	}
	if srv.BaseURL == "" {
		srv.BaseURL = cfg.BaseURL
	}
	if srv.Description == "" {
		srv.Description = cfg.Description
	}
	if srv.Credentials == nil && cfg.Credentials != nil {
		srv.Credentials = &model.Credentials{Username: cfg.Credentials.Username}
	}
	return &srv
}
