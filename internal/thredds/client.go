// Package thredds reads catalogs directly from a THREDDS Data Server and
// builds its data access URLs.
package thredds

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jmgilman/oceanctl/internal/model"
)

// Sentinel errors.
var (
	ErrNotFound     = errors.New("catalog not found")
	ErrUnauthorized = errors.New("catalog access denied")
)

// StatusError is an unexpected HTTP status from the server.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is matches ErrNotFound and ErrUnauthorized by status code.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// Client reads catalogs from one THREDDS server.
type Client struct {
	base     *url.URL
	http     *http.Client
	username string
	password string
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBasicAuth sends HTTP basic credentials. Both values must be non-empty
// for credentials to be sent.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the server rooted at baseURL, e.g.
// "https://www.ncei.noaa.gov/thredds".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse base url: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// CatalogURL returns the catalog document URL for a catalog path. The root
// catalog is "". Absolute URLs are returned unchanged.
func (c *Client) CatalogURL(catalogPath string) string {
	if isAbsolute(catalogPath) {
		return catalogPath
	}
	p := strings.Trim(catalogPath, "/")
	if p == "" {
		return c.BaseURL() + "/catalog/catalog.xml"
	}
	return c.BaseURL() + "/catalog/" + p + "/catalog.xml"
}

// OpenDAPURL returns the OPeNDAP access URL for a dataset path.
func (c *Client) OpenDAPURL(datasetPath string) string {
	return c.serviceURL("dodsC", datasetPath)
}

// HTTPURL returns the direct download URL for a dataset path.
func (c *Client) HTTPURL(datasetPath string) string {
	return c.serviceURL("fileServer", datasetPath)
}

// NCSSURL returns the NetCDF Subset Service URL for a dataset path.
func (c *Client) NCSSURL(datasetPath string) string {
	return c.serviceURL("ncss", datasetPath)
}

func (c *Client) serviceURL(service, datasetPath string) string {
	return c.BaseURL() + "/" + service + "/" + strings.TrimLeft(datasetPath, "/")
}

// Catalog fetches and parses the catalog at catalogPath.
func (c *Client) Catalog(ctx context.Context, catalogPath string) (*Catalog, error) {
	target := c.CatalogURL(catalogPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("fetched catalog", "url", target, "status", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	var cat Catalog
	if err := xml.NewDecoder(resp.Body).Decode(&cat); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", target, err)
	}
	return &cat, nil
}

// Children lists the entries of the catalog at catalogPath in document order.
// Catalog references become directories addressed by their catalog path;
// datasets with an access path become leaves addressed by that path. Container
// datasets are flattened into their parent.
func (c *Client) Children(ctx context.Context, catalogPath string) ([]model.Node, error) {
	cat, err := c.Catalog(ctx, catalogPath)
	if err != nil {
		return nil, err
	}

	nodes := []model.Node{}
	for _, ref := range cat.Refs {
		nodes = append(nodes, c.refNode(catalogPath, ref))
	}
	for _, ds := range cat.Datasets {
		nodes = c.appendDataset(nodes, catalogPath, ds)
	}
	return nodes, nil
}

func (c *Client) appendDataset(nodes []model.Node, catalogPath string, ds Dataset) []model.Node {
	if ds.URLPath != "" {
		return append(nodes, model.Node{Name: ds.Name, Path: ds.URLPath})
	}
	for _, ref := range ds.Refs {
		nodes = append(nodes, c.refNode(catalogPath, ref))
	}
	for _, child := range ds.Datasets {
		nodes = c.appendDataset(nodes, catalogPath, child)
	}
	return nodes
}

// Metadata returns the metadata advertised for the dataset whose access path
// is datasetPath. The dataset is looked up in the catalog of its directory.
func (c *Client) Metadata(ctx context.Context, datasetPath string) (*model.DatasetMetadata, error) {
	dir := path.Dir(strings.Trim(datasetPath, "/"))
	if dir == "." {
		dir = ""
	}

	cat, err := c.Catalog(ctx, dir)
	if err != nil {
		return nil, err
	}

	for _, ds := range cat.Datasets {
		if md, ok := findDataset(ds, datasetPath, Properties{}); ok {
			return md, nil
		}
	}
	return nil, fmt.Errorf("dataset %q: %w", datasetPath, ErrNotFound)
}

func findDataset(ds Dataset, datasetPath string, inherited Properties) (*model.DatasetMetadata, bool) {
	own, forChildren := ds.properties(inherited)
	if ds.URLPath == datasetPath {
		return own.metadata(datasetPath), true
	}
	for _, child := range ds.Datasets {
		if md, ok := findDataset(child, datasetPath, forChildren); ok {
			return md, true
		}
	}
	return nil, false
}

// refNode converts a catalog reference found in the catalog at catalogPath.
func (c *Client) refNode(catalogPath string, ref CatalogRef) model.Node {
	return model.Node{
		Name:        ref.DisplayName(),
		Path:        c.resolveRef(catalogPath, ref.Href),
		IsDirectory: true,
	}
}

// resolveRef turns an href into a catalog path. References inside this
// server's catalog tree become relative paths; anything else stays an
// absolute URL.
func (c *Client) resolveRef(catalogPath, href string) string {
	from, err := url.Parse(c.CatalogURL(catalogPath))
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	abs := from.ResolveReference(ref)

	root := c.BaseURL() + "/catalog/"
	s := abs.String()
	if !strings.HasPrefix(s, root) {
		return s
	}
	rel := strings.TrimPrefix(s, root)
	switch {
	case rel == "catalog.xml":
		return ""
	case strings.HasSuffix(rel, "/catalog.xml"):
		return strings.TrimSuffix(rel, "/catalog.xml")
	default:
		return s
	}
}

func isAbsolute(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
