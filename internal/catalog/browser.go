package catalog

import (
	"context"
	"sync"

	"github.com/jmgilman/oceanctl/internal/cache"
	"github.com/jmgilman/oceanctl/internal/model"
)

// Selection is the result of selecting a node: children for a directory,
// metadata for a leaf.
type Selection struct {
	Node     model.Node
	Children []model.Node
	Metadata *model.DatasetMetadata
}

// Browser tracks the selected server and keeps a tree per server visited.
type Browser struct {
	loader *Loader

	mu       sync.Mutex
	serverID string
	root     *cache.Handle[[]model.Node]
	trees    map[string]*Tree
}

// NewBrowser creates a browser with no server selected.
func NewBrowser(l *Loader) *Browser {
	return &Browser{loader: l, trees: make(map[string]*Tree)}
}

// SelectServer switches to serverID. The previous server's root query is
// released but its cached entries and tree are kept.
func (b *Browser) SelectServer(serverID string) *cache.Handle[[]model.Node] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.root != nil && b.serverID == serverID {
		return b.root
	}
	if b.root != nil {
		b.root.Release()
	}

	b.serverID = serverID
	b.root = b.loader.Expand(serverID, "")
	if _, ok := b.trees[serverID]; !ok {
		b.trees[serverID] = b.loader.NewTree(serverID)
	}
	return b.root
}

// Selected returns the selected server id, or "" when none is selected.
func (b *Browser) Selected() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.serverID
}

// Root returns the selected server's root query.
func (b *Browser) Root() (*cache.Handle[[]model.Node], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.root == nil {
		return nil, ErrNoServer
	}
	return b.root, nil
}

// Tree returns the selected server's tree.
func (b *Browser) Tree() (*Tree, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.root == nil {
		return nil, ErrNoServer
	}
	return b.trees[b.serverID], nil
}

// Select resolves node on the selected server.
func (b *Browser) Select(ctx context.Context, node model.Node) (Selection, error) {
	serverID := b.Selected()
	if serverID == "" {
		return Selection{}, ErrNoServer
	}

	sel := Selection{Node: node}
	if node.IsDirectory {
		h := b.loader.Expand(serverID, node.Path)
		defer h.Release()
		children, err := h.Wait(ctx)
		if err != nil {
			return Selection{}, err
		}
		sel.Children = children
		return sel, nil
	}

	h := b.loader.Metadata(serverID, node.Path)
	defer h.Release()
	md, err := h.Wait(ctx)
	if err != nil {
		return Selection{}, err
	}
	sel.Metadata = md
	return sel, nil
}

// Close releases the root query.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.root != nil {
		b.root.Release()
		b.root = nil
	}
	b.serverID = ""
}
