package catalog

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmgilman/oceanctl/internal/model"
)

// expandLimit bounds concurrent expansions in one ExpandAll.
const expandLimit = 4

// Tree is the materialized catalog of one server. Nodes are resolved lazily,
// one directory per Expand, through the loader's cache.
type Tree struct {
	loader   *Loader
	serverID string

	mu    sync.Mutex
	root  *TreeNode
	index map[string]*TreeNode
}

func newTree(l *Loader, serverID string) *Tree {
	root := &TreeNode{Node: model.Node{Name: serverID, IsDirectory: true}}
	return &Tree{
		loader:   l,
		serverID: serverID,
		root:     root,
		index:    map[string]*TreeNode{"": root},
	}
}

// ServerID returns the server the tree browses.
func (t *Tree) ServerID() string {
	return t.serverID
}

// Root returns the root node.
func (t *Tree) Root() *TreeNode {
	return t.root
}

// Node returns the node at path if it has been discovered.
func (t *Tree) Node(path string) (*TreeNode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.index[normalize(path)]
	return n, ok
}

// Expand resolves the children of the directory at path, which must already
// be known to the tree. Paths are matched ignoring leading and trailing
// slashes, and the source is asked for the path the node was declared with.
// Children keep server order; nodes seen before keep their resolved subtrees.
func (t *Tree) Expand(ctx context.Context, path string) ([]*TreeNode, error) {
	t.mu.Lock()
	n, ok := t.index[normalize(path)]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}
	if !n.IsDirectory {
		return nil, fmt.Errorf("expand %q: %w", path, ErrNotDirectory)
	}

	h := t.loader.Expand(t.serverID, n.Path)
	defer h.Release()

	nodes, err := h.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	children := make([]*TreeNode, 0, len(nodes))
	for _, child := range nodes {
		key := normalize(child.Path)
		existing, ok := t.index[key]
		if ok && existing.IsDirectory == child.IsDirectory {
			existing.Name = child.Name
			children = append(children, existing)
			continue
		}
		tn := &TreeNode{Node: child}
		t.index[key] = tn
		children = append(children, tn)
	}
	n.Children = children
	n.Resolved = true

	return append([]*TreeNode{}, children...), nil
}

// ExpandAll expands path and its descendant directories down to depth
// levels. A depth of 1 expands only path. At most expandLimit expansions run
// at once across the whole walk.
func (t *Tree) ExpandAll(ctx context.Context, path string, depth int) error {
	if depth < 1 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, expandLimit)

	var walk func(path string, depth int)
	walk = func(path string, depth int) {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			children, err := t.Expand(ctx, path)
			<-sem
			if err != nil {
				return err
			}
			if depth == 1 {
				return nil
			}
			for _, child := range children {
				if child.IsDirectory {
					walk(child.Path, depth-1)
				}
			}
			return nil
		})
	}
	walk(path, depth)
	return g.Wait()
}

// Seed records node so it can be expanded before its parent is. A node
// already known is returned as is.
func (t *Tree) Seed(node model.Node) *TreeNode {
	key := normalize(node.Path)

	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.index[key]; ok {
		return n
	}
	n := &TreeNode{Node: node}
	t.index[key] = n
	return n
}

// Walk visits resolved nodes depth-first starting below the root, calling fn
// with each node and its depth. Unresolved directories are visited but not
// descended into.
func (t *Tree) Walk(fn func(n *TreeNode, depth int)) {
	t.WalkFrom("", fn)
}

// WalkFrom is Walk starting below the node at path. It reports false when
// path is unknown.
func (t *Tree) WalkFrom(path string, fn func(n *TreeNode, depth int)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	start, ok := t.index[normalize(path)]
	if !ok {
		return false
	}

	var walk func(n *TreeNode, depth int)
	walk = func(n *TreeNode, depth int) {
		for _, c := range n.Children {
			fn(c, depth)
			walk(c, depth+1)
		}
	}
	walk(start, 0)
	return true
}
