package namespace

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
)

// Node is one position of the tree. Its children are resolved lazily
// against the backend and cached by name.
type Node struct {
	addr     address.Address
	parent   *Node // nil for root
	tree     *Tree
	mu       sync.RWMutex // Protects the fields below
	kind     alight.Kind
	content  string
	loaded   bool                      // content has been read from the backend
	children *xsync.Map[string, *Node] // thread-safe map of child nodes by name
}

func newNode(t *Tree, parent *Node, addr address.Address, kind alight.Kind) *Node {
	return &Node{
		addr:     addr,
		parent:   parent,
		tree:     t,
		kind:     kind,
		children: xsync.NewMap[string, *Node](),
	}
}

// Address returns the node's immutable address.
func (n *Node) Address() address.Address {
	return n.addr
}

// Name is the last address segment; "" for root.
func (n *Node) Name() string {
	return n.addr.Name()
}

func (n *Node) Parent() *Node {
	return n.parent
}

func (n *Node) Kind() alight.Kind {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.kind
}

// GetChild returns the cached child without touching the backend.
func (n *Node) GetChild(name string) (*Node, bool) {
	return n.children.Load(name)
}

// settle records the kind the backend confirmed for n.
func (n *Node) settle(kind alight.Kind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.kind != kind {
		n.loaded = false
		n.content = ""
	}
	n.kind = kind
}

func (n *Node) setContent(content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.content = content
	n.loaded = true
}

// cacheChild stores child under its name and in the tree index, replacing
// any previous entry and its cached subtree.
func (n *Node) cacheChild(child *Node) {
	if old, ok := n.children.Load(child.Name()); ok && old != child {
		n.tree.evict(old.addr)
	}
	n.children.Store(child.Name(), child)
	n.tree.index.Store(child.addr, child)
}

// pendingChild returns a cached Unresolved entry for name, creating it if
// needed. Settled entries are replaced.
func (n *Node) pendingChild(addr address.Address) *Node {
	if child, ok := n.children.Load(addr.Name()); ok && child.Kind() == alight.Unresolved {
		return child
	}
	child := newNode(n.tree, n, addr, alight.Unresolved)
	n.cacheChild(child)
	return child
}

func (n *Node) requireContainer() error {
	if k := n.Kind(); k != alight.Node {
		return fmt.Errorf("%w: %q is a %s", alight.ErrNotContainer, n.addr, k)
	}
	return nil
}

// ResolveChild returns the child called name. A settled cache hit is
// returned directly; otherwise the backend decides. When nothing exists the
// result is ErrNoSuchChild, unless createIfAbsent is set, in which case a
// container is persisted for it.
func (n *Node) ResolveChild(name string, createIfAbsent bool) (*Node, error) {
	if err := n.requireContainer(); err != nil {
		return nil, err
	}
	addr, err := n.addr.Child(name)
	if err != nil {
		return nil, err
	}
	if child, ok := n.children.Load(name); ok && child.Kind() != alight.Unresolved {
		return child, nil
	}

	kind, err := n.tree.backend.ArtifactKind(addr)
	if err != nil {
		return nil, err
	}

	switch kind {
	case alight.ArtifactDirectory, alight.ArtifactFile:
		child, ok := n.children.Load(name)
		if !ok {
			child = newNode(n.tree, n, addr, kind.Kind())
			n.cacheChild(child)
		} else {
			child.settle(kind.Kind())
		}
		n.tree.logger.Trace().Str("address", addr.String()).Stringer("kind", kind.Kind()).Msg("Resolved child")
		return child, nil
	}

	if !createIfAbsent {
		return nil, fmt.Errorf("%w: %q", alight.ErrNoSuchChild, addr)
	}
	child := n.pendingChild(addr)
	if err := n.tree.backend.EnsureContainer(addr); err != nil {
		return nil, err
	}
	child.settle(alight.Node)
	n.tree.logger.Debug().Str("address", addr.String()).Msg("Created intermediate node")
	return child, nil
}

// checkAbsent fails with ErrConflict unless nothing exists at addr.
// The backend is consulted directly; the cache is advisory.
func (n *Node) checkAbsent(addr address.Address) error {
	kind, err := n.tree.backend.ArtifactKind(addr)
	if err != nil {
		return err
	}
	if kind != alight.ArtifactNone {
		return fmt.Errorf("%w: a %s already exists at %q", alight.ErrConflict, kind.Kind(), addr)
	}
	return nil
}

// CreateNode persists a new container child.
func (n *Node) CreateNode(name string) (*Node, error) {
	if err := n.requireContainer(); err != nil {
		return nil, err
	}
	addr, err := n.addr.Child(name)
	if err != nil {
		return nil, err
	}
	if err := n.checkAbsent(addr); err != nil {
		return nil, err
	}

	child := n.pendingChild(addr)
	if err := n.tree.backend.EnsureContainer(addr); err != nil {
		return nil, err
	}
	child.settle(alight.Node)
	n.tree.logger.Debug().Str("address", addr.String()).Msg("Created node")
	return child, nil
}

// CreateLeaf persists a new leaf child holding content.
func (n *Node) CreateLeaf(name, content string) (*Node, error) {
	if err := n.requireContainer(); err != nil {
		return nil, err
	}
	addr, err := n.addr.Child(name)
	if err != nil {
		return nil, err
	}
	if err := n.checkAbsent(addr); err != nil {
		return nil, err
	}

	child := n.pendingChild(addr)
	if err := n.tree.backend.WriteLeaf(addr, content); err != nil {
		return nil, err
	}
	child.settle(alight.Leaf)
	child.setContent(content)
	n.tree.logger.Debug().Str("address", addr.String()).Int("bytes", len(content)).Msg("Created leaf")
	return child, nil
}

// Content returns the leaf text, reading it from the backend on first use.
func (n *Node) Content() (string, error) {
	n.mu.RLock()
	kind, loaded, content := n.kind, n.loaded, n.content
	n.mu.RUnlock()

	if kind != alight.Leaf {
		return "", fmt.Errorf("%w: no leaf at %q", alight.ErrNotFound, n.addr)
	}
	if loaded {
		return content, nil
	}
	content, err := n.tree.backend.ReadLeaf(n.addr)
	if err != nil {
		return "", err
	}
	n.setContent(content)
	return content, nil
}

// View snapshots the node, loading leaf content if needed.
func (n *Node) View() (alight.NodeView, error) {
	v := alight.NodeView{Address: n.addr, Kind: n.Kind()}
	if v.Kind == alight.Leaf {
		content, err := n.Content()
		if err != nil {
			return alight.NodeView{}, err
		}
		v.Content = content
	}
	return v, nil
}

// resolveAll lists the container from the backend and resolves every child.
// Cached children the backend no longer lists are evicted.
func (n *Node) resolveAll() ([]*Node, error) {
	if err := n.requireContainer(); err != nil {
		return nil, err
	}
	names, err := n.tree.backend.ListChildren(n.addr)
	if err != nil {
		return nil, err
	}

	listed := make(map[string]struct{}, len(names))
	out := make([]*Node, 0, len(names))
	for _, name := range names {
		listed[name] = struct{}{}
		child, err := n.ResolveChild(name, false)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}

	n.children.Range(func(name string, child *Node) bool {
		if _, ok := listed[name]; !ok && child.Kind() != alight.Unresolved {
			n.tree.evict(child.addr)
		}
		return true
	})
	return out, nil
}

// Read lists the children sorted by name, leaves with their content.
func (n *Node) Read() ([]alight.Entry, error) {
	children, err := n.resolveAll()
	if err != nil {
		return nil, err
	}
	entries := make([]alight.Entry, 0, len(children))
	for _, child := range children {
		v, err := child.View()
		if err != nil {
			return nil, err
		}
		entries = append(entries, alight.Entry{Name: child.Name(), Kind: v.Kind, Content: v.Content})
	}
	return entries, nil
}

// UpdateLeaf overwrites the content of an existing leaf child.
func (n *Node) UpdateLeaf(name, content string) error {
	child, err := n.ResolveChild(name, false)
	if err != nil {
		return err
	}
	if child.Kind() != alight.Leaf {
		return fmt.Errorf("%w: no leaf at %q", alight.ErrNotFound, child.addr)
	}
	if err := n.tree.backend.WriteLeaf(child.addr, content); err != nil {
		return err
	}
	child.setContent(content)
	n.tree.logger.Debug().Str("address", child.addr.String()).Int("bytes", len(content)).Msg("Updated leaf")
	return nil
}

// Delete removes the child called name. A container's descendants are
// deleted first, in post-order.
func (n *Node) Delete(name string) error {
	child, err := n.ResolveChild(name, false)
	if err != nil {
		return err
	}

	if child.Kind() == alight.Node {
		grandchildren, err := child.resolveAll()
		if err != nil {
			return err
		}
		for _, gc := range grandchildren {
			if err := child.Delete(gc.Name()); err != nil {
				return err
			}
		}
	}

	if err := n.tree.backend.Remove(child.addr); err != nil {
		return err
	}
	n.tree.evict(child.addr)
	n.tree.logger.Debug().Str("address", child.addr.String()).Stringer("kind", child.Kind()).Msg("Deleted")
	return nil
}
