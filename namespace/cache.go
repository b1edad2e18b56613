package namespace

import (
	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
	"github.com/lumineer/alight/integrity"
)

var _ integrity.Cache = (*Tree)(nil)

// Entries lists every cached node below the root.
func (t *Tree) Entries() []integrity.CacheEntry {
	out := make([]integrity.CacheEntry, 0, t.index.Size())
	t.index.Range(func(a address.Address, n *Node) bool {
		out = append(out, integrity.CacheEntry{Address: a, Kind: n.Kind()})
		return true
	})
	return out
}

// Lookup returns the cached kind at a.
func (t *Tree) Lookup(a address.Address) (alight.Kind, bool) {
	if a.IsRoot() {
		return alight.Node, true
	}
	n, ok := t.index.Load(a)
	if !ok {
		return alight.Unresolved, false
	}
	return n.Kind(), true
}

// Evict drops the cached node at a and its cached subtree. The next access
// resolves them again from the backend.
func (t *Tree) Evict(a address.Address) {
	t.evict(a)
}

func (t *Tree) evict(a address.Address) {
	if a.IsRoot() {
		return
	}
	n, ok := t.index.LoadAndDelete(a)
	if !ok {
		return
	}
	if n.parent != nil {
		// only unlink if the parent still points at this exact node
		if cur, ok := n.parent.children.Load(a.Name()); ok && cur == n {
			n.parent.children.Delete(a.Name())
		}
	}
	n.children.Range(func(_ string, child *Node) bool {
		t.evict(child.addr)
		return true
	})
	t.logger.Trace().Str("address", a.String()).Msg("Evicted cache entry")
}
