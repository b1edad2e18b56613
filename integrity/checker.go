// Package integrity detects and repairs backend state that breaks the
// node-XOR-leaf invariant of a namespace tree, and cache entries that no
// longer match the backend.
package integrity

import (
	"fmt"
	"slices"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
	"github.com/lumineer/alight/internal/util"
)

// CacheEntry is one live position held by a tree's child cache.
type CacheEntry struct {
	Address address.Address
	Kind    alight.Kind
}

// Cache is the view of a tree's child cache the checker and repairer need.
type Cache interface {
	// Entries lists every cached position below the root.
	Entries() []CacheEntry
	// Lookup returns the cached kind at a.
	Lookup(a address.Address) (alight.Kind, bool)
	// Evict drops the entry at a and everything cached beneath it.
	Evict(a address.Address)
}

// Checker walks the backend and the cache and reports violations.
// It never mutates either.
type Checker struct {
	backend alight.Backend
	cache   Cache
	logger  util.Logger
}

// NewChecker returns a checker over b. cache may be nil when only the
// backend is of interest.
func NewChecker(b alight.Backend, cache Cache) *Checker {
	return &Checker{
		backend: b,
		cache:   cache,
		logger:  util.GetLogger("Checker"),
	}
}

// Verify returns every violation under root, backend positions in pre-order
// first and cache entries in address order after. An empty result means the
// subtree is consistent.
func (c *Checker) Verify(root address.Address) ([]alight.Violation, error) {
	var out []alight.Violation
	if err := c.walk(root, &out); err != nil {
		return nil, err
	}
	if err := c.checkCache(root, &out); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("root", root.String()).Int("violations", len(out)).Msg("Verified")
	return out, nil
}

func (c *Checker) walk(a address.Address, out *[]alight.Violation) error {
	st, err := c.backend.Stat(a)
	if err != nil {
		return err
	}

	if a.IsRoot() && !st.Dir {
		*out = append(*out, alight.Violation{
			Kind:    alight.MissingMarker,
			Address: a,
			Detail:  "root directory missing",
		})
		return nil
	}
	if st.Dual() {
		*out = append(*out, alight.Violation{
			Kind:    alight.DualArtifact,
			Address: a,
			Detail:  "both file and directory exist",
		})
	}
	if !st.Dir {
		return nil
	}
	if !st.Marker {
		*out = append(*out, alight.Violation{
			Kind:    alight.MissingMarker,
			Address: a,
			Detail:  "directory has no node marker",
		})
	}

	names, err := c.backend.ListChildren(a)
	if err != nil {
		return err
	}
	for _, name := range names {
		child, err := a.Child(name)
		if err != nil {
			// backends only list valid segments
			return err
		}
		if err := c.walk(child, out); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkCache(root address.Address, out *[]alight.Violation) error {
	if c.cache == nil {
		return nil
	}
	entries := c.cache.Entries()
	slices.SortFunc(entries, func(x, y CacheEntry) int {
		return address.Compare(x.Address, y.Address)
	})

	for _, e := range entries {
		if e.Address.IsRoot() || !e.Address.IsWithin(root) {
			continue
		}
		st, err := c.backend.Stat(e.Address)
		if err != nil {
			return err
		}
		k, single := st.Kind()
		switch {
		case !single:
			// already reported as DualArtifact; repairing that evicts this entry
		case k == alight.ArtifactNone:
			*out = append(*out, alight.Violation{
				Kind:    alight.OrphanedCacheEntry,
				Address: e.Address,
				Detail:  fmt.Sprintf("cached %s has no artifact", e.Kind),
			})
		case e.Kind != alight.Unresolved && e.Kind != k.Kind():
			*out = append(*out, alight.Violation{
				Kind:    alight.OrphanedCacheEntry,
				Address: e.Address,
				Detail:  fmt.Sprintf("cached %s but backend holds a %s", e.Kind, k),
			})
		}
	}
	return nil
}
