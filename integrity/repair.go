package integrity

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
	"github.com/lumineer/alight/internal/util"
)

// Intent records the kind a just-completed operation meant to leave at an
// address. It decides the winner of a DualArtifact at that address.
type Intent struct {
	Address address.Address
	Kind    alight.Kind
}

// Repairer restores the invariant for a list of violations.
type Repairer struct {
	backend alight.Backend
	cache   Cache
	logger  util.Logger
}

// NewRepairer returns a repairer over b. cache may be nil.
func NewRepairer(b alight.Backend, cache Cache) *Repairer {
	return &Repairer{
		backend: b,
		cache:   cache,
		logger:  util.GetLogger("Repairer"),
	}
}

// SortViolations orders violations the way Repair processes them:
// DualArtifact first, then MissingMarker, then OrphanedCacheEntry, each
// shallowest first and by address within a depth.
func SortViolations(vs []alight.Violation) {
	slices.SortStableFunc(vs, func(x, y alight.Violation) int {
		return cmp.Or(
			cmp.Compare(x.Kind, y.Kind),
			cmp.Compare(x.Address.Depth(), y.Address.Depth()),
			address.Compare(x.Address, y.Address),
		)
	})
}

// Repair fixes every violation in vs. Each step re-inspects the backend and
// acts only if its violation still holds, so running Repair twice with the
// same input is the same as running it once.
func (r *Repairer) Repair(vs []alight.Violation, intents ...Intent) error {
	vs = slices.Clone(vs)
	SortViolations(vs)

	intended := make(map[address.Address]alight.Kind, len(intents))
	for _, in := range intents {
		intended[in.Address] = in.Kind
	}

	var removedDirs []address.Address
	underRemoved := func(a address.Address) bool {
		return slices.ContainsFunc(removedDirs, a.IsWithin)
	}

	for _, v := range vs {
		log := r.logger.With().Stringer("violation", v.Kind).Str("address", v.Address.String()).Logger()
		switch v.Kind {
		case alight.DualArtifact:
			if underRemoved(v.Address) {
				continue
			}
			st, err := r.backend.Stat(v.Address)
			if err != nil {
				return err
			}
			if !st.Dual() {
				continue
			}
			winner := r.dualWinner(v.Address, intended)
			loser := alight.ArtifactDirectory
			if winner == alight.Node {
				loser = alight.ArtifactFile
			}
			if err := r.backend.RemoveArtifact(v.Address, loser); err != nil {
				return fmt.Errorf("repair %s: %w", v, err)
			}
			if loser == alight.ArtifactDirectory {
				removedDirs = append(removedDirs, v.Address)
			}
			r.evict(v.Address)
			log.Warn().Stringer("kept", winner).Stringer("removed", loser).Msg("Resolved dual artifact")

		case alight.MissingMarker:
			if underRemoved(v.Address) {
				continue
			}
			st, err := r.backend.Stat(v.Address)
			if err != nil {
				return err
			}
			if st.Dir && st.Marker {
				continue
			}
			if !st.Dir && !v.Address.IsRoot() {
				// the directory is gone; nothing left to mark
				continue
			}
			if err := r.backend.EnsureContainer(v.Address); err != nil {
				return fmt.Errorf("repair %s: %w", v, err)
			}
			log.Warn().Msg("Restored node marker")

		case alight.OrphanedCacheEntry:
			r.evict(v.Address)
			log.Info().Msg("Evicted orphaned cache entry")

		default:
			return fmt.Errorf("cannot repair %s", v)
		}
	}
	return nil
}

// dualWinner picks the kind to keep: the caller's intent, then the settled
// cached kind, then the leaf.
func (r *Repairer) dualWinner(a address.Address, intended map[address.Address]alight.Kind) alight.Kind {
	if k, ok := intended[a]; ok && k != alight.Unresolved {
		return k
	}
	if r.cache != nil {
		if k, ok := r.cache.Lookup(a); ok && k != alight.Unresolved {
			return k
		}
	}
	return alight.Leaf
}

func (r *Repairer) evict(a address.Address) {
	if r.cache != nil && !a.IsRoot() {
		r.cache.Evict(a)
	}
}
