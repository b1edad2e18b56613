package integrity

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
	"github.com/lumineer/alight/backends"
	"github.com/lumineer/alight/config"
	"github.com/lumineer/alight/internal/mocks"
)

// mapCache is a flat stand-in for a tree's child cache.
type mapCache map[address.Address]alight.Kind

func (m mapCache) Entries() []CacheEntry {
	out := make([]CacheEntry, 0, len(m))
	for a, k := range m {
		out = append(out, CacheEntry{Address: a, Kind: k})
	}
	return out
}

func (m mapCache) Lookup(a address.Address) (alight.Kind, bool) {
	k, ok := m[a]
	return k, ok
}

func (m mapCache) Evict(a address.Address) {
	for cached := range m {
		if cached.IsWithin(a) {
			delete(m, cached)
		}
	}
}

func newFS(t *testing.T) *backends.FSBackend {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Root = t.TempDir()
	b, err := backends.NewFS(cfg)
	require.NoError(t, err)
	require.NoError(t, b.EnsureContainer(address.Root()))
	return b
}

// makeDual writes a directory with marker plus a leaf file at a.
func makeDual(t *testing.T, b *backends.FSBackend, a address.Address) {
	t.Helper()
	require.NoError(t, b.EnsureContainer(a))
	require.NoError(t, os.WriteFile(b.FilePath(a), []byte("leaf text"), 0o644))
}

func mustVerify(t *testing.T, c *Checker) []alight.Violation {
	t.Helper()
	vs, err := c.Verify(address.Root())
	require.NoError(t, err)
	return vs
}

func TestVerify_Consistent(t *testing.T) {
	t.Parallel()
	b := newFS(t)
	require.NoError(t, b.WriteLeaf(address.MustParse("science.biology.cell_theory"), "cells"))
	require.NoError(t, b.EnsureContainer(address.MustParse("science.physics")))
	cache := mapCache{
		address.MustParse("science"):                     alight.Node,
		address.MustParse("science.biology"):             alight.Node,
		address.MustParse("science.biology.cell_theory"): alight.Leaf,
		address.MustParse("science.physics"):             alight.Unresolved,
	}

	assert.Empty(t, mustVerify(t, NewChecker(b, cache)))
}

func TestVerify_RootMissing(t *testing.T) {
	t.Parallel()
	cfg := config.NewDefaultConfig()
	cfg.Root = t.TempDir() + "/kb"
	b, err := backends.NewFS(cfg)
	require.NoError(t, err)

	vs := mustVerify(t, NewChecker(b, nil))
	require.Len(t, vs, 1)
	assert.Equal(t, alight.MissingMarker, vs[0].Kind)
	assert.True(t, vs[0].Address.IsRoot())

	require.NoError(t, NewRepairer(b, nil).Repair(vs))
	assert.DirExists(t, cfg.Root)
	assert.Empty(t, mustVerify(t, NewChecker(b, nil)))
}

func TestVerify_ReportsInPreOrder(t *testing.T) {
	t.Parallel()
	b := newFS(t)
	require.NoError(t, b.EnsureContainer(address.MustParse("a.b")))
	require.NoError(t, os.Remove(b.MarkerPath(address.MustParse("a.b"))))
	makeDual(t, b, address.MustParse("a"))
	makeDual(t, b, address.MustParse("c"))
	cache := mapCache{address.MustParse("gone"): alight.Leaf}

	want := []alight.Violation{
		{Kind: alight.DualArtifact, Address: address.MustParse("a"), Detail: "both file and directory exist"},
		{Kind: alight.MissingMarker, Address: address.MustParse("a.b"), Detail: "directory has no node marker"},
		{Kind: alight.DualArtifact, Address: address.MustParse("c"), Detail: "both file and directory exist"},
		{Kind: alight.OrphanedCacheEntry, Address: address.MustParse("gone"), Detail: "cached leaf has no artifact"},
	}
	got := mustVerify(t, NewChecker(b, cache))
	if diff := cmp.Diff(want, got, cmp.Comparer(func(x, y address.Address) bool { return x == y })); diff != "" {
		t.Errorf("Verify mismatch (-want +got):\n%s", diff)
	}
}

func TestVerify_OrphanedCacheEntries(t *testing.T) {
	t.Parallel()
	b := newFS(t)
	require.NoError(t, b.WriteLeaf(address.MustParse("topic.note"), "n"))
	makeDual(t, b, address.MustParse("topic.dual"))
	cache := mapCache{
		address.MustParse("topic"):       alight.Leaf,       // wrong kind
		address.MustParse("topic.note"):  alight.Leaf,       // fine
		address.MustParse("topic.dual"):  alight.Node,       // covered by the dual report
		address.MustParse("topic.stale"): alight.Unresolved, // nothing exists
	}

	var orphans []string
	for _, v := range mustVerify(t, NewChecker(b, cache)) {
		if v.Kind == alight.OrphanedCacheEntry {
			orphans = append(orphans, v.Address.String())
		}
	}
	assert.Equal(t, []string{"topic", "topic.stale"}, orphans)
}

func TestVerify_IgnoresForeignEntries(t *testing.T) {
	t.Parallel()
	b := newFS(t)
	require.NoError(t, b.EnsureContainer(address.MustParse("topic")))
	dir := b.DirPath(address.MustParse("topic"))
	require.NoError(t, os.WriteFile(dir+"/scratch.txt", []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(dir+"/.git", 0o755))

	assert.Empty(t, mustVerify(t, NewChecker(b, nil)))
}

func TestVerify_BackendError(t *testing.T) {
	t.Parallel()
	mb := &mocks.MockBackend{}
	mb.On("Stat", address.Root()).Return(alight.Artifacts{}, alight.ErrIO)

	_, err := NewChecker(mb, nil).Verify(address.Root())
	assert.ErrorIs(t, err, alight.ErrIO)
	mb.AssertExpectations(t)
}

func TestRepair_DualLeafWinsByDefault(t *testing.T) {
	t.Parallel()
	b := newFS(t)
	a := address.MustParse("science.biology.cell_theory")
	require.NoError(t, b.WriteLeaf(address.MustParse("science.biology.cell_theory.hidden"), "h"))
	makeDual(t, b, a)
	cache := mapCache{a: alight.Unresolved, a.Join(address.MustParse("hidden")): alight.Leaf}
	c, r := NewChecker(b, cache), NewRepairer(b, cache)

	vs := mustVerify(t, c)
	require.NoError(t, r.Repair(vs))

	st, err := b.Stat(a)
	require.NoError(t, err)
	assert.Equal(t, alight.Artifacts{File: true}, st)
	got, err := b.ReadLeaf(a)
	require.NoError(t, err)
	assert.Equal(t, "leaf text", got)
	assert.Empty(t, cache, "dual address and its cached subtree are evicted")
	assert.Empty(t, mustVerify(t, c))
}

func TestRepair_DualCachedKindWins(t *testing.T) {
	t.Parallel()
	b := newFS(t)
	a := address.MustParse("topic")
	makeDual(t, b, a)
	cache := mapCache{a: alight.Node}

	require.NoError(t, NewRepairer(b, cache).Repair(mustVerify(t, NewChecker(b, cache))))

	st, err := b.Stat(a)
	require.NoError(t, err)
	assert.Equal(t, alight.Artifacts{Dir: true, Marker: true}, st)
	assert.Empty(t, mustVerify(t, NewChecker(b, cache)))
}

func TestRepair_DualIntentWins(t *testing.T) {
	t.Parallel()
	b := newFS(t)
	a := address.MustParse("topic")
	makeDual(t, b, a)
	cache := mapCache{a: alight.Leaf}

	vs := mustVerify(t, NewChecker(b, cache))
	require.NoError(t, NewRepairer(b, cache).Repair(vs, Intent{Address: a, Kind: alight.Node}))

	kind, err := b.ArtifactKind(a)
	require.NoError(t, err)
	assert.Equal(t, alight.ArtifactDirectory, kind)
}

func TestRepair_MissingMarker(t *testing.T) {
	t.Parallel()
	b := newFS(t)
	require.NoError(t, b.WriteLeaf(address.MustParse("a.b.leaf"), "keep me"))
	require.NoError(t, os.Remove(b.MarkerPath(address.MustParse("a"))))
	require.NoError(t, os.Remove(b.MarkerPath(address.MustParse("a.b"))))
	require.NoError(t, os.Remove(b.MarkerPath(address.Root())))

	c, r := NewChecker(b, nil), NewRepairer(b, nil)
	vs := mustVerify(t, c)
	require.Len(t, vs, 3)
	require.NoError(t, r.Repair(vs))

	assert.Empty(t, mustVerify(t, c))
	got, err := b.ReadLeaf(address.MustParse("a.b.leaf"))
	require.NoError(t, err)
	assert.Equal(t, "keep me", got)
}

func TestRepair_MarkerSkippedUnderRemovedDirectory(t *testing.T) {
	t.Parallel()
	b := newFS(t)
	require.NoError(t, b.EnsureContainer(address.MustParse("a.b")))
	require.NoError(t, os.Remove(b.MarkerPath(address.MustParse("a.b"))))
	makeDual(t, b, address.MustParse("a"))

	c, r := NewChecker(b, nil), NewRepairer(b, nil)
	require.NoError(t, r.Repair(mustVerify(t, c)))

	st, err := b.Stat(address.MustParse("a.b"))
	require.NoError(t, err)
	assert.True(t, st.None())
	assert.Empty(t, mustVerify(t, c))
}

func TestRepair_Idempotent(t *testing.T) {
	t.Parallel()
	b := newFS(t)
	makeDual(t, b, address.MustParse("x"))
	require.NoError(t, b.EnsureContainer(address.MustParse("y")))
	require.NoError(t, os.Remove(b.MarkerPath(address.MustParse("y"))))
	cache := mapCache{address.MustParse("z"): alight.Node}

	c, r := NewChecker(b, cache), NewRepairer(b, cache)
	vs := mustVerify(t, c)
	require.NoError(t, r.Repair(vs))
	after := snapshotTree(t, b)

	require.NoError(t, r.Repair(vs))
	if diff := cmp.Diff(after, snapshotTree(t, b)); diff != "" {
		t.Errorf("second repair changed state (-first +second):\n%s", diff)
	}
	assert.Empty(t, mustVerify(t, c))
}

func TestRepair_Deterministic(t *testing.T) {
	t.Parallel()
	vs := []alight.Violation{
		{Kind: alight.OrphanedCacheEntry, Address: address.MustParse("a")},
		{Kind: alight.MissingMarker, Address: address.MustParse("b.c")},
		{Kind: alight.DualArtifact, Address: address.MustParse("z.y")},
		{Kind: alight.MissingMarker, Address: address.MustParse("a")},
		{Kind: alight.DualArtifact, Address: address.MustParse("m")},
	}
	SortViolations(vs)

	var got []string
	for _, v := range vs {
		got = append(got, v.String())
	}
	assert.Equal(t, []string{
		"DualArtifact at m",
		"DualArtifact at z.y",
		"MissingMarker at a",
		"MissingMarker at b.c",
		"OrphanedCacheEntry at a",
	}, got)
}

func TestRepair_BackendFailure(t *testing.T) {
	t.Parallel()
	a := address.MustParse("topic")
	mb := &mocks.MockBackend{}
	mb.On("Stat", a).Return(alight.Artifacts{Dir: true, File: true, Marker: true}, nil)
	mb.On("RemoveArtifact", a, mock.Anything).Return(alight.ErrIO)

	err := NewRepairer(mb, nil).Repair([]alight.Violation{{Kind: alight.DualArtifact, Address: a}})
	assert.ErrorIs(t, err, alight.ErrIO)
	mb.AssertCalled(t, "RemoveArtifact", a, alight.ArtifactDirectory)
}

// snapshotTree lists every backend position with its artifacts.
func snapshotTree(t *testing.T, b alight.Backend) map[string]alight.Artifacts {
	t.Helper()
	out := map[string]alight.Artifacts{}
	var walk func(a address.Address)
	walk = func(a address.Address) {
		st, err := b.Stat(a)
		require.NoError(t, err)
		out[a.String()] = st
		if !st.Dir {
			return
		}
		names, err := b.ListChildren(a)
		require.NoError(t, err)
		for _, n := range names {
			child, err := a.Child(n)
			require.NoError(t, err)
			walk(child)
		}
	}
	walk(address.Root())
	return out
}
