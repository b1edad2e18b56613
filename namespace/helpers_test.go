package namespace

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
	"github.com/lumineer/alight/backends"
	"github.com/lumineer/alight/config"
)

var backendTypes = []string{backends.FSBackendType, backends.SnapshotBackendType}

func newTestConfig(t *testing.T, backendType string) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Root = t.TempDir()
	cfg.Backend = backendType
	return cfg
}

func openTree(t *testing.T, cfg *config.Config) *Tree {
	t.Helper()
	tree, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { tree.Close() }) // nolint:errcheck
	return tree
}

// forEachBackend runs fn against a fresh tree for every built-in backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, cfg *config.Config, tree *Tree)) {
	for _, bt := range backendTypes {
		t.Run(bt, func(t *testing.T) {
			t.Parallel()
			cfg := newTestConfig(t, bt)
			fn(t, cfg, openTree(t, cfg))
		})
	}
}

// corruptDual adds a container artifact next to the existing leaf at a,
// behind the backend's back. The tree must be reopened to see it.
func corruptDual(t *testing.T, cfg *config.Config, a address.Address) {
	t.Helper()
	switch cfg.Backend {
	case backends.FSBackendType:
		b, err := backends.NewFS(cfg)
		require.NoError(t, err)
		require.NoError(t, os.Mkdir(b.DirPath(a), 0o755))
		require.NoError(t, os.WriteFile(b.MarkerPath(a), nil, 0o644))
		require.NoError(t, os.WriteFile(b.DirPath(a)+"/stray"+cfg.LeafExt, []byte("stray"), 0o644))
	case backends.SnapshotBackendType:
		editSnapshot(t, cfg, func(root *backends.SnapshotEntry) {
			e := snapshotEntry(t, root, a)
			stray := "stray"
			e.Container, e.Marker = true, true
			e.Children = map[string]*backends.SnapshotEntry{"stray": {Content: &stray}}
		})
	default:
		t.Fatalf("no corruption for backend %q", cfg.Backend)
	}
}

// dropMarker removes the node marker of the container at a.
func dropMarker(t *testing.T, cfg *config.Config, a address.Address) {
	t.Helper()
	switch cfg.Backend {
	case backends.FSBackendType:
		b, err := backends.NewFS(cfg)
		require.NoError(t, err)
		require.NoError(t, os.Remove(b.MarkerPath(a)))
	case backends.SnapshotBackendType:
		editSnapshot(t, cfg, func(root *backends.SnapshotEntry) {
			snapshotEntry(t, root, a).Marker = false
		})
	}
}

func editSnapshot(t *testing.T, cfg *config.Config, edit func(root *backends.SnapshotEntry)) {
	t.Helper()
	b, err := backends.NewSnapshot(cfg)
	require.NoError(t, err)
	data, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	var doc backends.SnapshotDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	edit(doc.Root)
	data, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(b.Path(), data, 0o644))
}

func snapshotEntry(t *testing.T, root *backends.SnapshotEntry, a address.Address) *backends.SnapshotEntry {
	t.Helper()
	cur := root
	for _, seg := range a.Segments() {
		next, ok := cur.Children[seg]
		require.True(t, ok, "no snapshot entry for %q", a)
		cur = next
	}
	return cur
}

// failingBackend wraps a real backend and fails writes for chosen addresses.
type failingBackend struct {
	alight.Backend
	failWrites map[address.Address]bool
}

var errDiskFull = errors.New("disk full")

func (f *failingBackend) WriteLeaf(a address.Address, content string) error {
	if f.failWrites[a] {
		return alight.IOError("write leaf", a, errDiskFull)
	}
	return f.Backend.WriteLeaf(a, content)
}

func (f *failingBackend) EnsureContainer(a address.Address) error {
	if f.failWrites[a] {
		return alight.IOError("mkdir", a, errDiskFull)
	}
	return f.Backend.EnsureContainer(a)
}

func addr(s string) address.Address {
	return address.MustParse(s)
}
