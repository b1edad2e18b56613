package backends

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
	"github.com/lumineer/alight/config"
	"github.com/lumineer/alight/internal/util"
)

// SnapshotVersion is written to every snapshot document.
const SnapshotVersion = 1

// SnapshotEntry is the persisted form of one position. Container and
// Content are independent flags so the document can express (and the
// checker can detect) the same dual state as the filesystem layout.
type SnapshotEntry struct {
	Container bool                      `json:"container,omitempty"`
	Marker    bool                      `json:"marker,omitempty"`
	Content   *string                   `json:"content,omitempty"`
	Children  map[string]*SnapshotEntry `json:"children,omitempty"`
}

// child returns the entry called name, adding an empty one if needed.
func (e *SnapshotEntry) child(name string) *SnapshotEntry {
	if c, ok := e.Children[name]; ok {
		return c
	}
	if e.Children == nil {
		e.Children = map[string]*SnapshotEntry{}
	}
	c := &SnapshotEntry{}
	e.Children[name] = c
	return c
}

func (e *SnapshotEntry) clone() *SnapshotEntry {
	if e == nil {
		return nil
	}
	c := &SnapshotEntry{Container: e.Container, Marker: e.Marker}
	if e.Content != nil {
		content := *e.Content
		c.Content = &content
	}
	if e.Children != nil {
		c.Children = make(map[string]*SnapshotEntry, len(e.Children))
		for name, child := range e.Children {
			c.Children[name] = child.clone()
		}
	}
	return c
}

// SnapshotDocument is the whole knowledge base as written to disk.
type SnapshotDocument struct {
	Version int            `json:"version"`
	Root    *SnapshotEntry `json:"root"`
}

// SnapshotBackend keeps the whole tree in one JSON document which is
// rewritten atomically after every mutation.
type SnapshotBackend struct {
	path      string
	dirPerms  os.FileMode
	filePerms os.FileMode
	root      *SnapshotEntry
	logger    util.Logger
}

var _ alight.Backend = (*SnapshotBackend)(nil)

// NewSnapshot loads <cfg.Root>/<cfg.SnapshotFile>, starting empty when the
// file does not exist yet.
func NewSnapshot(cfg *config.Config) (*SnapshotBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", cfg.Root, err)
	}
	b := &SnapshotBackend{
		path:      filepath.Join(root, cfg.SnapshotFile),
		dirPerms:  cfg.DirPerms,
		filePerms: cfg.FilePerms,
		root:      &SnapshotEntry{},
		logger:    util.GetLogger("SnapshotBackend"),
	}

	data, err := os.ReadFile(b.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		b.logger.Debug().Str("path", b.path).Msg("No snapshot yet; starting empty")
		return b, nil
	case err != nil:
		return nil, alight.IOError("read snapshot", address.Root(), err)
	}

	var doc SnapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, alight.IOError("decode snapshot", address.Root(), err)
	}
	if doc.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", alight.ErrIO, doc.Version)
	}
	if doc.Root != nil {
		b.root = doc.Root
	}
	return b, nil
}

// Path returns the snapshot file location.
func (b *SnapshotBackend) Path() string {
	return b.path
}

// lookup walks to a through container entries only, mirroring the fact that
// nothing can exist beneath a missing directory.
func (b *SnapshotBackend) lookup(a address.Address) *SnapshotEntry {
	return lookupIn(b.root, a)
}

func lookupIn(root *SnapshotEntry, a address.Address) *SnapshotEntry {
	cur := root
	for _, seg := range a.Segments() {
		if !cur.Container {
			return nil
		}
		next, ok := cur.Children[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// mutate applies fn to a copy of the document and adopts the copy only once
// it is persisted, so after a failed write memory still matches the file.
func (b *SnapshotBackend) mutate(op string, a address.Address, fn func(root *SnapshotEntry) bool) error {
	next := b.root.clone()
	if !fn(next) {
		return nil
	}
	if err := b.persistRoot(op, a, next); err != nil {
		return err
	}
	b.root = next
	return nil
}

func (b *SnapshotBackend) Stat(a address.Address) (alight.Artifacts, error) {
	e := b.lookup(a)
	if e == nil {
		return alight.Artifacts{}, nil
	}
	st := alight.Artifacts{Dir: e.Container, Marker: e.Container && e.Marker}
	if !a.IsRoot() {
		st.File = e.Content != nil
	}
	return st, nil
}

func (b *SnapshotBackend) ArtifactKind(a address.Address) (alight.ArtifactKind, error) {
	return artifactKind(b, a)
}

func (b *SnapshotBackend) EnsureContainer(a address.Address) error {
	// Check first so a conflict leaves the document untouched.
	for _, p := range a.Prefixes() {
		if e := b.lookup(p); e != nil && e.Content != nil {
			return fmt.Errorf("%w: leaf exists at %q", alight.ErrConflict, p)
		}
	}

	return b.mutate("ensure container", a, func(root *SnapshotEntry) bool {
		changed := false
		settle := func(e *SnapshotEntry) {
			if !e.Container || !e.Marker {
				e.Container, e.Marker = true, true
				changed = true
			}
		}
		cur := root
		settle(cur)
		for _, seg := range a.Segments() {
			cur = cur.child(seg)
			settle(cur)
		}
		return changed
	})
}

func (b *SnapshotBackend) WriteLeaf(a address.Address, content string) error {
	if a.IsRoot() {
		return fmt.Errorf("%w: the root is always a container", alight.ErrConflict)
	}
	if e := b.lookup(a); e != nil && e.Container {
		return fmt.Errorf("%w: node exists at %q", alight.ErrConflict, a)
	}
	if err := b.EnsureContainer(a.Parent()); err != nil {
		return err
	}
	return b.mutate("write leaf", a, func(root *SnapshotEntry) bool {
		lookupIn(root, a.Parent()).child(a.Name()).Content = &content
		return true
	})
}

func (b *SnapshotBackend) ReadLeaf(a address.Address) (string, error) {
	e := b.lookup(a)
	if a.IsRoot() || e == nil || e.Content == nil {
		return "", fmt.Errorf("%w: no leaf at %q", alight.ErrNotFound, a)
	}
	return *e.Content, nil
}

func (b *SnapshotBackend) ListChildren(a address.Address) ([]string, error) {
	e := b.lookup(a)
	if e == nil || !e.Container {
		return nil, fmt.Errorf("%w: no container at %q", alight.ErrNotFound, a)
	}
	names := make([]string, 0, len(e.Children))
	for name, child := range e.Children {
		if address.IsSegment(name) && (child.Container || child.Content != nil) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (b *SnapshotBackend) Remove(a address.Address) error {
	if a.IsRoot() {
		return fmt.Errorf("%w: cannot remove the root", alight.ErrInvalidAddress)
	}
	parent := b.lookup(a.Parent())
	if parent == nil || !parent.Container {
		return nil
	}
	if _, ok := parent.Children[a.Name()]; !ok {
		return nil
	}
	return b.mutate("remove", a, func(root *SnapshotEntry) bool {
		delete(lookupIn(root, a.Parent()).Children, a.Name())
		return true
	})
}

func (b *SnapshotBackend) RemoveArtifact(a address.Address, kind alight.ArtifactKind) error {
	if a.IsRoot() {
		return fmt.Errorf("%w: cannot remove the root", alight.ErrInvalidAddress)
	}
	e := b.lookup(a)
	if e == nil {
		return nil
	}
	switch kind {
	case alight.ArtifactFile:
		if e.Content == nil {
			return nil
		}
	case alight.ArtifactDirectory:
		if !e.Container {
			return nil
		}
	default:
		return fmt.Errorf("cannot remove artifact kind %s", kind)
	}

	return b.mutate("remove artifact", a, func(root *SnapshotEntry) bool {
		e := lookupIn(root, a)
		if kind == alight.ArtifactFile {
			e.Content = nil
		} else {
			e.Container, e.Marker, e.Children = false, false, nil
		}
		if !e.Container && e.Content == nil {
			delete(lookupIn(root, a.Parent()).Children, a.Name())
		}
		return true
	})
}

func (b *SnapshotBackend) Close() error {
	return nil
}

// persistRoot writes root to a temp file in the same directory and renames
// it over the snapshot.
func (b *SnapshotBackend) persistRoot(op string, a address.Address, root *SnapshotEntry) error {
	data, err := json.MarshalIndent(SnapshotDocument{Version: SnapshotVersion, Root: root}, "", "    ")
	if err != nil {
		return alight.IOError(op, a, err)
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, b.dirPerms); err != nil {
		return alight.IOError(op, a, err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return alight.IOError(op, a, err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr, os.Chmod(tmpName, b.filePerms)); err != nil {
		os.Remove(tmpName) // nolint:errcheck
		return alight.IOError(op, a, err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName) // nolint:errcheck
		return alight.IOError(op, a, err)
	}
	b.logger.Trace().Str("op", op).Str("address", a.String()).Msg("Snapshot persisted")
	return nil
}
