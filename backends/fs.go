package backends

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
	"github.com/lumineer/alight/config"
	"github.com/lumineer/alight/internal/util"
)

// FSBackend materializes every position on the local filesystem.
//
// A container at a.b.c is the directory <root>/a/b/c holding the marker
// file; a leaf is the file <root>/a/b/c<leafExt>. Because the leaf carries
// an extension both artifacts can coexist, which is exactly the dual state
// the integrity checker looks for.
type FSBackend struct {
	root      string
	marker    string
	leafExt   string
	dirPerms  os.FileMode
	filePerms os.FileMode
	logger    util.Logger
}

var _ alight.Backend = (*FSBackend)(nil)

// NewFS returns a filesystem backend rooted at cfg.Root. The root directory
// itself is created by the first EnsureContainer on the root address.
func NewFS(cfg *config.Config) (*FSBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", cfg.Root, err)
	}
	return &FSBackend{
		root:      root,
		marker:    cfg.MarkerName,
		leafExt:   cfg.LeafExt,
		dirPerms:  cfg.DirPerms,
		filePerms: cfg.FilePerms,
		logger:    util.GetLogger("FSBackend"),
	}, nil
}

// Root returns the absolute backing directory.
func (b *FSBackend) Root() string {
	return b.root
}

// DirPath returns the directory artifact path for a.
func (b *FSBackend) DirPath(a address.Address) string {
	return filepath.Join(append([]string{b.root}, a.Segments()...)...)
}

// FilePath returns the file artifact path for a. The root has none.
func (b *FSBackend) FilePath(a address.Address) string {
	if a.IsRoot() {
		return ""
	}
	return b.DirPath(a) + b.leafExt
}

// MarkerPath returns the node marker path inside a's directory.
func (b *FSBackend) MarkerPath(a address.Address) string {
	return filepath.Join(b.DirPath(a), b.marker)
}

func (b *FSBackend) Stat(a address.Address) (alight.Artifacts, error) {
	var out alight.Artifacts

	fi, err := os.Lstat(b.DirPath(a))
	switch {
	case err == nil:
		out.Dir = fi.IsDir()
	case !isNotExist(err):
		return out, alight.IOError("stat", a, err)
	}

	if out.Dir {
		_, err := os.Lstat(b.MarkerPath(a))
		switch {
		case err == nil:
			out.Marker = true
		case !isNotExist(err):
			return out, alight.IOError("stat marker", a, err)
		}
	}

	if !a.IsRoot() {
		fi, err := os.Lstat(b.FilePath(a))
		switch {
		case err == nil:
			out.File = fi.Mode().IsRegular()
		case !isNotExist(err):
			return out, alight.IOError("stat", a, err)
		}
	}
	return out, nil
}

func (b *FSBackend) ArtifactKind(a address.Address) (alight.ArtifactKind, error) {
	return artifactKind(b, a)
}

func (b *FSBackend) EnsureContainer(a address.Address) error {
	for _, p := range append([]address.Address{address.Root()}, a.Prefixes()...) {
		st, err := b.Stat(p)
		if err != nil {
			return err
		}
		if st.File {
			return fmt.Errorf("%w: leaf exists at %q", alight.ErrConflict, p)
		}
		if !st.Dir {
			if err := os.Mkdir(b.DirPath(p), b.dirPerms); err != nil {
				// EEXIST here means a foreign non-directory occupies the path
				return alight.IOError("mkdir", p, err)
			}
			b.logger.Debug().Str("address", p.String()).Msg("Created container directory")
		}
		if !st.Marker {
			if err := os.WriteFile(b.MarkerPath(p), nil, b.filePerms); err != nil {
				return alight.IOError("write marker", p, err)
			}
		}
	}
	return nil
}

func (b *FSBackend) WriteLeaf(a address.Address, content string) error {
	if a.IsRoot() {
		return fmt.Errorf("%w: the root is always a container", alight.ErrConflict)
	}
	st, err := b.Stat(a)
	if err != nil {
		return err
	}
	if st.Dir {
		return fmt.Errorf("%w: node exists at %q", alight.ErrConflict, a)
	}
	if err := b.EnsureContainer(a.Parent()); err != nil {
		return err
	}

	// Write next to the target and rename so readers never see a torn leaf.
	// The temp name starts with '.' so listings never mistake it for a child.
	tmp, err := os.CreateTemp(b.DirPath(a.Parent()), ".leaf-*")
	if err != nil {
		return alight.IOError("create temp", a, err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.WriteString(content)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr, os.Chmod(tmpName, b.filePerms)); err != nil {
		os.Remove(tmpName) // nolint:errcheck
		return alight.IOError("write leaf", a, err)
	}
	if err := os.Rename(tmpName, b.FilePath(a)); err != nil {
		os.Remove(tmpName) // nolint:errcheck
		return alight.IOError("rename leaf", a, err)
	}
	b.logger.Debug().Str("address", a.String()).Int("bytes", len(content)).Msg("Wrote leaf")
	return nil
}

func (b *FSBackend) ReadLeaf(a address.Address) (string, error) {
	if a.IsRoot() {
		return "", fmt.Errorf("%w: no leaf at root", alight.ErrNotFound)
	}
	data, err := os.ReadFile(b.FilePath(a))
	if err != nil {
		if isNotExist(err) {
			return "", fmt.Errorf("%w: no leaf at %q", alight.ErrNotFound, a)
		}
		return "", alight.IOError("read leaf", a, err)
	}
	return string(data), nil
}

func (b *FSBackend) ListChildren(a address.Address) ([]string, error) {
	entries, err := os.ReadDir(b.DirPath(a))
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: no container at %q", alight.ErrNotFound, a)
		}
		return nil, alight.IOError("list", a, err)
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == b.marker {
			continue
		}
		switch {
		case e.IsDir():
			if address.IsSegment(name) {
				seen[name] = struct{}{}
			}
		case e.Type().IsRegular():
			if stem, ok := strings.CutSuffix(name, b.leafExt); ok && address.IsSegment(stem) {
				seen[stem] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (b *FSBackend) Remove(a address.Address) error {
	if a.IsRoot() {
		return fmt.Errorf("%w: cannot remove the root", alight.ErrInvalidAddress)
	}
	return errors.Join(
		b.RemoveArtifact(a, alight.ArtifactFile),
		b.RemoveArtifact(a, alight.ArtifactDirectory),
	)
}

func (b *FSBackend) RemoveArtifact(a address.Address, kind alight.ArtifactKind) error {
	if a.IsRoot() {
		return fmt.Errorf("%w: cannot remove the root", alight.ErrInvalidAddress)
	}
	st, err := b.Stat(a)
	if err != nil {
		return err
	}
	switch kind {
	case alight.ArtifactFile:
		if !st.File {
			return nil
		}
		if err := os.Remove(b.FilePath(a)); err != nil && !isNotExist(err) {
			return alight.IOError("remove leaf", a, err)
		}
	case alight.ArtifactDirectory:
		if !st.Dir {
			return nil
		}
		if err := os.RemoveAll(b.DirPath(a)); err != nil {
			return alight.IOError("remove container", a, err)
		}
	default:
		return fmt.Errorf("cannot remove artifact kind %s", kind)
	}
	b.logger.Debug().Str("address", a.String()).Stringer("artifact", kind).Msg("Removed artifact")
	return nil
}

func (b *FSBackend) Close() error {
	return nil
}

// artifactKind collapses Stat, refusing the dual state.
func artifactKind(b alight.Backend, a address.Address) (alight.ArtifactKind, error) {
	st, err := b.Stat(a)
	if err != nil {
		return alight.ArtifactNone, err
	}
	k, ok := st.Kind()
	if !ok {
		return alight.ArtifactNone, fmt.Errorf("%w: both file and directory exist at %q", alight.ErrIntegrity, a)
	}
	return k, nil
}

// isNotExist also treats ENOTDIR as absence: a path below a non-directory
// cannot exist.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
