package alight

import "github.com/lumineer/alight/address"

// ArtifactKind is what a backend holds at a single address.
type ArtifactKind int

const (
	ArtifactNone ArtifactKind = iota
	ArtifactDirectory
	ArtifactFile
)

func (k ArtifactKind) String() string {
	switch k {
	case ArtifactDirectory:
		return "directory"
	case ArtifactFile:
		return "file"
	default:
		return "none"
	}
}

// Kind maps the artifact to the tree kind it materializes as.
func (k ArtifactKind) Kind() Kind {
	switch k {
	case ArtifactDirectory:
		return Node
	case ArtifactFile:
		return Leaf
	default:
		return Unresolved
	}
}

// Artifacts is the raw presence report for one address. Unlike
// [ArtifactKind] it can describe the invalid dual state.
type Artifacts struct {
	Dir    bool // a directory artifact exists
	File   bool // a file artifact exists
	Marker bool // the directory holds its node marker
}

// Dual reports whether both artifacts exist.
func (a Artifacts) Dual() bool {
	return a.Dir && a.File
}

// None reports whether neither artifact exists.
func (a Artifacts) None() bool {
	return !a.Dir && !a.File
}

// Kind collapses the report to a single [ArtifactKind].
// The dual state has no single kind and reports false.
func (a Artifacts) Kind() (ArtifactKind, bool) {
	switch {
	case a.Dual():
		return ArtifactNone, false
	case a.Dir:
		return ArtifactDirectory, true
	case a.File:
		return ArtifactFile, true
	default:
		return ArtifactNone, true
	}
}

// Backend maps addresses to persisted artifacts and performs all I/O.
// It is the single source of truth for what exists; every other component
// treats its answers as authoritative.
//
// Implementations are not required to be safe for concurrent use.
type Backend interface {
	// Stat reports which artifacts exist at a. Missing paths are not errors.
	Stat(a address.Address) (Artifacts, error)

	// ArtifactKind is Stat collapsed to one kind. Fails with
	// ErrIntegrity when both artifacts exist.
	ArtifactKind(a address.Address) (ArtifactKind, error)

	// EnsureContainer creates the directory at a, missing ancestors and all
	// their markers. Idempotent. Fails with ErrConflict when a file
	// artifact exists at a or at an ancestor.
	EnsureContainer(a address.Address) error

	// WriteLeaf creates or overwrites the file at a, ensuring its parent
	// container first. Fails with ErrConflict when a directory exists at a.
	WriteLeaf(a address.Address, content string) error

	// ReadLeaf returns the exact file content. Fails with ErrNotFound.
	ReadLeaf(a address.Address) (string, error)

	// ListChildren returns the sorted child names of the container at a,
	// excluding markers and foreign entries. Fails with ErrNotFound when a
	// is not a directory.
	ListChildren(a address.Address) ([]string, error)

	// Remove deletes the file and the directory subtree at a.
	// No-op when nothing exists. The root cannot be removed.
	Remove(a address.Address) error

	// RemoveArtifact deletes only the given artifact kind at a.
	RemoveArtifact(a address.Address, kind ArtifactKind) error

	// Close releases backend resources.
	Close() error
}
