// Package alight contains the core domain types and interfaces shared by the
// Alight namespace tree: node kinds, backend artifacts, violations and errors.
package alight

import (
	"fmt"

	"github.com/lumineer/alight/address"
)

// Kind is the settled state of a tree position.
type Kind int

const (
	// Unresolved positions have not been settled against the backend yet
	Unresolved Kind = iota
	// Node positions are containers backed by a directory
	Node
	// Leaf positions hold text content backed by a file
	Leaf
)

func (k Kind) String() string {
	switch k {
	case Node:
		return "node"
	case Leaf:
		return "leaf"
	default:
		return "unresolved"
	}
}

// NodeView is a read-only snapshot of a resolved position.
type NodeView struct {
	Address address.Address
	Kind    Kind
	Content string // Only meaningful when Kind == Leaf
}

// Entry is one child listed by a container read.
type Entry struct {
	Name    string
	Kind    Kind
	Content string // Only meaningful when Kind == Leaf
}

func (e Entry) String() string {
	if e.Kind == Leaf {
		return fmt.Sprintf("%s (leaf, %d bytes)", e.Name, len(e.Content))
	}
	return fmt.Sprintf("%s (%s)", e.Name, e.Kind)
}
