package alight

import (
	"fmt"

	"github.com/lumineer/alight/address"
)

// ViolationKind classifies an integrity violation.
type ViolationKind int

const (
	// DualArtifact means both a file and a directory exist at one address
	DualArtifact ViolationKind = iota + 1
	// MissingMarker means a directory lacks its node marker
	MissingMarker
	// OrphanedCacheEntry means a cached position no longer matches the backend
	OrphanedCacheEntry
)

func (k ViolationKind) String() string {
	switch k {
	case DualArtifact:
		return "DualArtifact"
	case MissingMarker:
		return "MissingMarker"
	case OrphanedCacheEntry:
		return "OrphanedCacheEntry"
	default:
		return fmt.Sprintf("ViolationKind(%d)", int(k))
	}
}

// Violation is one detected inconsistency.
type Violation struct {
	Kind    ViolationKind
	Address address.Address
	Detail  string
}

func (v Violation) String() string {
	a := v.Address.String()
	if a == "" {
		a = "<root>"
	}
	if v.Detail == "" {
		return fmt.Sprintf("%s at %s", v.Kind, a)
	}
	return fmt.Sprintf("%s at %s: %s", v.Kind, a, v.Detail)
}
