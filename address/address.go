// Package address implements the dotted path values that identify positions
// in an Alight namespace tree, e.g. "science.biology.cell_theory".
package address

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins segments in the string form of an [Address].
const Separator = "."

// ErrInvalid is returned for empty segments or segments containing
// characters outside [A-Za-z0-9_].
var ErrInvalid = errors.New("invalid address")

// Address is an immutable dotted path. The zero value is the root.
// Addresses are comparable with == and usable as map keys.
type Address struct {
	path string // canonical dotted form; "" for root
}

// Root returns the root address.
func Root() Address {
	return Address{}
}

// Parse validates s and returns its Address. The empty string is the root.
func Parse(s string) (Address, error) {
	if s == "" {
		return Root(), nil
	}
	for _, seg := range strings.Split(s, Separator) {
		if err := ValidateSegment(seg); err != nil {
			return Address{}, fmt.Errorf("%w %q: %w", ErrInvalid, s, err)
		}
	}
	return Address{path: s}, nil
}

// MustParse is like [Parse] but panics on error. Intended for tests and constants.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ValidateSegment reports whether name is a single valid segment.
func ValidateSegment(name string) error {
	if name == "" {
		return errors.New("empty segment")
	}
	for _, r := range name {
		if !isSegmentRune(r) {
			return fmt.Errorf("segment %q contains %q", name, r)
		}
	}
	return nil
}

// IsSegment is a convenience boolean form of [ValidateSegment].
func IsSegment(name string) bool {
	return ValidateSegment(name) == nil
}

func isSegmentRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// String returns the dotted form; "" for root.
func (a Address) String() string {
	return a.path
}

// IsRoot reports whether a is the root address.
func (a Address) IsRoot() bool {
	return a.path == ""
}

// Segments returns a fresh copy of the segment list. Root has none.
func (a Address) Segments() []string {
	if a.IsRoot() {
		return nil
	}
	return strings.Split(a.path, Separator)
}

// Depth is the number of segments.
func (a Address) Depth() int {
	if a.IsRoot() {
		return 0
	}
	return strings.Count(a.path, Separator) + 1
}

// Name returns the last segment, or "" for root.
func (a Address) Name() string {
	if i := strings.LastIndex(a.path, Separator); i >= 0 {
		return a.path[i+1:]
	}
	return a.path
}

// Parent strips the last segment. The parent of root is root.
func (a Address) Parent() Address {
	if i := strings.LastIndex(a.path, Separator); i >= 0 {
		return Address{path: a.path[:i]}
	}
	return Root()
}

// Child appends a single validated segment.
func (a Address) Child(name string) (Address, error) {
	if err := ValidateSegment(name); err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return a.appendPath(name), nil
}

// Join appends every segment of rel.
func (a Address) Join(rel Address) Address {
	return a.appendPath(rel.path)
}

func (a Address) appendPath(p string) Address {
	switch {
	case p == "":
		return a
	case a.IsRoot():
		return Address{path: p}
	default:
		return Address{path: a.path + Separator + p}
	}
}

// IsWithin reports whether a equals ancestor or lies beneath it.
func (a Address) IsWithin(ancestor Address) bool {
	if ancestor.IsRoot() || a == ancestor {
		return true
	}
	return strings.HasPrefix(a.path, ancestor.path+Separator)
}

// Prefixes returns every ancestor of a from the first segment down to a
// itself, excluding the root.
func (a Address) Prefixes() []Address {
	segs := a.Segments()
	out := make([]Address, 0, len(segs))
	cur := Root()
	for _, s := range segs {
		cur = cur.appendPath(s)
		out = append(out, cur)
	}
	return out
}

// Compare orders addresses segment by segment, parents before children.
// It returns -1, 0 or +1 and is suitable for slices.SortFunc.
func Compare(a, b Address) int {
	as, bs := a.Segments(), b.Segments()
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := strings.Compare(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}
