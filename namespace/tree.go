// Package namespace implements the addressable node tree of a knowledge base:
// lazily materialized nodes and leaves over a persistence backend, kept
// consistent by an integrity check after every mutation.
package namespace

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
	"github.com/lumineer/alight/backends"
	"github.com/lumineer/alight/config"
	"github.com/lumineer/alight/integrity"
	"github.com/lumineer/alight/internal/util"
)

// Tree is one open knowledge base. It owns the root node, the backend and an
// address-keyed index of every cached node.
//
// A Tree is not safe for concurrent use.
type Tree struct {
	cfg      *config.Config
	backend  alight.Backend
	root     *Node
	index    *xsync.Map[address.Address, *Node] // every cached node except root
	checker  *integrity.Checker
	repairer *integrity.Repairer
	session  uuid.UUID
	logger   util.Logger
}

// Open builds the backend selected by cfg and opens a tree over it.
func Open(cfg *config.Config) (*Tree, error) {
	backends.RegisterBuiltins()
	b, err := backends.New(cfg)
	if err != nil {
		return nil, err
	}
	t, err := New(b, cfg)
	if err != nil {
		b.Close() // nolint:errcheck
		return nil, err
	}
	return t, nil
}

// New opens a tree over an existing backend, creating the root container
// if needed.
func New(b alight.Backend, cfg *config.Config) (*Tree, error) {
	session := uuid.New()
	t := &Tree{
		cfg:     cfg,
		backend: b,
		index:   xsync.NewMap[address.Address, *Node](),
		session: session,
		logger:  util.GetLogger("Tree").With().Str("session", session.String()).Logger(),
	}
	t.root = newNode(t, nil, address.Root(), alight.Node)
	t.checker = integrity.NewChecker(b, t)
	t.repairer = integrity.NewRepairer(b, t)

	if err := b.EnsureContainer(address.Root()); err != nil {
		return nil, fmt.Errorf("initialize root: %w", err)
	}
	t.logger.Info().Str("backend", cfg.Backend).Str("root", cfg.Root).Msg("Opened knowledge base")
	return t, nil
}

// Session returns the id tagging this tree's log output.
func (t *Tree) Session() uuid.UUID {
	return t.session
}

// Config returns the configuration the tree was opened with.
func (t *Tree) Config() *config.Config {
	return t.cfg
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Close drops the cache and closes the backend.
func (t *Tree) Close() error {
	t.root.children.Clear()
	t.index.Clear()
	t.logger.Info().Msg("Closed knowledge base")
	return t.backend.Close()
}

// navigate walks from the root to a. Intermediate containers are created
// when create is set.
func (t *Tree) navigate(a address.Address, create bool) (*Node, error) {
	cur := t.root
	for _, seg := range a.Segments() {
		next, err := cur.ResolveChild(seg, create)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// navigateContainer is navigate that also requires the target to be a node.
func (t *Tree) navigateContainer(a address.Address, create bool) (*Node, error) {
	n, err := t.navigate(a, create)
	if err != nil {
		return nil, err
	}
	if err := n.requireContainer(); err != nil {
		return nil, err
	}
	return n, nil
}

// containerIntents marks every prefix of a (root excluded) as a node.
func containerIntents(a address.Address) []integrity.Intent {
	prefixes := a.Prefixes()
	out := make([]integrity.Intent, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, integrity.Intent{Address: p, Kind: alight.Node})
	}
	return out
}

// run executes fn. On ErrIntegrity it repairs and retries fn once. After a
// mutation the tree is verified and repaired, with intents deciding any
// dual artifact the mutation left behind.
func (t *Tree) run(op string, mutating bool, intents []integrity.Intent, fn func() error) error {
	err := fn()
	if err != nil && errors.Is(err, alight.ErrIntegrity) && t.cfg.AutoRepair {
		t.logger.Warn().Err(err).Str("op", op).Msg("Integrity violation; repairing before retry")
		if _, rerr := t.checkAndRepair(intents...); rerr != nil {
			return errors.Join(err, rerr)
		}
		err = fn()
	}

	if mutating && t.cfg.AutoRepair && !isCallerError(err) {
		if _, rerr := t.checkAndRepair(intents...); rerr != nil {
			if err != nil {
				t.logger.Error().Err(rerr).Str("op", op).Msg("Repair after failed operation also failed")
				return err
			}
			return rerr
		}
	}
	if err != nil {
		t.logger.Debug().Err(err).Str("op", op).Msg("Operation failed")
	}
	return err
}

// isCallerError reports errors that are rejected before anything is written.
func isCallerError(err error) bool {
	return errors.Is(err, alight.ErrConflict) ||
		errors.Is(err, alight.ErrNotFound) ||
		errors.Is(err, alight.ErrInvalidAddress)
}

// checkAndRepair verifies the whole tree and repairs what it finds.
// Violations that survive repair are escalated as ErrIO.
func (t *Tree) checkAndRepair(intents ...integrity.Intent) ([]alight.Violation, error) {
	vs, err := t.checker.Verify(address.Root())
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, nil
	}
	for _, v := range vs {
		t.logger.Warn().Stringer("violation", v.Kind).Str("address", v.Address.String()).Str("detail", v.Detail).Msg("Integrity violation found")
	}

	if err := t.repairer.Repair(vs, intents...); err != nil {
		return vs, fmt.Errorf("%w: repair failed: %w", alight.ErrIO, err)
	}
	remaining, err := t.checker.Verify(address.Root())
	if err != nil {
		return vs, err
	}
	if len(remaining) > 0 {
		return vs, fmt.Errorf("%w: %d violation(s) remain after repair, first: %s", alight.ErrIO, len(remaining), remaining[0])
	}
	t.logger.Info().Int("repaired", len(vs)).Msg("Repaired knowledge base")
	return vs, nil
}

// Resolve navigates to a and returns its view. With createIfAbsent every
// missing position on the way, a included, is created as a node.
func (t *Tree) Resolve(a address.Address, createIfAbsent bool) (alight.NodeView, error) {
	var v alight.NodeView
	var intents []integrity.Intent
	if createIfAbsent {
		intents = containerIntents(a.Parent())
	}
	err := t.run("resolve", createIfAbsent, intents, func() error {
		n, err := t.navigate(a, createIfAbsent)
		if err != nil {
			return err
		}
		v, err = n.View()
		return err
	})
	return v, err
}

// target joins a possibly dotted name onto parent.
func target(parent address.Address, name string) (address.Address, error) {
	rel, err := address.Parse(name)
	if err != nil {
		return address.Address{}, err
	}
	if rel.IsRoot() {
		return address.Address{}, fmt.Errorf("%w: empty name", alight.ErrInvalidAddress)
	}
	return parent.Join(rel), nil
}

// CreateNode creates a node named name under parent. A dotted name creates
// the missing intermediates as nodes; parent itself is created as well.
func (t *Tree) CreateNode(parent address.Address, name string) (alight.NodeView, error) {
	a, err := target(parent, name)
	if err != nil {
		return alight.NodeView{}, err
	}
	var v alight.NodeView
	err = t.run("create node", true, containerIntents(a), func() error {
		p, err := t.navigateContainer(a.Parent(), true)
		if err != nil {
			return err
		}
		n, err := p.CreateNode(a.Name())
		if err != nil {
			return err
		}
		v, err = n.View()
		return err
	})
	return v, err
}

// CreateLeaf creates a leaf named name under parent holding content.
// Intermediates are created as for CreateNode.
func (t *Tree) CreateLeaf(parent address.Address, name, content string) (alight.NodeView, error) {
	a, err := target(parent, name)
	if err != nil {
		return alight.NodeView{}, err
	}
	intents := append(containerIntents(a.Parent()), integrity.Intent{Address: a, Kind: alight.Leaf})
	var v alight.NodeView
	err = t.run("create leaf", true, intents, func() error {
		p, err := t.navigateContainer(a.Parent(), true)
		if err != nil {
			return err
		}
		n, err := p.CreateLeaf(a.Name(), content)
		if err != nil {
			return err
		}
		v, err = n.View()
		return err
	})
	return v, err
}

// Read lists the children of the node at a.
func (t *Tree) Read(a address.Address) ([]alight.Entry, error) {
	var entries []alight.Entry
	err := t.run("read", false, nil, func() error {
		n, err := t.navigate(a, false)
		if err != nil {
			return err
		}
		entries, err = n.Read()
		return err
	})
	return entries, err
}

// ReadLeaf returns the content of the leaf at a.
func (t *Tree) ReadLeaf(a address.Address) (string, error) {
	var content string
	err := t.run("read leaf", false, nil, func() error {
		n, err := t.navigate(a, false)
		if err != nil {
			return err
		}
		content, err = n.Content()
		return err
	})
	return content, err
}

// UpdateLeaf replaces the content of the existing leaf at a.
func (t *Tree) UpdateLeaf(a address.Address, content string) error {
	if a.IsRoot() {
		return fmt.Errorf("%w: the root is not a leaf", alight.ErrNotFound)
	}
	intents := []integrity.Intent{{Address: a, Kind: alight.Leaf}}
	return t.run("update leaf", true, intents, func() error {
		p, err := t.navigateContainer(a.Parent(), false)
		if err != nil {
			return err
		}
		return p.UpdateLeaf(a.Name(), content)
	})
}

// Delete removes the node or leaf at a, including all descendants.
func (t *Tree) Delete(a address.Address) error {
	if a.IsRoot() {
		return fmt.Errorf("%w: cannot delete the root", alight.ErrInvalidAddress)
	}
	return t.run("delete", true, nil, func() error {
		p, err := t.navigateContainer(a.Parent(), false)
		if err != nil {
			return err
		}
		return p.Delete(a.Name())
	})
}

// WalkFunc is called for every position visited by [Tree.Walk]. Returning
// SkipChildren from a node skips its descendants; any other error stops
// the walk.
type WalkFunc func(v alight.NodeView) error

// SkipChildren is returned by a WalkFunc to skip a node's descendants.
var SkipChildren = errors.New("skip children")

// Walk visits a and its descendants in pre-order, children by name,
// reading through to the backend.
func (t *Tree) Walk(a address.Address, fn WalkFunc) error {
	return t.run("walk", false, nil, func() error {
		n, err := t.navigate(a, false)
		if err != nil {
			return err
		}
		return walk(n, fn)
	})
}

func walk(n *Node, fn WalkFunc) error {
	v, err := n.View()
	if err != nil {
		return err
	}
	if err := fn(v); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	if v.Kind != alight.Node {
		return nil
	}
	children, err := n.resolveAll()
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// VerifyIntegrity reports every violation in the backend and the cache
// without changing anything.
func (t *Tree) VerifyIntegrity() ([]alight.Violation, error) {
	return t.checker.Verify(address.Root())
}

// Repair verifies the tree and repairs every violation found, returning
// what was repaired. It runs regardless of the AutoRepair setting.
func (t *Tree) Repair() ([]alight.Violation, error) {
	return t.checkAndRepair()
}

// Apply executes an import request. Node requests behave like
// Resolve with creation; leaf requests like CreateLeaf.
func (t *Tree) Apply(req alight.CreateRequest) (alight.NodeView, error) {
	a, err := address.Parse(req.GetAddress())
	if err != nil {
		return alight.NodeView{}, err
	}
	switch r := req.(type) {
	case *alight.NodeCreateRequest:
		v, err := t.Resolve(a, true)
		if err == nil && v.Kind != alight.Node {
			err = fmt.Errorf("%w: %q is a %s", alight.ErrConflict, a, v.Kind)
		}
		return v, err
	case *alight.LeafCreateRequest:
		if a.IsRoot() {
			return alight.NodeView{}, fmt.Errorf("%w: the root is always a node", alight.ErrConflict)
		}
		return t.CreateLeaf(a.Parent(), a.Name(), r.Content)
	default:
		return alight.NodeView{}, fmt.Errorf("unsupported request type %q", req.GetType())
	}
}
