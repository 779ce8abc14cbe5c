// Package itree is the interpolation tree: the structure symbolic
// execution threads path exploration through. Each Node owns a path
// condition, a dependency tracker, and (once the node becomes a leaf) the
// interpolant computed from its core expressions.
package itree

import (
	"fmt"

	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/value"
)

// PathCondition is an immutable singly-linked list of constraints
// accumulated along one execution path — sharing tails across sibling
// branches the way the symbolic store shares frames.
type PathCondition struct {
	Constraint *expr.BoolExprPtr

	// ShadowConstraint is Constraint with its free symbols renamed to
	// shadow variables, computed lazily by Shadow and cached here since a
	// subsumption check may shadow the same path condition repeatedly as
	// it walks candidates at one program point.
	ShadowConstraint *expr.BoolExprPtr
	Shadowed         bool

	// InInterpolant records whether the last interpolant build kept this
	// constraint, so a caller inspecting a finished node's path condition
	// (logging, the dot-graph frontend) can tell which constraints
	// actually drove the computed interpolant.
	InInterpolant bool

	// Owner is the dependency tracker Constraint was asserted against, and
	// Cond is the Value (if any) the constraint was built from — a branch
	// condition's own Value, for a constraint AddConstraint recorded from
	// a Split, nil for one recorded by other means (e.g. a frontend
	// assuming an external precondition).
	Owner *value.Dependency
	Cond  *value.Value

	Tail *PathCondition
}

// Conjunction folds the path condition into a single boolean expression,
// oldest constraint first.
func (pc *PathCondition) Conjunction(builder *expr.Builder) (*expr.BoolExprPtr, error) {
	if pc == nil {
		return builder.BoolVal(true), nil
	}
	rest, err := pc.Tail.Conjunction(builder)
	if err != nil {
		return nil, err
	}
	return builder.BoolAnd(rest, pc.Constraint)
}

// Extend returns a new path condition with c appended, sharing pc as its
// tail, recording the dependency tracker that asserted it and (if any) the
// Value the constraint was derived from.
func (pc *PathCondition) Extend(c *expr.BoolExprPtr, owner *value.Dependency, cond *value.Value) *PathCondition {
	return &PathCondition{Constraint: c, Owner: owner, Cond: cond, Tail: pc}
}

// All returns every constraint, oldest first.
func (pc *PathCondition) All() []*expr.BoolExprPtr {
	if pc == nil {
		return nil
	}
	return append(pc.Tail.All(), pc.Constraint)
}

// Shadow computes and caches pc.ShadowConstraint against sm, a no-op if
// already computed — the subsumption table calls this once per path
// condition entry before folding it into a shadowed query, so a
// constraint shared by many candidates (via a common PathCondition tail)
// is only ever renamed once.
func (pc *PathCondition) Shadow(sm *expr.ShadowMap) *expr.BoolExprPtr {
	if pc == nil {
		return nil
	}
	if !pc.Shadowed {
		pc.ShadowConstraint = sm.GetShadowExpr(pc.Constraint).(*expr.BoolExprPtr)
		pc.Shadowed = true
	}
	return pc.ShadowConstraint
}

// nodeState is the explicit lifecycle a Node moves through: fresh nodes
// have not executed anything yet, active nodes are the current leaf of a
// live execution, split nodes have forked into exactly two children and no
// longer accept new constraints themselves, leaf nodes have finished
// (feasible-and-terminal, or infeasible) and carry a computed interpolant,
// removed nodes have been pruned from the tree by subsumption.
type nodeState int

const (
	stateFresh nodeState = iota
	stateActive
	stateSplit
	stateLeaf
	stateRemoved
)

func (s nodeState) String() string {
	switch s {
	case stateFresh:
		return "fresh"
	case stateActive:
		return "active"
	case stateSplit:
		return "split"
	case stateLeaf:
		return "leaf"
	case stateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Node is one vertex of the interpolation tree.
type Node struct {
	id       uint64
	state    nodeState
	Parent   *Node
	Left     *Node
	Right    *Node
	PC       *PathCondition
	Dep      *value.Dependency
	Feasible bool

	builder     *expr.Builder
	interpolant *expr.BoolExprPtr
	markers     MarkerMap
}

var nextNodeID uint64

// Tree is the interpolation tree's root handle.
type Tree struct {
	Root    *Node
	Builder *expr.Builder
	byID    map[uint64]*Node
}

// NewTree creates a tree with a single active root over dep.
func NewTree(builder *expr.Builder, dep *value.Dependency) *Tree {
	nextNodeID++
	root := &Node{id: nextNodeID, state: stateActive, Dep: dep, Feasible: true, builder: builder}
	return &Tree{Root: root, Builder: builder, byID: map[uint64]*Node{root.id: root}}
}

// DeleteTree discards the entire tree, detaching the root so nothing keeps
// it reachable — the engine calls this once the path it is tracking has
// been fully explored.
func (t *Tree) DeleteTree() {
	t.Root = nil
	t.byID = nil
}

// AddConstraint appends c to n's path condition, recording cond (the
// Value the constraint came from, if any) so a later interpolant build can
// trace a kept constraint back to the instruction that produced it. n must
// be active; a split, leaf, or removed node cannot accept new constraints.
func (n *Node) AddConstraint(c *expr.BoolExprPtr, cond *value.Value) error {
	if n.state != stateActive {
		return fmt.Errorf("itree: cannot add constraint to %s node", n.state)
	}
	n.PC = n.PC.Extend(c, n.Dep, cond)
	return nil
}

// Split forks n into two active children sharing n's path condition and
// dependency tracker (copy-on-write), one per branch outcome; n itself
// transitions to split and stops accepting constraints or becoming a leaf.
func (t *Tree) Split(n *Node) (left, right *Node, err error) {
	if n.state != stateActive {
		return nil, nil, fmt.Errorf("itree: cannot split %s node", n.state)
	}
	nextNodeID++
	left = &Node{id: nextNodeID, state: stateActive, Parent: n, PC: n.PC, Dep: n.Dep.Fork(), Feasible: true, builder: n.builder}
	nextNodeID++
	right = &Node{id: nextNodeID, state: stateActive, Parent: n, PC: n.PC, Dep: n.Dep.Fork(), Feasible: true, builder: n.builder}
	n.Left, n.Right = left, right
	n.state = stateSplit
	t.byID[left.id] = left
	t.byID[right.id] = right
	return left, right, nil
}

// Marker tracks whether one path-condition constraint (or, for a
// disjunctive constraint, one disjunct of it — ITree.cpp's PathCondition-
// Marker splits an OR the same way) still belongs in n's interpolant. It
// starts undecided, meaning "still eligible", and is pinned down once a
// solver's unsat core either names it or passes over it.
type Marker struct {
	Expr    *expr.BoolExprPtr
	decided bool
	inCore  bool
}

// MayIncludeInInterpolant reports whether this marker is still eligible
// for the interpolant: either undecided, or decided in its favor.
func (m *Marker) MayIncludeInInterpolant() bool {
	return !m.decided || m.inCore
}

// IncludeInInterpolant reports whether a solver's unsat core has
// positively named this marker's expression.
func (m *Marker) IncludeInInterpolant() bool {
	return m.decided && m.inCore
}

// MarkUnsatCore pins this marker's fate, called once per marker after a
// subsumption check's solver dispatch reports which constraints its
// unsat core actually named.
func (m *Marker) MarkUnsatCore(inCore bool) {
	m.decided = true
	m.inCore = inCore
}

// MarkerMap indexes a node's path-condition markers by the constraint (or
// disjunct) they were built from — hash-consing makes that expression's
// pointer a stable, collision-free key across the node's lifetime.
type MarkerMap map[*expr.BoolExprPtr]*Marker

// MakeMarkerMap builds n's marker map: one Marker per top-level conjunct
// of n's path condition, split further into one Marker per disjunct for
// any conjunct that is itself an OR. A marker starts decided-and-excluded
// if its constraint mentions none of n's currently-core symbols (it
// cannot possibly belong in an interpolant built from those symbols) and
// undecided otherwise, leaving the unsat-core walk to narrow it further.
func (n *Node) MakeMarkerMap() MarkerMap {
	coreSyms := make(map[uintptr]bool)
	for _, e := range n.GetLatestCoreExpressions() {
		for _, sym := range n.builder.InvolvedInputs(e) {
			coreSyms[sym.Id()] = true
		}
	}

	mm := make(MarkerMap)
	for _, c := range n.PC.All() {
		for _, disjunct := range expr.FlattenBoolOr(c) {
			if _, ok := mm[disjunct]; ok {
				continue
			}
			m := &Marker{Expr: disjunct}
			relevant := false
			for _, sym := range n.builder.InvolvedInputs(disjunct) {
				if coreSyms[sym.Id()] {
					relevant = true
					break
				}
			}
			if !relevant {
				m.MarkUnsatCore(false)
			}
			mm[disjunct] = m
		}
	}
	return mm
}

// MarkLeaf transitions n from active to leaf, recording whether the path
// was feasible — called once the solver has decided n's path condition's
// satisfiability and no further execution will happen at n.
func (n *Node) MarkLeaf(feasible bool) error {
	if n.state != stateActive {
		return fmt.Errorf("itree: cannot mark %s node as leaf", n.state)
	}
	n.state = stateLeaf
	n.Feasible = feasible
	return nil
}

// GetLatestCoreExpressions returns the expression of each currently-core
// Value at n, one per distinct LLVM value id (the most recent core
// version), keyed by that id — the shape the subsumption table's
// singleton store wants directly.
func (n *Node) GetLatestCoreExpressions() map[uint64]expr.ExprPtr {
	out := make(map[uint64]expr.ExprPtr)
	seen := make(map[uint64]bool)
	for dep := n.Dep; dep != nil; dep = dep.Parent {
		for id, vs := range dep.ValuesByLLVMID {
			if seen[id] {
				continue
			}
			for i := len(vs) - 1; i >= 0; i-- {
				if vs[i].Core {
					out[id] = vs[i].Expr
					seen[id] = true
					break
				}
			}
		}
	}
	return out
}

// GetCompositeCoreExpressions returns every version of every core Value at
// n, keyed by LLVM value id — used when building a WP-refined interpolant
// that must account for values that changed mid-path rather than just
// their final version.
func (n *Node) GetCompositeCoreExpressions() map[uint64][]expr.ExprPtr {
	out := make(map[uint64][]expr.ExprPtr)
	for dep := n.Dep; dep != nil; dep = dep.Parent {
		for id, vs := range dep.ValuesByLLVMID {
			for _, v := range vs {
				if v.Core {
					out[id] = append(out[id], v.Expr)
				}
			}
		}
	}
	return out
}

// GetInterpolant folds every still-eligible marker's constraint into a
// single boolean — before RefineWithUnsatCore has run, that is every
// constraint mentioning a core symbol; afterward, only the ones the
// solver's unsat core actually named.
func (n *Node) GetInterpolant(builder *expr.Builder) (*expr.BoolExprPtr, error) {
	if n.markers == nil {
		n.markers = n.MakeMarkerMap()
	}
	return n.buildInterpolant(builder)
}

func (n *Node) buildInterpolant(builder *expr.Builder) (*expr.BoolExprPtr, error) {
	result := builder.BoolVal(true)
	for _, m := range n.markers {
		if !m.MayIncludeInInterpolant() {
			continue
		}
		next, err := builder.BoolAnd(result, m.Expr)
		if err != nil {
			return nil, err
		}
		result = next
	}
	n.interpolant = result
	return result, nil
}

// RefineWithUnsatCore narrows n's interpolant using the unsat core returned
// for a successful subsumption match: every marker whose
// expression appears in core is pinned in, every other currently-eligible
// marker is pinned out, and the interpolant is rebuilt from what remains.
func (n *Node) RefineWithUnsatCore(builder *expr.Builder, core []*expr.BoolExprPtr) (*expr.BoolExprPtr, error) {
	if n.markers == nil {
		n.markers = n.MakeMarkerMap()
	}
	inCore := make(map[*expr.BoolExprPtr]bool, len(core))
	for _, c := range core {
		inCore[c] = true
	}
	for e, m := range n.markers {
		if !m.MayIncludeInInterpolant() {
			continue
		}
		m.MarkUnsatCore(inCore[e])
	}
	return n.buildInterpolant(builder)
}

// Remove prunes n (and, transitively, any ancestor left with no live
// children) from the tree — called once subsumption has shown a node's
// path is covered by an earlier interpolant and need not be explored
// further.
func (t *Tree) Remove(n *Node) {
	n.state = stateRemoved
	delete(t.byID, n.id)
	p := n.Parent
	for p != nil {
		leftGone := p.Left == nil || p.Left.state == stateRemoved
		rightGone := p.Right == nil || p.Right.state == stateRemoved
		if leftGone && rightGone {
			p.state = stateRemoved
			delete(t.byID, p.id)
			n = p
			p = n.Parent
			continue
		}
		break
	}
}

// ID returns n's stable identity, used for logging and dot-graph output.
func (n *Node) ID() uint64 { return n.id }

// IsLeaf reports whether n has finished execution.
func (n *Node) IsLeaf() bool { return n.state == stateLeaf }

// IsRemoved reports whether n has been pruned by subsumption.
func (n *Node) IsRemoved() bool { return n.state == stateRemoved }
