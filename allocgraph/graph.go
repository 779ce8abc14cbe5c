// Package allocgraph builds the allocation dependency graph: which
// locations point into which others (a GEP child points into its base
// allocation), used to propagate the "this pointer's exact value doesn't
// matter, only its offset bound does" relaxation through a chain of
// pointer arithmetic before an interpolant is built.
package allocgraph

import (
	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/memloc"
	"github.com/txinterp/core/value"
)

// Node is one allocation's entry in the graph: the location it represents,
// the parent allocations it was derived from (via GEP/cast chains) and the
// children derived from it.
type Node struct {
	Loc      *memloc.Location
	Parents  []*Node
	Children []*Node
}

// Graph is the full allocation dependency graph for one path, plus the set
// of Sinks — nodes with no children, i.e. allocations nothing was further
// derived from, which is where bound-widening starts.
type Graph struct {
	nodes map[uint64]*Node // keyed by Loc.AllocID
	Sinks []*Node
}

func NewGraph() *Graph {
	return &Graph{nodes: make(map[uint64]*Node)}
}

func (g *Graph) nodeFor(loc *memloc.Location) *Node {
	if n, ok := g.nodes[loc.AllocID]; ok {
		return n
	}
	n := &Node{Loc: loc}
	g.nodes[loc.AllocID] = n
	return n
}

// NodeFor looks up the node already recorded for loc's allocation, or nil
// if loc was never visited while building g — unlike nodeFor, this never
// creates one, since a caller resolving an address's existing Locations
// against the graph wants a miss reported as "nothing to widen", not a
// fabricated sink node.
func (g *Graph) NodeFor(loc *memloc.Location) *Node {
	return g.nodes[loc.AllocID]
}

func (g *Graph) link(parent, child *Node) {
	for _, c := range parent.Children {
		if c == child {
			return
		}
	}
	parent.Children = append(parent.Children, child)
	child.Parents = append(child.Parents, parent)
}

// BuildAllocationGraph walks every Value tracked in dep (transitively
// through its ancestors) and links each Value's Locations to the Locations
// of the Values it was derived from, then computes Sinks.
func BuildAllocationGraph(dep *value.Dependency) *Graph {
	g := NewGraph()
	visited := make(map[*value.Value]bool)
	for d := dep; d != nil; d = d.Parent {
		for _, vs := range d.ValuesByLLVMID {
			for _, v := range vs {
				g.visit(v, visited)
			}
		}
	}
	g.computeSinks()
	return g
}

func (g *Graph) visit(v *value.Value, visited map[*value.Value]bool) {
	if visited[v] || v == nil {
		return
	}
	visited[v] = true
	if len(v.Locations) == 0 {
		for src := range v.Sources {
			g.visit(src, visited)
		}
		return
	}
	childNodes := make([]*Node, len(v.Locations))
	for i, loc := range v.Locations {
		childNodes[i] = g.nodeFor(loc)
	}
	for src := range v.Sources {
		g.visit(src, visited)
		for _, parentLoc := range src.Locations {
			parentNode := g.nodeFor(parentLoc)
			for _, cn := range childNodes {
				if cn != parentNode {
					g.link(parentNode, cn)
				}
			}
		}
	}
}

func (g *Graph) computeSinks() {
	g.Sinks = g.Sinks[:0]
	for _, n := range g.nodes {
		if len(n.Children) == 0 {
			g.Sinks = append(g.Sinks, n)
		}
	}
}

// BoundsMap records, per allocation, the widened offset bound an
// interpolant may use in place of the allocation's exact address —
// AllocID -> (lower, upper) bound expression pair.
type BoundsMap map[uint64]Bound

type Bound struct {
	Lower *expr.BVExprPtr
	Upper *expr.BVExprPtr
}

// MarkAllValues marks every Value reachable from roots as Core, recording
// reason as the justification — used when a whole dependency slice
// (not just pointer-derived values) must be retained in an interpolant.
func MarkAllValues(roots []*value.Value, reason string) {
	visited := make(map[*value.Value]bool)
	var walk func(v *value.Value)
	walk = func(v *value.Value) {
		if v == nil || visited[v] {
			return
		}
		visited[v] = true
		v.MarkCore(reason)
		for src := range v.Sources {
			walk(src)
		}
	}
	for _, r := range roots {
		walk(r)
	}
}

// MarkAllPointerValues walks from roots up through each node's Parents and,
// for every visited node whose location has an offset, widens that
// allocation's retained bound via AdjustOffsetBound rather than keeping its
// exact address. It marks no Value as core: nodes carry only locations, and
// g and reason are not used.
func MarkAllPointerValues(g *Graph, builder *expr.Builder, roots []*Node, bounds BoundsMap, reason string) error {
	visited := make(map[*Node]bool)
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if n == nil || visited[n] {
			return nil
		}
		visited[n] = true
		if n.Loc.Offset != nil {
			if err := AdjustOffsetBound(builder, bounds, n.Loc); err != nil {
				return err
			}
		}
		for _, p := range n.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := walk(r); err != nil {
			return err
		}
	}
	return nil
}

// AdjustOffsetBound widens bounds[loc.AllocID] to include loc's offset,
// growing the interval rather than replacing it, so a later interpolant
// can be phrased as "offset is between lower and upper" instead of
// "offset equals this one concrete value".
func AdjustOffsetBound(builder *expr.Builder, bounds BoundsMap, loc *memloc.Location) error {
	b, ok := bounds[loc.AllocID]
	if !ok {
		bounds[loc.AllocID] = Bound{Lower: loc.Offset, Upper: loc.Offset}
		return nil
	}
	lowCmp, err := builder.SLt(loc.Offset, b.Lower)
	if err != nil {
		return err
	}
	if lowCmp.IsTrue() {
		b.Lower = loc.Offset
	}
	highCmp, err := builder.SGt(loc.Offset, b.Upper)
	if err != nil {
		return err
	}
	if highCmp.IsTrue() {
		b.Upper = loc.Offset
	}
	bounds[loc.AllocID] = b
	return nil
}
