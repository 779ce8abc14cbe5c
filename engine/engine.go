// Package engine wires the expression builder, dependency tracker,
// interpolation tree, subsumption table, weakest-precondition pass and
// solver oracle into the single entry point a symbolic-execution frontend
// drives: one call per instruction, one call per branch, with subsumption
// checked at the points the frontend designates (typically loop headers
// and function re-entry).
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/txinterp/core/allocgraph"
	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/internal/txlog"
	"github.com/txinterp/core/itree"
	"github.com/txinterp/core/memloc"
	"github.com/txinterp/core/solver"
	"github.com/txinterp/core/subsumption"
	"github.com/txinterp/core/value"
	"github.com/txinterp/core/wp"
)

// Engine is the top-level handle a frontend holds for one symbolically
// executed program.
type Engine struct {
	Config *Config
	Stats  Stats

	builder *expr.Builder
	tree    *itree.Tree
	current *itree.Node

	table  *subsumption.Table
	oracle solver.Oracle
	wpPass *wp.Pass

	// bounds accumulates the offset-widening the allocation graph applies
	// across every memory operation a frontend reports as bounds-checked,
	// so later interpolants over the same allocation stay consistent with
	// earlier widenings instead of resetting on each call.
	bounds allocgraph.BoundsMap

	shadowPrefix int
}

// New creates an engine over a fresh expression builder and the given
// oracle, applying cfg (nil for defaults).
func New(oracle solver.Oracle, cfg *Config) *Engine {
	if cfg == nil {
		cfg = NewConfig()
	}
	builder := expr.NewBuilder()
	txlog.SetLevel(txlog.SubsumptionLevel(cfg.DebugSubsumption))
	return &Engine{
		Config:  cfg,
		builder: builder,
		table:   subsumption.NewTable(builder),
		oracle:  oracle,
		wpPass:  wp.NewPass(builder),
		bounds:  make(allocgraph.BoundsMap),
	}
}

// Builder exposes the engine's expression builder, since every frontend
// call that hands the engine an expression must have built it from the
// same hash-consed universe.
func (e *Engine) Builder() *expr.Builder { return e.builder }

// NewTree starts a fresh interpolation tree rooted at a new dependency
// tracker over td.
func (e *Engine) NewTree(td value.DataLayout) {
	dep := value.NewDependency(e.builder, td)
	e.tree = itree.NewTree(e.builder, dep)
	e.current = e.tree.Root
}

// DeleteTree discards the current tree entirely.
func (e *Engine) DeleteTree() {
	if e.tree != nil {
		e.tree.DeleteTree()
	}
	e.tree = nil
	e.current = nil
}

// SetCurrentNode moves the engine's focus to n, the node subsequent
// Execute/AddConstraint/Split calls operate on.
func (e *Engine) SetCurrentNode(n *itree.Node) {
	e.current = n
}

// CurrentNode returns the engine's focus node.
func (e *Engine) CurrentNode() *itree.Node {
	return e.current
}

func (e *Engine) requireCurrent() (*itree.Node, error) {
	if e.current == nil {
		return nil, ErrNoCurrentNode
	}
	return e.current, nil
}

// Execute runs one instruction against the current node's dependency
// tracker.
func (e *Engine) Execute(instr value.InstrInfo, callHistory memloc.CallHistory, args []value.Cell, symbolicErr bool) (*value.Value, error) {
	defer e.Stats.timeIt(&e.Stats.ExecuteTime)()
	n, err := e.requireCurrent()
	if err != nil {
		return nil, err
	}
	return n.Dep.Execute(instr, callHistory, args, symbolicErr)
}

// ExecutePHI resolves a PHI node given the incoming value selected by the
// edge actually taken, at the current node.
func (e *Engine) ExecutePHI(instr value.InstrInfo, incoming value.Cell) (*value.Value, error) {
	n, err := e.requireCurrent()
	if err != nil {
		return nil, err
	}
	instr.Opcode = value.OpPHI
	return n.Dep.Execute(instr, nil, []value.Cell{incoming}, false)
}

// ExecuteMemoryOperation executes a Load or Store at the current node. When
// boundsCheckPassed is true (the frontend has already independently proven
// the access stays within its allocation), the accessed address's
// allocation is widened to an offset bound rather than kept at its exact
// value, so a later interpolant generalizes over the allocation instead of
// pinning its concrete address.
func (e *Engine) ExecuteMemoryOperation(instr value.InstrInfo, callHistory memloc.CallHistory, args []value.Cell, boundsCheckPassed bool) (*value.Value, error) {
	if instr.Opcode != value.OpLoad && instr.Opcode != value.OpStore {
		return nil, fmt.Errorf("%w: ExecuteMemoryOperation called with opcode %v", ErrUnhandledOpcode, instr.Opcode)
	}
	result, err := e.Execute(instr, callHistory, args, false)
	if err != nil {
		return nil, err
	}
	if boundsCheckPassed && len(args) > 0 && args[0].V != nil {
		if err := e.slackenAddress(args[0].V); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// slackenAddress widens the engine's retained offset bound for every
// allocation addr may denote, in place of keeping addr's exact address
// core, once a frontend's own bounds check has already established the
// access is safe.
func (e *Engine) slackenAddress(addr *value.Value) error {
	n, err := e.requireCurrent()
	if err != nil {
		return err
	}
	graph := allocgraph.BuildAllocationGraph(n.Dep)
	var roots []*allocgraph.Node
	for _, loc := range addr.Locations {
		if gn := graph.NodeFor(loc); gn != nil {
			roots = append(roots, gn)
		}
	}
	if len(roots) == 0 {
		return nil
	}
	return allocgraph.MarkAllPointerValues(graph, e.builder, roots, e.bounds, "bounds check passed")
}

// BindCallArguments registers a callee's formal parameters against the
// caller's actual argument Values, at the current node, so the callee's
// body resolves its parameter LLVM ids to the right Values.
func (e *Engine) BindCallArguments(formalIDs []uint64, actuals []value.Cell) error {
	n, err := e.requireCurrent()
	if err != nil {
		return err
	}
	if len(formalIDs) != len(actuals) {
		return fmt.Errorf("%w: %d formals, %d actuals", ErrContextMismatch, len(formalIDs), len(actuals))
	}
	for i, id := range formalIDs {
		v := actuals[i].V
		if v == nil {
			v = &value.Value{Expr: actuals[i].Symbolic}
		}
		bound := &value.Value{LLVMValueID: id, Expr: v.Expr, Locations: v.Locations, Sources: map[*value.Value]*memloc.Location{v: nil}}
		n.Dep.ValuesByLLVMID[id] = append(n.Dep.ValuesByLLVMID[id], bound)
	}
	return nil
}

// BindReturnValue binds a caller-side LLVM id (the call instruction's own
// result) to the callee's returned Value, at the current node.
func (e *Engine) BindReturnValue(callerValueID uint64, ret *value.Value) error {
	n, err := e.requireCurrent()
	if err != nil {
		return err
	}
	if ret == nil {
		return nil
	}
	bound := &value.Value{LLVMValueID: callerValueID, Expr: ret.Expr, Locations: ret.Locations, Sources: map[*value.Value]*memloc.Location{ret: nil}}
	n.Dep.ValuesByLLVMID[callerValueID] = append(n.Dep.ValuesByLLVMID[callerValueID], bound)
	return nil
}

// AddConstraint appends c to the current node's path condition. condValue
// is the Value the branch condition was evaluated from, if any — carried
// on the PathCondition link so a later marker walk can trace a constraint
// back to the dependency tracker entry that produced it.
func (e *Engine) AddConstraint(c *expr.BoolExprPtr, condValue *value.Value) error {
	n, err := e.requireCurrent()
	if err != nil {
		return err
	}
	return n.AddConstraint(c, condValue)
}

// Split forks the current node on a branch condition, marking both
// children's path conditions with the taken/not-taken constraint, and
// moves the engine's focus to whichever child takeLeft indicates was
// actually taken (true selects the left child). condValue is the Value the
// branch condition was evaluated from, if any.
func (e *Engine) Split(cond *expr.BoolExprPtr, condValue *value.Value, takeLeft bool) (*itree.Node, *itree.Node, error) {
	defer e.Stats.timeIt(&e.Stats.SplitTime)()
	n, err := e.requireCurrent()
	if err != nil {
		return nil, nil, err
	}
	left, right, err := e.tree.Split(n)
	if err != nil {
		return nil, nil, err
	}
	notCond, err := e.builder.BoolNot(cond)
	if err != nil {
		return nil, nil, err
	}
	if err := left.AddConstraint(cond, condValue); err != nil {
		return nil, nil, err
	}
	if err := right.AddConstraint(notCond, condValue); err != nil {
		return nil, nil, err
	}
	if takeLeft {
		e.current = left
	} else {
		e.current = right
	}
	return left, right, nil
}

// MarkPathCondition marks every Value mentioned by the current node's path
// condition constraints as core, the starting point for building an
// interpolant out of an infeasible path's conflicting constraints.
func (e *Engine) MarkPathCondition(reason string) {
	n, err := e.requireCurrent()
	if err != nil {
		return
	}
	for _, c := range n.PC.All() {
		for _, sym := range e.builder.InvolvedInputs(c) {
			for d := n.Dep; d != nil; d = d.Parent {
				for _, vs := range d.ValuesByLLVMID {
					for _, v := range vs {
						if bv, ok := v.Expr.(*expr.BVExprPtr); ok && bv.Id() == sym.Id() {
							v.MarkCore(reason)
						}
					}
				}
			}
		}
	}
}

// CheckCurrentStateSubsumption checks whether the current node is
// subsumed by a previously-cached entry at loc (e.g. the current basic
// block id), returning true (and removing the node from the tree) if so.
// ctx is threaded directly into every solver call the check makes rather
// than raced against the check as a whole: a deadline that expires
// mid-check is reported as "not subsumed" (the safe fallback — the node
// still gets explored) instead of as an error, since giving up early on a
// subsumption check can never make exploration unsound, only slower.
func (e *Engine) CheckCurrentStateSubsumption(ctx context.Context, loc uint64) (bool, error) {
	defer e.Stats.timeIt(&e.Stats.SubsumptionTime)()
	n, err := e.requireCurrent()
	if err != nil {
		return false, err
	}
	e.Stats.SubsumptionChecks++

	subsumed, err := e.table.Subsumed(ctx, e.oracle, n, loc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return false, nil
		}
		return false, err
	}
	if subsumed {
		e.Stats.SubsumptionHits++
		e.tree.Remove(n)
		return true, nil
	}

	if !e.Config.NoExistential {
		e.shadowPrefix++
		entry, err := subsumption.BuildEntry(e.builder, n, loc, fmt.Sprintf("sh%d", e.shadowPrefix))
		if err != nil {
			return false, err
		}
		e.table.Insert(loc, entry)
	}
	return false, nil
}

// Remove prunes n from the tree directly, used when a frontend has
// independently determined n's path need not be explored further (e.g. it
// hit a depth bound).
func (e *Engine) Remove(n *itree.Node) {
	e.tree.Remove(n)
}

// WPPass exposes the engine's weakest-precondition pass for a frontend
// that records its own instruction/branch trace and wants to refine a
// subsumption entry explicitly, rather than relying on the implicit
// refinement CheckCurrentStateSubsumption performs.
func (e *Engine) WPPass() *wp.Pass { return e.wpPass }

// TightenSubsumptionEntries runs the weakest-precondition pass over path
// against target (typically an infeasible leaf's own interpolant) and
// conjoins the result into every entry already cached at loc, so a later
// visit to loc is checked against the tightened, not just the originally
// cached, interpolant. A frontend calls this once it has recorded the path
// that led to an infeasible leaf and knows which ancestor program point the
// leaf's subsumption entries were filed under.
func (e *Engine) TightenSubsumptionEntries(loc uint64, path []wp.RecordedInstr, target *expr.BoolExprPtr) error {
	result, err := e.wpPass.Run(path, target)
	if err != nil {
		return err
	}
	for _, entry := range e.table.EntriesAt(loc) {
		if err := e.table.UpdateWithWP(entry, result); err != nil {
			return err
		}
	}
	return nil
}

// Oracle exposes the solver oracle, for frontend code that needs a direct
// satisfiability check outside of subsumption (e.g. deciding a branch is
// infeasible before executing either side).
func (e *Engine) Oracle() solver.Oracle { return e.oracle }
