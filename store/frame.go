// Package store holds the symbolic memory model a dependency tracker
// writes through: a stack of copy-on-write frames keyed by memory
// location, so forking a path (for Split or for call-entry) is an O(1)
// frame push rather than a deep copy.
package store

import (
	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/memloc"
)

// Cell is one slot of the symbolic store: the expression last written
// there, tagged with the program value that wrote it (kept as an
// interface{} so store need not import value, which itself imports store).
type Cell struct {
	Expr  expr.ExprPtr
	Value interface{}
}

// Frame is one copy-on-write layer of the store. Reads walk up through
// Parent until a write is found; writes always land in the top frame,
// materializing it out of its parent lazily on first write.
type Frame struct {
	Concrete map[memloc.Key]Cell
	Symbolic map[memloc.Key]Cell
	Parent   *Frame
	owned    bool // true once this frame has its own maps, not aliasing Parent's
}

// NewFrame creates an empty root frame.
func NewFrame() *Frame {
	return &Frame{
		Concrete: make(map[memloc.Key]Cell),
		Symbolic: make(map[memloc.Key]Cell),
		owned:    true,
	}
}

// Fork returns a child frame that reads through f without copying f's
// contents; the child only allocates its own maps once it receives a write.
func (f *Frame) Fork() *Frame {
	return &Frame{Parent: f}
}

func (f *Frame) materialize() {
	if f.owned {
		return
	}
	f.Concrete = make(map[memloc.Key]Cell)
	f.Symbolic = make(map[memloc.Key]Cell)
	f.owned = true
}

// Read looks up loc, walking parent frames on a miss. ok is false if loc
// was never written in this frame chain.
func (f *Frame) Read(loc *memloc.Location) (Cell, bool) {
	key := loc.AsKey()
	for fr := f; fr != nil; fr = fr.Parent {
		var m map[memloc.Key]Cell
		if loc.HasConstantAddress() {
			m = fr.Concrete
		} else {
			m = fr.Symbolic
		}
		if m == nil {
			continue
		}
		if c, ok := m[key]; ok {
			return c, true
		}
	}
	return Cell{}, false
}

// Update writes a cell at loc in the top frame, materializing it first if
// it is still aliasing its parent's maps.
func (f *Frame) Update(loc *memloc.Location, c Cell) {
	f.materialize()
	key := loc.AsKey()
	if loc.HasConstantAddress() {
		f.Concrete[key] = c
	} else {
		f.Symbolic[key] = c
	}
}

// Stack is a call stack of frames, one per active call context, used to
// scope local-variable stores to their enclosing activation.
type Stack struct {
	frames []*stackEntry
}

type stackEntry struct {
	ctx   memloc.CallHistory
	frame *Frame
}

func NewStack() *Stack {
	return &Stack{}
}

// Push enters a new call context with a frame forked off the current top
// (or a fresh root frame if the stack was empty).
func (s *Stack) Push(ctx memloc.CallHistory) *Frame {
	var fr *Frame
	if len(s.frames) == 0 {
		fr = NewFrame()
	} else {
		fr = s.frames[len(s.frames)-1].frame.Fork()
	}
	s.frames = append(s.frames, &stackEntry{ctx: ctx, frame: fr})
	return fr
}

// Pop discards the top frame on return from its call context.
func (s *Stack) Pop() {
	if len(s.frames) == 0 {
		return
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Top returns the frame for the currently-active call context.
func (s *Stack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1].frame
}

// ForkStack returns a child stack sharing s's frames copy-on-write: each
// frame is forked in place, so a write after the fork never aliases the
// parent's slot, but a read-only path never materializes anything. The
// interpolation tree's Split calls this once per child, the same way it
// forks a Dependency's ValuesByLLVMID map.
func (s *Stack) ForkStack() *Stack {
	forked := &Stack{frames: make([]*stackEntry, len(s.frames))}
	for i, e := range s.frames {
		forked.frames[i] = &stackEntry{ctx: e.ctx, frame: e.frame.Fork()}
	}
	return forked
}

// FindFrame returns the frame whose context is a prefix-match for ctx,
// walking from the top of the stack down — used to resolve a location's
// store frame when a value is read back across call boundaries.
func (s *Stack) FindFrame(ctx memloc.CallHistory) *Frame {
	for i := len(s.frames) - 1; i >= 0; i-- {
		e := s.frames[i]
		if e.ctx.ContextIsPrefixOf(ctx) {
			return e.frame
		}
	}
	return nil
}
