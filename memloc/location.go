// Package memloc models memory locations: the (call-context, base,
// offset) triples the dependency tracker and store frames key on, plus
// the bounds bookkeeping the allocation graph uses to slacken interpolants
// away from a pointer's exact numeric value.
package memloc

import (
	"github.com/txinterp/core/expr"
)

// CallHistory is the sequence of call-instruction ids identifying which
// activation of a function a location was created in, oldest first.
type CallHistory []uint64

// ContextIsPrefixOf reports whether h is a prefix of other — the subsumption
// check only ever compares locations created in compatible call contexts.
func (h CallHistory) ContextIsPrefixOf(other CallHistory) bool {
	if len(h) > len(other) {
		return false
	}
	for i := range h {
		if h[i] != other[i] {
			return false
		}
	}
	return true
}

// Location is a versioned memory location: a call site plus symbolic base
// and offset expressions, a byte size, and a monotonically-assigned
// allocation id used to distinguish logically-distinct allocations that
// happen to share a base expression.
type Location struct {
	SiteID  uint64
	Context CallHistory
	Base    *expr.BVExprPtr
	Offset  *expr.BVExprPtr
	Size    uint64
	AllocID uint64
}

var nextAllocID uint64

func freshAllocID() uint64 {
	nextAllocID++
	return nextAllocID
}

// NewLocation creates a location for a fresh allocation at the given call
// site and context.
func NewLocation(site uint64, ctx CallHistory, addr *expr.BVExprPtr, size uint64) *Location {
	return &Location{
		SiteID:  site,
		Context: ctx,
		Base:    addr,
		Offset:  nil,
		Size:    size,
		AllocID: freshAllocID(),
	}
}

// NewChildLocation derives a location from parent (e.g. a GEP into an
// existing allocation): same site/context/allocation identity, with a new
// address and an offset delta accumulated onto the parent's offset.
func NewChildLocation(builder *expr.Builder, parent *Location, addr *expr.BVExprPtr, offsetDelta *expr.BVExprPtr) (*Location, error) {
	newOffset := offsetDelta
	if parent.Offset != nil {
		combined, err := builder.Add(parent.Offset, offsetDelta)
		if err != nil {
			return nil, err
		}
		newOffset = combined
	}
	return &Location{
		SiteID:  parent.SiteID,
		Context: parent.Context,
		Base:    addr,
		Offset:  newOffset,
		Size:    parent.Size,
		AllocID: parent.AllocID,
	}, nil
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpExprID(a, b *expr.BVExprPtr) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	return cmpUint64(uint64(a.Id()), uint64(b.Id()))
}

// Compare is a full lexicographic comparator over (SiteID, Context, Base,
// Offset, Size, AllocID), returning -1/0/1 for use with sort-friendly code.
func (l *Location) Compare(o *Location) int {
	if c := l.WeakCompare(o); c != 0 {
		return c
	}
	return cmpUint64(l.AllocID, o.AllocID)
}

// WeakCompare is Compare without AllocID — two locations at the same site,
// context, base, offset and size are weakly-equal even if they came from
// distinct allocation events. Compare uses it as its first stage and
// breaks ties on AllocID; subsumption's state-equality constraint does not
// use it.
func (l *Location) WeakCompare(o *Location) int {
	if c := cmpUint64(l.SiteID, o.SiteID); c != 0 {
		return c
	}
	if len(l.Context) != len(o.Context) {
		return cmpUint64(uint64(len(l.Context)), uint64(len(o.Context)))
	}
	for i := range l.Context {
		if c := cmpUint64(l.Context[i], o.Context[i]); c != 0 {
			return c
		}
	}
	if c := cmpExprID(l.Base, o.Base); c != 0 {
		return c
	}
	if c := cmpExprID(l.Offset, o.Offset); c != 0 {
		return c
	}
	return cmpUint64(l.Size, o.Size)
}

// HasConstantAddress reports whether both Base and (if present) Offset
// are fully concrete — used to decide whether a location can be folded to
// a concrete-store key instead of landing in the symbolic store.
func (l *Location) HasConstantAddress() bool {
	if !l.Base.IsConst() {
		return false
	}
	if l.Offset != nil && !l.Offset.IsConst() {
		return false
	}
	return true
}

// Key is the full-compare identity used by store.Frame's maps.
type Key struct {
	SiteID  uint64
	AllocID uint64
	BaseID  uintptr
	OffID   uintptr
}

// AsKey derives the map key a store frame indexes this location under.
func (l *Location) AsKey() Key {
	var offID uintptr
	if l.Offset != nil {
		offID = l.Offset.Id()
	}
	return Key{SiteID: l.SiteID, AllocID: l.AllocID, BaseID: l.Base.Id(), OffID: offID}
}
