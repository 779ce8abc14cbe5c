package expr

import "fmt"

// ShadowMap renames the free symbols of an expression to fresh "shadow"
// symbols, consistently across calls. Subsumption-table construction uses
// this to existentially quantify the values a stored interpolant depends
// on, so the same concrete symbol always maps to the same shadow within
// one table-entry build but never collides with a different entry's.
type ShadowMap struct {
	builder *Builder
	prefix  string
	next    int
	forward map[uintptr]*BVExprPtr // original symbol id -> shadow symbol
	origin  map[uintptr]*BVExprPtr // shadow symbol id -> original symbol

	arrayNext    int
	arrayForward map[string]*Array // original array name -> shadow array
	arrayOrigin  map[string]string // shadow array name -> original array name
}

func NewShadowMap(builder *Builder, prefix string) *ShadowMap {
	return &ShadowMap{
		builder:      builder,
		prefix:       prefix,
		forward:      make(map[uintptr]*BVExprPtr),
		origin:       make(map[uintptr]*BVExprPtr),
		arrayForward: make(map[string]*Array),
		arrayOrigin:  make(map[string]string),
	}
}

// GetShadowExpr returns e with every free TY_SYM replaced by its shadow,
// allocating fresh shadow symbols (same size as the original) on first
// sight of a given symbol.
func (sm *ShadowMap) GetShadowExpr(e ExprPtr) ExprPtr {
	inputs := sm.builder.InvolvedInputs(e)
	result := e
	for _, sym := range inputs {
		shadow := sm.shadowFor(sym)
		result = sm.builder.Substitute(result, sym, shadow)
	}
	return result
}

func (sm *ShadowMap) shadowFor(sym *BVExprPtr) *BVExprPtr {
	if s, ok := sm.forward[sym.Id()]; ok {
		return s
	}
	name := fmt.Sprintf("%s_%d", sm.prefix, sm.next)
	sm.next++
	shadow := sm.builder.BVS(name, sym.Size())
	sm.forward[sym.Id()] = shadow
	sm.origin[shadow.Id()] = sym
	return shadow
}

// Origin returns the concrete symbol a shadow variable was allocated for,
// used by the existential simplifier to report which original input a
// surviving quantifier still ranges over.
func (sm *ShadowMap) Origin(shadow *BVExprPtr) (*BVExprPtr, bool) {
	s, ok := sm.origin[shadow.Id()]
	return s, ok
}

// IsShadow reports whether sym was allocated by this map (as opposed to
// being a genuine program symbol).
func (sm *ShadowMap) IsShadow(sym *BVExprPtr) bool {
	_, ok := sm.origin[sym.Id()]
	return ok
}

// Shadows returns every shadow variable allocated so far — the
// bound-variable list for the exists wrapper built around a subsumption
// query. The slice is built by ranging over a map, so its order is not
// defined.
func (sm *ShadowMap) Shadows() []*BVExprPtr {
	result := make([]*BVExprPtr, 0, len(sm.forward))
	for _, s := range sm.forward {
		result = append(result, s)
	}
	return result
}

// ShadowArray returns a's shadow array (allocating a fresh, empty one keyed
// under a shadow name on first sight of a.Name), used when a subsumption
// entry's stored expressions read through an array whose write history must
// not leak the concrete name it was recorded under.
func (sm *ShadowMap) ShadowArray(a *Array) *Array {
	if s, ok := sm.arrayForward[a.Name]; ok {
		return s
	}
	name := fmt.Sprintf("%s_arr%d", sm.prefix, sm.arrayNext)
	sm.arrayNext++
	shadow := sm.builder.NewArray(name, a.ElemBits)
	sm.arrayForward[a.Name] = shadow
	sm.arrayOrigin[name] = a.Name
	return shadow
}

// Arrays returns every shadow array allocated so far — the existential
// witnesses a subsumption entry's Existentials field records alongside its
// scalar shadow variables. The slice is built by ranging over a map, so its
// order is not defined.
func (sm *ShadowMap) Arrays() []*Array {
	result := make([]*Array, 0, len(sm.arrayForward))
	for _, a := range sm.arrayForward {
		result = append(result, a)
	}
	return result
}
