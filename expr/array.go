package expr

import (
	"fmt"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// UpdateList is a persistent, singly-linked write log layered over a root
// array: read(a, i) walks the list from the most recent write looking for
// an index match before falling through to the root. Sharing the tail
// between branches is what makes forking an array cheap.
type UpdateList struct {
	root  *BVExprPtr // symbolic array root (TY_SYM sized to elemBits*domain, logical only)
	name  string
	index *BVExprPtr
	value *BVExprPtr
	next  *UpdateList
}

// Array is an immutable handle to an array value: either a fresh root (no
// writes yet) or the head of an UpdateList chain. It is what the
// interpolation core's memory model (weakest-precondition array stores,
// subsumption existentials) reads and writes through, rather than a bare
// symbolic bitvector, so a store's write history travels with its name.
type Array struct {
	Name     string
	ElemBits uint
	updates  *UpdateList
}

func (eb *Builder) NewArray(name string, elemBits uint) *Array {
	return &Array{Name: name, ElemBits: elemBits}
}

// Update returns a new array handle with index bound to value, leaving the
// receiver (and anyone still holding it) untouched.
func (eb *Builder) Update(a *Array, index, value *BVExprPtr) (*Array, error) {
	if value.Size() != a.ElemBits {
		return nil, fmt.Errorf("array %s: value size %d != elem size %d", a.Name, value.Size(), a.ElemBits)
	}
	return &Array{
		Name:     a.Name,
		ElemBits: a.ElemBits,
		updates:  &UpdateList{name: a.Name, index: index, value: value, next: a.updates},
	}, nil
}

// Read builds a TY_READ expression: a nested ITE chain over the update
// list terminated by a fresh symbolic read of the root, mirroring how
// klee's ReadExpr folds over a UpdateList.
func (eb *Builder) Read(a *Array, index *BVExprPtr) (*BVExprPtr, error) {
	u := a.updates
	var chain []*UpdateList
	for u != nil {
		chain = append(chain, u)
		u = u.next
	}

	base := eb.getOrCreateBV(mkinternalArrayRead(a.Name, a.ElemBits, index, nil))
	result := base
	for i := len(chain) - 1; i >= 0; i-- {
		entry := chain[i]
		eq, err := eb.Eq(index, entry.index)
		if err != nil {
			return nil, err
		}
		if eq.IsTrue() {
			result = entry.value
			continue
		}
		if eq.IsFalse() {
			continue
		}
		ite, err := eb.ITE(eq, entry.value, result)
		if err != nil {
			return nil, err
		}
		result = ite
	}
	return result, nil
}

/*
 * TY_READ (symbolic base read, no statically-resolved update applies)
 */

type internalArrayRead struct {
	arrayName string
	elemBits  uint
	index     *BVExprPtr
	updates   *UpdateList // retained only for String(); never walked by eval/subsumption
}

func mkinternalArrayRead(name string, elemBits uint, index *BVExprPtr, updates *UpdateList) *internalArrayRead {
	return &internalArrayRead{arrayName: name, elemBits: elemBits, index: index, updates: updates}
}

func (r *internalArrayRead) String() string {
	return fmt.Sprintf("%s[%s]", r.arrayName, r.index.String())
}
func (r *internalArrayRead) size() uint               { return r.elemBits }
func (r *internalArrayRead) subexprs() []internalExpr { return []internalExpr{r.index.e} }
func (r *internalArrayRead) kind() int                { return TY_READ }
func (r *internalArrayRead) isLeaf() bool             { return false }
func (r *internalArrayRead) rawPtr() uintptr          { return uintptr(unsafe.Pointer(r)) }

func (r *internalArrayRead) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte("TY_READ"))
	h.Write([]byte(r.arrayName))
	writeU64(h, uint64(r.index.e.rawPtr()))
	return h.Sum64()
}

func (r *internalArrayRead) deepEq(other internalBVExpr) bool {
	if other.kind() != TY_READ {
		return false
	}
	o := other.(*internalArrayRead)
	return r.arrayName == o.arrayName && r.index.e.deepEq(o.index.e)
}

func (r *internalArrayRead) shallowEq(other internalBVExpr) bool {
	if other.kind() != TY_READ {
		return false
	}
	o := other.(*internalArrayRead)
	return r.arrayName == o.arrayName && r.index.e.rawPtr() == o.index.e.rawPtr()
}

// ReadInfo returns the array name and index a TY_READ node was built
// against, for a caller (the weakest-precondition pass) that needs to find
// every read of a given array inside an already-built expression without
// reaching into the package's unexported node types.
func ReadInfo(e *BVExprPtr) (name string, index *BVExprPtr, ok bool) {
	r, isRead := e.e.(*internalArrayRead)
	if !isRead {
		return "", nil, false
	}
	return r.arrayName, r.index, true
}

/*
 * TY_EXISTS: existential quantification over a set of bound symbols,
 * wrapping a boolean body. Used by the subsumption check to lift shadow
 * array/value variables introduced when comparing two program states.
 */

type internalExists struct {
	bound []*BVExprPtr
	body  *BoolExprPtr
}

func mkinternalExists(bound []*BVExprPtr, body *BoolExprPtr) *internalExists {
	return &internalExists{bound: bound, body: body}
}

func (e *internalExists) String() string {
	names := ""
	for i, b := range e.bound {
		if i > 0 {
			names += ", "
		}
		names += b.String()
	}
	return fmt.Sprintf("exists %s . (%s)", names, e.body.String())
}

func (e *internalExists) subexprs() []internalExpr {
	res := make([]internalExpr, 0, len(e.bound)+1)
	for _, b := range e.bound {
		res = append(res, b.e)
	}
	res = append(res, e.body.e)
	return res
}
func (e *internalExists) kind() int    { return TY_EXISTS }
func (e *internalExists) isLeaf() bool { return false }
func (e *internalExists) rawPtr() uintptr {
	return uintptr(unsafe.Pointer(e))
}

func (e *internalExists) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte("TY_EXISTS"))
	for _, b := range e.bound {
		writeU64(h, uint64(b.e.rawPtr()))
	}
	writeU64(h, uint64(e.body.e.rawPtr()))
	return h.Sum64()
}

func (e *internalExists) deepEq(other internalBoolExpr) bool {
	o, ok := other.(*internalExists)
	if !ok || len(o.bound) != len(e.bound) {
		return false
	}
	for i := range e.bound {
		if !e.bound[i].e.deepEq(o.bound[i].e) {
			return false
		}
	}
	return e.body.e.deepEq(o.body.e)
}

func (e *internalExists) shallowEq(other internalBoolExpr) bool {
	o, ok := other.(*internalExists)
	if !ok || len(o.bound) != len(e.bound) {
		return false
	}
	for i := range e.bound {
		if e.bound[i].e.rawPtr() != o.bound[i].e.rawPtr() {
			return false
		}
	}
	return e.body.e.rawPtr() == o.body.e.rawPtr()
}

// Exists builds an existentially-quantified boolean. Bound variables with
// no free occurrence in body are dropped, following the builder's general
// policy of never constructing a node with provably-redundant structure.
func (eb *Builder) Exists(bound []*BVExprPtr, body *BoolExprPtr) *BoolExprPtr {
	free := eb.InvolvedInputs(body)
	freeSet := make(map[uintptr]bool, len(free))
	for _, f := range free {
		freeSet[f.Id()] = true
	}
	filtered := make([]*BVExprPtr, 0, len(bound))
	for _, b := range bound {
		if freeSet[b.Id()] {
			filtered = append(filtered, b)
		}
	}
	if len(filtered) == 0 {
		return body
	}
	return eb.getOrCreateBool(mkinternalExists(filtered, body))
}

// ExistsBound returns the variables bound by a TY_EXISTS node, or nil if e
// is not an existential.
func ExistsBound(e *BoolExprPtr) []*BVExprPtr {
	if e.Kind() != TY_EXISTS {
		return nil
	}
	return e.e.(*internalExists).bound
}

// ExistsBody returns the quantifier-free body of a TY_EXISTS node.
func ExistsBody(e *BoolExprPtr) *BoolExprPtr {
	if e.Kind() != TY_EXISTS {
		return nil
	}
	return e.e.(*internalExists).body
}
