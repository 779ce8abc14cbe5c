package expr

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

/*
 *  TY_CONST
 */

type internalBVV struct {
	Value BVConst
}

func mkinternalBVV(value int64, size uint) *internalBVV {
	return &internalBVV{Value: *MakeBVConst(value, size)}
}

func mkinternalBVVFromConst(c BVConst) *internalBVV {
	return &internalBVV{Value: c}
}

func (bvv *internalBVV) String() string      { return fmt.Sprintf("0x%x", bvv.Value.value) }
func (bvv *internalBVV) size() uint          { return bvv.Value.Size }
func (bvv *internalBVV) subexprs() []internalExpr { return nil }
func (bvv *internalBVV) kind() int           { return TY_CONST }
func (bvv *internalBVV) isLeaf() bool        { return true }
func (bvv *internalBVV) rawPtr() uintptr     { return uintptr(unsafe.Pointer(bvv)) }

func (bvv *internalBVV) hash() uint64 {
	if bvv.Value.Size > 64 {
		cpy := bvv.Value.Copy()
		cpy.Truncate(63, 0)
		return cpy.AsULong()
	}
	return bvv.Value.AsULong()
}

func (bvv *internalBVV) deepEq(other internalBVExpr) bool {
	if other.kind() != TY_CONST {
		return false
	}
	obvv := other.(*internalBVV)
	res, err := bvv.Value.Eq(&obvv.Value)
	return err == nil && res.Value
}

func (bvv *internalBVV) shallowEq(other internalBVExpr) bool { return bvv.deepEq(other) }

/*
 *  TY_BOOL_CONST
 */

type internalBoolVal struct {
	Value BoolConst
}

func mkinternalBoolConst(value bool) *internalBoolVal {
	if value {
		return &internalBoolVal{Value: BoolTrue()}
	}
	return &internalBoolVal{Value: BoolFalse()}
}

func (b *internalBoolVal) String() string      { return b.Value.String() }
func (b *internalBoolVal) subexprs() []internalExpr { return nil }
func (b *internalBoolVal) kind() int           { return TY_BOOL_CONST }
func (b *internalBoolVal) isLeaf() bool        { return true }
func (b *internalBoolVal) rawPtr() uintptr     { return uintptr(unsafe.Pointer(b)) }

func (b *internalBoolVal) hash() uint64 {
	if b.Value.Value {
		return 1
	}
	return 0
}

func (b *internalBoolVal) deepEq(other internalBoolExpr) bool {
	if other.kind() != TY_BOOL_CONST {
		return false
	}
	return other.(*internalBoolVal).Value.Value == b.Value.Value
}

func (b *internalBoolVal) shallowEq(other internalBoolExpr) bool { return b.deepEq(other) }

/*
 *  TY_SYM
 */

type internalBVS struct {
	name string
	sz   uint
}

func mkinternalBVS(name string, size uint) *internalBVS {
	return &internalBVS{name: name, sz: size}
}

func (bvs *internalBVS) String() string      { return bvs.name }
func (bvs *internalBVS) size() uint          { return bvs.sz }
func (bvs *internalBVS) subexprs() []internalExpr { return nil }
func (bvs *internalBVS) kind() int           { return TY_SYM }
func (bvs *internalBVS) isLeaf() bool        { return true }
func (bvs *internalBVS) rawPtr() uintptr     { return uintptr(unsafe.Pointer(bvs)) }

func (bvs *internalBVS) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte(bvs.name))
	return h.Sum64()
}

func (bvs *internalBVS) deepEq(other internalBVExpr) bool {
	if other.kind() != TY_SYM {
		return false
	}
	o := other.(*internalBVS)
	return o.sz == bvs.sz && o.name == bvs.name
}

func (bvs *internalBVS) shallowEq(other internalBVExpr) bool { return bvs.deepEq(other) }

/*
 * TY_AND, TY_OR, TY_XOR, TY_ADD, TY_MUL, TY_SDIV, TY_UDIV, TY_SREM, TY_UREM,
 * TY_SHL, TY_LSHR, TY_ASHR
 */

type internalBVExprBinArithmetic struct {
	knd      uint8
	symbol   string
	children []*BVExprPtr
}

func mkBVArithmeticExpr(children []*BVExprPtr, kind int, symbol string) (*internalBVExprBinArithmetic, error) {
	if len(children) < 2 {
		return nil, fmt.Errorf("mkBVArithmeticExpr(): not enough children")
	}
	for i := 1; i < len(children); i++ {
		if children[i].Size() != children[0].Size() {
			return nil, fmt.Errorf("mkBVArithmeticExpr(): invalid sizes")
		}
	}
	return &internalBVExprBinArithmetic{knd: uint8(kind), symbol: symbol, children: children}, nil
}

func (e *internalBVExprBinArithmetic) String() string {
	b := strings.Builder{}
	writeTerm(&b, e.children[0])
	for i := 1; i < len(e.children); i++ {
		b.WriteString(fmt.Sprintf(" %s ", e.symbol))
		writeTerm(&b, e.children[i])
	}
	return b.String()
}

func writeTerm(b *strings.Builder, e *BVExprPtr) {
	if e.e.isLeaf() {
		b.WriteString(e.String())
	} else {
		b.WriteString(fmt.Sprintf("(%s)", e.String()))
	}
}

func (e *internalBVExprBinArithmetic) size() uint { return e.children[0].Size() }

func (e *internalBVExprBinArithmetic) subexprs() []internalExpr {
	res := make([]internalExpr, 0, len(e.children))
	for _, c := range e.children {
		res = append(res, c.e)
	}
	return res
}

func (e *internalBVExprBinArithmetic) kind() int { return int(e.knd) }

func (e *internalBVExprBinArithmetic) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte(e.symbol))
	for _, c := range e.children {
		writeU64(h, uint64(c.e.rawPtr()))
	}
	return h.Sum64()
}

func writeU64(h *xxhash.Digest, v uint64) {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, v)
	h.Write(raw)
}

func (e *internalBVExprBinArithmetic) deepEq(other internalBVExpr) bool {
	if other.kind() != e.kind() {
		return false
	}
	oe := other.(*internalBVExprBinArithmetic)
	if len(oe.children) != len(e.children) {
		return false
	}
	for i := range e.children {
		if !e.children[i].e.deepEq(oe.children[i].e) {
			return false
		}
	}
	return true
}

func (e *internalBVExprBinArithmetic) shallowEq(other internalBVExpr) bool {
	if other.kind() != e.kind() {
		return false
	}
	oe := other.(*internalBVExprBinArithmetic)
	if len(oe.children) != len(e.children) {
		return false
	}
	for i := range e.children {
		if e.children[i].e.rawPtr() != oe.children[i].e.rawPtr() {
			return false
		}
	}
	return true
}

func (e *internalBVExprBinArithmetic) isLeaf() bool    { return false }
func (e *internalBVExprBinArithmetic) rawPtr() uintptr { return uintptr(unsafe.Pointer(e)) }

func mkinternalBVExprAnd(c []*BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBVArithmeticExpr(c, TY_AND, "&")
}
func mkinternalBVExprOr(c []*BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBVArithmeticExpr(c, TY_OR, "|")
}
func mkinternalBVExprXor(c []*BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBVArithmeticExpr(c, TY_XOR, "^")
}
func mkinternalBVExprAdd(c []*BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBVArithmeticExpr(c, TY_ADD, "+")
}
func mkinternalBVExprMul(c []*BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBVArithmeticExpr(c, TY_MUL, "*")
}

func mkBin2(lhs, rhs *BVExprPtr, kind int, symbol string) (*internalBVExprBinArithmetic, error) {
	return mkBVArithmeticExpr([]*BVExprPtr{lhs, rhs}, kind, symbol)
}

func mkinternalBVExprSdiv(lhs, rhs *BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBin2(lhs, rhs, TY_SDIV, "s/")
}
func mkinternalBVExprUdiv(lhs, rhs *BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBin2(lhs, rhs, TY_UDIV, "u/")
}
func mkinternalBVExprSrem(lhs, rhs *BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBin2(lhs, rhs, TY_SREM, "s%")
}
func mkinternalBVExprUrem(lhs, rhs *BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBin2(lhs, rhs, TY_UREM, "u%")
}
func mkinternalBVExprShl(lhs, rhs *BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBin2(lhs, rhs, TY_SHL, "<<")
}
func mkinternalBVExprLshr(lhs, rhs *BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBin2(lhs, rhs, TY_LSHR, "l>>")
}
func mkinternalBVExprAshr(lhs, rhs *BVExprPtr) (*internalBVExprBinArithmetic, error) {
	return mkBin2(lhs, rhs, TY_ASHR, "a>>")
}

/*
 * TY_NOT, TY_NEG
 */

type internalBVExprUnArithmetic struct {
	knd    uint8
	symbol string
	child  *BVExprPtr
}

func mkinternalBVExprUnArithmetic(child *BVExprPtr, kind int, symbol string) (*internalBVExprUnArithmetic, error) {
	return &internalBVExprUnArithmetic{knd: uint8(kind), symbol: symbol, child: child}, nil
}

func (e *internalBVExprUnArithmetic) String() string {
	if e.child.e.isLeaf() {
		return fmt.Sprintf("%s%s", e.symbol, e.child.String())
	}
	return fmt.Sprintf("%s(%s)", e.symbol, e.child.String())
}

func (e *internalBVExprUnArithmetic) size() uint { return e.child.Size() }
func (e *internalBVExprUnArithmetic) subexprs() []internalExpr {
	return []internalExpr{e.child.e}
}
func (e *internalBVExprUnArithmetic) kind() int { return int(e.knd) }
func (e *internalBVExprUnArithmetic) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte(e.symbol))
	writeU64(h, uint64(e.child.e.rawPtr()))
	return h.Sum64()
}

func (e *internalBVExprUnArithmetic) deepEq(other internalBVExpr) bool {
	if other.kind() != e.kind() {
		return false
	}
	return e.child.e.deepEq(other.(*internalBVExprUnArithmetic).child.e)
}

func (e *internalBVExprUnArithmetic) shallowEq(other internalBVExpr) bool {
	if other.kind() != e.kind() {
		return false
	}
	return e.child.e.rawPtr() == other.(*internalBVExprUnArithmetic).child.e.rawPtr()
}

func (e *internalBVExprUnArithmetic) isLeaf() bool    { return false }
func (e *internalBVExprUnArithmetic) rawPtr() uintptr { return uintptr(unsafe.Pointer(e)) }

func mkinternalBVExprNot(e *BVExprPtr) (*internalBVExprUnArithmetic, error) {
	return mkinternalBVExprUnArithmetic(e, TY_NOT, "~")
}
func mkinternalBVExprNeg(e *BVExprPtr) (*internalBVExprUnArithmetic, error) {
	return mkinternalBVExprUnArithmetic(e, TY_NEG, "-")
}

/*
 * TY_ULT, TY_ULE, TY_UGT, TY_UGE, TY_SLT, TY_SLE, TY_SGT, TY_SGE, TY_EQ
 */

type internalBoolExprCmp struct {
	knd      uint8
	symbol   string
	lhs, rhs *BVExprPtr
}

func mkinternalBoolExprCmp(lhs, rhs *BVExprPtr, kind int, symbol string) (*internalBoolExprCmp, error) {
	if rhs.Size() != lhs.Size() {
		return nil, fmt.Errorf("mkinternalBoolExprCmp(): invalid sizes")
	}
	return &internalBoolExprCmp{knd: uint8(kind), symbol: symbol, lhs: lhs, rhs: rhs}, nil
}

func (e *internalBoolExprCmp) String() string {
	b := strings.Builder{}
	writeTerm(&b, e.lhs)
	b.WriteString(fmt.Sprintf(" %s ", e.symbol))
	writeTerm(&b, e.rhs)
	return b.String()
}

func (e *internalBoolExprCmp) subexprs() []internalExpr {
	return []internalExpr{e.lhs.e, e.rhs.e}
}
func (e *internalBoolExprCmp) kind() int { return int(e.knd) }
func (e *internalBoolExprCmp) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte(e.symbol))
	writeU64(h, uint64(e.lhs.e.rawPtr()))
	writeU64(h, uint64(e.rhs.e.rawPtr()))
	return h.Sum64()
}

func (e *internalBoolExprCmp) deepEq(other internalBoolExpr) bool {
	if other.kind() != e.kind() {
		return false
	}
	oe := other.(*internalBoolExprCmp)
	return e.lhs.e.deepEq(oe.lhs.e) && e.rhs.e.deepEq(oe.rhs.e)
}

func (e *internalBoolExprCmp) shallowEq(other internalBoolExpr) bool {
	if other.kind() != e.kind() {
		return false
	}
	oe := other.(*internalBoolExprCmp)
	return e.lhs.e.rawPtr() == oe.lhs.e.rawPtr() && e.rhs.e.rawPtr() == oe.rhs.e.rawPtr()
}

func (e *internalBoolExprCmp) isLeaf() bool    { return false }
func (e *internalBoolExprCmp) rawPtr() uintptr { return uintptr(unsafe.Pointer(e)) }

func mkinternalBoolExprUlt(l, r *BVExprPtr) (*internalBoolExprCmp, error) { return mkinternalBoolExprCmp(l, r, TY_ULT, "u<") }
func mkinternalBoolExprUle(l, r *BVExprPtr) (*internalBoolExprCmp, error) { return mkinternalBoolExprCmp(l, r, TY_ULE, "u<=") }
func mkinternalBoolExprUgt(l, r *BVExprPtr) (*internalBoolExprCmp, error) { return mkinternalBoolExprCmp(l, r, TY_UGT, "u>") }
func mkinternalBoolExprUge(l, r *BVExprPtr) (*internalBoolExprCmp, error) { return mkinternalBoolExprCmp(l, r, TY_UGE, "u>=") }
func mkinternalBoolExprSlt(l, r *BVExprPtr) (*internalBoolExprCmp, error) { return mkinternalBoolExprCmp(l, r, TY_SLT, "s<") }
func mkinternalBoolExprSle(l, r *BVExprPtr) (*internalBoolExprCmp, error) { return mkinternalBoolExprCmp(l, r, TY_SLE, "s<=") }
func mkinternalBoolExprSgt(l, r *BVExprPtr) (*internalBoolExprCmp, error) { return mkinternalBoolExprCmp(l, r, TY_SGT, "s>") }
func mkinternalBoolExprSge(l, r *BVExprPtr) (*internalBoolExprCmp, error) { return mkinternalBoolExprCmp(l, r, TY_SGE, "s>=") }
func mkinternalBoolExprEq(l, r *BVExprPtr) (*internalBoolExprCmp, error)  { return mkinternalBoolExprCmp(l, r, TY_EQ, "==") }

/*
 * TY_BOOL_AND, TY_BOOL_OR
 */

type internalBoolExprNaryOp struct {
	knd      uint8
	symbol   string
	children []*BoolExprPtr
}

func mkinternalBoolExprNaryOp(children []*BoolExprPtr, kind int, symbol string) *internalBoolExprNaryOp {
	return &internalBoolExprNaryOp{knd: uint8(kind), symbol: symbol, children: children}
}

func (e *internalBoolExprNaryOp) String() string {
	b := strings.Builder{}
	writeBoolTerm(&b, e.children[0])
	for i := 1; i < len(e.children); i++ {
		b.WriteString(fmt.Sprintf(" %s ", e.symbol))
		writeBoolTerm(&b, e.children[i])
	}
	return b.String()
}

func writeBoolTerm(b *strings.Builder, e *BoolExprPtr) {
	if e.e.isLeaf() {
		b.WriteString(e.String())
	} else {
		b.WriteString(fmt.Sprintf("(%s)", e.String()))
	}
}

func (e *internalBoolExprNaryOp) subexprs() []internalExpr {
	res := make([]internalExpr, 0, len(e.children))
	for _, c := range e.children {
		res = append(res, c.e)
	}
	return res
}
func (e *internalBoolExprNaryOp) kind() int { return int(e.knd) }
func (e *internalBoolExprNaryOp) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte(e.symbol))
	for _, c := range e.children {
		writeU64(h, uint64(c.e.rawPtr()))
	}
	return h.Sum64()
}

func (e *internalBoolExprNaryOp) deepEq(other internalBoolExpr) bool {
	if other.kind() != e.kind() {
		return false
	}
	oe := other.(*internalBoolExprNaryOp)
	if len(e.children) != len(oe.children) {
		return false
	}
	for i := range e.children {
		if !e.children[i].e.deepEq(oe.children[i].e) {
			return false
		}
	}
	return true
}

func (e *internalBoolExprNaryOp) shallowEq(other internalBoolExpr) bool {
	if other.kind() != e.kind() {
		return false
	}
	oe := other.(*internalBoolExprNaryOp)
	if len(e.children) != len(oe.children) {
		return false
	}
	for i := range e.children {
		if e.children[i].e.rawPtr() != oe.children[i].e.rawPtr() {
			return false
		}
	}
	return true
}

func (e *internalBoolExprNaryOp) isLeaf() bool    { return false }
func (e *internalBoolExprNaryOp) rawPtr() uintptr { return uintptr(unsafe.Pointer(e)) }

func mkinternalBoolExprAnd(c []*BoolExprPtr) *internalBoolExprNaryOp {
	return mkinternalBoolExprNaryOp(c, TY_BOOL_AND, "&&")
}
func mkinternalBoolExprOr(c []*BoolExprPtr) *internalBoolExprNaryOp {
	return mkinternalBoolExprNaryOp(c, TY_BOOL_OR, "||")
}

/*
 * TY_BOOL_NOT
 */

type internalBoolUnArithmetic struct {
	child *BoolExprPtr
}

func (e *internalBoolUnArithmetic) String() string {
	if e.child.e.isLeaf() {
		return fmt.Sprintf("!%s", e.child.String())
	}
	return fmt.Sprintf("!(%s)", e.child.String())
}

func (e *internalBoolUnArithmetic) subexprs() []internalExpr { return []internalExpr{e.child.e} }
func (e *internalBoolUnArithmetic) kind() int                 { return TY_BOOL_NOT }
func (e *internalBoolUnArithmetic) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte("!"))
	writeU64(h, uint64(e.child.e.rawPtr()))
	return h.Sum64()
}

func (e *internalBoolUnArithmetic) deepEq(other internalBoolExpr) bool {
	if other.kind() != TY_BOOL_NOT {
		return false
	}
	return e.child.e.deepEq(other.(*internalBoolUnArithmetic).child.e)
}

func (e *internalBoolUnArithmetic) shallowEq(other internalBoolExpr) bool {
	if other.kind() != TY_BOOL_NOT {
		return false
	}
	return e.child.e.rawPtr() == other.(*internalBoolUnArithmetic).child.e.rawPtr()
}

func (e *internalBoolUnArithmetic) isLeaf() bool    { return false }
func (e *internalBoolUnArithmetic) rawPtr() uintptr { return uintptr(unsafe.Pointer(e)) }

func mkinternalBoolNot(e *BoolExprPtr) *internalBoolUnArithmetic {
	return &internalBoolUnArithmetic{child: e}
}

/*
 *  TY_EXTRACT
 */

type internalBVExprExtract struct {
	child     *BVExprPtr
	high, low uint
}

func mkinternalBVExprExtract(child *BVExprPtr, high, low uint) (*internalBVExprExtract, error) {
	if high < low {
		return nil, fmt.Errorf("mkinternalBVExprExtract(): high < low")
	}
	if child.Size() < high-low+1 {
		return nil, fmt.Errorf("mkinternalBVExprExtract(): high-low+1 > child.Size")
	}
	return &internalBVExprExtract{child: child, high: high, low: low}, nil
}

func (e *internalBVExprExtract) String() string {
	b := strings.Builder{}
	writeTerm(&b, e.child)
	b.WriteString(fmt.Sprintf("[%d:%d]", e.high, e.low))
	return b.String()
}

func (e *internalBVExprExtract) size() uint { return e.high - e.low + 1 }
func (e *internalBVExprExtract) subexprs() []internalExpr { return []internalExpr{e.child.e} }
func (e *internalBVExprExtract) kind() int { return TY_EXTRACT }
func (e *internalBVExprExtract) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte("TY_EXTRACT"))
	writeU64(h, uint64(e.child.e.rawPtr()))
	writeU64(h, uint64(e.low))
	writeU64(h, uint64(e.high))
	return h.Sum64()
}

func (e *internalBVExprExtract) deepEq(other internalBVExpr) bool {
	if other.kind() != TY_EXTRACT {
		return false
	}
	oe := other.(*internalBVExprExtract)
	return e.child.e.deepEq(oe.child.e) && e.low == oe.low && e.high == oe.high
}

func (e *internalBVExprExtract) shallowEq(other internalBVExpr) bool {
	if other.kind() != TY_EXTRACT {
		return false
	}
	oe := other.(*internalBVExprExtract)
	return e.child.e.rawPtr() == oe.child.e.rawPtr() && e.low == oe.low && e.high == oe.high
}

func (e *internalBVExprExtract) isLeaf() bool    { return false }
func (e *internalBVExprExtract) rawPtr() uintptr { return uintptr(unsafe.Pointer(e)) }

/*
 *  TY_CONCAT
 */

type internalBVExprConcat struct {
	children []*BVExprPtr
}

func mkinternalBVExprConcat(children []*BVExprPtr) (*internalBVExprConcat, error) {
	if len(children) < 2 {
		return nil, fmt.Errorf("mkinternalBVExprConcat(): expected at least 2 children")
	}
	return &internalBVExprConcat{children: children}, nil
}

func (e *internalBVExprConcat) String() string {
	b := strings.Builder{}
	writeTerm(&b, e.children[0])
	for i := 1; i < len(e.children); i++ {
		b.WriteString(" .. ")
		writeTerm(&b, e.children[i])
	}
	return b.String()
}

func (e *internalBVExprConcat) size() uint {
	var size uint
	for _, c := range e.children {
		size += c.Size()
	}
	return size
}

func (e *internalBVExprConcat) subexprs() []internalExpr {
	res := make([]internalExpr, 0, len(e.children))
	for _, c := range e.children {
		res = append(res, c.e)
	}
	return res
}

func (e *internalBVExprConcat) kind() int { return TY_CONCAT }
func (e *internalBVExprConcat) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte("TY_CONCAT"))
	for _, c := range e.children {
		writeU64(h, uint64(c.e.rawPtr()))
	}
	return h.Sum64()
}

func (e *internalBVExprConcat) deepEq(other internalBVExpr) bool {
	if other.kind() != TY_CONCAT {
		return false
	}
	oe := other.(*internalBVExprConcat)
	if len(e.children) != len(oe.children) {
		return false
	}
	for i := range e.children {
		if !e.children[i].e.deepEq(oe.children[i].e) {
			return false
		}
	}
	return true
}

func (e *internalBVExprConcat) shallowEq(other internalBVExpr) bool {
	if other.kind() != TY_CONCAT {
		return false
	}
	oe := other.(*internalBVExprConcat)
	if len(e.children) != len(oe.children) {
		return false
	}
	for i := range e.children {
		if e.children[i].e.rawPtr() != oe.children[i].e.rawPtr() {
			return false
		}
	}
	return true
}

func (e *internalBVExprConcat) isLeaf() bool    { return false }
func (e *internalBVExprConcat) rawPtr() uintptr { return uintptr(unsafe.Pointer(e)) }

/*
 *   TY_ZEXT, TY_SEXT
 */

type internalBVExprExtend struct {
	signed bool
	n      uint
	child  *BVExprPtr
}

func mkinternalBVExprExtend(child *BVExprPtr, signed bool, n uint) (*internalBVExprExtend, error) {
	if n == 0 {
		return nil, fmt.Errorf("trying to create a BVExprExtend with n == 0")
	}
	return &internalBVExprExtend{child: child, n: n, signed: signed}, nil
}

func (e *internalBVExprExtend) String() string {
	tag := "ZExt"
	if e.signed {
		tag = "SExt"
	}
	return fmt.Sprintf("%s(%s, %d)", tag, e.child.String(), e.n)
}

func (e *internalBVExprExtend) size() uint { return e.child.Size() + e.n }
func (e *internalBVExprExtend) subexprs() []internalExpr { return []internalExpr{e.child.e} }
func (e *internalBVExprExtend) kind() int {
	if e.signed {
		return TY_SEXT
	}
	return TY_ZEXT
}

func (e *internalBVExprExtend) hash() uint64 {
	h := xxhash.New()
	if e.signed {
		h.Write([]byte("TY_SEXT"))
	} else {
		h.Write([]byte("TY_ZEXT"))
	}
	writeU64(h, uint64(e.child.e.rawPtr()))
	return h.Sum64()
}

func (e *internalBVExprExtend) deepEq(other internalBVExpr) bool {
	if other.kind() != e.kind() {
		return false
	}
	oe := other.(*internalBVExprExtend)
	return e.n == oe.n && e.child.e.deepEq(oe.child.e)
}

func (e *internalBVExprExtend) shallowEq(other internalBVExpr) bool {
	if other.kind() != e.kind() {
		return false
	}
	oe := other.(*internalBVExprExtend)
	return e.n == oe.n && e.child.e.rawPtr() == oe.child.e.rawPtr()
}

func (e *internalBVExprExtend) isLeaf() bool    { return false }
func (e *internalBVExprExtend) rawPtr() uintptr { return uintptr(unsafe.Pointer(e)) }

func mkinternalBVExprSExt(e *BVExprPtr, n uint) (*internalBVExprExtend, error) {
	return mkinternalBVExprExtend(e, true, n)
}
func mkinternalBVExprZExt(e *BVExprPtr, n uint) (*internalBVExprExtend, error) {
	return mkinternalBVExprExtend(e, false, n)
}

/*
 *   TY_ITE
 */

type internalBVExprITE struct {
	cond    *BoolExprPtr
	iftrue  *BVExprPtr
	iffalse *BVExprPtr
}

func mkinternalBVExprITE(cond *BoolExprPtr, iftrue, iffalse *BVExprPtr) (*internalBVExprITE, error) {
	if iftrue.Size() != iffalse.Size() {
		return nil, fmt.Errorf("mkinternalBVExprITE(): invalid sizes")
	}
	return &internalBVExprITE{cond: cond, iftrue: iftrue, iffalse: iffalse}, nil
}

func (e *internalBVExprITE) String() string {
	return fmt.Sprintf("ITE(%s, %s, %s)", e.cond.String(), e.iftrue.String(), e.iffalse.String())
}

func (e *internalBVExprITE) size() uint { return e.iftrue.Size() }
func (e *internalBVExprITE) subexprs() []internalExpr {
	return []internalExpr{e.iftrue.e, e.iffalse.e, e.cond.e}
}
func (e *internalBVExprITE) kind() int { return TY_ITE }
func (e *internalBVExprITE) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte("TY_ITE"))
	writeU64(h, uint64(e.cond.e.rawPtr()))
	writeU64(h, uint64(e.iftrue.e.rawPtr()))
	writeU64(h, uint64(e.iffalse.e.rawPtr()))
	return h.Sum64()
}

func (e *internalBVExprITE) deepEq(other internalBVExpr) bool {
	if other.kind() != TY_ITE {
		return false
	}
	oe := other.(*internalBVExprITE)
	return e.cond.e.deepEq(oe.cond.e) && e.iftrue.e.deepEq(oe.iftrue.e) && e.iffalse.e.deepEq(oe.iffalse.e)
}

func (e *internalBVExprITE) shallowEq(other internalBVExpr) bool {
	if other.kind() != TY_ITE {
		return false
	}
	oe := other.(*internalBVExprITE)
	return e.cond.e.rawPtr() == oe.cond.e.rawPtr() &&
		e.iftrue.e.rawPtr() == oe.iftrue.e.rawPtr() &&
		e.iffalse.e.rawPtr() == oe.iffalse.e.rawPtr()
}

func (e *internalBVExprITE) isLeaf() bool    { return false }
func (e *internalBVExprITE) rawPtr() uintptr { return uintptr(unsafe.Pointer(e)) }
