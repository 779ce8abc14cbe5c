package expr

import "testing"

func TestShadowMapIsIdempotentPerSymbol(t *testing.T) {
	b := NewBuilder()
	sm := NewShadowMap(b, "sh")
	x := b.BVS("x", 32)

	e1 := sm.GetShadowExpr(x)
	e2 := sm.GetShadowExpr(x)
	if e1.(*BVExprPtr).Id() != e2.(*BVExprPtr).Id() {
		t.Fatalf("shadowing the same symbol twice should return the same shadow")
	}
}

func TestShadowRoundTripsToOrigin(t *testing.T) {
	b := NewBuilder()
	sm := NewShadowMap(b, "sh")
	x := b.BVS("x", 32)

	shadowed := sm.GetShadowExpr(x).(*BVExprPtr)
	origin, ok := sm.Origin(shadowed)
	if !ok {
		t.Fatalf("expected shadow symbol to have a recorded origin")
	}
	if origin.Id() != x.Id() {
		t.Fatalf("origin should round-trip to the original symbol")
	}
	if !sm.IsShadow(shadowed) {
		t.Fatalf("IsShadow should report true for an allocated shadow")
	}
}

func TestShadowExpressionHasNoFreeOriginalSymbol(t *testing.T) {
	b := NewBuilder()
	sm := NewShadowMap(b, "sh")
	x := b.BVS("x", 32)
	y := b.BVS("y", 32)
	sum, err := b.Add(x, y)
	if err != nil {
		t.Fatal(err)
	}
	shadowed := sm.GetShadowExpr(sum)
	for _, sym := range b.InvolvedInputs(shadowed) {
		if sym.Id() == x.Id() || sym.Id() == y.Id() {
			t.Fatalf("shadowed expression still mentions an original free symbol")
		}
	}
}
