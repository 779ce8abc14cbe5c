package expr

// BoolConst is a concrete boolean value, used both as the folded result of
// constant comparisons and as the payload of TY_BOOL_CONST leaves.
type BoolConst struct {
	Value bool
}

func (b BoolConst) String() string {
	if b.Value {
		return "T"
	}
	return "F"
}

func BoolTrue() BoolConst {
	return BoolConst{true}
}

func BoolFalse() BoolConst {
	return BoolConst{false}
}

func (b BoolConst) Not() BoolConst {
	return BoolConst{!b.Value}
}

func (b BoolConst) And(o BoolConst) BoolConst {
	return BoolConst{b.Value && o.Value}
}

func (b BoolConst) Or(o BoolConst) BoolConst {
	return BoolConst{b.Value || o.Value}
}

func (b BoolConst) Xor(o BoolConst) BoolConst {
	return BoolConst{b.Value != o.Value}
}
