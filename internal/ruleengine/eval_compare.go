package ruleengine

// compareOp enumerates the numeric comparison operators.
type compareOp string

const (
	opGT compareOp = "GT"
	opGE compareOp = "GE"
	opLT compareOp = "LT"
	opLE compareOp = "LE"
)

// compareNode compares a numeric context field against a constant.
type compareNode struct {
	field string
	op    compareOp
	value float64
}

// Eval returns false when the field is absent or not numeric.
func (n *compareNode) Eval(ctx *Context) bool {
	v, ok := ctx.Get(n.field)
	if !ok {
		return false
	}

	got, ok := toFloat(v)
	if !ok {
		return false
	}

	switch n.op {
	case opGT:
		return got > n.value
	case opGE:
		return got >= n.value
	case opLT:
		return got < n.value
	case opLE:
		return got <= n.value
	default:
		return false
	}
}
