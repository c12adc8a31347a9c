package ruleengine

// eqNode implements EQ (and NE when negate is set) over a pre-compiled set of
// canonical value keys, giving O(1) membership checks regardless of list size.
type eqNode struct {
	field  string
	values map[string]struct{}
	negate bool
}

// Eval checks the context value against the compiled set.
// An absent field is never equal and never "not equal": both EQ and NE are false.
func (n *eqNode) Eval(ctx *Context) bool {
	v, ok := ctx.Get(n.field)
	if !ok {
		return false
	}

	key, ok := valueKey(v)
	if !ok {
		// Objects and arrays never match scalar targeting values.
		return false
	}

	_, found := n.values[key]
	if n.negate {
		return !found
	}
	return found
}
