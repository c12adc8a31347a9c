package ruleengine

// Node is a compiled targeting predicate.
// Implementations are immutable and never fail: a missing field simply makes a
// leaf predicate false.
type Node interface {
	// Eval reports whether the context satisfies the predicate.
	Eval(ctx *Context) bool
}

// Evaluate runs a targeting tree against a context.
// A nil tree means the feature has no targeting block and is always eligible.
func Evaluate(tree Node, ctx *Context) bool {
	if tree == nil {
		return true
	}
	return tree.Eval(ctx)
}
