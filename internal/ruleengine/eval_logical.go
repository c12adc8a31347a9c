package ruleengine

// allNode is true when every child is true. An empty ALL is true.
type allNode struct {
	children []Node
}

func (n *allNode) Eval(ctx *Context) bool {
	for _, child := range n.children {
		if !child.Eval(ctx) {
			return false
		}
	}
	return true
}

// anyNode is true when at least one child is true. An empty ANY is false.
type anyNode struct {
	children []Node
}

func (n *anyNode) Eval(ctx *Context) bool {
	for _, child := range n.children {
		if child.Eval(ctx) {
			return true
		}
	}
	return false
}

type notNode struct {
	child Node
}

func (n *notNode) Eval(ctx *Context) bool {
	return !n.child.Eval(ctx)
}
