package pysrc

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// NamedChildren returns the named children of a node.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// Children returns all children of a node, punctuation included.
func Children(n *sitter.Node) []*sitter.Node {
	count := int(n.ChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.Child(i))
	}
	return out
}

// FindAll walks the subtree rooted at n pre-order and returns every node
// whose type is in types.
func FindAll(n *sitter.Node, types ...string) []*sitter.Node {
	var result []*sitter.Node

	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		for _, t := range types {
			if node.Type() == t {
				result = append(result, node)
				break
			}
		}
		count := int(node.ChildCount())
		for i := 0; i < count; i++ {
			walk(node.Child(i))
		}
	}

	walk(n)
	return result
}

// Walk visits the subtree rooted at n pre-order. The visitor returns
// false to skip a node's children.
func Walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		Walk(n.Child(i), visit)
	}
}

// ByteRange returns the half-open byte range covered by a node.
func ByteRange(n *sitter.Node) (int, int) {
	return int(n.StartByte()), int(n.EndByte())
}

// Position returns the 0-based (line, column) of a node's start,
// matching the convention the type oracle uses.
func Position(n *sitter.Node) (int, int) {
	p := n.StartPoint()
	return int(p.Row), int(p.Column)
}

// IsNoOpStatement reports whether a statement node carries no behavior:
// pass, ellipsis, or a bare string expression (docstrings).
func IsNoOpStatement(n *sitter.Node) bool {
	switch n.Type() {
	case "pass_statement":
		return true
	case "expression_statement":
		if n.NamedChildCount() != 1 {
			return false
		}
		inner := n.NamedChild(0)
		return inner.Type() == "string" || inner.Type() == "ellipsis"
	}
	return false
}
