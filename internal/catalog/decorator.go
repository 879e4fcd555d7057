package catalog

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"depmig/internal/pysrc"
)

// declMeta holds version metadata extracted from decorator keyword
// arguments.
type declMeta struct {
	since    string
	removeIn string
	message  string
}

// decoratorName returns the last dotted segment of a decorator's
// target, with any call arguments ignored: `@a.b.deprecated(...)`
// yields "deprecated".
func decoratorName(decorator *sitter.Node, tree *pysrc.Tree) string {
	expr := decorator.NamedChild(0)
	if expr == nil {
		return ""
	}
	if expr.Type() == "call" {
		expr = expr.ChildByFieldName("function")
		if expr == nil {
			return ""
		}
	}
	return lastDottedSegment(tree.Text(expr))
}

func lastDottedSegment(text string) string {
	if idx := strings.LastIndex(text, "."); idx >= 0 {
		return text[idx+1:]
	}
	return text
}

// decoratorMeta extracts since/remove-in/message keyword arguments from
// a deprecation decorator. Malformed arguments are ignored locally and
// never abort the scan.
func (s *scan) decoratorMeta(decorator *sitter.Node) declMeta {
	meta := declMeta{}

	expr := decorator.NamedChild(0)
	if expr == nil || expr.Type() != "call" {
		return meta
	}
	args := expr.ChildByFieldName("arguments")
	if args == nil {
		return meta
	}

	for _, arg := range pysrc.NamedChildren(args) {
		if arg.Type() != "keyword_argument" {
			continue
		}
		s.applyMetaKeyword(&meta, arg)
	}
	return meta
}

// applyMetaKeyword folds one keyword argument into meta. Unrecognized
// names and unusable values are skipped.
func (s *scan) applyMetaKeyword(meta *declMeta, kw *sitter.Node) {
	nameNode := kw.ChildByFieldName("name")
	valueNode := kw.ChildByFieldName("value")
	if nameNode == nil || valueNode == nil {
		return
	}

	switch s.text(nameNode) {
	case "since", "deprecated_in":
		meta.since = versionText(valueNode, s.tree)
	case "remove_in", "removed_in":
		meta.removeIn = versionText(valueNode, s.tree)
	case "message", "details", "reason":
		meta.message = stringText(valueNode, s.tree)
	}
}

// versionText renders a version value. Tuple-valued versions join
// their elements with ".": (1, 4, 0) becomes "1.4.0".
func versionText(value *sitter.Node, tree *pysrc.Tree) string {
	switch value.Type() {
	case "string":
		return stringText(value, tree)
	case "tuple":
		parts := make([]string, 0, value.NamedChildCount())
		for _, el := range pysrc.NamedChildren(value) {
			parts = append(parts, strings.TrimSpace(tree.Text(el)))
		}
		return strings.Join(parts, ".")
	default:
		return tree.Text(value)
	}
}

// stringText strips quoting from a string literal; non-strings are
// returned verbatim.
func stringText(value *sitter.Node, tree *pysrc.Tree) string {
	text := tree.Text(value)
	if value.Type() != "string" {
		return text
	}
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2*len(q) {
			return text[len(q) : len(text)-len(q)]
		}
	}
	return text
}
