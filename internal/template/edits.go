package template

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"depmig/internal/errors"
	"depmig/internal/patch"
	"depmig/internal/pysrc"
	"depmig/internal/rules"
)

// state carries one instantiation over a parsed template.
type state struct {
	inst     *Instantiator
	rule     *rules.ReplacementRule
	expr     *pysrc.Expr
	bindings map[string]*binding
	extras   []string // positional leftovers
	extraKw  []string // keyword/dict-splat leftovers, already "k=v" / "**d" texts
	edits    *patch.Set

	varargPlaced bool
	kwargPlaced  bool

	// deleted holds the node byte ranges of template call arguments
	// removed by placeholder deletion, so comma insertion for folded
	// extras can tell how many arguments remain.
	deleted [][2]int
}

// substitute walks the template tree and rewrites every placeholder.
func (st *state) substitute(ctx context.Context) error {
	varargName := ""
	if v, ok := st.rule.Vararg(); ok {
		varargName = v.Name
	}
	kwargName := ""
	if k, ok := st.rule.Kwarg(); ok {
		kwargName = k.Name
	}

	var walk func(n *sitter.Node) error
	walk = func(n *sitter.Node) error {
		switch n.Type() {
		case "list_splat":
			if varargName != "" && st.splatNames(n, varargName) {
				st.placeVararg(n)
				return nil // children handled
			}
		case "dictionary_splat":
			if kwargName != "" && st.splatNames(n, kwargName) {
				st.placeKwarg(n)
				return nil
			}
		case "identifier":
			return st.substituteIdentifier(ctx, n)
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			if err := walk(n.Child(i)); err != nil {
				return err
			}
		}
		return nil
	}

	return walk(st.expr.Root)
}

// splatNames reports whether a *x / **x node's inner name is name.
func (st *state) splatNames(n *sitter.Node, name string) bool {
	for _, c := range pysrc.NamedChildren(n) {
		if c.Type() == "identifier" {
			return st.expr.Text(c) == name
		}
	}
	return false
}

// placeVararg replaces a *args template reference with the extra
// positional arguments joined as inline comma text, or deletes it when
// there are none, so old(1) becomes new(1) with no stray comma.
func (st *state) placeVararg(n *sitter.Node) {
	st.varargPlaced = true
	if len(st.extras) == 0 {
		st.deleteWithComma(n)
		return
	}
	start, end := pysrc.ByteRange(n)
	st.edits.Add(patch.Edit{Start: start, End: end, Text: strings.Join(st.extras, ", ")})
}

// placeKwarg replaces a **kwargs template reference with the extra
// keyword arguments joined as `key=value, ...` text.
func (st *state) placeKwarg(n *sitter.Node) {
	st.kwargPlaced = true
	if len(st.extraKw) == 0 {
		st.deleteWithComma(n)
		return
	}
	start, end := pysrc.ByteRange(n)
	st.edits.Add(patch.Edit{Start: start, End: end, Text: strings.Join(st.extraKw, ", ")})
}

// substituteIdentifier rewrites one identifier node if it is a
// placeholder. Identifiers in attribute-name or keyword-name position
// are never placeholders.
func (st *state) substituteIdentifier(ctx context.Context, n *sitter.Node) error {
	name := st.expr.Text(n)
	b, isParam := st.bindings[name]
	if !isParam {
		return nil
	}

	parent := n.Parent()
	if parent != nil {
		switch parent.Type() {
		case "attribute":
			if attr := parent.ChildByFieldName("attribute"); attr != nil && attr.StartByte() == n.StartByte() {
				return nil // x.name, not the parameter
			}
		case "keyword_argument":
			if kwName := parent.ChildByFieldName("name"); kwName != nil && kwName.StartByte() == n.StartByte() {
				return nil // name=..., not the parameter
			}
		}
	}

	if b.bound {
		st.replaceBound(ctx, n, b.text)
		return nil
	}
	if name == st.rule.ReceiverName() {
		return errors.New(errors.UnresolvableCall,
			fmt.Sprintf("template references receiver %q but the call site has none", name), nil).
			WithDetails(st.rule.OldFQN)
	}
	return st.deletePlaceholder(n, name)
}

// replaceBound substitutes a bound argument's parsed text for the
// placeholder node. Text that fails to parse falls back to a bare
// identifier when it is one; otherwise the template node is left
// as-is and logged.
func (st *state) replaceBound(ctx context.Context, n *sitter.Node, text string) {
	start, end := pysrc.ByteRange(n)

	parsed, err := st.inst.parser.ParseExpr(ctx, text)
	if err != nil {
		if !pysrc.IsIdentifier(text) {
			st.inst.logger.Warn("bound argument text does not parse, leaving template node", map[string]interface{}{
				"rule": st.rule.OldFQN,
				"text": text,
			})
			return
		}
		st.edits.Add(patch.Edit{Start: start, End: end, Text: text})
		return
	}

	st.edits.Add(patch.Edit{Start: start, End: end, Text: st.parenthesized(parsed, n)})
}

// parenthesized wraps a substituted expression in parens when its
// precedence could bleed into the surrounding template expression.
// Call arguments never need this.
func (st *state) parenthesized(parsed *pysrc.Expr, site *sitter.Node) string {
	text := string(parsed.Source)

	parent := site.Parent()
	if parent != nil {
		switch parent.Type() {
		case "argument_list", "keyword_argument", "tuple", "list", "set", "dictionary", "pair":
			return text
		}
	}

	switch parsed.Root.Type() {
	case "binary_operator", "boolean_operator", "comparison_operator",
		"conditional_expression", "lambda", "not_operator", "await":
		return "(" + text + ")"
	}
	return text
}

// deletePlaceholder removes an unresolved placeholder (declared with a
// default, not supplied) so the callee's own default applies. It never
// fills in the default text.
func (st *state) deletePlaceholder(n *sitter.Node, name string) error {
	parent := n.Parent()
	if parent == nil {
		return errors.New(errors.UnresolvableCall,
			fmt.Sprintf("placeholder %q cannot be elided", name), nil).WithDetails(st.rule.OldFQN)
	}

	switch parent.Type() {
	case "keyword_argument":
		// keyword={name}: the whole fragment goes, comma included.
		st.deleteWithComma(parent)
		return nil
	case "argument_list":
		st.deleteWithComma(n)
		return nil
	default:
		// Deleting a placeholder embedded in a larger expression would
		// change its meaning; leave the call unmigrated instead.
		return errors.New(errors.UnresolvableCall,
			fmt.Sprintf("defaulted placeholder %q is not a call argument in the template", name), nil).
			WithDetails(st.rule.OldFQN)
	}
}

// deleteWithComma removes a node from its argument list along with the
// separating comma: the preceding one when it exists, else the
// following one together with the whitespace before the next argument.
func (st *state) deleteWithComma(n *sitter.Node) {
	start, end := pysrc.ByteRange(n)
	parent := n.Parent()

	if parent != nil {
		siblings := pysrc.Children(parent)
		idx := -1
		for i, c := range siblings {
			if c.StartByte() == n.StartByte() && c.EndByte() == n.EndByte() {
				idx = i
				break
			}
		}

		if idx >= 0 {
			if prev := previousComma(siblings, idx); prev != nil {
				start = int(prev.StartByte())
			} else if next, after := nextCommaAndArg(siblings, idx); next != nil {
				if after != nil {
					end = int(after.StartByte())
				} else {
					end = int(next.EndByte())
				}
			}
		}
	}

	st.markDeleted(n)
	st.edits.Add(patch.Edit{Start: start, End: end, Text: ""})
}

func previousComma(siblings []*sitter.Node, idx int) *sitter.Node {
	for i := idx - 1; i >= 0; i-- {
		switch siblings[i].Type() {
		case ",":
			return siblings[i]
		case "comment":
			continue
		default:
			return nil
		}
	}
	return nil
}

func nextCommaAndArg(siblings []*sitter.Node, idx int) (*sitter.Node, *sitter.Node) {
	var comma *sitter.Node
	for i := idx + 1; i < len(siblings); i++ {
		switch {
		case siblings[i].Type() == ",":
			comma = siblings[i]
		case siblings[i].Type() == "comment":
			continue
		case comma != nil:
			return comma, siblings[i]
		default:
			return nil, nil
		}
	}
	return comma, nil
}

// markDeleted remembers a removed argument of the template's top-level
// call so foldExtras can count what remains.
func (st *state) markDeleted(n *sitter.Node) {
	start, end := pysrc.ByteRange(n)
	st.deleted = append(st.deleted, [2]int{start, end})
}

func (st *state) isDeleted(n *sitter.Node) bool {
	start, end := pysrc.ByteRange(n)
	for _, d := range st.deleted {
		if d[0] <= start && end <= d[1] {
			return true
		}
	}
	return false
}

// foldExtras appends call-site arguments that found no template
// placeholder into the rendered call's own argument list: leftover
// positionals after the last positional argument, leftover keywords
// and **dict expansions at the end.
func (st *state) foldExtras() error {
	pos := st.extras
	if st.varargPlaced {
		pos = nil
	}
	kw := st.extraKw
	if st.kwargPlaced {
		kw = nil
	}
	if len(pos) == 0 && len(kw) == 0 {
		return nil
	}

	root := st.expr.Root
	for root.Type() == "await" {
		root = root.NamedChild(0)
	}
	if root.Type() != "call" {
		return errors.New(errors.UnresolvableCall,
			"extra arguments with a non-call template", nil).WithDetails(st.rule.OldFQN)
	}
	args := root.ChildByFieldName("arguments")
	if args == nil {
		return errors.New(errors.UnresolvableCall,
			"extra arguments with a call template without argument list", nil).WithDetails(st.rule.OldFQN)
	}

	var lastPositional *sitter.Node
	var firstKept *sitter.Node
	remaining := 0
	for _, a := range pysrc.NamedChildren(args) {
		if a.Type() == "comment" || st.isDeleted(a) {
			continue
		}
		remaining++
		if firstKept == nil {
			firstKept = a
		}
		if a.Type() != "keyword_argument" && a.Type() != "dictionary_splat" {
			lastPositional = a
		}
	}

	if remaining == 0 {
		// Everything goes in one insertion before the closing paren,
		// past any argument ranges already deleted.
		all := append(append([]string(nil), pos...), kw...)
		at := int(args.EndByte()) - 1
		st.edits.Add(patch.Edit{Start: at, End: at, Text: strings.Join(all, ", ")})
		return nil
	}

	if len(pos) > 0 {
		joined := strings.Join(pos, ", ")
		if lastPositional != nil {
			at := int(lastPositional.EndByte())
			st.edits.Add(patch.Edit{Start: at, End: at, Text: ", " + joined})
		} else {
			// Only keyword arguments in the template; positionals go first.
			at := int(firstKept.StartByte())
			st.edits.Add(patch.Edit{Start: at, End: at, Text: joined + ", "})
		}
	}

	if len(kw) > 0 {
		at := int(args.EndByte()) - 1
		st.edits.Add(patch.Edit{Start: at, End: at, Text: ", " + strings.Join(kw, ", ")})
	}
	return nil
}
