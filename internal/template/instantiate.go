// Package template renders a replacement rule's template against the
// actual arguments of one call site.
//
// Substitution is AST-node substitution over the parsed template, not
// string replacement: identifier nodes matching bound parameters are
// located by the template's syntax tree and replaced by byte range, so
// substring collisions and escaping inside string literals cannot
// corrupt the output. Rendering starts from the template's canonical
// text, which keeps string escaping, numeric forms, f-string structure
// and comprehension clause order exactly as the declaration wrote them,
// independent of the call site's whitespace.
package template

import (
	"context"
	"fmt"
	"strings"

	"depmig/internal/errors"
	"depmig/internal/logging"
	"depmig/internal/patch"
	"depmig/internal/pysrc"
	"depmig/internal/rules"
)

// Keyword is one keyword argument at the call site, in source order.
type Keyword struct {
	Name string
	Text string
}

// Call carries everything the instantiator needs from one call site.
// All fields are exact source text; nothing is re-evaluated.
type Call struct {
	// Receiver is the receiver expression for method calls, "" otherwise.
	Receiver string

	// Qualifier is the original Module./Class. prefix when the call was
	// written qualified, used to re-prefix an unqualified rendered head.
	Qualifier string

	// Positional are the positional argument texts in order. Iterable
	// splats (`*xs`) appear verbatim with their star.
	Positional []string

	// Keywords are the keyword arguments in order.
	Keywords []Keyword

	// DictSplats are `**d` expansion texts, stars included.
	DictSplats []string

	// InAwait is true when the call is the operand of an await
	// expression at the call site.
	InAwait bool
}

// Instantiator renders templates.
type Instantiator struct {
	parser *pysrc.Parser
	logger *logging.Logger
}

// NewInstantiator creates an instantiator.
func NewInstantiator(logger *logging.Logger) *Instantiator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Instantiator{
		parser: pysrc.NewParser(),
		logger: logger,
	}
}

type binding struct {
	text  string
	bound bool
}

// Render instantiates rule's template with the call's arguments and
// returns the replacement text. An error means the call must be left
// unmigrated; Render never guesses.
func (it *Instantiator) Render(ctx context.Context, rule *rules.ReplacementRule, call Call) (string, error) {
	if rule.Elidable() {
		return "", nil
	}

	bindings, extras, extraKw, err := it.bind(rule, call)
	if err != nil {
		return "", err
	}

	expr, err := it.parser.ParseExpr(ctx, rule.TemplateText)
	if err != nil {
		return "", err
	}

	st := &state{
		inst:     it,
		rule:     rule,
		expr:     expr,
		bindings: bindings,
		extras:   extras,
		extraKw:  extraKw,
		edits:    patch.NewSet(),
	}

	if err := st.substitute(ctx); err != nil {
		return "", err
	}
	if err := st.foldExtras(); err != nil {
		return "", err
	}

	out, err := st.edits.Apply(expr.Source)
	if err != nil {
		return "", err
	}
	rendered := strings.TrimSpace(string(out))

	rendered = it.dedupAwait(rendered, call)
	rendered, err = it.requalify(ctx, rendered, call)
	if err != nil {
		return "", err
	}
	return rendered, nil
}

// bind matches call arguments to the rule's parameters: named
// parameters by position then by keyword, receiver to the receiver
// text, leftovers into extras.
func (it *Instantiator) bind(rule *rules.ReplacementRule, call Call) (map[string]*binding, []string, []string, error) {
	bindings := make(map[string]*binding)

	if recv := rule.ReceiverName(); recv != "" {
		bindings[recv] = &binding{text: call.Receiver, bound: call.Receiver != ""}
	}

	named := rule.NamedParams()

	// A positional splat makes positional correspondence unknowable
	// when named parameters exist; leave such calls alone.
	for _, p := range call.Positional {
		if strings.HasPrefix(p, "*") && len(named) > 0 {
			return nil, nil, nil, errors.New(errors.UnresolvableCall,
				"positional splat prevents parameter binding", nil).WithDetails(rule.OldFQN)
		}
	}

	var extras []string
	for i, text := range call.Positional {
		if i < len(named) {
			if named[i].IsKwonly {
				// Too many positionals for the declaration; treat the
				// rest as extras.
				extras = append(extras, call.Positional[i:]...)
				break
			}
			bindings[named[i].Name] = &binding{text: text, bound: true}
			continue
		}
		extras = append(extras, text)
	}

	var extraKw []string
	for _, kw := range call.Keywords {
		matched := false
		for _, p := range named {
			if p.Name == kw.Name {
				bindings[p.Name] = &binding{text: kw.Text, bound: true}
				matched = true
				break
			}
		}
		if !matched {
			extraKw = append(extraKw, kw.Name+"="+kw.Text)
		}
	}
	extraKw = append(extraKw, call.DictSplats...)

	// Declared but unsupplied parameters stay as unresolved
	// placeholders; their deletion is legal only when they defaulted.
	for _, p := range named {
		if _, ok := bindings[p.Name]; ok {
			continue
		}
		if !p.HasDefault {
			return nil, nil, nil, errors.New(errors.UnresolvableCall,
				fmt.Sprintf("required parameter %q not supplied at call site", p.Name), nil).
				WithDetails(rule.OldFQN)
		}
		bindings[p.Name] = &binding{bound: false}
	}

	return bindings, extras, extraKw, nil
}

// dedupAwait drops the rendered text's own leading await when the call
// site already sits inside one.
func (it *Instantiator) dedupAwait(rendered string, call Call) string {
	if call.InAwait && strings.HasPrefix(rendered, "await ") {
		return strings.TrimPrefix(rendered, "await ")
	}
	return rendered
}

// requalify re-prefixes an unqualified rendered head with the call
// site's original qualifier: pkg.old_fn(x) whose template head is the
// bare new_fn keeps its pkg. prefix.
func (it *Instantiator) requalify(ctx context.Context, rendered string, call Call) (string, error) {
	if call.Qualifier == "" || rendered == "" {
		return rendered, nil
	}

	expr, err := it.parser.ParseExpr(ctx, rendered)
	if err != nil {
		// Instantiation produced something unparseable; surface it
		// rather than guessing at the head.
		return "", err
	}

	head := expr.Root
	for head.Type() == "await" {
		head = head.NamedChild(0)
	}
	if head.Type() == "call" {
		if fn := head.ChildByFieldName("function"); fn != nil {
			head = fn
		}
	}
	if head.Type() != "identifier" {
		return rendered, nil // already qualified or not a name head
	}

	offset := int(head.StartByte())
	return rendered[:offset] + call.Qualifier + "." + rendered[offset:], nil
}

// RenderMagic renders a magic-method rule reached through a builtin
// call such as len(x). The receiver binds to the argument's text and
// the result is re-wrapped in the builtin unless the template already
// wraps itself, which avoids len(len(...)).
func (it *Instantiator) RenderMagic(ctx context.Context, rule *rules.ReplacementRule, builtin, argText string) (string, error) {
	rendered, err := it.Render(ctx, rule, Call{Receiver: argText})
	if err != nil {
		return "", err
	}
	if rendered == "" {
		return "", nil
	}

	expr, err := it.parser.ParseExpr(ctx, rendered)
	if err != nil {
		return "", err
	}
	if expr.Root.Type() == "call" {
		if fn := expr.Root.ChildByFieldName("function"); fn != nil &&
			fn.Type() == "identifier" && expr.Text(fn) == builtin {
			return rendered, nil
		}
	}
	return builtin + "(" + rendered + ")", nil
}
