// Package resolver walks a module's syntax tree and decides, call site
// by call site, whether a cataloged deprecation rule applies. Matched
// sites are rendered through the template instantiator and collected as
// byte-range edits; everything else is left untouched.
package resolver

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"depmig/internal/catalog"
	"depmig/internal/errors"
	"depmig/internal/logging"
	"depmig/internal/oracle"
	"depmig/internal/patch"
	"depmig/internal/pysrc"
	"depmig/internal/rules"
	"depmig/internal/template"
)

// magicBuiltins maps builtin callables to the dunder method a class
// would define for them. A deprecated dunder is reached through the
// builtin call, never spelled directly at the call site.
var magicBuiltins = map[string]string{
	"len":   "__len__",
	"str":   "__str__",
	"repr":  "__repr__",
	"bool":  "__bool__",
	"int":   "__int__",
	"float": "__float__",
	"bytes": "__bytes__",
	"hash":  "__hash__",
	"abs":   "__abs__",
}

// Diagnostic reports one site the resolver looked at but did not
// migrate, with the reason. Diagnostics are informational; they never
// abort a pass.
type Diagnostic struct {
	Code    errors.ErrorCode `json:"code"`
	Symbol  string           `json:"symbol,omitempty"`
	Message string           `json:"message"`
	Line    int              `json:"line"`
	Col     int              `json:"col"`
}

// Resolver resolves call sites against a merged catalog. Catalog and
// InheritanceIndex are read-only here; concurrent file migrations each
// build their own Resolver around the shared catalog.
type Resolver struct {
	cat     *rules.Catalog
	inherit *rules.InheritanceIndex
	oracle  oracle.Oracle
	markers catalog.Markers
	inst    *template.Instantiator
	logger  *logging.Logger
}

// New creates a resolver.
func New(cat *rules.Catalog, inherit *rules.InheritanceIndex, orc oracle.Oracle, markers catalog.Markers, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resolver{
		cat:     cat,
		inherit: inherit,
		oracle:  orc,
		markers: markers,
		inst:    template.NewInstantiator(logger),
		logger:  logger,
	}
}

// Resolve performs one pass over the tree and returns the edits to
// apply plus diagnostics for sites left unmigrated. The pass is a
// single-threaded pre-order walk; deprecated declaration bodies are
// skipped so templates never rewrite themselves, and a migrated call's
// subtree is skipped so edits cannot overlap.
func (r *Resolver) Resolve(ctx context.Context, tree *pysrc.Tree, moduleName, filePath string) (*patch.Set, []Diagnostic, error) {
	p := &pass{
		r:       r,
		ctx:     ctx,
		tree:    tree,
		module:  moduleName,
		file:    filePath,
		aliases: pysrc.AliasTable(tree, moduleName),
		edits:   patch.NewSet(),
	}

	pysrc.Walk(tree.Root(), p.visit)
	return p.edits, p.diags, nil
}

type pass struct {
	r       *Resolver
	ctx     context.Context
	tree    *pysrc.Tree
	module  string
	file    string
	aliases map[string]string
	edits   *patch.Set
	diags   []Diagnostic
}

func (p *pass) visit(n *sitter.Node) bool {
	switch n.Type() {
	case "decorated_definition":
		if p.r.markers.MarksDeprecated(p.tree, n) {
			return false
		}
		return true
	case "import_statement", "import_from_statement", "decorator":
		return false
	case "call":
		return !p.call(n)
	case "attribute":
		return !p.attributeRef(n)
	case "identifier":
		p.identifierRef(n)
		return true
	}
	return true
}

// call handles one call node. It returns true when the call (or its
// statement) was rewritten, in which case the walk must not descend
// into it.
func (p *pass) call(n *sitter.Node) bool {
	fn := n.ChildByFieldName("function")
	argsNode := n.ChildByFieldName("arguments")
	if fn == nil || argsNode == nil {
		return false
	}

	call, firstPos := p.collectArgs(argsNode)
	call.InAwait = n.Parent() != nil && n.Parent().Type() == "await"

	switch fn.Type() {
	case "identifier":
		name := p.tree.Text(fn)
		if p.magicCall(n, name, call, firstPos) {
			return true
		}
		rule := p.functionRule(name)
		if rule == nil {
			return false
		}
		return p.emit(n, rule, call)

	case "attribute":
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return false
		}
		name := p.tree.Text(attr)
		objText := p.tree.Text(obj)

		if rule := p.qualifiedRule(objText, name); rule != nil {
			switch rule.Kind {
			case rules.KindMethod, rules.KindProperty:
				// Needs a typed receiver; fall through to the oracle path.
			case rules.KindClassMethod:
				call.Receiver = objText
				return p.emit(n, rule, call)
			default:
				call.Qualifier = objText
				return p.emit(n, rule, call)
			}
		}
		return p.methodCall(n, fn, obj, name, objText, call)
	}
	return false
}

// collectArgs reads the argument list into exact source texts. The
// first plain positional argument node is returned for magic-method
// position queries.
func (p *pass) collectArgs(argsNode *sitter.Node) (template.Call, *sitter.Node) {
	var call template.Call
	var firstPos *sitter.Node

	for _, arg := range pysrc.NamedChildren(argsNode) {
		switch arg.Type() {
		case "keyword_argument":
			nameNode := arg.ChildByFieldName("name")
			valueNode := arg.ChildByFieldName("value")
			if nameNode == nil || valueNode == nil {
				continue
			}
			call.Keywords = append(call.Keywords, template.Keyword{
				Name: p.tree.Text(nameNode),
				Text: p.tree.Text(valueNode),
			})
		case "dictionary_splat":
			call.DictSplats = append(call.DictSplats, p.tree.Text(arg))
		case "list_splat":
			call.Positional = append(call.Positional, p.tree.Text(arg))
		case "comment":
		default:
			if firstPos == nil {
				firstPos = arg
			}
			call.Positional = append(call.Positional, p.tree.Text(arg))
		}
	}
	return call, firstPos
}

// magicCall handles the builtin short-circuit: len(x) reaches a
// deprecated __len__ on x's type. Requires exactly one plain argument.
func (p *pass) magicCall(n *sitter.Node, name string, call template.Call, firstPos *sitter.Node) bool {
	dunder, ok := magicBuiltins[name]
	if !ok || firstPos == nil {
		return false
	}
	if len(call.Positional) != 1 || len(call.Keywords) != 0 || len(call.DictSplats) != 0 {
		return false
	}
	if strings.HasPrefix(call.Positional[0], "*") {
		return false
	}
	if !p.r.cat.HasMethodNamed(dunder) {
		return false
	}

	typeName, found := p.queryType(firstPos)
	if !found {
		return false
	}
	rule, _ := p.methodRule(typeName, dunder)
	if rule == nil {
		return false
	}

	rendered, err := p.r.inst.RenderMagic(p.ctx, rule, name, call.Positional[0])
	if err != nil {
		p.diagnose(n, rule.OldFQN, err)
		return false
	}
	return p.applyRendered(n, rule, rendered, call)
}

// functionRule looks a bare callee name up as a free function:
// module-qualified, bare, then through the alias table.
func (p *pass) functionRule(name string) *rules.ReplacementRule {
	for _, fqn := range []string{p.module + "." + name, name} {
		if rule, ok := p.r.cat.Get(fqn); ok {
			return rule
		}
	}
	if full, ok := p.aliases[name]; ok {
		if rule, ok := p.r.cat.Get(full); ok {
			return rule
		}
	}
	return nil
}

// qualifiedRule looks up <qualifier>.<name> as a static path: the
// qualifier's head resolved through the alias table, the raw text, and
// the module-local spelling.
func (p *pass) qualifiedRule(objText, name string) *rules.ReplacementRule {
	if !pysrc.IsDottedName(objText) {
		return nil
	}

	candidates := []string{objText + "." + name, p.module + "." + objText + "." + name}
	if resolved := p.resolveHead(objText); resolved != objText {
		candidates = append([]string{resolved + "." + name}, candidates...)
	}
	for _, fqn := range candidates {
		if rule, ok := p.r.cat.Get(fqn); ok {
			return rule
		}
	}
	return nil
}

// resolveHead expands the first dotted segment through the alias table.
func (p *pass) resolveHead(dotted string) string {
	head := dotted
	rest := ""
	if idx := strings.Index(dotted, "."); idx >= 0 {
		head, rest = dotted[:idx], dotted[idx:]
	}
	if full, ok := p.aliases[head]; ok {
		return full + rest
	}
	return dotted
}

// methodCall resolves <receiver>.<name>(...) through the type oracle
// and the inheritance chain.
func (p *pass) methodCall(n, fn, obj *sitter.Node, name, objText string, call template.Call) bool {
	// No rule ends in this method name anywhere; skip without an
	// oracle round trip.
	if !p.r.cat.HasMethodNamed(name) {
		return false
	}

	typeName, found := p.queryType(obj)
	if !found {
		p.report(obj, name, "receiver type unknown, call left unmigrated")
		return false
	}

	rule, matched := p.methodRule(typeName, name)
	if rule == nil {
		// Concrete type, no rule anywhere in the chain: not deprecated
		// for this receiver. No weaker fallback.
		return false
	}

	if rule.Kind == rules.KindProperty {
		// A called property migrates its access only; the call's own
		// arguments apply to whatever the property now returns.
		rendered, err := p.r.inst.Render(p.ctx, rule, template.Call{Receiver: objText})
		if err != nil {
			p.diagnose(fn, matched, err)
			return false
		}
		if rendered == "" {
			p.report(fn, matched, "elidable property used as a callee")
			return false
		}
		start, end := pysrc.ByteRange(fn)
		p.edits.Add(patch.Edit{Start: start, End: end, Text: rendered})
		return true
	}

	call.Receiver = objText
	return p.emit(n, rule, call)
}

// methodRule finds a rule for <type>.<name>, walking the inheritance
// chain nearest-first when the type itself has none.
func (p *pass) methodRule(typeName, name string) (*rules.ReplacementRule, string) {
	try := func(t string) (*rules.ReplacementRule, string) {
		for _, fqn := range []string{t + "." + name, p.module + "." + t + "." + name} {
			if rule, ok := p.r.cat.Get(fqn); ok {
				return rule, fqn
			}
		}
		return nil, ""
	}

	resolve := func(t string) string {
		if strings.Contains(t, ".") {
			return t
		}
		if full, ok := p.aliases[t]; ok {
			return full
		}
		if len(p.r.inherit.Bases(p.module+"."+t)) > 0 {
			return p.module + "." + t
		}
		return t
	}

	start := resolve(typeName)
	if rule, fqn := try(start); rule != nil {
		return rule, fqn
	}

	var foundRule *rules.ReplacementRule
	var foundFQN string
	p.r.inherit.Ancestry(start, resolve, func(base string) bool {
		if rule, fqn := try(base); rule != nil {
			foundRule, foundFQN = rule, fqn
			return false
		}
		return true
	})
	return foundRule, foundFQN
}

// queryType asks the oracle for the nominal type at a node's position.
// Oracle failures count as "no type known".
func (p *pass) queryType(n *sitter.Node) (string, bool) {
	line, col := pysrc.Position(n)
	typeName, found, err := p.r.oracle.Query(p.ctx, p.file, line, col)
	if err != nil {
		p.r.logger.Debug("oracle query failed", map[string]interface{}{
			"file":  p.file,
			"line":  line,
			"col":   col,
			"error": err.Error(),
		})
		return "", false
	}
	return typeName, found
}

// attributeRef handles a non-call attribute reference: deprecated
// module/class attributes and properties. Returns true when rewritten.
func (p *pass) attributeRef(n *sitter.Node) bool {
	if p.isCalleePosition(n) || p.isStoreTarget(n) {
		return false
	}

	obj := n.ChildByFieldName("object")
	attr := n.ChildByFieldName("attribute")
	if obj == nil || attr == nil {
		return false
	}
	name := p.tree.Text(attr)
	objText := p.tree.Text(obj)

	if rule := p.qualifiedRule(objText, name); rule != nil {
		switch rule.Kind {
		case rules.KindModuleAttribute:
			return p.emitRef(n, rule, template.Call{Qualifier: objText})
		case rules.KindClassAttribute:
			return p.emitRef(n, rule, template.Call{})
		}
	}

	// Property access through a typed receiver.
	if !p.r.cat.HasMethodNamed(name) {
		return false
	}
	typeName, found := p.queryType(obj)
	if !found {
		return false
	}
	rule, _ := p.methodRule(typeName, name)
	if rule == nil || rule.Kind != rules.KindProperty {
		return false
	}
	return p.emitRef(n, rule, template.Call{Receiver: objText})
}

// identifierRef handles a bare name bound by an import to a deprecated
// module or class attribute.
func (p *pass) identifierRef(n *sitter.Node) {
	parent := n.Parent()
	if parent == nil {
		return
	}
	switch parent.Type() {
	case "attribute", "call",
		"function_definition", "class_definition", "parameters", "typed_parameter",
		"default_parameter", "typed_default_parameter", "dotted_name", "aliased_import":
		return
	case "keyword_argument":
		// name=... is a parameter name; the value side is a real read.
		if kwName := parent.ChildByFieldName("name"); kwName != nil && kwName.StartByte() == n.StartByte() {
			return
		}
	case "assignment", "augmented_assignment":
		// t = TIMEOUT reads the name; TIMEOUT = t rebinds it.
		if p.isStoreTarget(n) {
			return
		}
	}

	name := p.tree.Text(n)
	full, ok := p.aliases[name]
	if !ok {
		return
	}
	rule, ok := p.r.cat.Get(full)
	if !ok {
		return
	}
	if rule.Kind != rules.KindModuleAttribute && rule.Kind != rules.KindClassAttribute {
		return
	}
	p.emitRef(n, rule, template.Call{})
}

// emit renders the rule for a call node and records the edit.
func (p *pass) emit(n *sitter.Node, rule *rules.ReplacementRule, call template.Call) bool {
	rendered, err := p.r.inst.Render(p.ctx, rule, call)
	if err != nil {
		p.diagnose(n, rule.OldFQN, err)
		return false
	}
	return p.applyRendered(n, rule, rendered, call)
}

// emitRef renders a rule for a bare reference (no argument list) and
// records the edit.
func (p *pass) emitRef(n *sitter.Node, rule *rules.ReplacementRule, call template.Call) bool {
	rendered, err := p.r.inst.Render(p.ctx, rule, call)
	if err != nil {
		p.diagnose(n, rule.OldFQN, err)
		return false
	}
	if rendered == "" {
		p.report(n, rule.OldFQN, "elidable rule used as an expression, reference left unmigrated")
		return false
	}
	start, end := pysrc.ByteRange(n)
	p.edits.Add(patch.Edit{Start: start, End: end, Text: rendered})
	return true
}

// applyRendered records the edit for a rendered call. An empty
// rendering elides the call: legal only when the call is a whole
// statement, where the statement collapses to pass; as a sub-expression
// there is no well-defined empty value, so the site is reported and
// left alone.
func (p *pass) applyRendered(n *sitter.Node, rule *rules.ReplacementRule, rendered string, call template.Call) bool {
	if rendered != "" {
		start, end := pysrc.ByteRange(n)
		p.edits.Add(patch.Edit{Start: start, End: end, Text: rendered})
		return true
	}

	stmt := n.Parent()
	if call.InAwait && stmt != nil {
		stmt = stmt.Parent()
	}
	if stmt == nil || stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
		p.report(n, rule.OldFQN, "elidable call used as a sub-expression, left unmigrated")
		return false
	}
	start, end := pysrc.ByteRange(stmt)
	p.edits.Add(patch.Edit{Start: start, End: end, Text: "pass"})
	return true
}

func (p *pass) isCalleePosition(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil || parent.Type() != "call" {
		return false
	}
	fn := parent.ChildByFieldName("function")
	return fn != nil && fn.StartByte() == n.StartByte() && fn.EndByte() == n.EndByte()
}

func (p *pass) isStoreTarget(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case "assignment", "augmented_assignment":
		left := parent.ChildByFieldName("left")
		return left != nil && left.StartByte() == n.StartByte() && left.EndByte() == n.EndByte()
	}
	return false
}

// diagnose records an unmigrated site from a render error.
func (p *pass) diagnose(n *sitter.Node, symbol string, err error) {
	line, col := pysrc.Position(n)
	p.diags = append(p.diags, Diagnostic{
		Code:    errors.CodeOf(err),
		Symbol:  symbol,
		Message: err.Error(),
		Line:    line,
		Col:     col,
	})
	p.r.logger.Info("call left unmigrated", map[string]interface{}{
		"file":   p.file,
		"line":   line,
		"col":    col,
		"symbol": symbol,
		"reason": err.Error(),
	})
}

// report records an informational unresolvable-call diagnostic.
func (p *pass) report(n *sitter.Node, symbol, message string) {
	line, col := pysrc.Position(n)
	p.diags = append(p.diags, Diagnostic{
		Code:    errors.UnresolvableCall,
		Symbol:  symbol,
		Message: message,
		Line:    line,
		Col:     col,
	})
}
