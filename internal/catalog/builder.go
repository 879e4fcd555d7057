// Package catalog scans one Python module's declarations and produces
// replacement rules for every symbol marked deprecated.
package catalog

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"depmig/internal/logging"
	"depmig/internal/pysrc"
	"depmig/internal/rules"
)

// Markers names the decorator and attribute-producer spellings that
// mark a declaration deprecated. Matching is on the last dotted
// segment, so `@deprecated`, `@compat.deprecated` and
// `@mylib.compat.deprecated` all count.
type Markers struct {
	Decorators []string
	Attributes []string
}

// DefaultMarkers returns the conventional spellings.
func DefaultMarkers() Markers {
	return Markers{
		Decorators: []string{"deprecated"},
		Attributes: []string{"deprecated_attribute"},
	}
}

func (m Markers) isDecorator(name string) bool {
	for _, d := range m.Decorators {
		if name == d {
			return true
		}
	}
	return false
}

func (m Markers) isAttribute(name string) bool {
	for _, a := range m.Attributes {
		if name == a {
			return true
		}
	}
	return false
}

// MarksDeprecated reports whether a decorated_definition node carries
// one of the deprecation decorators. The resolver uses this to keep out
// of deprecated declaration bodies, so a template never rewrites itself.
func (m Markers) MarksDeprecated(tree *pysrc.Tree, decorated *sitter.Node) bool {
	for _, child := range pysrc.NamedChildren(decorated) {
		if child.Type() != "decorator" {
			continue
		}
		if m.isDecorator(decoratorName(child, tree)) {
			return true
		}
	}
	return false
}

// Builder scans modules into ModuleScans.
type Builder struct {
	parser  *pysrc.Parser
	markers Markers
	logger  *logging.Logger
}

// NewBuilder creates a catalog builder.
func NewBuilder(markers Markers, logger *logging.Logger) *Builder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Builder{
		parser:  pysrc.NewParser(),
		markers: markers,
		logger:  logger,
	}
}

// Scan parses source as the module named moduleName and extracts every
// deprecated declaration, the class hierarchy, and the import list.
// Malformed declarations are skipped individually; Scan only fails when
// the file cannot be parsed at all.
func (b *Builder) Scan(ctx context.Context, moduleName string, source []byte) (*rules.ModuleScan, error) {
	tree, err := b.parser.Parse(ctx, source)
	if err != nil {
		return nil, err
	}

	ms := &rules.ModuleScan{
		Module: moduleName,
		Bases:  make(map[string][]string),
	}

	sc := &scan{
		builder: b,
		tree:    tree,
		module:  moduleName,
		out:     ms,
		aliases: pysrc.AliasTable(tree, moduleName),
	}
	sc.scanBlock(tree.Root(), "")
	sc.collectImports(tree.Root())

	b.logger.Debug("module scanned", map[string]interface{}{
		"module":        moduleName,
		"rules":         len(ms.Rules),
		"unreplaceable": len(ms.Unreplaceable),
		"classes":       len(ms.Bases),
	})

	return ms, nil
}

type scan struct {
	builder *Builder
	tree    *pysrc.Tree
	module  string
	out     *rules.ModuleScan
	aliases map[string]string
}

func (s *scan) text(n *sitter.Node) string {
	return s.tree.Text(n)
}

// scanBlock walks the statements of a module or class body. owner is
// the enclosing class FQN, or "" at module level.
func (s *scan) scanBlock(block *sitter.Node, owner string) {
	for _, stmt := range pysrc.NamedChildren(block) {
		switch stmt.Type() {
		case "decorated_definition":
			s.scanDecorated(stmt, owner)
		case "class_definition":
			s.scanClass(stmt, nil, owner)
		case "function_definition":
			// Not deprecated; nothing to extract.
		case "expression_statement":
			if assign := namedChildOfType(stmt, "assignment"); assign != nil {
				s.scanAttributeAssignment(assign, owner)
			}
		}
	}
}

// scanDecorated handles a def or class carrying decorators.
func (s *scan) scanDecorated(node *sitter.Node, owner string) {
	def := node.ChildByFieldName("definition")
	if def == nil {
		return
	}

	var deprecation *sitter.Node
	var markerNames []string
	for _, child := range pysrc.NamedChildren(node) {
		if child.Type() != "decorator" {
			continue
		}
		name := decoratorName(child, s.tree)
		markerNames = append(markerNames, name)
		if s.builder.markers.isDecorator(name) {
			deprecation = child
		}
	}

	switch def.Type() {
	case "class_definition":
		s.scanClass(def, deprecation, owner)
	case "function_definition":
		if deprecation == nil {
			return
		}
		s.scanDeprecatedFunction(def, deprecation, markerNames, owner)
	}
}

// scanClass records the base list for any class and, when the class
// itself is deprecated, derives a constructor rule from __init__.
func (s *scan) scanClass(def *sitter.Node, deprecation *sitter.Node, owner string) {
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := s.text(nameNode)
	fqn := s.qualify(owner, name)

	s.out.Bases[fqn] = s.classBases(def)

	body := def.ChildByFieldName("body")
	if body == nil {
		return
	}

	if deprecation != nil {
		s.scanDeprecatedClass(fqn, body, deprecation)
	}

	// Methods and class attributes, deprecated or not, live in the body.
	s.scanBlock(body, fqn)
}

// classBases extracts base classes as FQNs, skipping keyword arguments
// such as metaclass=.
func (s *scan) classBases(def *sitter.Node) []string {
	supers := def.ChildByFieldName("superclasses")
	if supers == nil {
		return nil
	}
	var bases []string
	for _, arg := range pysrc.NamedChildren(supers) {
		switch arg.Type() {
		case "identifier", "attribute":
			bases = append(bases, s.qualifyBase(s.text(arg)))
		}
	}
	return bases
}

// qualifyBase resolves a base class as written to an FQN: imported
// names through this module's alias table, dotted names through their
// head, and unknown bare names as module-local classes.
func (s *scan) qualifyBase(base string) string {
	head := base
	rest := ""
	if idx := strings.Index(base, "."); idx >= 0 {
		head, rest = base[:idx], base[idx:]
	}
	if full, ok := s.aliases[head]; ok {
		return full + rest
	}
	if rest == "" {
		return s.module + "." + base
	}
	return base
}

// scanDeprecatedFunction builds a rule for a deprecated def.
func (s *scan) scanDeprecatedFunction(def, deprecation *sitter.Node, markers []string, owner string) {
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	fqn := s.qualify(owner, s.text(nameNode))

	kind := classifyFunction(markers, owner)
	params := s.extractParams(def.ChildByFieldName("parameters"))

	meta := s.decoratorMeta(deprecation)

	templateText, unrep := s.extractTemplate(def.ChildByFieldName("body"))
	if unrep != "" {
		s.out.Unreplaceable = append(s.out.Unreplaceable, rules.UnreplaceableRecord{
			FQN:     fqn,
			Reason:  unrep,
			Message: fmt.Sprintf("body of %s is not a single return expression", fqn),
		})
		return
	}

	s.out.Rules = append(s.out.Rules, &rules.ReplacementRule{
		OldFQN:       fqn,
		TemplateText: templateText,
		Params:       params,
		Kind:         kind,
		Since:        meta.since,
		RemoveIn:     meta.removeIn,
		Message:      meta.message,
	})
}

// scanDeprecatedClass derives the constructor rule from __init__:
// a single `self.<attr> = Expr(...)` makes Expr(...) the template with
// the constructor parameters substituted.
func (s *scan) scanDeprecatedClass(classFQN string, body, deprecation *sitter.Node) {
	meta := s.decoratorMeta(deprecation)

	init := s.findInit(body)
	if init == nil {
		s.out.Unreplaceable = append(s.out.Unreplaceable, rules.UnreplaceableRecord{
			FQN:     classFQN,
			Reason:  rules.ReasonNoInitMethod,
			Message: fmt.Sprintf("deprecated class %s has no __init__", classFQN),
		})
		return
	}

	templateText, ok := s.initTemplate(init)
	if !ok {
		s.out.Unreplaceable = append(s.out.Unreplaceable, rules.UnreplaceableRecord{
			FQN:     classFQN,
			Reason:  rules.ReasonNoInitMethod,
			Message: fmt.Sprintf("__init__ of %s is not a single self attribute assignment", classFQN),
		})
		return
	}

	s.out.Rules = append(s.out.Rules, &rules.ReplacementRule{
		OldFQN:       classFQN,
		TemplateText: templateText,
		Params:       s.extractParams(init.ChildByFieldName("parameters")),
		Kind:         rules.KindClass,
		Since:        meta.since,
		RemoveIn:     meta.removeIn,
		Message:      meta.message,
	})
}

// findInit locates a plain or decorated __init__ def in a class body.
func (s *scan) findInit(body *sitter.Node) *sitter.Node {
	for _, stmt := range pysrc.NamedChildren(body) {
		def := stmt
		if stmt.Type() == "decorated_definition" {
			def = stmt.ChildByFieldName("definition")
			if def == nil {
				continue
			}
		}
		if def.Type() != "function_definition" {
			continue
		}
		if nameNode := def.ChildByFieldName("name"); nameNode != nil && s.text(nameNode) == "__init__" {
			return def
		}
	}
	return nil
}

// initTemplate extracts Expr(...) from a body whose only meaningful
// statement is `self.<attr> = Expr(...)`.
func (s *scan) initTemplate(init *sitter.Node) (string, bool) {
	body := init.ChildByFieldName("body")
	if body == nil {
		return "", false
	}
	stmts := meaningfulStatements(body)
	if len(stmts) != 1 {
		return "", false
	}
	assign := namedChildOfType(stmts[0], "assignment")
	if assign == nil {
		return "", false
	}
	left := assign.ChildByFieldName("left")
	right := assign.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "attribute" {
		return "", false
	}
	obj := left.ChildByFieldName("object")
	if obj == nil || s.text(obj) != "self" {
		return "", false
	}
	return s.text(right), true
}

// scanAttributeAssignment handles `NAME = deprecated_attribute(Expr, ...)`
// at module or class level. The template is the first positional
// argument of the producing call.
func (s *scan) scanAttributeAssignment(assign *sitter.Node, owner string) {
	left := assign.ChildByFieldName("left")
	right := assign.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "identifier" || right.Type() != "call" {
		return
	}

	fn := right.ChildByFieldName("function")
	if fn == nil || !s.builder.markers.isAttribute(lastDottedSegment(s.text(fn))) {
		return
	}

	args := right.ChildByFieldName("arguments")
	if args == nil {
		return
	}

	var templateText string
	meta := declMeta{}
	for _, arg := range pysrc.NamedChildren(args) {
		if arg.Type() == "keyword_argument" {
			s.applyMetaKeyword(&meta, arg)
			continue
		}
		if templateText == "" {
			templateText = s.text(arg)
		}
	}
	if templateText == "" {
		return
	}

	kind := rules.KindModuleAttribute
	if owner != "" {
		kind = rules.KindClassAttribute
	}

	s.out.Rules = append(s.out.Rules, &rules.ReplacementRule{
		OldFQN:       s.qualify(owner, s.text(left)),
		TemplateText: templateText,
		Kind:         kind,
		Since:        meta.since,
		RemoveIn:     meta.removeIn,
		Message:      meta.message,
	})
}

// extractTemplate pulls the replacement expression out of a function
// body: leading docstring/no-op statements are skipped, an empty
// remainder means full elision, exactly one `return <expr>` yields the
// expression, and any other shape is unreplaceable.
func (s *scan) extractTemplate(body *sitter.Node) (string, rules.UnreplaceableReason) {
	if body == nil {
		return "", rules.ReasonNoReturnStatement
	}
	stmts := meaningfulStatements(body)

	switch len(stmts) {
	case 0:
		return "", "" // fully elidable
	case 1:
		stmt := stmts[0]
		if stmt.Type() != "return_statement" {
			return "", rules.ReasonNoReturnStatement
		}
		if stmt.NamedChildCount() != 1 {
			return "", rules.ReasonNoReturnStatement
		}
		return s.text(stmt.NamedChild(0)), ""
	default:
		return "", rules.ReasonMultipleStatements
	}
}

func (s *scan) qualify(owner, name string) string {
	if owner != "" {
		return owner + "." + name
	}
	return s.module + "." + name
}

// meaningfulStatements returns body statements with leading no-ops
// (docstrings, pass, ellipsis) removed.
func meaningfulStatements(body *sitter.Node) []*sitter.Node {
	stmts := pysrc.NamedChildren(body)
	for len(stmts) > 0 && pysrc.IsNoOpStatement(stmts[0]) {
		stmts = stmts[1:]
	}
	return stmts
}

// classifyFunction maps decorator markers and nesting to a construct kind.
func classifyFunction(markers []string, owner string) rules.ConstructKind {
	if owner == "" {
		return rules.KindFunction
	}
	for _, m := range markers {
		switch m {
		case "property":
			return rules.KindProperty
		case "classmethod":
			return rules.KindClassMethod
		case "staticmethod":
			return rules.KindStaticMethod
		}
	}
	return rules.KindMethod
}

func namedChildOfType(n *sitter.Node, typ string) *sitter.Node {
	for _, c := range pysrc.NamedChildren(n) {
		if c.Type() == typ {
			return c
		}
	}
	return nil
}
