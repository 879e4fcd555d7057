package pysrc

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// AliasTable maps the simple names a module's imports bind to the
// fully qualified names they stand for.
//
//	import a.b          a -> a
//	import a.b as c     c -> a.b
//	from m import x     x -> m.x
//	from m import x as y    y -> m.x
//	from . import x     x -> <parent(moduleName)>.x
//
// Relative imports trim the importing module's dotted path by the
// number of leading dots.
func AliasTable(tree *Tree, moduleName string) map[string]string {
	aliases := make(map[string]string)

	for _, imp := range FindAll(tree.Root(), "import_statement", "import_from_statement") {
		switch imp.Type() {
		case "import_statement":
			collectPlainImport(tree, imp, aliases)
		case "import_from_statement":
			collectFromImport(tree, imp, aliases, moduleName)
		}
	}
	return aliases
}

func collectPlainImport(tree *Tree, imp *sitter.Node, aliases map[string]string) {
	for _, child := range NamedChildren(imp) {
		switch child.Type() {
		case "dotted_name":
			// `import a.b` binds the top-level name a.
			full := tree.Text(child)
			head := full
			if idx := strings.Index(full, "."); idx >= 0 {
				head = full[:idx]
			}
			aliases[head] = head
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil && alias != nil {
				aliases[tree.Text(alias)] = tree.Text(name)
			}
		}
	}
}

func collectFromImport(tree *Tree, imp *sitter.Node, aliases map[string]string, moduleName string) {
	moduleNode := imp.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	base := ResolveRelativeModule(tree.Text(moduleNode), moduleName)
	if base == "" {
		return
	}

	for _, child := range NamedChildren(imp) {
		if child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
			continue // the module clause itself
		}
		switch child.Type() {
		case "dotted_name", "identifier":
			name := tree.Text(child)
			aliases[name] = base + "." + name
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil && alias != nil {
				aliases[tree.Text(alias)] = base + "." + tree.Text(name)
			}
		case "wildcard_import":
			// `from m import *` binds nothing resolvable statically.
		}
	}
}

// ResolveRelativeModule turns a possibly-relative import target into an
// absolute dotted module path from the perspective of moduleName. One
// leading dot anchors at the importing module's package, each further
// dot climbs one package up. An empty result means the import climbs
// above the root and cannot be resolved.
func ResolveRelativeModule(target, moduleName string) string {
	dots := 0
	for dots < len(target) && target[dots] == '.' {
		dots++
	}
	if dots == 0 {
		return target
	}

	parts := strings.Split(moduleName, ".")
	if dots > len(parts) {
		return ""
	}
	prefix := strings.Join(parts[:len(parts)-dots], ".")

	rest := target[dots:]
	switch {
	case rest == "" && prefix == "":
		return ""
	case rest == "":
		return prefix
	case prefix == "":
		return rest
	default:
		return prefix + "." + rest
	}
}
