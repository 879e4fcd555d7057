package catalog

import (
	sitter "github.com/smacker/go-tree-sitter"

	"depmig/internal/pysrc"
)

// collectImports records the module names this module imports, for the
// dependency resolver's transitive traversal. Relative module names
// keep their leading dots; the resolver trims them against the
// importing module's own dotted path.
func (s *scan) collectImports(root *sitter.Node) {
	seen := make(map[string]struct{})
	add := func(name string) {
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		s.out.Imports = append(s.out.Imports, name)
	}

	for _, stmt := range pysrc.FindAll(root, "import_statement", "import_from_statement") {
		switch stmt.Type() {
		case "import_statement":
			// import a.b, c as d
			for _, child := range pysrc.NamedChildren(stmt) {
				switch child.Type() {
				case "dotted_name":
					add(s.text(child))
				case "aliased_import":
					if name := child.ChildByFieldName("name"); name != nil {
						add(s.text(name))
					}
				}
			}
		case "import_from_statement":
			// from .x import y
			if mod := stmt.ChildByFieldName("module_name"); mod != nil {
				add(s.text(mod))
			}
		}
	}
}
