package catalog

import (
	sitter "github.com/smacker/go-tree-sitter"

	"depmig/internal/pysrc"
	"depmig/internal/rules"
)

// extractParams reads a parameters node into ordered ParameterInfos,
// splitting positional, keyword-only, vararg and kwarg parameters and
// capturing default source text verbatim.
func (s *scan) extractParams(params *sitter.Node) []rules.ParameterInfo {
	if params == nil {
		return nil
	}

	var out []rules.ParameterInfo
	kwonly := false

	for _, p := range pysrc.NamedChildren(params) {
		switch p.Type() {
		case "identifier":
			out = append(out, rules.ParameterInfo{
				Name:     s.text(p),
				IsKwonly: kwonly,
			})

		case "typed_parameter":
			if name := firstIdentifier(p, s.tree); name != "" {
				out = append(out, rules.ParameterInfo{
					Name:     name,
					IsKwonly: kwonly,
				})
			}

		case "default_parameter", "typed_default_parameter":
			nameNode := p.ChildByFieldName("name")
			valueNode := p.ChildByFieldName("value")
			if nameNode == nil {
				continue
			}
			info := rules.ParameterInfo{
				Name:       s.text(nameNode),
				HasDefault: true,
				IsKwonly:   kwonly,
			}
			if valueNode != nil {
				info.DefaultText = s.text(valueNode)
			}
			out = append(out, info)

		case "list_splat_pattern":
			// *args; everything after is keyword-only.
			kwonly = true
			if name := firstIdentifier(p, s.tree); name != "" {
				out = append(out, rules.ParameterInfo{
					Name:     name,
					IsVararg: true,
				})
			}

		case "keyword_separator":
			// bare *
			kwonly = true

		case "positional_separator":
			// bare /; positional-or-keyword split does not change binding here

		case "dictionary_splat_pattern":
			if name := firstIdentifier(p, s.tree); name != "" {
				out = append(out, rules.ParameterInfo{
					Name:    name,
					IsKwarg: true,
				})
			}
		}
	}

	return out
}

func firstIdentifier(n *sitter.Node, tree *pysrc.Tree) string {
	if n.Type() == "identifier" {
		return tree.Text(n)
	}
	for _, c := range pysrc.NamedChildren(n) {
		if c.Type() == "identifier" {
			return tree.Text(c)
		}
	}
	return ""
}
