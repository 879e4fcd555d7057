package pysrc

import (
	"context"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"depmig/internal/errors"
)

// Expr is a parsed expression snippet. The containing tree is kept
// alive so node byte ranges stay valid.
type Expr struct {
	// Root is the expression node itself (not the module wrapper).
	Root *sitter.Node

	// Source is the snippet text the ranges index into.
	Source []byte

	tree *Tree
}

// Text returns the source text covered by a node of this snippet.
func (e *Expr) Text(n *sitter.Node) string {
	return n.Content(e.Source)
}

// ParseExpr parses a snippet that must contain exactly one expression.
// Used for replacement templates and for call-site argument texts.
func (p *Parser) ParseExpr(ctx context.Context, text string) (*Expr, error) {
	src := []byte(text)
	tree, err := p.Parse(ctx, src)
	if err != nil {
		return nil, errors.New(errors.SnippetParseFailed, "snippet parse failed", err)
	}

	root := tree.Root()
	if root.HasError() {
		return nil, errors.New(errors.SnippetParseFailed, "snippet is not valid Python", nil).
			WithDetails(text)
	}
	if root.NamedChildCount() != 1 {
		return nil, errors.New(errors.SnippetParseFailed, "snippet is not a single statement", nil).
			WithDetails(text)
	}

	stmt := root.NamedChild(0)
	if stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
		return nil, errors.New(errors.SnippetParseFailed, "snippet is not a single expression", nil).
			WithDetails(text)
	}

	return &Expr{
		Root:   stmt.NamedChild(0),
		Source: src,
		tree:   tree,
	}, nil
}

// IsIdentifier reports whether text is a bare Python identifier.
// Substitution falls back to this check when a bound argument fails
// to parse as an expression.
func IsIdentifier(text string) bool {
	if text == "" {
		return false
	}
	for i, r := range text {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return !isKeyword(text)
}

var pyKeywords = map[string]struct{}{
	"False": {}, "None": {}, "True": {}, "and": {}, "as": {}, "assert": {},
	"async": {}, "await": {}, "break": {}, "class": {}, "continue": {},
	"def": {}, "del": {}, "elif": {}, "else": {}, "except": {}, "finally": {},
	"for": {}, "from": {}, "global": {}, "if": {}, "import": {}, "in": {},
	"is": {}, "lambda": {}, "nonlocal": {}, "not": {}, "or": {}, "pass": {},
	"raise": {}, "return": {}, "try": {}, "while": {}, "with": {}, "yield": {},
}

func isKeyword(s string) bool {
	_, ok := pyKeywords[s]
	return ok
}

// IsDottedName reports whether text is a dotted chain of identifiers,
// e.g. "pkg.mod.Class".
func IsDottedName(text string) bool {
	parts := strings.Split(text, ".")
	for _, p := range parts {
		if !IsIdentifier(p) {
			return false
		}
	}
	return len(parts) > 0
}
