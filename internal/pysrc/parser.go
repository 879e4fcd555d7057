// Package pysrc wraps tree-sitter parsing of Python source.
//
// The migration engine treats whole-file parsing as a collaborator: it
// consumes the concrete syntax tree with byte ranges and never builds
// one itself. Snippet parsing (argument texts, replacement templates)
// goes through ParseExpr.
package pysrc

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Parser wraps a tree-sitter parser configured for Python.
type Parser struct {
	parser *sitter.Parser
}

// NewParser creates a new Python parser.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{parser: p}
}

// Tree holds a parsed file together with its source bytes.
type Tree struct {
	Source []byte

	tree *sitter.Tree
}

// Parse parses Python source and returns the tree.
func (p *Parser) Parse(ctx context.Context, source []byte) (*Tree, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return &Tree{Source: source, tree: tree}, nil
}

// Root returns the module node.
func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// Text returns the source text covered by a node.
func (t *Tree) Text(n *sitter.Node) string {
	return n.Content(t.Source)
}

// HasParseErrors reports whether the tree contains error nodes.
// Tree-sitter is error-tolerant, so this is a property of the tree,
// not of Parse.
func (t *Tree) HasParseErrors() bool {
	return t.tree.RootNode().HasError()
}
