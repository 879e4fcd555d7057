// Package oracle answers "what is the nominal type of the expression
// at this location" for the call-site resolver.
//
// The resolver treats the oracle as an injected capability: it may be
// backed by a live language-server process, by a prebuilt SCIP index,
// or by a fixed map in tests. An oracle must answer not-found rather
// than an approximate type when it does not know.
package oracle

import (
	"context"
	"strconv"
)

// Oracle is the type-query capability. Positions are 0-based
// (line, column) pairs, matching both tree-sitter points and LSP.
type Oracle interface {
	// Query returns the nominal type name of the expression at the
	// given position, or ok=false when no concrete type is known.
	// A returned error is an oracle failure; callers treat it the same
	// as "no type known" but may log it differently.
	Query(ctx context.Context, file string, line, col int) (string, bool, error)

	// Open registers a file's text with the oracle before queries.
	Open(ctx context.Context, file string, text []byte) error

	// Update invalidates any cached analysis after a dependent file
	// changed.
	Update(ctx context.Context, file string, text []byte) error

	// Close releases oracle resources.
	Close() error
}

// Static is a map-backed oracle keyed by "file:line:col". It answers
// instantly and never fails; tests and the `--oracle off` mode use it.
type Static struct {
	types map[string]string
}

// NewStatic creates a static oracle from position → type entries.
func NewStatic(types map[string]string) *Static {
	if types == nil {
		types = make(map[string]string)
	}
	return &Static{types: types}
}

// Key builds the lookup key for a position.
func Key(file string, line, col int) string {
	return file + ":" + strconv.Itoa(line) + ":" + strconv.Itoa(col)
}

// Query implements Oracle.
func (s *Static) Query(_ context.Context, file string, line, col int) (string, bool, error) {
	t, ok := s.types[Key(file, line, col)]
	return t, ok, nil
}

// Open implements Oracle.
func (s *Static) Open(context.Context, string, []byte) error { return nil }

// Update implements Oracle.
func (s *Static) Update(context.Context, string, []byte) error { return nil }

// Close implements Oracle.
func (s *Static) Close() error { return nil }
