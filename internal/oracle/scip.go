package oracle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"depmig/internal/errors"
	"depmig/internal/logging"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"
)

// SCIP is a type oracle backed by a pre-built SCIP index (for example
// from scip-python). It never spawns a process, which makes it the
// cheap choice for CI runs where an index is already produced.
//
// The index is a snapshot: once a file is rewritten via Update, the
// snapshot no longer describes it, so queries against that file answer
// not-found from then on.
type SCIP struct {
	projectRoot string
	logger      *logging.Logger

	documents map[string]*scippb.Document
	symbols   map[string]*scippb.SymbolInformation

	mu    sync.Mutex
	stale map[string]bool
}

// NewSCIP loads the index at indexPath. Paths inside the index are
// relative to projectRoot.
func NewSCIP(indexPath, projectRoot string, logger *logging.Logger) (*SCIP, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.OracleUnavailable,
				fmt.Sprintf("SCIP index not found at %s", indexPath), err)
		}
		return nil, errors.New(errors.InternalError,
			fmt.Sprintf("failed to read SCIP index from %s", indexPath), err)
	}

	var index scippb.Index
	if err := proto.Unmarshal(data, &index); err != nil {
		return nil, errors.New(errors.OracleUnavailable,
			fmt.Sprintf("failed to parse SCIP index from %s", indexPath), err)
	}

	o := &SCIP{
		projectRoot: projectRoot,
		logger:      logger,
		documents:   make(map[string]*scippb.Document, len(index.Documents)),
		symbols:     make(map[string]*scippb.SymbolInformation),
		stale:       make(map[string]bool),
	}
	for _, doc := range index.Documents {
		o.documents[doc.RelativePath] = doc
		for _, sym := range doc.Symbols {
			o.symbols[sym.Symbol] = sym
		}
	}
	for _, sym := range index.ExternalSymbols {
		o.symbols[sym.Symbol] = sym
	}

	logger.Debug("SCIP index loaded", map[string]interface{}{
		"path":      indexPath,
		"documents": len(o.documents),
		"symbols":   len(o.symbols),
	})
	return o, nil
}

// Open implements Oracle. The index is immutable, so there is nothing
// to do.
func (o *SCIP) Open(context.Context, string, []byte) error { return nil }

// Update implements Oracle by marking the file stale; the index cannot
// be re-derived in place.
func (o *SCIP) Update(_ context.Context, file string, _ []byte) error {
	o.mu.Lock()
	o.stale[file] = true
	o.mu.Unlock()
	return nil
}

// Query implements Oracle. Positions are 0-based, matching SCIP's own
// encoding.
func (o *SCIP) Query(_ context.Context, file string, line, col int) (string, bool, error) {
	o.mu.Lock()
	isStale := o.stale[file]
	o.mu.Unlock()
	if isStale {
		return "", false, nil
	}

	doc := o.documents[o.relativePath(file)]
	if doc == nil {
		return "", false, nil
	}

	occ := occurrenceAt(doc, line, col)
	if occ == nil || occ.Symbol == "" {
		return "", false, nil
	}

	sym := o.symbols[occ.Symbol]
	if sym == nil {
		return "", false, nil
	}
	t, ok := typeFromMarkdown(strings.Join(sym.Documentation, "\n"))
	return t, ok, nil
}

// Close implements Oracle.
func (o *SCIP) Close() error { return nil }

func (o *SCIP) relativePath(file string) string {
	rel, err := filepath.Rel(o.projectRoot, file)
	if err != nil {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

// occurrenceAt finds the occurrence covering the position. SCIP ranges
// are [startLine, startChar, endChar] when they fit on one line and
// [startLine, startChar, endLine, endChar] otherwise.
func occurrenceAt(doc *scippb.Document, line, col int) *scippb.Occurrence {
	for _, occ := range doc.Occurrences {
		r := occ.Range
		var startLine, startChar, endLine, endChar int32
		switch len(r) {
		case 3:
			startLine, startChar, endLine, endChar = r[0], r[1], r[0], r[2]
		case 4:
			startLine, startChar, endLine, endChar = r[0], r[1], r[2], r[3]
		default:
			continue
		}
		if int32(line) < startLine || int32(line) > endLine {
			continue
		}
		if int32(line) == startLine && int32(col) < startChar {
			continue
		}
		if int32(line) == endLine && int32(col) >= endChar {
			continue
		}
		return occ
	}
	return nil
}
