package oracle

import (
	"context"

	"depmig/internal/logging"
)

// memoEntry caches one answered position. Failures are cached too, so
// a position is asked at most once per pass no matter how many
// candidate lookups the resolver attempts against it.
type memoEntry struct {
	typeName string
	ok       bool
}

// Memo wraps an oracle with a per-pass (line, column) cache. Each
// resolver pass owns its own Memo; the underlying oracle may be shared.
type Memo struct {
	inner  Oracle
	cache  map[string]memoEntry
	logger *logging.Logger

	// Queries and Hits count round trips for the pass report.
	Queries int
	Hits    int
}

// NewMemo creates a memoizing adapter around an oracle.
func NewMemo(inner Oracle, logger *logging.Logger) *Memo {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Memo{
		inner:  inner,
		cache:  make(map[string]memoEntry),
		logger: logger,
	}
}

// Query implements Oracle.
func (m *Memo) Query(ctx context.Context, file string, line, col int) (string, bool, error) {
	key := Key(file, line, col)
	if e, cached := m.cache[key]; cached {
		m.Hits++
		return e.typeName, e.ok, nil
	}

	m.Queries++
	typeName, ok, err := m.inner.Query(ctx, file, line, col)
	if err != nil {
		// An oracle failure means "no type known"; cache the miss so
		// the position is not retried within this pass.
		m.logger.Debug("oracle query failed", map[string]interface{}{
			"file":  file,
			"line":  line,
			"col":   col,
			"error": err.Error(),
		})
		m.cache[key] = memoEntry{}
		return "", false, nil
	}

	m.cache[key] = memoEntry{typeName: typeName, ok: ok}
	return typeName, ok, nil
}

// Open implements Oracle.
func (m *Memo) Open(ctx context.Context, file string, text []byte) error {
	return m.inner.Open(ctx, file, text)
}

// Update implements Oracle. The memo is dropped: cached answers may
// describe the old text.
func (m *Memo) Update(ctx context.Context, file string, text []byte) error {
	m.cache = make(map[string]memoEntry)
	return m.inner.Update(ctx, file, text)
}

// Close implements Oracle.
func (m *Memo) Close() error {
	return m.inner.Close()
}
