package oracle

import (
	"context"
	"errors"
	"testing"
)

// countingOracle records every Query round trip.
type countingOracle struct {
	types   map[string]string
	fail    bool
	queries int
}

func (c *countingOracle) Query(_ context.Context, file string, line, col int) (string, bool, error) {
	c.queries++
	if c.fail {
		return "", false, errors.New("server gone")
	}
	t, ok := c.types[Key(file, line, col)]
	return t, ok, nil
}

func (c *countingOracle) Open(context.Context, string, []byte) error   { return nil }
func (c *countingOracle) Update(context.Context, string, []byte) error { return nil }
func (c *countingOracle) Close() error                                 { return nil }

func TestMemoCachesHits(t *testing.T) {
	inner := &countingOracle{types: map[string]string{"f.py:3:4": "Widget"}}
	m := NewMemo(inner, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		typeName, ok, err := m.Query(ctx, "f.py", 3, 4)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if !ok || typeName != "Widget" {
			t.Fatalf("Query = %q, %v", typeName, ok)
		}
	}
	if inner.queries != 1 {
		t.Errorf("inner queries = %d, want 1", inner.queries)
	}
	if m.Queries != 1 || m.Hits != 2 {
		t.Errorf("Queries/Hits = %d/%d, want 1/2", m.Queries, m.Hits)
	}
}

func TestMemoCachesMisses(t *testing.T) {
	inner := &countingOracle{}
	m := NewMemo(inner, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, ok, err := m.Query(ctx, "f.py", 1, 0); ok || err != nil {
			t.Fatalf("Query = ok=%v err=%v, want cached miss", ok, err)
		}
	}
	if inner.queries != 1 {
		t.Errorf("inner queries = %d, want miss cached after first", inner.queries)
	}
}

func TestMemoTreatsFailureAsUnknown(t *testing.T) {
	inner := &countingOracle{fail: true}
	m := NewMemo(inner, nil)
	ctx := context.Background()

	typeName, ok, err := m.Query(ctx, "f.py", 1, 0)
	if err != nil {
		t.Fatalf("oracle failure must surface as no-type, got error %v", err)
	}
	if ok || typeName != "" {
		t.Errorf("Query = %q, %v after failure", typeName, ok)
	}

	if _, _, err := m.Query(ctx, "f.py", 1, 0); err != nil {
		t.Fatalf("second Query: %v", err)
	}
	if inner.queries != 1 {
		t.Errorf("inner queries = %d, failure not cached", inner.queries)
	}
}

func TestMemoDropsCacheOnUpdate(t *testing.T) {
	inner := &countingOracle{types: map[string]string{"f.py:3:4": "Widget"}}
	m := NewMemo(inner, nil)
	ctx := context.Background()

	if _, _, err := m.Query(ctx, "f.py", 3, 4); err != nil {
		t.Fatal(err)
	}
	if err := m.Update(ctx, "f.py", []byte("new text")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, _, err := m.Query(ctx, "f.py", 3, 4); err != nil {
		t.Fatal(err)
	}
	if inner.queries != 2 {
		t.Errorf("inner queries = %d, want re-query after Update", inner.queries)
	}
}
