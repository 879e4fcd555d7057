package storage

import (
	"testing"
	"time"

	"depmig/internal/rules"
)

func openTestStore(t *testing.T) *CatalogStore {
	t.Helper()
	s, err := OpenCatalogStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("OpenCatalogStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleScan() *rules.ModuleScan {
	return &rules.ModuleScan{
		Module: "mylib.compat",
		Rules: []*rules.ReplacementRule{{
			OldFQN:       "mylib.compat.old_fn",
			TemplateText: "new_fn(a, b)",
			Kind:         rules.KindFunction,
			Since:        "1.4.0",
			Params: []rules.ParameterInfo{
				{Name: "a"},
				{Name: "b", HasDefault: true, DefaultText: "10"},
			},
		}},
		Bases:   map[string][]string{"mylib.compat.Child": {"mylib.compat.Parent"}},
		Imports: []string{"mylib.core"},
	}
}

func TestGetMissReturnsNoScan(t *testing.T) {
	s := openTestStore(t)

	ms, hit, err := s.Get("mylib.compat", []byte("x = 1\n"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit || ms != nil {
		t.Errorf("expected miss on empty cache, got hit=%v ms=%v", hit, ms)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	source := []byte("def old_fn(a, b=10):\n    return new_fn(a, b)\n")

	if err := s.Put("mylib.compat", source, sampleScan()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, hit, err := s.Get("mylib.compat", source)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !hit {
		t.Fatal("expected hit after Put")
	}
	if len(got.Rules) != 1 || got.Rules[0].OldFQN != "mylib.compat.old_fn" {
		t.Errorf("rules not preserved: %+v", got.Rules)
	}
	if got.Rules[0].Params[1].DefaultText != "10" {
		t.Errorf("default text not preserved: %+v", got.Rules[0].Params)
	}
	if len(got.Bases["mylib.compat.Child"]) != 1 {
		t.Errorf("bases not preserved: %v", got.Bases)
	}
}

func TestChangedSourceMisses(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("mylib.compat", []byte("v1"), sampleScan()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, hit, err := s.Get("mylib.compat", []byte("v2"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit {
		t.Error("cache hit for changed source bytes")
	}
}

func TestPutPurgesStaleRows(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("mylib.compat", []byte("v1"), sampleScan()); err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	if err := s.Put("mylib.compat", []byte("v2"), sampleScan()); err != nil {
		t.Fatalf("Put v2: %v", err)
	}

	entries, _, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if entries != 1 {
		t.Errorf("entries = %d, want 1 (old row purged on write)", entries)
	}
	if _, hit, _ := s.Get("mylib.compat", []byte("v1")); hit {
		t.Error("stale row still served after rewrite")
	}
}

func TestPruneAndReset(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("a", []byte("a"), sampleScan()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	pruned, err := s.Prune(time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 0 {
		t.Errorf("pruned %d fresh entries", pruned)
	}

	pruned, err = s.Prune(-time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1 with negative horizon", pruned)
	}

	if err := s.Put("b", []byte("b"), sampleScan()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	entries, _, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if entries != 0 {
		t.Errorf("entries = %d after Reset, want 0", entries)
	}
}
