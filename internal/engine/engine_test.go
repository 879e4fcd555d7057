package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"depmig/internal/catalog"
	"depmig/internal/oracle"
	"depmig/internal/rules"
	"depmig/internal/testutil"
)

const libSource = `
@deprecated(since="2.0", remove_in="3.0")
def old_fn(a, b=10):
    return new_fn(a, b=b)

class Conn:
    @deprecated()
    def send_all(self, data):
        return self.write(data)
`

func buildCatalog(t *testing.T, modules map[string]string) (*rules.Catalog, *rules.InheritanceIndex) {
	t.Helper()
	b := catalog.NewBuilder(catalog.DefaultMarkers(), nil)
	cat := rules.NewCatalog()
	inherit := rules.NewInheritanceIndex()
	for name, src := range modules {
		ms, err := b.Scan(context.Background(), name, []byte(src))
		if err != nil {
			t.Fatalf("Scan(%s): %v", name, err)
		}
		cat.Merge(ms.Catalog())
		inherit.Merge(ms.Inheritance())
	}
	return cat, inherit
}

func TestMigrateEndToEnd(t *testing.T) {
	source := "import lib\n\nresult = lib.old_fn(1)\nother = untouched(2)\n"
	cat, inherit := buildCatalog(t, map[string]string{"lib": libSource})

	eng := New(catalog.DefaultMarkers(), nil)
	migrated, report, err := eng.Migrate(context.Background(), []byte(source), "client", "client.py",
		cat, inherit, oracle.NewStatic(nil))
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	want := "import lib\n\nresult = lib.new_fn(1)\nother = untouched(2)\n"
	if migrated != want {
		t.Errorf("migrated = %q, want %q", migrated, want)
	}
	if report.Edits != 1 {
		t.Errorf("report.Edits = %d, want 1", report.Edits)
	}
	if report.Invalid {
		t.Error("report.Invalid set on valid output")
	}
	if report.RunID == "" {
		t.Error("report.RunID empty")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	source := "import lib\n\nresult = lib.old_fn(1, b=2)\n"
	cat, inherit := buildCatalog(t, map[string]string{"lib": libSource})
	eng := New(catalog.DefaultMarkers(), nil)
	ctx := context.Background()

	first, report, err := eng.Migrate(ctx, []byte(source), "client", "client.py",
		cat, inherit, oracle.NewStatic(nil))
	if err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if report.Edits == 0 {
		t.Fatal("first pass made no edits")
	}

	second, report, err := eng.Migrate(ctx, []byte(first), "client", "client.py",
		cat, inherit, oracle.NewStatic(nil))
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if report.Edits != 0 {
		t.Errorf("second pass made %d edits, want fixed point", report.Edits)
	}
	if second != first {
		t.Errorf("second pass changed text:\nfirst:  %q\nsecond: %q", first, second)
	}
}

func TestMigrateLocality(t *testing.T) {
	// Everything outside the rewritten call must survive byte for byte,
	// odd spacing and comments included.
	source := "import lib  # keep   this\n\nx=  lib.old_fn( 1 )   # trailing\n\n\ndef f( a ):\n\treturn a\n"
	cat, inherit := buildCatalog(t, map[string]string{"lib": libSource})
	eng := New(catalog.DefaultMarkers(), nil)

	migrated, report, err := eng.Migrate(context.Background(), []byte(source), "client", "client.py",
		cat, inherit, oracle.NewStatic(nil))
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if report.Edits != 1 {
		t.Fatalf("report.Edits = %d, want 1", report.Edits)
	}

	for _, fragment := range []string{
		"import lib  # keep   this\n",
		"x=  ",
		"   # trailing\n\n\ndef f( a ):\n\treturn a\n",
	} {
		if !strings.Contains(migrated, fragment) {
			t.Errorf("fragment %q not preserved in %q", fragment, migrated)
		}
	}
	if !strings.Contains(migrated, "lib.new_fn(1)") {
		t.Errorf("call not rewritten: %q", migrated)
	}
}

func TestMigrateNoSpeculation(t *testing.T) {
	// Method call on an untyped receiver: whatever rules exist, no edit.
	source := "from lib import Conn\n\ndef use(c):\n    c.send_all(data)\n"
	cat, inherit := buildCatalog(t, map[string]string{"lib": libSource})
	eng := New(catalog.DefaultMarkers(), nil)

	migrated, report, err := eng.Migrate(context.Background(), []byte(source), "client", "client.py",
		cat, inherit, oracle.NewStatic(nil))
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if migrated != source {
		t.Errorf("untyped receiver migrated: %q", migrated)
	}
	if report.Edits != 0 {
		t.Errorf("report.Edits = %d, want 0", report.Edits)
	}
	if len(report.Diagnostics) != 1 {
		t.Errorf("got %d diagnostics, want 1 unresolvable-call report", len(report.Diagnostics))
	}
}

func TestMigrateMemoBoundsOracleTraffic(t *testing.T) {
	// Two method calls on the same receiver position plus one on a
	// second position: at most one oracle query per position.
	source := "from lib import Conn\nc = Conn()\nc.send_all(x)\nc.send_all(y)\n"
	cat, inherit := buildCatalog(t, map[string]string{"lib": libSource})
	eng := New(catalog.DefaultMarkers(), nil)

	_, report, err := eng.Migrate(context.Background(), []byte(source), "client", "client.py",
		cat, inherit, oracle.NewStatic(map[string]string{
			"client.py:2:0": "Conn",
			"client.py:3:0": "Conn",
		}))
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if report.OracleQueries > 2 {
		t.Errorf("OracleQueries = %d, want at most one per position", report.OracleQueries)
	}
}

func TestMigrateGolden(t *testing.T) {
	source, err := os.ReadFile(filepath.Join("testdata", "client.py"))
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	cat, inherit := buildCatalog(t, map[string]string{"lib": libSource})
	eng := New(catalog.DefaultMarkers(), nil)

	migrated, _, err := eng.Migrate(context.Background(), source, "client", "client.py",
		cat, inherit, oracle.NewStatic(nil))
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	testutil.CompareGolden(t, "client.py.golden", []byte(migrated))
}

func TestMigrateGrandparentChain(t *testing.T) {
	lib := `
class Grandparent:
    @deprecated()
    def m(self):
        return self.replacement()

class Parent(Grandparent):
    pass

class Child(Parent):
    pass
`
	source := "from lib import Child\nc = Child()\nc.m()\n"
	cat, inherit := buildCatalog(t, map[string]string{"lib": lib})
	eng := New(catalog.DefaultMarkers(), nil)

	migrated, _, err := eng.Migrate(context.Background(), []byte(source), "client", "client.py",
		cat, inherit, oracle.NewStatic(map[string]string{"client.py:2:0": "Child"}))
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	want := "from lib import Child\nc = Child()\nc.replacement()\n"
	if migrated != want {
		t.Errorf("migrated = %q, want %q", migrated, want)
	}
}
