package resolver

import (
	"context"
	"strings"
	"testing"

	"depmig/internal/catalog"
	"depmig/internal/errors"
	"depmig/internal/oracle"
	"depmig/internal/pysrc"
	"depmig/internal/rules"
)

const libSource = `
@deprecated(since="1.0")
def old_fn(a):
    return new_fn(a)

@deprecated()
def noop():
    pass

TIMEOUT = deprecated_attribute(DEFAULT_TIMEOUT)

class Widget:
    @deprecated()
    def close_conn(self):
        return self.shutdown()

    @property
    @deprecated()
    def size(self):
        return self.extent

class Parent:
    @deprecated()
    def legacy(self):
        return self.modern()

class Child(Parent):
    pass

class Box:
    @deprecated()
    def __len__(self):
        return self.count()
`

// runResolve scans libSource and clientSource as modules lib and
// client, resolves client against the merged catalog with a fixed type
// oracle, and returns the migrated text plus diagnostics.
func runResolve(t *testing.T, clientSource string, types map[string]string) (string, []Diagnostic) {
	t.Helper()
	ctx := context.Background()

	b := catalog.NewBuilder(catalog.DefaultMarkers(), nil)
	cat := rules.NewCatalog()
	inherit := rules.NewInheritanceIndex()
	for _, m := range []struct{ name, src string }{
		{"client", clientSource},
		{"lib", libSource},
	} {
		ms, err := b.Scan(ctx, m.name, []byte(m.src))
		if err != nil {
			t.Fatalf("Scan(%s): %v", m.name, err)
		}
		cat.Merge(ms.Catalog())
		inherit.Merge(ms.Inheritance())
	}

	tree, err := pysrc.NewParser().Parse(ctx, []byte(clientSource))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	r := New(cat, inherit, oracle.NewStatic(types), catalog.DefaultMarkers(), nil)
	edits, diags, err := r.Resolve(ctx, tree, "client", "client.py")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	out, err := edits.Apply([]byte(clientSource))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return string(out), diags
}

func TestResolveCalls(t *testing.T) {
	tests := []struct {
		name   string
		source string
		types  map[string]string
		want   string
	}{
		{
			name:   "imported function by bare name",
			source: "from lib import old_fn\nold_fn(1)\n",
			want:   "from lib import old_fn\nnew_fn(1)\n",
		},
		{
			name:   "qualified call keeps its qualifier",
			source: "import lib\nlib.old_fn(2)\n",
			want:   "import lib\nlib.new_fn(2)\n",
		},
		{
			name:   "aliased module",
			source: "import lib as compat\ncompat.old_fn(x)\n",
			want:   "import lib as compat\ncompat.new_fn(x)\n",
		},
		{
			name:   "method through typed receiver",
			source: "from lib import Widget\nw = Widget()\nw.close_conn()\n",
			types:  map[string]string{"client.py:2:0": "Widget"},
			want:   "from lib import Widget\nw = Widget()\nw.shutdown()\n",
		},
		{
			name:   "inherited method resolved through base",
			source: "from lib import Child\nc = Child()\nc.legacy()\n",
			types:  map[string]string{"client.py:2:0": "Child"},
			want:   "from lib import Child\nc = Child()\nc.modern()\n",
		},
		{
			name:   "magic method through builtin",
			source: "from lib import Box\nb = Box()\nn = len(b)\n",
			types:  map[string]string{"client.py:2:8": "Box"},
			want:   "from lib import Box\nb = Box()\nn = len(b.count())\n",
		},
		{
			name:   "property access",
			source: "from lib import Widget\nw = Widget()\nz = w.size\n",
			types:  map[string]string{"client.py:2:4": "Widget"},
			want:   "from lib import Widget\nw = Widget()\nz = w.extent\n",
		},
		{
			name:   "module attribute reference",
			source: "import lib\nt = lib.TIMEOUT\n",
			want:   "import lib\nt = lib.DEFAULT_TIMEOUT\n",
		},
		{
			name:   "imported attribute by bare name",
			source: "from lib import TIMEOUT\nprint(TIMEOUT)\n",
			want:   "from lib import TIMEOUT\nprint(DEFAULT_TIMEOUT)\n",
		},
		{
			name:   "imported attribute on assignment right side",
			source: "from lib import TIMEOUT\nt = TIMEOUT\n",
			want:   "from lib import TIMEOUT\nt = DEFAULT_TIMEOUT\n",
		},
		{
			name:   "imported attribute as keyword value",
			source: "from lib import TIMEOUT\nconnect(timeout=TIMEOUT)\n",
			want:   "from lib import TIMEOUT\nconnect(timeout=DEFAULT_TIMEOUT)\n",
		},
		{
			name:   "imported attribute rebind untouched",
			source: "from lib import TIMEOUT\nTIMEOUT = 5\n",
			want:   "from lib import TIMEOUT\nTIMEOUT = 5\n",
		},
		{
			name:   "elidable call as a whole statement",
			source: "from lib import noop\nnoop()\n",
			want:   "from lib import noop\npass\n",
		},
		{
			name:   "assignment target untouched",
			source: "import lib\nlib.TIMEOUT = 5\n",
			want:   "import lib\nlib.TIMEOUT = 5\n",
		},
		{
			name:   "deprecated declaration body untouched",
			source: "from lib import old_fn\n\n@deprecated()\ndef wrapper(a):\n    return old_fn(a)\n\nold_fn(3)\n",
			want:   "from lib import old_fn\n\n@deprecated()\ndef wrapper(a):\n    return old_fn(a)\n\nnew_fn(3)\n",
		},
		{
			name:   "unrelated code untouched",
			source: "from lib import old_fn\n\ndef fresh(a):\n    return a + 1\n",
			want:   "from lib import old_fn\n\ndef fresh(a):\n    return a + 1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := runResolve(t, tt.source, tt.types)
			if got != tt.want {
				t.Errorf("migrated = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveNeverGuesses(t *testing.T) {
	// Same receiver spelling, three oracle answers: a known deprecated
	// type migrates, an unrelated type is silently left alone, and an
	// unknown type is left alone with a diagnostic.
	source := "from lib import Widget\n\ndef use(w):\n    w.close_conn()\n"

	got, diags := runResolve(t, source, map[string]string{"client.py:3:4": "Widget"})
	if !strings.Contains(got, "w.shutdown()") {
		t.Errorf("typed receiver not migrated: %q", got)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %+v", diags)
	}

	got, diags = runResolve(t, source, map[string]string{"client.py:3:4": "Other"})
	if got != source {
		t.Errorf("unrelated type migrated: %q", got)
	}
	if len(diags) != 0 {
		t.Errorf("concrete non-matching type should not be reported: %+v", diags)
	}

	got, diags = runResolve(t, source, nil)
	if got != source {
		t.Errorf("unknown type migrated: %q", got)
	}
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].Code != errors.UnresolvableCall {
		t.Errorf("diagnostic code = %v", diags[0].Code)
	}
	if diags[0].Line != 3 || diags[0].Col != 4 {
		t.Errorf("diagnostic position = %d:%d, want 3:4", diags[0].Line, diags[0].Col)
	}
}

func TestResolveElidableSubExpression(t *testing.T) {
	source := "from lib import noop\nx = noop()\n"

	got, diags := runResolve(t, source, nil)
	if got != source {
		t.Errorf("sub-expression elision must not rewrite: %q", got)
	}
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].Code != errors.UnresolvableCall {
		t.Errorf("diagnostic code = %v", diags[0].Code)
	}
}

func TestResolveMagicNeedsSingleArgument(t *testing.T) {
	// len with anything but one plain argument never consults the oracle.
	source := "from lib import Box\nb = Box()\nn = len(b, 1)\n"
	got, _ := runResolve(t, source, map[string]string{"client.py:2:8": "Box"})
	if got != source {
		t.Errorf("multi-argument builtin migrated: %q", got)
	}
}
