package rules

import (
	"reflect"
	"testing"
)

func TestNamedParams(t *testing.T) {
	tests := []struct {
		name string
		rule ReplacementRule
		want []string
	}{
		{
			name: "free function keeps everything plain",
			rule: ReplacementRule{
				Kind: KindFunction,
				Params: []ParameterInfo{
					{Name: "a"}, {Name: "b", HasDefault: true, DefaultText: "10"},
				},
			},
			want: []string{"a", "b"},
		},
		{
			name: "method drops the receiver",
			rule: ReplacementRule{
				Kind: KindMethod,
				Params: []ParameterInfo{
					{Name: "self"}, {Name: "x"},
				},
			},
			want: []string{"x"},
		},
		{
			name: "vararg and kwarg excluded",
			rule: ReplacementRule{
				Kind: KindFunction,
				Params: []ParameterInfo{
					{Name: "a"}, {Name: "args", IsVararg: true}, {Name: "kwargs", IsKwarg: true},
				},
			},
			want: []string{"a"},
		},
		{
			name: "staticmethod has no receiver",
			rule: ReplacementRule{
				Kind: KindStaticMethod,
				Params: []ParameterInfo{
					{Name: "a"},
				},
			},
			want: []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, p := range tt.rule.NamedParams() {
				got = append(got, p.Name)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NamedParams = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReceiverName(t *testing.T) {
	method := ReplacementRule{Kind: KindMethod, Params: []ParameterInfo{{Name: "self"}, {Name: "x"}}}
	if got := method.ReceiverName(); got != "self" {
		t.Errorf("ReceiverName = %q, want self", got)
	}
	free := ReplacementRule{Kind: KindFunction, Params: []ParameterInfo{{Name: "a"}}}
	if got := free.ReceiverName(); got != "" {
		t.Errorf("ReceiverName = %q, want empty", got)
	}
}

func TestCatalogMergeKeepsFirst(t *testing.T) {
	local := NewCatalog()
	local.Add(&ReplacementRule{OldFQN: "m.f", TemplateText: "local()"})

	imported := NewCatalog()
	imported.Add(&ReplacementRule{OldFQN: "m.f", TemplateText: "imported()"})
	imported.Add(&ReplacementRule{OldFQN: "m.g", TemplateText: "g2()"})

	local.Merge(imported)

	if r, _ := local.Get("m.f"); r.TemplateText != "local()" {
		t.Errorf("merge overwrote local rule: %q", r.TemplateText)
	}
	if _, ok := local.Get("m.g"); !ok {
		t.Error("merge dropped new rule m.g")
	}
	if local.Len() != 2 {
		t.Errorf("Len = %d, want 2", local.Len())
	}
}

func TestHasMethodNamed(t *testing.T) {
	c := NewCatalog()
	c.Add(&ReplacementRule{OldFQN: "m.Widget.close_conn"})

	if !c.HasMethodNamed("close_conn") {
		t.Error("HasMethodNamed(close_conn) = false")
	}
	if c.HasMethodNamed("close") {
		t.Error("HasMethodNamed(close) matched a longer method name")
	}
}

func TestAncestryOrder(t *testing.T) {
	ix := NewInheritanceIndex()
	ix.Record("m.Child", []string{"m.Parent", "m.Mixin"})
	ix.Record("m.Parent", []string{"m.Grandparent"})

	var visited []string
	ix.Ancestry("m.Child", nil, func(base string) bool {
		visited = append(visited, base)
		return true
	})

	want := []string{"m.Parent", "m.Mixin", "m.Grandparent"}
	if !reflect.DeepEqual(visited, want) {
		t.Errorf("Ancestry order = %v, want %v", visited, want)
	}
}

func TestAncestryCycleSafe(t *testing.T) {
	ix := NewInheritanceIndex()
	ix.Record("m.A", []string{"m.B"})
	ix.Record("m.B", []string{"m.A"})

	count := 0
	ix.Ancestry("m.A", nil, func(string) bool {
		count++
		return count < 100
	})
	if count != 2 {
		t.Errorf("cyclic ancestry visited %d bases, want 2", count)
	}
}

func TestAncestryStops(t *testing.T) {
	ix := NewInheritanceIndex()
	ix.Record("m.Child", []string{"m.Parent"})
	ix.Record("m.Parent", []string{"m.Grandparent"})

	var visited []string
	ix.Ancestry("m.Child", nil, func(base string) bool {
		visited = append(visited, base)
		return false
	})
	if len(visited) != 1 {
		t.Errorf("visit returning false should stop the walk, got %v", visited)
	}
}

func TestModuleScanRoundTripBuilders(t *testing.T) {
	ms := &ModuleScan{
		Module: "m",
		Rules: []*ReplacementRule{
			{OldFQN: "m.f", TemplateText: "g()"},
		},
		Bases: map[string][]string{"m.C": {"m.B"}},
	}

	if got := ms.Catalog().Len(); got != 1 {
		t.Errorf("Catalog().Len() = %d, want 1", got)
	}
	if got := ms.Inheritance().Bases("m.C"); len(got) != 1 || got[0] != "m.B" {
		t.Errorf("Inheritance().Bases = %v", got)
	}
}

func TestHasMethodNamedDunder(t *testing.T) {
	c := NewCatalog()
	c.Add(&ReplacementRule{OldFQN: "m.Box.__len__", Kind: KindMethod})
	if !c.HasMethodNamed("__len__") {
		t.Error("HasMethodNamed(__len__) = false")
	}
}
