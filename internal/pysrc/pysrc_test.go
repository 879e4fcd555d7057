package pysrc

import (
	"context"
	"reflect"
	"testing"

	"depmig/internal/errors"
)

func TestParseAndText(t *testing.T) {
	p := NewParser()
	tree, err := p.Parse(context.Background(), []byte("x = f(1)\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tree.HasParseErrors() {
		t.Fatal("unexpected parse errors")
	}

	calls := FindAll(tree.Root(), "call")
	if len(calls) != 1 {
		t.Fatalf("found %d calls, want 1", len(calls))
	}
	if got := tree.Text(calls[0]); got != "f(1)" {
		t.Errorf("Text = %q, want f(1)", got)
	}

	start, end := ByteRange(calls[0])
	if start != 4 || end != 8 {
		t.Errorf("ByteRange = (%d, %d), want (4, 8)", start, end)
	}
	line, col := Position(calls[0])
	if line != 0 || col != 4 {
		t.Errorf("Position = (%d, %d), want (0, 4)", line, col)
	}
}

func TestParseExpr(t *testing.T) {
	p := NewParser()
	ctx := context.Background()

	tests := []struct {
		name     string
		text     string
		wantType string
		wantErr  bool
	}{
		{"call", "new_fn(a, b)", "call", false},
		{"attribute", "self.items", "attribute", false},
		{"await call", "await helper(x)", "await", false},
		{"string literal", `"a, b"`, "string", false},
		{"empty", "", "", true},
		{"statement not expression", "x = 1", "", true},
		{"two statements", "a(); b()", "", true},
		{"broken syntax", "f(", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := p.ParseExpr(ctx, tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseExpr(%q) succeeded, want error", tt.text)
				}
				if errors.CodeOf(err) != errors.SnippetParseFailed {
					t.Errorf("error code = %v, want %v", errors.CodeOf(err), errors.SnippetParseFailed)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseExpr(%q): %v", tt.text, err)
			}
			if expr.Root.Type() != tt.wantType {
				t.Errorf("root type = %q, want %q", expr.Root.Type(), tt.wantType)
			}
		})
	}
}

func TestIsIdentifier(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"x", true},
		{"snake_case", true},
		{"_private", true},
		{"x2", true},
		{"2x", false},
		{"a.b", false},
		{"f()", false},
		{"", false},
		{"lambda", false},
		{"None", false},
	}
	for _, tt := range tests {
		if got := IsIdentifier(tt.text); got != tt.want {
			t.Errorf("IsIdentifier(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsDottedName(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"x", true},
		{"a.b", true},
		{"pkg.sub.Class", true},
		{"a..b", false},
		{".a", false},
		{"f()", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsDottedName(tt.text); got != tt.want {
			t.Errorf("IsDottedName(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsNoOpStatement(t *testing.T) {
	p := NewParser()
	tree, err := p.Parse(context.Background(), []byte("\"doc\"\npass\n...\nx = 1\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	stmts := NamedChildren(tree.Root())
	want := []bool{true, true, true, false}
	if len(stmts) != len(want) {
		t.Fatalf("got %d statements, want %d", len(stmts), len(want))
	}
	for i, stmt := range stmts {
		if got := IsNoOpStatement(stmt); got != want[i] {
			t.Errorf("statement %d (%s): IsNoOpStatement = %v, want %v", i, stmt.Type(), got, want[i])
		}
	}
}

func TestAliasTable(t *testing.T) {
	source := `
import widgets
import widgets.legacy as legacy
from widgets import Widget
from widgets import Panel as P
from . import sibling
from ..common import helper
`
	p := NewParser()
	tree, err := p.Parse(context.Background(), []byte(source))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got := AliasTable(tree, "pkg.sub.mod")
	want := map[string]string{
		"widgets": "widgets",
		"legacy":  "widgets.legacy",
		"Widget":  "widgets.Widget",
		"P":       "widgets.Panel",
		"sibling": "pkg.sub.sibling",
		"helper":  "pkg.common.helper",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AliasTable = %v, want %v", got, want)
	}
}

func TestResolveRelativeModule(t *testing.T) {
	tests := []struct {
		target string
		module string
		want   string
	}{
		{"widgets", "app.main", "widgets"},
		{".sibling", "pkg.mod", "pkg.sibling"},
		{"..common", "pkg.sub.mod", "pkg.common"},
		{".", "pkg.mod", "pkg"},
		{"...far", "a.b", ""},
	}
	for _, tt := range tests {
		if got := ResolveRelativeModule(tt.target, tt.module); got != tt.want {
			t.Errorf("ResolveRelativeModule(%q, %q) = %q, want %q", tt.target, tt.module, got, tt.want)
		}
	}
}
