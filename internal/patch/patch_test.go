package patch

import (
	"testing"

	"depmig/internal/errors"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		source string
		edits  []Edit
		want   string
	}{
		{
			name:   "no edits",
			source: "x = old()\n",
			edits:  nil,
			want:   "x = old()\n",
		},
		{
			name:   "single replacement",
			source: "x = old()\n",
			edits:  []Edit{{Start: 4, End: 9, Text: "new()"}},
			want:   "x = new()\n",
		},
		{
			name:   "replacement changing length keeps later edits valid",
			source: "a(); b()",
			edits: []Edit{
				{Start: 0, End: 3, Text: "longer_name()"},
				{Start: 5, End: 8, Text: "c()"},
			},
			want: "longer_name(); c()",
		},
		{
			name:   "edits added out of order",
			source: "a(); b()",
			edits: []Edit{
				{Start: 5, End: 8, Text: "c()"},
				{Start: 0, End: 3, Text: "d()"},
			},
			want: "d(); c()",
		},
		{
			name:   "deletion",
			source: "f(a, b)",
			edits:  []Edit{{Start: 3, End: 6, Text: ""}},
			want:   "f(a)",
		},
		{
			name:   "insertion at zero-length range",
			source: "f()",
			edits:  []Edit{{Start: 2, End: 2, Text: "x"}},
			want:   "f(x)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSet()
			for _, e := range tt.edits {
				s.Add(e)
			}
			got, err := s.Apply([]byte(tt.source))
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Apply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyKeepsOrderAtEqualStart(t *testing.T) {
	s := NewSet()
	s.Add(Edit{Start: 1, End: 1, Text: "a"})
	s.Add(Edit{Start: 1, End: 1, Text: ", b"})

	got, err := s.Apply([]byte("()"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if string(got) != "(a, b)" {
		t.Errorf("Apply = %q, want %q", got, "(a, b)")
	}
}

func TestApplyInsertionAtDeletionEnd(t *testing.T) {
	s := NewSet()
	s.Add(Edit{Start: 1, End: 2, Text: ""})
	s.Add(Edit{Start: 2, End: 2, Text: "x"})

	got, err := s.Apply([]byte("(a)"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if string(got) != "(x)" {
		t.Errorf("Apply = %q, want %q", got, "(x)")
	}
}

func TestApplyRejectsOverlap(t *testing.T) {
	s := NewSet()
	s.Add(Edit{Start: 0, End: 5, Text: "x"})
	s.Add(Edit{Start: 3, End: 8, Text: "y"})

	_, err := s.Apply([]byte("0123456789"))
	if err == nil {
		t.Fatal("expected overlap error")
	}
	if errors.CodeOf(err) != errors.EditOverlap {
		t.Errorf("error code = %v, want %v", errors.CodeOf(err), errors.EditOverlap)
	}
}

func TestApplyRejectsOutOfBounds(t *testing.T) {
	s := NewSet()
	s.Add(Edit{Start: 2, End: 20, Text: "x"})

	if _, err := s.Apply([]byte("short")); err == nil {
		t.Fatal("expected bounds error")
	}
}

func TestApplyLocality(t *testing.T) {
	source := "keep1 CHANGE keep2"
	s := NewSet()
	s.Add(Edit{Start: 6, End: 12, Text: "done"})

	got, err := s.Apply([]byte(source))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "keep1 done keep2"
	if string(got) != want {
		t.Errorf("Apply = %q, want %q", got, want)
	}
}
