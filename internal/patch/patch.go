// Package patch accumulates byte-range edits and applies them to
// source text in one pass.
package patch

import (
	"fmt"
	"sort"

	"depmig/internal/errors"
)

// Edit is one pending change: replace source[Start:End] with Text.
// Ranges are half-open byte offsets into the original text. Edits must
// be disjoint and never nested.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Set collects edits for one resolver pass.
type Set struct {
	edits []Edit
}

// NewSet creates an empty edit set.
func NewSet() *Set {
	return &Set{}
}

// Add appends an edit.
func (s *Set) Add(e Edit) {
	s.edits = append(s.edits, e)
}

// Len returns the number of pending edits.
func (s *Set) Len() int {
	return len(s.edits)
}

// Edits returns the pending edits sorted by ascending start offset.
// Edits sharing a start keep their insertion order.
func (s *Set) Edits() []Edit {
	out := append([]Edit(nil), s.edits...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Apply rewrites source with all pending edits. Edits are applied in
// descending start order so earlier offsets stay valid; edits sharing
// a start keep their Add order. Overlapping edits are a resolver bug,
// reported as EDIT_OVERLAP.
func (s *Set) Apply(source []byte) ([]byte, error) {
	if len(s.edits) == 0 {
		return source, nil
	}

	edits := append([]Edit(nil), s.edits...)
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].Start < edits[j].Start })

	for i, e := range edits {
		if e.Start < 0 || e.End > len(source) || e.Start > e.End {
			return nil, errors.New(errors.InternalError,
				fmt.Sprintf("edit range [%d,%d) out of bounds for %d bytes", e.Start, e.End, len(source)), nil)
		}
		if i > 0 && e.Start < edits[i-1].End {
			return nil, errors.New(errors.EditOverlap,
				fmt.Sprintf("edit [%d,%d) overlaps [%d,%d)", e.Start, e.End, edits[i-1].Start, edits[i-1].End), nil)
		}
	}

	out := append([]byte(nil), source...)
	for i := len(edits) - 1; i >= 0; i-- {
		e := edits[i]
		out = append(out[:e.Start], append([]byte(e.Text), out[e.End:]...)...)
	}
	return out, nil
}
