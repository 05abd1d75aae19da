// Package order computes contiguous position assignments for ordered
// collections (lists within a board, tasks within a list). It is pure:
// callers pass the current sibling order and receive the full new layout,
// which the store then writes in a single batched statement.
package order

// Placement pairs a sibling id with its new zero-based position.
type Placement struct {
	ID       string
	Position int
}

// Clamp bounds a requested index to [0, max].
func Clamp(index, max int) int {
	if index < 0 {
		return 0
	}
	if index > max {
		return max
	}
	return index
}

// InsertAt returns the layout after inserting id into siblings at index.
// siblings must be in current position order and must not contain id.
// index is clamped to [0, len(siblings)].
func InsertAt(siblings []string, id string, index int) []Placement {
	index = Clamp(index, len(siblings))
	out := make([]Placement, 0, len(siblings)+1)
	for i, sib := range siblings {
		pos := i
		if i >= index {
			pos = i + 1
		}
		out = append(out, Placement{ID: sib, Position: pos})
	}
	out = append(out, Placement{ID: id, Position: index})
	return out
}

// Remove returns the compacted layout after deleting id from siblings.
// Siblings keep their relative order; the result is 0..n-2 with no gaps.
// The removed id does not appear in the result.
func Remove(siblings []string, id string) []Placement {
	out := make([]Placement, 0, len(siblings))
	for _, sib := range siblings {
		if sib == id {
			continue
		}
		out = append(out, Placement{ID: sib, Position: len(out)})
	}
	return out
}

// MoveTo returns the layout after moving id (already a member of siblings)
// to index. index is clamped to [0, len(siblings)-1]. Moving an item to its
// current position yields the identity layout.
func MoveTo(siblings []string, id string, index int) []Placement {
	if len(siblings) == 0 {
		return nil
	}
	index = Clamp(index, len(siblings)-1)

	rest := make([]string, 0, len(siblings)-1)
	found := false
	for _, sib := range siblings {
		if sib == id {
			found = true
			continue
		}
		rest = append(rest, sib)
	}
	if !found {
		out := make([]Placement, len(siblings))
		for i, sib := range siblings {
			out[i] = Placement{ID: sib, Position: i}
		}
		return out
	}
	return InsertAt(rest, id, index)
}

// Changed filters a layout down to the placements that differ from the
// current positions, keeping renumber writes minimal.
func Changed(layout []Placement, current map[string]int) []Placement {
	out := make([]Placement, 0, len(layout))
	for _, p := range layout {
		if pos, ok := current[p.ID]; ok && pos == p.Position {
			continue
		}
		out = append(out, p)
	}
	return out
}
