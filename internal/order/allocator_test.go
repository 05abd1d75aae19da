package order

import (
	"math/rand"
	"testing"
)

func positionsOf(layout []Placement) map[string]int {
	out := make(map[string]int, len(layout))
	for _, p := range layout {
		out[p.ID] = p.Position
	}
	return out
}

// checkContiguous asserts positions are exactly 0..n-1, each used once.
func checkContiguous(t *testing.T, layout []Placement) {
	t.Helper()
	seen := make(map[int]string, len(layout))
	for _, p := range layout {
		if p.Position < 0 || p.Position >= len(layout) {
			t.Fatalf("position %d for %s out of range [0,%d)", p.Position, p.ID, len(layout))
		}
		if other, dup := seen[p.Position]; dup {
			t.Fatalf("position %d assigned to both %s and %s", p.Position, other, p.ID)
		}
		seen[p.Position] = p.ID
	}
}

func orderedIDs(layout []Placement) []string {
	out := make([]string, len(layout))
	for _, p := range layout {
		out[p.Position] = p.ID
	}
	return out
}

func TestInsertAtEnd(t *testing.T) {
	layout := InsertAt([]string{"a", "b"}, "c", 2)
	checkContiguous(t, layout)
	pos := positionsOf(layout)
	if pos["a"] != 0 || pos["b"] != 1 || pos["c"] != 2 {
		t.Fatalf("unexpected layout %v", pos)
	}
}

func TestInsertAtFrontShiftsSiblings(t *testing.T) {
	layout := InsertAt([]string{"a", "b"}, "c", 0)
	checkContiguous(t, layout)
	pos := positionsOf(layout)
	if pos["c"] != 0 || pos["a"] != 1 || pos["b"] != 2 {
		t.Fatalf("unexpected layout %v", pos)
	}
}

func TestInsertClampsOutOfRange(t *testing.T) {
	for _, index := range []int{-5, 99} {
		layout := InsertAt([]string{"a", "b"}, "c", index)
		checkContiguous(t, layout)
	}
	pos := positionsOf(InsertAt([]string{"a"}, "b", 42))
	if pos["b"] != 1 {
		t.Fatalf("expected clamp to tail, got %v", pos)
	}
}

func TestInsertIntoEmpty(t *testing.T) {
	layout := InsertAt(nil, "a", 0)
	if len(layout) != 1 || layout[0].Position != 0 {
		t.Fatalf("unexpected layout %v", layout)
	}
}

func TestRemoveCompacts(t *testing.T) {
	// Board [Backlog@0, Doing@1, Done@2]; delete Doing -> [Backlog@0, Done@1].
	layout := Remove([]string{"backlog", "doing", "done"}, "doing")
	checkContiguous(t, layout)
	pos := positionsOf(layout)
	if pos["backlog"] != 0 || pos["done"] != 1 {
		t.Fatalf("unexpected layout %v", pos)
	}
}

func TestRemoveLastItem(t *testing.T) {
	if layout := Remove([]string{"a"}, "a"); len(layout) != 0 {
		t.Fatalf("expected empty layout, got %v", layout)
	}
}

func TestMoveToFront(t *testing.T) {
	// [T1@0, T2@1, T3@2]; move T3 to 0 -> [T3@0, T1@1, T2@2].
	layout := MoveTo([]string{"t1", "t2", "t3"}, "t3", 0)
	checkContiguous(t, layout)
	pos := positionsOf(layout)
	if pos["t3"] != 0 || pos["t1"] != 1 || pos["t2"] != 2 {
		t.Fatalf("unexpected layout %v", pos)
	}
}

func TestMoveNoOp(t *testing.T) {
	layout := MoveTo([]string{"a", "b", "c"}, "b", 1)
	checkContiguous(t, layout)
	pos := positionsOf(layout)
	if pos["a"] != 0 || pos["b"] != 1 || pos["c"] != 2 {
		t.Fatalf("no-op move changed layout: %v", pos)
	}
}

func TestMoveIsIdempotent(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	first := orderedIDs(MoveTo(ids, "d", 1))
	second := orderedIDs(MoveTo(first, "d", 1))
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("repeat move diverged: %v vs %v", first, second)
		}
	}
}

func TestMoveClampsPastEnd(t *testing.T) {
	layout := MoveTo([]string{"a", "b", "c"}, "a", 10)
	checkContiguous(t, layout)
	if positionsOf(layout)["a"] != 2 {
		t.Fatalf("expected a at tail, got %v", layout)
	}
}

func TestMovePreservesRelativeOrder(t *testing.T) {
	layout := MoveTo([]string{"a", "b", "c", "d", "e"}, "e", 1)
	got := orderedIDs(layout)
	want := []string{"a", "e", "b", "c", "d"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestChangedFiltersStablePlacements(t *testing.T) {
	layout := MoveTo([]string{"a", "b", "c"}, "c", 0)
	changed := Changed(layout, map[string]int{"a": 0, "b": 1, "c": 2})
	if len(changed) != 3 {
		t.Fatalf("expected every slot to change, got %v", changed)
	}
	layout = MoveTo([]string{"a", "b", "c"}, "c", 2)
	changed = Changed(layout, map[string]int{"a": 0, "b": 1, "c": 2})
	if len(changed) != 0 {
		t.Fatalf("no-op move should change nothing, got %v", changed)
	}
}

func TestRandomOpSequenceStaysContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := []string{}
	next := 'a'
	for i := 0; i < 500; i++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(ids) == 0:
			id := string(next)
			next++
			layout := InsertAt(ids, id, rng.Intn(len(ids)+3)-1)
			checkContiguous(t, layout)
			ids = orderedIDs(layout)
		case op == 1:
			layout := Remove(ids, ids[rng.Intn(len(ids))])
			checkContiguous(t, layout)
			ids = orderedIDs(layout)
		default:
			layout := MoveTo(ids, ids[rng.Intn(len(ids))], rng.Intn(len(ids)+2)-1)
			checkContiguous(t, layout)
			ids = orderedIDs(layout)
		}
	}
}
