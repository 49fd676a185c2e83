package history

import (
	"testing"

	"roulette-pilot/internal/roulette"
)

func outcome(id string, n int) Outcome {
	return Outcome{RoundID: id, Number: n, Color: roulette.ColorOf(n)}
}

func TestRecordDisabledUntilEnabled(t *testing.T) {
	h := New(5)
	if h.RecordIfEnabled(outcome("r1", 3)) {
		t.Fatalf("record accepted before enable")
	}
	if h.Len() != 0 {
		t.Fatalf("expected empty history, got %d", h.Len())
	}
	h.Enable()
	if !h.RecordIfEnabled(outcome("r2", 3)) {
		t.Fatalf("record refused after enable")
	}
	if h.Len() != 1 {
		t.Fatalf("expected 1 item, got %d", h.Len())
	}
}

func TestOldestEvictedOnOverflow(t *testing.T) {
	h := New(5)
	h.Enable()
	ids := []string{"r1", "r2", "r3", "r4", "r5", "r6"}
	for _, id := range ids {
		h.RecordIfEnabled(outcome(id, 1))
	}
	snap := h.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("expected 5 items, got %d", len(snap))
	}
	if snap[0].RoundID != "r2" || snap[4].RoundID != "r6" {
		t.Fatalf("unexpected window: first=%s last=%s", snap[0].RoundID, snap[4].RoundID)
	}
}

func TestSnapshotOldestToNewest(t *testing.T) {
	h := New(5)
	h.Enable()
	numbers := []int{1, 2, 3, 4, 5}
	for i, n := range numbers {
		h.RecordIfEnabled(outcome(string(rune('a'+i)), n))
	}
	snap := h.Snapshot()
	for i, n := range numbers {
		if snap[i].Number != n {
			t.Fatalf("position %d: expected %d, got %d", i, n, snap[i].Number)
		}
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	h := New(5)
	h.Enable()
	for i := 0; i < 5; i++ {
		h.RecordIfEnabled(outcome("r", i+1))
	}
	snap := h.Snapshot()
	h.RecordIfEnabled(outcome("later", 36))
	if snap[4].RoundID == "later" {
		t.Fatalf("snapshot mutated by later append")
	}
}

func TestFull(t *testing.T) {
	h := New(2)
	h.Enable()
	if h.Full() {
		t.Fatalf("empty history reported full")
	}
	h.RecordIfEnabled(outcome("r1", 1))
	h.RecordIfEnabled(outcome("r2", 2))
	if !h.Full() {
		t.Fatalf("history at capacity not reported full")
	}
}
