package engine

import (
	"fmt"
	"reflect"
	"testing"
)

func TestLogRingAppendAndSnapshot(t *testing.T) {
	r := newLogRing(3)
	if r.Len() != 0 {
		t.Fatalf("expected empty ring, got %d", r.Len())
	}

	r.Append("a")
	r.Append("b")
	if got := r.Snapshot(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected snapshot: %v", got)
	}
}

func TestLogRingEvictsOldest(t *testing.T) {
	r := newLogRing(3)
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		r.Append(l)
	}
	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	if got := r.Snapshot(); !reflect.DeepEqual(got, []string{"c", "d", "e"}) {
		t.Fatalf("unexpected snapshot after eviction: %v", got)
	}
}

func TestLogRingTail(t *testing.T) {
	r := newLogRing(5)
	for i := 1; i <= 4; i++ {
		r.Append(fmt.Sprintf("line %d", i))
	}

	if got := r.Tail(2); !reflect.DeepEqual(got, []string{"line 3", "line 4"}) {
		t.Fatalf("unexpected tail(2): %v", got)
	}
	// n <= 0 or n > count both return everything
	if got := r.Tail(0); len(got) != 4 {
		t.Fatalf("tail(0) should return all lines, got %v", got)
	}
	if got := r.Tail(100); len(got) != 4 {
		t.Fatalf("tail(100) should return all lines, got %v", got)
	}
}

func TestLogRingCapacityMatchesSupervisor(t *testing.T) {
	r := newLogRing(logRingCapacity)
	for i := 0; i < logRingCapacity+50; i++ {
		r.Append(fmt.Sprintf("line %d", i))
	}
	if r.Len() != logRingCapacity {
		t.Fatalf("expected %d buffered lines, got %d", logRingCapacity, r.Len())
	}
	snap := r.Snapshot()
	if snap[0] != "line 50" {
		t.Fatalf("expected oldest retained line to be 'line 50', got %q", snap[0])
	}
	if snap[len(snap)-1] != fmt.Sprintf("line %d", logRingCapacity+49) {
		t.Fatalf("unexpected newest line: %q", snap[len(snap)-1])
	}
}
