package core

import (
	"testing"
)

func TestNewID_Unique(t *testing.T) {
	seen := map[ID]bool{}
	for i := 0; i < 1000; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Fatal("NewID returned empty ID")
		}
		if seen[id] {
			t.Fatalf("duplicate ID %s", id)
		}
		seen[id] = true
	}
}

func TestNewID_TimeOrdered(t *testing.T) {
	// UUIDv7 is lexicographically sortable by creation time.
	a := NewID().String()
	b := NewID().String()
	if a >= b {
		t.Errorf("expected %s < %s", a, b)
	}
}

func TestParseIDs(t *testing.T) {
	if _, err := ParseTrialID(""); err == nil {
		t.Error("empty trial ID must be rejected")
	}
	if _, err := ParseTrialID("  "); err == nil {
		t.Error("blank trial ID must be rejected")
	}
	id, err := ParseRunID("run-1")
	if err != nil {
		t.Fatalf("ParseRunID: %v", err)
	}
	if id.String() != "run-1" {
		t.Errorf("round trip = %q", id.String())
	}
}
