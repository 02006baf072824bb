package main

import (
	"testing"
	"time"
)

func TestWeekSlots(t *testing.T) {
	// Monday
	first := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	slots := weekSlots(first, 7)

	// six working days, seven hours each
	if len(slots) != 42 {
		t.Fatalf("got %d slots, want 42", len(slots))
	}
	if s := slots[0]; s.Date != "2025-06-02" || s.Start != "09:00" || s.End != "10:00" {
		t.Errorf("first slot = %+v", s)
	}
	for _, s := range slots {
		if s.Start == "13:00" {
			t.Errorf("lunch hour slot published: %+v", s)
		}
		if s.Date == "2025-06-08" {
			t.Errorf("sunday slot published: %+v", s)
		}
	}
}

func TestFakeFamily(t *testing.T) {
	members := fakeFamily(3)
	if len(members) != 3 {
		t.Fatalf("got %d members", len(members))
	}
	for _, m := range members {
		if m.Name == "" || m.Relationship == "" || m.DateOfBirth.IsZero() {
			t.Errorf("incomplete member %+v", m)
		}
	}
}
