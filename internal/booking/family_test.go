package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestReconcileFamilyMembers(t *testing.T) {
	dobMira := time.Date(2015, 3, 4, 0, 0, 0, 0, time.UTC)
	dobRavi := time.Date(1960, 1, 20, 0, 0, 0, 0, time.UTC)
	dobNew := time.Date(2020, 8, 9, 0, 0, 0, 0, time.UTC)

	mira := FamilyMember{ID: uuid.New(), Name: "Mira", Relationship: "daughter", DateOfBirth: dobMira}
	ravi := FamilyMember{ID: uuid.New(), Name: "Ravi", Relationship: "father", DateOfBirth: dobRavi}

	got := ReconcileFamilyMembers([]FamilyMember{mira, ravi}, []FamilyMember{
		{Name: "Anu", Relationship: "son", DateOfBirth: dobNew},
		// Same person: name case differs and the time of day is ignored.
		{Name: "mira ", Relationship: "child", DateOfBirth: dobMira.Add(6 * time.Hour)},
		{Name: "MIRA", Relationship: "dup", DateOfBirth: dobMira},
	})

	if len(got) != 2 {
		t.Fatalf("got %d members, want 2: %+v", len(got), got)
	}
	if got[0].ID != mira.ID || got[0].Relationship != "child" || got[0].Name != "Mira" {
		t.Errorf("kept member = %+v, want Mira with updated relationship", got[0])
	}
	if got[1].Name != "Anu" || got[1].ID == uuid.Nil {
		t.Errorf("added member = %+v", got[1])
	}
	for _, m := range got {
		if m.ID == ravi.ID {
			t.Error("Ravi was not in the incoming list and should be dropped")
		}
	}
}

func TestReconcileFamilyMembers_SameNameDifferentBirthday(t *testing.T) {
	existing := []FamilyMember{{ID: uuid.New(), Name: "Kai", DateOfBirth: time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)}}
	got := ReconcileFamilyMembers(existing, []FamilyMember{
		{Name: "Kai", DateOfBirth: time.Date(2002, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	if len(got) != 1 || got[0].ID == existing[0].ID {
		t.Errorf("different birthday should be a new member: %+v", got)
	}
}

func TestReconcileFamilyMembers_EmptyClears(t *testing.T) {
	existing := []FamilyMember{{ID: uuid.New(), Name: "Kai"}}
	if got := ReconcileFamilyMembers(existing, nil); len(got) != 0 {
		t.Errorf("got %+v, want empty", got)
	}
}
