package booking

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

func sameMember(a, b FamilyMember) bool {
	return strings.EqualFold(strings.TrimSpace(a.Name), strings.TrimSpace(b.Name)) &&
		sameDay(a.DateOfBirth, b.DateOfBirth)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ReconcileFamilyMembers merges an incoming family list into the stored one.
// Members are matched on case-insensitive name and date of birth. Matches
// keep their ID and take the incoming relationship, unmatched incoming
// members are appended with fresh IDs, and stored members missing from the
// incoming list are dropped. Matched members come first, in incoming order.
func ReconcileFamilyMembers(existing, incoming []FamilyMember) []FamilyMember {
	var kept, added []FamilyMember

	for _, in := range incoming {
		in.Name = strings.TrimSpace(in.Name)
		if containsMember(kept, in) || containsMember(added, in) {
			continue
		}

		matched := false
		for _, ex := range existing {
			if sameMember(ex, in) {
				ex.Relationship = in.Relationship
				kept = append(kept, ex)
				matched = true
				break
			}
		}
		if !matched {
			in.ID = uuid.New()
			added = append(added, in)
		}
	}

	return append(kept, added...)
}

func containsMember(list []FamilyMember, m FamilyMember) bool {
	for _, x := range list {
		if sameMember(x, m) {
			return true
		}
	}
	return false
}
