package accounting

import "strings"

// Session is the occurrence view the classifier works on.
type Session struct {
	ID       string
	Category string
	HostID   string
}

// Assignment is the slot-assignment view the classifier works on. Label is
// the resolved display label of the (role, slot-index) position.
type Assignment struct {
	SessionID string
	MemberID  string
	RoleID    string
	Label     string
}

// coHostMarkers are the substrings that classify a slot as a hosting
// position. Matching is intentionally a substring heuristic over free-text
// labels; slots whose names incidentally contain a marker are misclassified.
// Known limitation, kept so the rule can later be swapped for a structured
// flag without changing callers.
var coHostMarkers = []string{"co-host", "cohost"}

// IsCoHostSlot reports whether the (role, label) pair names a co-hosting
// position. It is the single classification rule separating hosted from
// attended slot assignments.
func IsCoHostSlot(roleID, label string) bool {
	for _, marker := range coHostMarkers {
		if strings.Contains(strings.ToLower(roleID), marker) {
			return true
		}
		if strings.Contains(strings.ToLower(label), marker) {
			return true
		}
	}
	return false
}

// Classification partitions a member's session participation for one epoch.
type Classification struct {
	HostedIDs   []string
	AttendedIDs []string
	LoggedIDs   []string
	// Per-category logged/hosted/attended counts back category-scoped quotas.
	HostedByCategory   map[string]int
	AttendedByCategory map[string]int
	LoggedByCategory   map[string]int
}

// Classify applies the attribution rules to one member:
//
//   - sessions the member owns count as hosted;
//   - slot assignments on co-host-classified slots count as hosted;
//   - every other assignment not on an owned session counts as attended;
//   - logged is the deduplicated union of hosted and attended.
func Classify(memberID string, sessions []Session, assignments []Assignment) Classification {
	byID := make(map[string]Session, len(sessions))
	for _, session := range sessions {
		byID[session.ID] = session
	}

	hosted := make(map[string]struct{})
	for _, session := range sessions {
		if session.HostID != "" && session.HostID == memberID {
			hosted[session.ID] = struct{}{}
		}
	}

	attended := make(map[string]struct{})
	for _, assignment := range assignments {
		if assignment.MemberID != memberID {
			continue
		}
		if _, ok := byID[assignment.SessionID]; !ok {
			continue
		}
		if IsCoHostSlot(assignment.RoleID, assignment.Label) {
			hosted[assignment.SessionID] = struct{}{}
			continue
		}
		if _, ok := hosted[assignment.SessionID]; ok {
			continue
		}
		attended[assignment.SessionID] = struct{}{}
	}

	// A co-host claim elsewhere may have promoted a session after it was
	// recorded as attended.
	for id := range attended {
		if _, ok := hosted[id]; ok {
			delete(attended, id)
		}
	}

	result := Classification{
		HostedByCategory:   make(map[string]int),
		AttendedByCategory: make(map[string]int),
		LoggedByCategory:   make(map[string]int),
	}
	for id := range hosted {
		result.HostedIDs = append(result.HostedIDs, id)
		result.HostedByCategory[byID[id].Category]++
		result.LoggedIDs = append(result.LoggedIDs, id)
		result.LoggedByCategory[byID[id].Category]++
	}
	for id := range attended {
		result.AttendedIDs = append(result.AttendedIDs, id)
		result.AttendedByCategory[byID[id].Category]++
		result.LoggedIDs = append(result.LoggedIDs, id)
		result.LoggedByCategory[byID[id].Category]++
	}
	return result
}
