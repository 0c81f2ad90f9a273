package domain

type ChangeType string

const (
	ChangeAdded    ChangeType = "ADDED"
	ChangeModified ChangeType = "MODIFIED"
	ChangeRemoved  ChangeType = "REMOVED"
)

// ActivityChange is one document-level change between two snapshots.
type ActivityChange struct {
	Type     ChangeType
	Activity Activity
}

// DiffActivities compares the previous snapshot (keyed by id) with the next
// one. On the first snapshot (prev == nil) every activity is ADDED, the way a
// document listener replays the initial result set.
func DiffActivities(prev map[string]Activity, next []Activity) ([]ActivityChange, map[string]Activity) {
	index := make(map[string]Activity, len(next))
	var changes []ActivityChange
	for _, a := range next {
		index[a.ID] = a
		old, ok := prev[a.ID]
		switch {
		case !ok:
			changes = append(changes, ActivityChange{Type: ChangeAdded, Activity: a})
		case !sameActivity(old, a):
			changes = append(changes, ActivityChange{Type: ChangeModified, Activity: a})
		}
	}
	for id, old := range prev {
		if _, ok := index[id]; !ok {
			changes = append(changes, ActivityChange{Type: ChangeRemoved, Activity: old})
		}
	}
	return changes, index
}

func sameActivity(a, b Activity) bool {
	if a.Title != b.Title || a.Description != b.Description || a.Capacity != b.Capacity ||
		a.Career != b.Career || a.Finalized != b.Finalized || a.HoursAwarded != b.HoursAwarded ||
		a.CreatedBy != b.CreatedBy {
		return false
	}
	if (a.Date == nil) != (b.Date == nil) || (a.Date != nil && !a.Date.Equal(*b.Date)) {
		return false
	}
	if len(a.EnrolledStudentIDs) != len(b.EnrolledStudentIDs) {
		return false
	}
	for i := range a.EnrolledStudentIDs {
		if a.EnrolledStudentIDs[i] != b.EnrolledStudentIDs[i] {
			return false
		}
	}
	return true
}
