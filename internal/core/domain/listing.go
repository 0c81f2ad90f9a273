package domain

import (
	"math"
	"sort"
	"strings"
)

type Filter string

const (
	FilterAll       Filter = "ALL"
	FilterAvailable Filter = "AVAILABLE"
	FilterEnrolled  Filter = "ENROLLED"
	FilterFull      Filter = "FULL"
)

func ParseFilter(s string) Filter {
	switch Filter(strings.ToUpper(s)) {
	case FilterAvailable:
		return FilterAvailable
	case FilterEnrolled:
		return FilterEnrolled
	case FilterFull:
		return FilterFull
	}
	return FilterAll
}

type Sort string

const (
	SortNewest    Sort = "NEWEST"
	SortOldest    Sort = "OLDEST"
	SortMoreHours Sort = "MORE_HOURS"
	SortLessHours Sort = "LESS_HOURS"
	SortMoreSpots Sort = "MORE_SPOTS"
	SortLessSpots Sort = "LESS_SPOTS"
)

func ParseSort(s string) Sort {
	switch v := Sort(strings.ToUpper(s)); v {
	case SortOldest, SortMoreHours, SortLessHours, SortMoreSpots, SortLessSpots:
		return v
	}
	return SortNewest
}

// Viewer identifies who a listing is computed for.
type Viewer struct {
	UserID string
	Role   Role
	Career string
}

// ListedActivity is an activity as shown to a viewer.
type ListedActivity struct {
	Activity
	CreatedByMe bool `json:"created_by_me"`
	Enrolled    bool `json:"enrolled"`
	SpotsLeft   int  `json:"spots_left"`
	Full        bool `json:"full"`
}

// IsListedFor is the base visibility rule: students see open activities for
// their career or for all careers, teachers see every open activity.
func IsListedFor(a Activity, v Viewer) bool {
	if a.Finalized {
		return false
	}
	if v.Role.IsTeacher() {
		return true
	}
	return a.IsEligibleFor(v.Career)
}

// Listing computes the base list for v, without search, filter or sort.
func Listing(activities []Activity, v Viewer) []ListedActivity {
	out := make([]ListedActivity, 0, len(activities))
	for _, a := range activities {
		if !IsListedFor(a, v) {
			continue
		}
		out = append(out, listed(a, v))
	}
	return out
}

func listed(a Activity, v Viewer) ListedActivity {
	return ListedActivity{
		Activity:    a,
		CreatedByMe: v.Role.IsTeacher() && v.UserID != "" && a.CreatedBy == v.UserID,
		Enrolled:    a.IsEnrolled(v.UserID),
		SpotsLeft:   a.SpotsLeft(),
		Full:        a.IsFull(),
	}
}

// ListingQuery refines a base listing.
type ListingQuery struct {
	Search string
	Filter Filter
	Sort   Sort
}

// Query applies search, then filter, then sort to the base listing for v.
func Query(activities []Activity, v Viewer, q ListingQuery) []ListedActivity {
	items := Listing(activities, v)

	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		matched := items[:0:0]
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Title), term) ||
				strings.Contains(strings.ToLower(it.Description), term) {
				matched = append(matched, it)
			}
		}
		items = matched
	}

	filtered := items[:0:0]
	for _, it := range items {
		keep := true
		switch q.Filter {
		case FilterAvailable:
			keep = !it.Finalized && !it.Full
		case FilterEnrolled:
			keep = it.Enrolled
		case FilterFull:
			keep = it.Full
		}
		if keep {
			filtered = append(filtered, it)
		}
	}

	sortListing(filtered, q.Sort)
	return filtered
}

func dateKey(a Activity, missing int64) int64 {
	if a.Date == nil {
		return missing
	}
	return a.Date.UnixMilli()
}

func sortListing(items []ListedActivity, s Sort) {
	var less func(i, j int) bool
	switch s {
	case SortOldest:
		less = func(i, j int) bool {
			return dateKey(items[i].Activity, math.MaxInt64) < dateKey(items[j].Activity, math.MaxInt64)
		}
	case SortMoreHours:
		less = func(i, j int) bool { return items[i].HoursAwarded > items[j].HoursAwarded }
	case SortLessHours:
		less = func(i, j int) bool { return items[i].HoursAwarded < items[j].HoursAwarded }
	case SortMoreSpots:
		less = func(i, j int) bool { return items[i].SpotsLeft > items[j].SpotsLeft }
	case SortLessSpots:
		less = func(i, j int) bool { return items[i].SpotsLeft < items[j].SpotsLeft }
	default:
		less = func(i, j int) bool {
			return dateKey(items[i].Activity, math.MinInt64) > dateKey(items[j].Activity, math.MinInt64)
		}
	}
	sort.SliceStable(items, less)
}

// History lists finalized activities: for students those they were enrolled
// in, for teachers those they created.
func History(activities []Activity, v Viewer) []Activity {
	out := make([]Activity, 0)
	for _, a := range activities {
		if !a.Finalized {
			continue
		}
		if v.Role.IsTeacher() {
			if a.CreatedBy == v.UserID {
				out = append(out, a)
			}
			continue
		}
		if a.IsEnrolled(v.UserID) {
			out = append(out, a)
		}
	}
	return out
}
