package domain

import "time"

type Role string

const (
	RoleStudent Role = "ESTUDIANTE"
	RoleTeacher Role = "MAESTRO"
)

// ParseRole maps a stored role value to a Role. Anything that is not the
// teacher value is treated as a student, matching how profiles were written.
func ParseRole(s string) Role {
	if Role(s) == RoleTeacher {
		return RoleTeacher
	}
	return RoleStudent
}

func (r Role) IsTeacher() bool { return r == RoleTeacher }

type User struct {
	UID                  string    `json:"uid"`
	Name                 string    `json:"name"`
	LastName             string    `json:"last_name"`
	Email                string    `json:"email"`
	Role                 Role      `json:"role"`
	Career               string    `json:"career"`
	HourGoal             int       `json:"hour_goal"`
	HourProgress         int       `json:"hour_progress"`
	CompletedActivityIDs []string  `json:"completed_activity_ids"`
	CreatedAt            time.Time `json:"created_at"`
}

// HasGoal reports whether the student set an hour goal. A zero goal means
// progress should not be displayed.
func (u User) HasGoal() bool { return u.HourGoal > 0 }

// Progress returns accumulated hours over the goal, capped at 1.
// The second return value is false when no goal is set.
func (u User) Progress() (float64, bool) {
	if !u.HasGoal() {
		return 0, false
	}
	p := float64(u.HourProgress) / float64(u.HourGoal)
	if p > 1 {
		p = 1
	}
	return p, true
}

// HoursRemaining is never negative.
func (u User) HoursRemaining() int {
	if rem := u.HourGoal - u.HourProgress; rem > 0 {
		return rem
	}
	return 0
}

func (u User) HasCompleted(activityID string) bool {
	for _, id := range u.CompletedActivityIDs {
		if id == activityID {
			return true
		}
	}
	return false
}
