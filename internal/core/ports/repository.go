package ports

import (
	"context"

	"github.com/mashoras/activity-service/internal/core/domain"
)

// ActivityRepository maps stored activity documents to domain.Activity.
//
// WatchActivities delivers the current snapshot immediately and then a full
// replacement list on every change. It blocks until ctx is cancelled (returning
// ctx.Err()) or the underlying transport fails (returning a RemoteError). It
// never resubscribes on its own. fn is called from a single goroutine.
//
// Enroll/unenroll are idempotent set operations and check neither capacity
// nor finalization.
type ActivityRepository interface {
	WatchActivities(ctx context.Context, fn func([]domain.Activity)) error
	RefreshActivities(ctx context.Context) error
	ListActivities(ctx context.Context) ([]domain.Activity, error)
	GetActivity(ctx context.Context, id string) (*domain.Activity, error)
	CreateActivity(ctx context.Context, activity domain.Activity, creatorID string) (string, error)
	UpdateActivity(ctx context.Context, id string, draft domain.ActivityDraft) error
	EnrollStudent(ctx context.Context, activityID, userID string) error
	UnenrollStudent(ctx context.Context, activityID, userID string) error
	MarkActivityAsCompleted(ctx context.Context, activityID string) error
	DeleteActivity(ctx context.Context, activityID string) error
}

// UserRepository maps stored profiles to domain.User.
//
// WatchUser calls fn with nil while the profile does not exist.
type UserRepository interface {
	WatchUser(ctx context.Context, uid string, fn func(*domain.User)) error
	GetUser(ctx context.Context, uid string) (*domain.User, error)
	CreateUser(ctx context.Context, user domain.User) error
	UpdateHourGoal(ctx context.Context, uid string, goal int) error
	ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
}
