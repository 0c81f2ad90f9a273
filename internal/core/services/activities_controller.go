package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
)

type Status string

const (
	StatusLoading Status = "LOADING"
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// ActivitiesState is the main view state. Activities and Role are only
// meaningful in StatusSuccess; Message only in StatusError. Banner carries the
// last failed action and is shown next to the retained list.
type ActivitiesState struct {
	Status     Status            `json:"status"`
	Activities []domain.Activity `json:"activities,omitempty"`
	Role       domain.Role       `json:"role,omitempty"`
	Message    string            `json:"message,omitempty"`
	Banner     string            `json:"banner,omitempty"`
}

// ActionState is the narrow result slice of a single kind of action.
type ActionState struct {
	Loading bool   `json:"loading"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ActivitiesController merges the live activity stream with the current
// user's role into one state and serializes mutations against it.
type ActivitiesController struct {
	repo    ports.ActivityRepository
	users   ports.UserRepository
	session ports.Session
	log     *zap.Logger

	state   *stateHolder[ActivitiesState]
	create  *stateHolder[ActionState]
	update  *stateHolder[ActionState]
	refresh *stateHolder[ActionState]

	mu      sync.Mutex
	role    domain.Role
	career  string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	actions sync.Mutex
}

// NewActivitiesController builds a controller in the Loading state. users may
// be nil, in which case the role must be supplied with SetUserRole.
func NewActivitiesController(
	repo ports.ActivityRepository,
	users ports.UserRepository,
	session ports.Session,
	log *zap.Logger,
) *ActivitiesController {
	if log == nil {
		log = zap.NewNop()
	}
	return &ActivitiesController{
		repo:    repo,
		users:   users,
		session: session,
		log:     log.Named("activities"),
		state:   newStateHolder(ActivitiesState{Status: StatusLoading}),
		create:  newStateHolder(ActionState{}),
		update:  newStateHolder(ActionState{}),
		refresh: newStateHolder(ActionState{}),
		role:    domain.RoleStudent,
	}
}

// Start subscribes to the activity stream and, when a user repository and an
// authenticated session are available, to the current user's profile.
// Calling Start on a running controller is a no-op.
func (c *ActivitiesController) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.repo.WatchActivities(ctx, c.onActivities)
		if err == nil || ctx.Err() != nil {
			return
		}
		c.log.Warn("activity subscription terminated", zap.Error(err))
		c.state.Set(ActivitiesState{
			Status:  StatusError,
			Message: domain.ErrorMessage(err, domain.MsgLoadActivities),
		})
	}()

	uid, ok := c.currentUser()
	if c.users == nil || !ok {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.users.WatchUser(ctx, uid, func(u *domain.User) {
			if u == nil {
				return
			}
			c.setProfile(u.Role, u.Career)
		})
		if err != nil && ctx.Err() == nil {
			c.log.Warn("profile subscription terminated", zap.String("uid", uid), zap.Error(err))
		}
	}()
}

// Stop releases the subscriptions and waits for their goroutines to exit.
// It is safe to call when Start was never called or Stop already ran.
func (c *ActivitiesController) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
}

func (c *ActivitiesController) onActivities(list []domain.Activity) {
	c.mu.Lock()
	role := c.role
	c.mu.Unlock()
	c.state.Update(func(prev ActivitiesState) ActivitiesState {
		return ActivitiesState{
			Status:     StatusSuccess,
			Activities: list,
			Role:       role,
			Banner:     prev.Banner,
		}
	})
}

func (c *ActivitiesController) setProfile(role domain.Role, career string) {
	c.mu.Lock()
	c.role = role
	c.career = career
	c.mu.Unlock()
	c.state.Update(func(s ActivitiesState) ActivitiesState {
		if s.Status == StatusSuccess {
			s.Role = role
		}
		return s
	})
}

// SetUserRole overrides the tracked role.
func (c *ActivitiesController) SetUserRole(role domain.Role) {
	c.mu.Lock()
	career := c.career
	c.mu.Unlock()
	c.setProfile(role, career)
}

func (c *ActivitiesController) State() ActivitiesState { return c.state.Get() }

func (c *ActivitiesController) Subscribe() (<-chan ActivitiesState, func()) {
	return c.state.Subscribe()
}

func (c *ActivitiesController) CreateState() ActionState  { return c.create.Get() }
func (c *ActivitiesController) UpdateState() ActionState  { return c.update.Get() }
func (c *ActivitiesController) RefreshState() ActionState { return c.refresh.Get() }

func (c *ActivitiesController) ResetCreateState() { c.create.Set(ActionState{}) }
func (c *ActivitiesController) ResetUpdateState() { c.update.Set(ActionState{}) }

// DismissError clears the action error banner.
func (c *ActivitiesController) DismissError() {
	c.state.Update(func(s ActivitiesState) ActivitiesState {
		s.Banner = ""
		return s
	})
}

// Viewer describes the current user for derived listings.
func (c *ActivitiesController) Viewer() domain.Viewer {
	uid, _ := c.currentUser()
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Viewer{UserID: uid, Role: c.role, Career: c.career}
}

// Listing derives the role-aware list from the current Success state. It
// returns nil outside of StatusSuccess.
func (c *ActivitiesController) Listing(q domain.ListingQuery) []domain.ListedActivity {
	s := c.state.Get()
	if s.Status != StatusSuccess {
		return nil
	}
	return domain.Query(s.Activities, c.Viewer(), q)
}

// Refresh forces a re-pull. Its failure is reported in RefreshState only and
// leaves a healthy Success state untouched.
func (c *ActivitiesController) Refresh(ctx context.Context) error {
	c.refresh.Set(ActionState{Loading: true})
	if err := c.repo.RefreshActivities(ctx); err != nil {
		c.log.Warn("refresh failed", zap.Error(err))
		c.refresh.Set(ActionState{Error: domain.ErrorMessage(err, domain.MsgNetwork)})
		return err
	}
	c.refresh.Set(ActionState{Success: true})
	return nil
}

// CreateActivity stores a new activity created by the current user.
func (c *ActivitiesController) CreateActivity(ctx context.Context, draft domain.ActivityDraft) (string, error) {
	uid, ok := c.currentUser()
	if !ok {
		err := domain.NewAuthError("")
		c.create.Set(ActionState{Error: err.Error()})
		return "", err
	}
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		c.create.Set(ActionState{Error: err.Error()})
		return "", err
	}

	c.actions.Lock()
	defer c.actions.Unlock()

	c.create.Set(ActionState{Loading: true})
	id, err := c.repo.CreateActivity(ctx, draft.NewActivity(uid), uid)
	if err != nil {
		c.log.Error("create activity failed", zap.String("creator", uid), zap.Error(err))
		c.create.Set(ActionState{Error: domain.ErrorMessage(err, domain.MsgCreateActivity)})
		return "", err
	}
	c.log.Info("activity created", zap.String("id", id), zap.String("creator", uid))
	c.create.Set(ActionState{Success: true})
	return id, nil
}

// UpdateActivity overwrites the mutable fields of an existing activity.
// Finalized activities cannot be edited and capacity cannot drop below the
// current enrollment count.
func (c *ActivitiesController) UpdateActivity(ctx context.Context, id string, draft domain.ActivityDraft) error {
	if _, ok := c.currentUser(); !ok {
		err := domain.NewAuthError("")
		c.update.Set(ActionState{Error: err.Error()})
		return err
	}
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		c.update.Set(ActionState{Error: err.Error()})
		return err
	}

	c.actions.Lock()
	defer c.actions.Unlock()

	c.update.Set(ActionState{Loading: true})
	err := c.updateActivity(ctx, id, draft)
	if err != nil {
		c.log.Warn("update activity failed", zap.String("id", id), zap.Error(err))
		c.update.Set(ActionState{Error: domain.ErrorMessage(err, domain.MsgUpdateActivity)})
		return err
	}
	c.update.Set(ActionState{Success: true})
	return nil
}

func (c *ActivitiesController) updateActivity(ctx context.Context, id string, draft domain.ActivityDraft) error {
	current, err := c.repo.GetActivity(ctx, id)
	if err != nil {
		return err
	}
	if current.Finalized {
		return domain.NewValidationError(domain.ErrActivityFinalized)
	}
	if err := domain.ValidateCapacityChange(*current, draft.Capacity); err != nil {
		return err
	}
	return c.repo.UpdateActivity(ctx, id, draft)
}

// EnrollInActivity adds the current user to the activity. Capacity is not
// checked here; callers check it against the latest state first.
func (c *ActivitiesController) EnrollInActivity(ctx context.Context, id string) error {
	return c.userAction(ctx, domain.MsgEnroll, func(uid string) error {
		return c.repo.EnrollStudent(ctx, id, uid)
	})
}

func (c *ActivitiesController) UnenrollFromActivity(ctx context.Context, id string) error {
	return c.userAction(ctx, domain.MsgUnenroll, func(uid string) error {
		return c.repo.UnenrollStudent(ctx, id, uid)
	})
}

func (c *ActivitiesController) MarkActivityAsCompleted(ctx context.Context, id string) error {
	return c.action(domain.MsgFinalize, func() error {
		return c.repo.MarkActivityAsCompleted(ctx, id)
	})
}

func (c *ActivitiesController) DeleteActivity(ctx context.Context, id string) error {
	return c.action(domain.MsgDelete, func() error {
		return c.repo.DeleteActivity(ctx, id)
	})
}

func (c *ActivitiesController) userAction(ctx context.Context, fallback string, fn func(uid string) error) error {
	uid, ok := c.currentUser()
	if !ok {
		err := domain.NewAuthError("")
		c.reportActionError(err, fallback)
		return err
	}
	return c.action(fallback, func() error { return fn(uid) })
}

func (c *ActivitiesController) action(fallback string, fn func() error) error {
	c.actions.Lock()
	defer c.actions.Unlock()
	if err := fn(); err != nil {
		c.reportActionError(err, fallback)
		return err
	}
	return nil
}

// reportActionError keeps the last list visible and raises the banner.
func (c *ActivitiesController) reportActionError(err error, fallback string) {
	c.log.Warn("action failed", zap.String("action", fallback), zap.Error(err))
	msg := domain.ErrorMessage(err, fallback)
	c.state.Update(func(s ActivitiesState) ActivitiesState {
		s.Banner = msg
		return s
	})
}

func (c *ActivitiesController) currentUser() (string, bool) {
	if c.session == nil {
		return "", false
	}
	uid, ok := c.session.CurrentUserID()
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

// StaticSession is a Session for an already-authenticated user id. The empty
// value is an anonymous session.
type StaticSession string

func (s StaticSession) CurrentUserID() (string, bool) {
	return string(s), s != ""
}
