// Package mocks provides mock implementations of port interfaces for testing.
// In hexagonal architecture, ports define the contracts between the core domain
// and external adapters. Mocks implement these interfaces to enable isolated testing.
package mocks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
)

// MockActivityRepository is an in-memory activity store with live fan-out.
// Every mutation broadcasts a fresh snapshot to all open watches, the way the
// change feed does in production.
type MockActivityRepository struct {
	mu         sync.Mutex
	activities []domain.Activity
	users      *MockUserRepository
	subs       map[int]*mockSub[[]domain.Activity]
	nextSub    int
	nextID     int
	deliveries atomic.Int64

	// Call tracking for verification
	CreateCalls   int
	EnrollCalls   []string
	FinalizeCalls []string
	RefreshCalls  int

	// Error injection for testing error scenarios
	WatchError    error
	RefreshError  error
	GetError      error
	CreateError   error
	UpdateError   error
	EnrollError   error
	UnenrollError error
	FinalizeError error
	DeleteError   error
}

var _ ports.ActivityRepository = (*MockActivityRepository)(nil)

// NewMockActivityRepository creates an empty store. When users is non-nil,
// finalizing credits hours to the enrolled profiles it holds.
func NewMockActivityRepository(users *MockUserRepository) *MockActivityRepository {
	return &MockActivityRepository{
		users: users,
		subs:  make(map[int]*mockSub[[]domain.Activity]),
	}
}

// Seed stores activities as-is (ids included) without broadcasting.
func (m *MockActivityRepository) Seed(activities ...domain.Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range activities {
		m.activities = append(m.activities, a.Clone())
	}
}

// Snapshot returns a deep copy of the stored activities.
func (m *MockActivityRepository) Snapshot() []domain.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Get returns a stored activity for assertions.
func (m *MockActivityRepository) Get(id string) (domain.Activity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexLocked(id); i >= 0 {
		return m.activities[i].Clone(), true
	}
	return domain.Activity{}, false
}

// Emit re-broadcasts the current snapshot, as a listener replaying the same
// documents would.
func (m *MockActivityRepository) Emit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcastLocked()
}

// FailWatchers ends every open watch with err, simulating a transport failure.
func (m *MockActivityRepository) FailWatchers(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		s.fail(err)
	}
}

// Subscribers returns the number of open watches.
func (m *MockActivityRepository) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// WaitForDeliveries polls until watchers have consumed at least n snapshots
// in total, or timeout elapses.
func (m *MockActivityRepository) WaitForDeliveries(n int, timeout time.Duration) bool {
	return waitUntil(timeout, func() bool { return m.deliveries.Load() >= int64(n) })
}

// WaitForSubscribers polls until n watches are open or timeout elapses.
func (m *MockActivityRepository) WaitForSubscribers(n int, timeout time.Duration) bool {
	return waitUntil(timeout, func() bool { return m.Subscribers() == n })
}

func (m *MockActivityRepository) WatchActivities(ctx context.Context, fn func([]domain.Activity)) error {
	m.mu.Lock()
	if m.WatchError != nil {
		err := m.WatchError
		m.mu.Unlock()
		return err
	}
	id := m.nextSub
	m.nextSub++
	s := newMockSub[[]domain.Activity]()
	m.subs[id] = s
	s.offer(m.snapshotLocked())
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}()
	return s.run(ctx, func(list []domain.Activity) {
		fn(list)
		m.deliveries.Add(1)
	})
}

func (m *MockActivityRepository) RefreshActivities(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefreshCalls++
	if m.RefreshError != nil {
		return m.RefreshError
	}
	m.broadcastLocked()
	return nil
}

func (m *MockActivityRepository) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	return m.snapshotLocked(), nil
}

func (m *MockActivityRepository) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	i := m.indexLocked(id)
	if i < 0 {
		return nil, domain.NewNotFoundError("activity", id)
	}
	a := m.activities[i].Clone()
	return &a, nil
}

func (m *MockActivityRepository) CreateActivity(ctx context.Context, activity domain.Activity, creatorID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.CreateError != nil {
		return "", m.CreateError
	}
	m.nextID++
	a := activity.Clone()
	a.ID = fmt.Sprintf("act-%d", m.nextID)
	a.CreatedBy = creatorID
	a.Finalized = false
	a.EnrolledStudentIDs = []string{}
	m.activities = append(m.activities, a)
	m.broadcastLocked()
	return a.ID, nil
}

func (m *MockActivityRepository) UpdateActivity(ctx context.Context, id string, draft domain.ActivityDraft) error {
	return m.mutate(id, m.UpdateError, func(a *domain.Activity) {
		a.Title = draft.Title
		a.Description = draft.Description
		a.Date = draft.Date
		a.Capacity = draft.Capacity
		a.Career = draft.Career
		a.HoursAwarded = draft.HoursAwarded
	})
}

// EnrollStudent has no capacity or finalization guard.
func (m *MockActivityRepository) EnrollStudent(ctx context.Context, activityID, userID string) error {
	m.mu.Lock()
	m.EnrollCalls = append(m.EnrollCalls, activityID+":"+userID)
	m.mu.Unlock()
	return m.mutate(activityID, m.EnrollError, func(a *domain.Activity) {
		*a = a.WithStudent(userID)
	})
}

func (m *MockActivityRepository) UnenrollStudent(ctx context.Context, activityID, userID string) error {
	return m.mutate(activityID, m.UnenrollError, func(a *domain.Activity) {
		*a = a.WithoutStudent(userID)
	})
}

// MarkActivityAsCompleted credits hours only on the call that flips the flag.
func (m *MockActivityRepository) MarkActivityAsCompleted(ctx context.Context, activityID string) error {
	m.mu.Lock()
	m.FinalizeCalls = append(m.FinalizeCalls, activityID)
	m.mu.Unlock()

	var credit *domain.Activity
	err := m.mutate(activityID, m.FinalizeError, func(a *domain.Activity) {
		if a.Finalized {
			return
		}
		a.Finalized = true
		c := a.Clone()
		credit = &c
	})
	if err != nil || credit == nil || m.users == nil {
		return err
	}
	for _, uid := range credit.EnrolledStudentIDs {
		m.users.Credit(uid, credit.HoursAwarded, credit.ID)
	}
	return nil
}

func (m *MockActivityRepository) DeleteActivity(ctx context.Context, activityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteError != nil {
		return m.DeleteError
	}
	if i := m.indexLocked(activityID); i >= 0 {
		m.activities = append(m.activities[:i], m.activities[i+1:]...)
		m.broadcastLocked()
	}
	return nil
}

func (m *MockActivityRepository) mutate(id string, injected error, fn func(*domain.Activity)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if injected != nil {
		return injected
	}
	i := m.indexLocked(id)
	if i < 0 {
		return domain.NewNotFoundError("activity", id)
	}
	fn(&m.activities[i])
	m.broadcastLocked()
	return nil
}

func (m *MockActivityRepository) indexLocked(id string) int {
	for i, a := range m.activities {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (m *MockActivityRepository) snapshotLocked() []domain.Activity {
	out := make([]domain.Activity, len(m.activities))
	for i, a := range m.activities {
		out[i] = a.Clone()
	}
	return out
}

func (m *MockActivityRepository) broadcastLocked() {
	for _, s := range m.subs {
		s.offer(m.snapshotLocked())
	}
}

// MockUserRepository implements ports.UserRepository in memory.
type MockUserRepository struct {
	mu      sync.Mutex
	users   map[string]domain.User
	subs    map[int]*mockUserSub
	nextSub int

	// Call tracking for verification
	CreateUserCalls []domain.User
	GoalUpdates     map[string]int

	// Error injection for testing error scenarios
	WatchError      error
	GetUserError    error
	CreateUserError error
	UpdateGoalError error
	ListError       error
}

type mockUserSub struct {
	uid string
	sub *mockSub[*domain.User]
}

var _ ports.UserRepository = (*MockUserRepository)(nil)

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:       make(map[string]domain.User),
		subs:        make(map[int]*mockUserSub),
		GoalUpdates: make(map[string]int),
	}
}

// SeedUser adds or replaces a profile and notifies its watchers.
func (m *MockUserRepository) SeedUser(user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.CompletedActivityIDs == nil {
		user.CompletedActivityIDs = []string{}
	}
	m.users[user.UID] = user
	m.broadcastLocked(user.UID)
}

// RemoveUser deletes a profile and notifies its watchers with nil.
func (m *MockUserRepository) RemoveUser(uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, uid)
	m.broadcastLocked(uid)
}

// User returns a stored profile for assertions.
func (m *MockUserRepository) User(uid string) (domain.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	return u, ok
}

// Credit adds hours and records the activity, as a finalize transaction does.
// Unknown users are skipped.
func (m *MockUserRepository) Credit(uid string, hours int, activityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return
	}
	u.HourProgress += hours
	if !u.HasCompleted(activityID) {
		u.CompletedActivityIDs = append(append([]string{}, u.CompletedActivityIDs...), activityID)
	}
	m.users[uid] = u
	m.broadcastLocked(uid)
}

func (m *MockUserRepository) WatchUser(ctx context.Context, uid string, fn func(*domain.User)) error {
	m.mu.Lock()
	if m.WatchError != nil {
		err := m.WatchError
		m.mu.Unlock()
		return err
	}
	id := m.nextSub
	m.nextSub++
	s := &mockUserSub{uid: uid, sub: newMockSub[*domain.User]()}
	m.subs[id] = s
	s.sub.offer(m.lookupLocked(uid))
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}()
	return s.sub.run(ctx, fn)
}

func (m *MockUserRepository) GetUser(ctx context.Context, uid string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetUserError != nil {
		return nil, m.GetUserError
	}
	u := m.lookupLocked(uid)
	if u == nil {
		return nil, domain.NewNotFoundError("user", uid)
	}
	return u, nil
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateUserCalls = append(m.CreateUserCalls, user)
	if m.CreateUserError != nil {
		return m.CreateUserError
	}
	m.users[user.UID] = user
	m.broadcastLocked(user.UID)
	return nil
}

func (m *MockUserRepository) UpdateHourGoal(ctx context.Context, uid string, goal int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateGoalError != nil {
		return m.UpdateGoalError
	}
	u, ok := m.users[uid]
	if !ok {
		return domain.NewNotFoundError("user", uid)
	}
	u.HourGoal = goal
	m.users[uid] = u
	m.GoalUpdates[uid] = goal
	m.broadcastLocked(uid)
	return nil
}

func (m *MockUserRepository) ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	out := make([]domain.User, 0)
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MockUserRepository) lookupLocked(uid string) *domain.User {
	u, ok := m.users[uid]
	if !ok {
		return nil
	}
	return &u
}

func (m *MockUserRepository) broadcastLocked(uid string) {
	for _, s := range m.subs {
		if s.uid == uid {
			s.sub.offer(m.lookupLocked(uid))
		}
	}
}

// mockSub is a latest-value mailbox drained by the watching goroutine.
type mockSub[T any] struct {
	values chan T
	failed chan error
}

func newMockSub[T any]() *mockSub[T] {
	return &mockSub[T]{values: make(chan T, 1), failed: make(chan error, 1)}
}

// offer must be called with the owning repository's lock held.
func (s *mockSub[T]) offer(v T) {
	select {
	case <-s.values:
	default:
	}
	s.values <- v
}

func (s *mockSub[T]) fail(err error) {
	select {
	case s.failed <- err:
	default:
	}
}

func (s *mockSub[T]) run(ctx context.Context, fn func(T)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.failed:
			return domain.NewRemoteError("watch", err)
		case v := <-s.values:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn(v)
		}
	}
}

func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
