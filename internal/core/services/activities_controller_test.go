package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/services"
	"github.com/mashoras/activity-service/test/mocks"
)

const waitTimeout = 2 * time.Second

func waitForState(t *testing.T, c *services.ActivitiesController, desc string, cond func(services.ActivitiesState) bool) services.ActivitiesState {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		s := c.State()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, last state %+v", desc, s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func isSuccess(s services.ActivitiesState) bool { return s.Status == services.StatusSuccess }

func validDraft() domain.ActivityDraft {
	return domain.ActivityDraft{
		Title:        "Limpieza de playa",
		Description:  "Jornada de limpieza",
		Capacity:     2,
		Career:       "Todas",
		HoursAwarded: 4,
	}
}

func newController(t *testing.T, uid string) (*services.ActivitiesController, *mocks.MockActivityRepository, *mocks.MockUserRepository) {
	t.Helper()
	users := mocks.NewMockUserRepository()
	repo := mocks.NewMockActivityRepository(users)
	c := services.NewActivitiesController(repo, users, services.StaticSession(uid), nil)
	t.Cleanup(c.Stop)
	return c, repo, users
}

func TestActivitiesController_LoadingThenSuccess(t *testing.T) {
	// ARRANGE
	c, repo, users := newController(t, "t1")
	users.SeedUser(domain.User{UID: "t1", Role: domain.RoleTeacher})
	repo.Seed(domain.Activity{ID: "a1", Title: "Taller", Career: "Todas", Capacity: 3, EnrolledStudentIDs: []string{}})

	if got := c.State().Status; got != services.StatusLoading {
		t.Fatalf("expected initial status LOADING, got %s", got)
	}

	// ACT
	c.Start(context.Background())

	// ASSERT
	s := waitForState(t, c, "teacher success state", func(s services.ActivitiesState) bool {
		return isSuccess(s) && s.Role == domain.RoleTeacher
	})
	if len(s.Activities) != 1 || s.Activities[0].ID != "a1" {
		t.Errorf("expected activity a1, got %+v", s.Activities)
	}
}

func TestActivitiesController_SubscriptionErrors(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(*mocks.MockActivityRepository)
		afterStart  func(*mocks.MockActivityRepository)
		wantMessage string
	}{
		{
			name: "subscription_refused",
			setupMock: func(m *mocks.MockActivityRepository) {
				m.WatchError = domain.NewRemoteError("watch", errors.New("permission denied"))
			},
			wantMessage: "No tienes permisos para realizar esta acción",
		},
		{
			name:      "transport_lost_after_first_snapshot",
			setupMock: func(m *mocks.MockActivityRepository) {},
			afterStart: func(m *mocks.MockActivityRepository) {
				m.WaitForDeliveries(1, waitTimeout)
				m.FailWatchers(errors.New("connection refused"))
			},
			wantMessage: domain.MsgNetwork,
		},
		{
			name: "empty_error_message_uses_fallback",
			setupMock: func(m *mocks.MockActivityRepository) {
				m.WatchError = errors.New("")
			},
			wantMessage: domain.MsgLoadActivities,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// ARRANGE
			c, repo, _ := newController(t, "s1")
			tt.setupMock(repo)

			// ACT
			c.Start(context.Background())
			if tt.afterStart != nil {
				tt.afterStart(repo)
			}

			// ASSERT
			s := waitForState(t, c, "error state", func(s services.ActivitiesState) bool {
				return s.Status == services.StatusError
			})
			if s.Message != tt.wantMessage {
				t.Errorf("expected message %q, got %q", tt.wantMessage, s.Message)
			}
		})
	}
}

func TestActivitiesController_RefreshFailureKeepsList(t *testing.T) {
	// ARRANGE
	c, repo, _ := newController(t, "s1")
	repo.Seed(domain.Activity{ID: "a1", Title: "Taller", Career: "Todas", Capacity: 3})
	c.Start(context.Background())
	waitForState(t, c, "success", isSuccess)
	repo.RefreshError = errors.New("network unreachable")

	// ACT
	err := c.Refresh(context.Background())

	// ASSERT
	if err == nil {
		t.Fatal("expected refresh error")
	}
	if rs := c.RefreshState(); rs.Error != domain.MsgNetwork || rs.Loading {
		t.Errorf("expected refresh error %q, got %+v", domain.MsgNetwork, rs)
	}
	if s := c.State(); s.Status != services.StatusSuccess || len(s.Activities) != 1 {
		t.Errorf("expected success state to be untouched, got %+v", s)
	}

	repo.RefreshError = nil
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs := c.RefreshState(); !rs.Success {
		t.Errorf("expected refresh success, got %+v", rs)
	}
}

func TestActivitiesController_CreateRoundTrip(t *testing.T) {
	// ARRANGE
	c, repo, users := newController(t, "t1")
	users.SeedUser(domain.User{UID: "t1", Role: domain.RoleTeacher})
	c.Start(context.Background())
	waitForState(t, c, "success", isSuccess)

	// ACT
	draft := validDraft()
	draft.Career = "all"
	id, err := c.CreateActivity(context.Background(), draft)

	// ASSERT
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}
	s := waitForState(t, c, "created activity in state", func(s services.ActivitiesState) bool {
		return isSuccess(s) && len(s.Activities) == 1
	})
	got := s.Activities[0]
	if got.ID != id || got.CreatedBy != "t1" || got.Finalized || len(got.EnrolledStudentIDs) != 0 {
		t.Errorf("unexpected stored activity %+v", got)
	}
	if got.Career != domain.CareerAll {
		t.Errorf("expected career normalized to %q, got %q", domain.CareerAll, got.Career)
	}
	if cs := c.CreateState(); !cs.Success {
		t.Errorf("expected create success, got %+v", cs)
	}
	if repo.CreateCalls != 1 {
		t.Errorf("expected 1 create call, got %d", repo.CreateCalls)
	}

	c.ResetCreateState()
	if cs := c.CreateState(); cs != (services.ActionState{}) {
		t.Errorf("expected idle create state after reset, got %+v", cs)
	}
}

func TestActivitiesController_RequiresAuthentication(t *testing.T) {
	// ARRANGE
	c, repo, _ := newController(t, "")
	repo.Seed(domain.Activity{ID: "a1", Title: "Taller", Career: "Todas", Capacity: 3})
	ctx := context.Background()

	// ACT
	_, createErr := c.CreateActivity(ctx, validDraft())
	updateErr := c.UpdateActivity(ctx, "a1", validDraft())
	enrollErr := c.EnrollInActivity(ctx, "a1")
	unenrollErr := c.UnenrollFromActivity(ctx, "a1")

	// ASSERT
	for name, err := range map[string]error{
		"create": createErr, "update": updateErr, "enroll": enrollErr, "unenroll": unenrollErr,
	} {
		if !domain.IsAuth(err) {
			t.Errorf("%s: expected AuthError, got %v", name, err)
		}
	}
	if repo.CreateCalls != 0 || len(repo.EnrollCalls) != 0 {
		t.Errorf("expected no repository calls, got create=%d enroll=%v", repo.CreateCalls, repo.EnrollCalls)
	}
	if cs := c.CreateState(); cs.Error != domain.MsgUnauthenticated {
		t.Errorf("expected create error %q, got %q", domain.MsgUnauthenticated, cs.Error)
	}
	if b := c.State().Banner; b != domain.MsgUnauthenticated {
		t.Errorf("expected banner %q, got %q", domain.MsgUnauthenticated, b)
	}
}

func TestActivitiesController_CreateRejectsInvalidDraft(t *testing.T) {
	c, repo, _ := newController(t, "t1")

	draft := validDraft()
	draft.Capacity = 0
	_, err := c.CreateActivity(context.Background(), draft)

	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if repo.CreateCalls != 0 {
		t.Errorf("expected no repository call, got %d", repo.CreateCalls)
	}
	if c.CreateState().Error == "" {
		t.Error("expected create state to carry the error")
	}
}

func TestActivitiesController_ActionFailureRaisesBanner(t *testing.T) {
	// ARRANGE
	c, repo, _ := newController(t, "s1")
	repo.Seed(domain.Activity{ID: "a1", Title: "Taller", Career: "Todas", Capacity: 3})
	c.Start(context.Background())
	waitForState(t, c, "success", isSuccess)
	repo.EnrollError = domain.NewRemoteError("enroll", errors.New("network down"))

	// ACT
	err := c.EnrollInActivity(context.Background(), "a1")

	// ASSERT
	if !domain.IsRemote(err) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	s := c.State()
	if s.Status != services.StatusSuccess || len(s.Activities) != 1 {
		t.Errorf("expected list to be retained, got %+v", s)
	}
	if s.Banner != domain.MsgNetwork {
		t.Errorf("expected banner %q, got %q", domain.MsgNetwork, s.Banner)
	}

	c.DismissError()
	if b := c.State().Banner; b != "" {
		t.Errorf("expected banner cleared, got %q", b)
	}
}

func TestActivitiesController_EnrollAndUnenroll(t *testing.T) {
	c, repo, _ := newController(t, "s1")
	repo.Seed(domain.Activity{ID: "a1", Title: "Taller", Career: "Todas", Capacity: 3})
	ctx := context.Background()

	if err := c.EnrollInActivity(ctx, "a1"); err != nil {
		t.Fatalf("unexpected enroll error: %v", err)
	}
	if err := c.EnrollInActivity(ctx, "a1"); err != nil {
		t.Fatalf("expected repeated enroll to be a no-op, got %v", err)
	}
	a, _ := repo.Get("a1")
	if len(a.EnrolledStudentIDs) != 1 || a.EnrolledStudentIDs[0] != "s1" {
		t.Fatalf("expected [s1] enrolled, got %v", a.EnrolledStudentIDs)
	}

	if err := c.UnenrollFromActivity(ctx, "a1"); err != nil {
		t.Fatalf("unexpected unenroll error: %v", err)
	}
	a, _ = repo.Get("a1")
	if len(a.EnrolledStudentIDs) != 0 {
		t.Errorf("expected nobody enrolled, got %v", a.EnrolledStudentIDs)
	}
}

func TestActivitiesController_UpdateActivity(t *testing.T) {
	tests := []struct {
		name        string
		seed        domain.Activity
		capacity    int
		expectError bool
	}{
		{
			name:     "capacity_above_enrollment",
			seed:     domain.Activity{ID: "a1", Capacity: 5, EnrolledStudentIDs: []string{"s1", "s2", "s3"}},
			capacity: 4,
		},
		{
			name:        "capacity_below_enrollment",
			seed:        domain.Activity{ID: "a1", Capacity: 5, EnrolledStudentIDs: []string{"s1", "s2", "s3"}},
			capacity:    2,
			expectError: true,
		},
		{
			name:        "finalized_activity",
			seed:        domain.Activity{ID: "a1", Capacity: 5, Finalized: true},
			capacity:    5,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// ARRANGE
			c, repo, _ := newController(t, "t1")
			repo.Seed(tt.seed)
			draft := validDraft()
			draft.Capacity = tt.capacity

			// ACT
			err := c.UpdateActivity(context.Background(), "a1", draft)

			// ASSERT
			stored, _ := repo.Get("a1")
			if tt.expectError {
				if !domain.IsValidation(err) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if c.UpdateState().Error == "" {
					t.Error("expected update state to carry the error")
				}
				if stored.Capacity != tt.seed.Capacity {
					t.Errorf("expected capacity unchanged, got %d", stored.Capacity)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stored.Capacity != tt.capacity || stored.Title != draft.Title {
				t.Errorf("expected updated fields, got %+v", stored)
			}
			if !c.UpdateState().Success {
				t.Errorf("expected update success, got %+v", c.UpdateState())
			}
		})
	}
}

func TestActivitiesController_UpdateMissingActivity(t *testing.T) {
	c, _, _ := newController(t, "t1")

	err := c.UpdateActivity(context.Background(), "missing", validDraft())

	if !domain.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestActivitiesController_FinalizeCreditsOnce(t *testing.T) {
	// ARRANGE
	c, repo, users := newController(t, "t1")
	users.SeedUser(domain.User{UID: "s1", Role: domain.RoleStudent})
	users.SeedUser(domain.User{UID: "s2", Role: domain.RoleStudent})
	repo.Seed(domain.Activity{ID: "a1", Capacity: 5, HoursAwarded: 4, EnrolledStudentIDs: []string{"s1", "s2"}})
	ctx := context.Background()

	// ACT
	if err := c.MarkActivityAsCompleted(ctx, "a1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.MarkActivityAsCompleted(ctx, "a1"); err != nil {
		t.Fatalf("expected second finalize to be a no-op, got %v", err)
	}

	// ASSERT
	for _, uid := range []string{"s1", "s2"} {
		u, _ := users.User(uid)
		if u.HourProgress != 4 {
			t.Errorf("%s: expected 4 hours credited, got %d", uid, u.HourProgress)
		}
		if len(u.CompletedActivityIDs) != 1 || u.CompletedActivityIDs[0] != "a1" {
			t.Errorf("%s: expected completed [a1], got %v", uid, u.CompletedActivityIDs)
		}
	}
	if a, _ := repo.Get("a1"); !a.Finalized {
		t.Error("expected activity finalized")
	}
}

func TestActivitiesController_DeleteActivity(t *testing.T) {
	c, repo, _ := newController(t, "t1")
	repo.Seed(domain.Activity{ID: "a1", Capacity: 5})

	if err := c.DeleteActivity(context.Background(), "a1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.Get("a1"); ok {
		t.Error("expected activity removed")
	}
	if err := c.DeleteActivity(context.Background(), "a1"); err != nil {
		t.Errorf("expected deleting a missing activity to succeed, got %v", err)
	}
}

func TestActivitiesController_StudentListing(t *testing.T) {
	// ARRANGE
	c, repo, users := newController(t, "s1")
	users.SeedUser(domain.User{UID: "s1", Role: domain.RoleStudent, Career: "Civil"})
	repo.Seed(
		domain.Activity{ID: "todas", Career: "Todas", Capacity: 2},
		domain.Activity{ID: "civil", Career: "Civil", Capacity: 2},
		domain.Activity{ID: "quimica", Career: "Química", Capacity: 2},
	)

	if got := c.Listing(domain.ListingQuery{}); got != nil {
		t.Fatalf("expected no listing before the first snapshot, got %v", got)
	}

	// ACT
	c.Start(context.Background())
	waitForState(t, c, "success", isSuccess)
	deadline := time.Now().Add(waitTimeout)
	for c.Viewer().Career != "Civil" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// ASSERT
	items := c.Listing(domain.ListingQuery{Sort: domain.SortOldest})
	if len(items) != 2 {
		t.Fatalf("expected 2 visible activities, got %d", len(items))
	}
	for _, it := range items {
		if it.ID == "quimica" {
			t.Error("expected other-career activity to be hidden")
		}
	}
}

func TestActivitiesController_SubscribeReceivesLatestState(t *testing.T) {
	c, repo, _ := newController(t, "s1")
	repo.Seed(domain.Activity{ID: "a1", Career: "Todas", Capacity: 1})

	ch, cancel := c.Subscribe()
	defer cancel()

	if s := <-ch; s.Status != services.StatusLoading {
		t.Fatalf("expected current state on subscribe, got %s", s.Status)
	}

	c.Start(context.Background())

	select {
	case s := <-ch:
		if s.Status != services.StatusSuccess {
			t.Errorf("expected SUCCESS, got %s", s.Status)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for state")
	}
}

func TestActivitiesController_StopIsIdempotent(t *testing.T) {
	c, repo, _ := newController(t, "s1")

	c.Stop()
	c.Start(context.Background())
	if !repo.WaitForSubscribers(1, waitTimeout) {
		t.Fatal("expected one open watch")
	}

	c.Stop()
	c.Stop()

	if n := repo.Subscribers(); n != 0 {
		t.Errorf("expected all watches closed, got %d", n)
	}
}

func TestActivitiesController_SetUserRoleWithoutProfileSource(t *testing.T) {
	// ARRANGE
	users := mocks.NewMockUserRepository()
	repo := mocks.NewMockActivityRepository(users)
	repo.Seed(domain.Activity{ID: "a1", Title: "Taller", Career: "Todas", Capacity: 3, CreatedBy: "t1", EnrolledStudentIDs: []string{}})
	c := services.NewActivitiesController(repo, nil, services.StaticSession("t1"), nil)
	t.Cleanup(c.Stop)

	// ACT
	c.Start(context.Background())
	waitForState(t, c, "student default", func(s services.ActivitiesState) bool {
		return isSuccess(s) && s.Role == domain.RoleStudent
	})
	c.SetUserRole(domain.RoleTeacher)

	// ASSERT
	waitForState(t, c, "teacher role", func(s services.ActivitiesState) bool {
		return isSuccess(s) && s.Role == domain.RoleTeacher
	})
	items := c.Listing(domain.ListingQuery{})
	if len(items) != 1 || !items[0].CreatedByMe {
		t.Errorf("expected a1 flagged as created by the teacher, got %+v", items)
	}
}
