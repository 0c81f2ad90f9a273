package handler_test

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mashoras/activity-service/internal/adapters/handler"
	"github.com/mashoras/activity-service/internal/adapters/middleware"
	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/services"
	"github.com/mashoras/activity-service/test/mocks"
)

type testAPI struct {
	router    http.Handler
	auth      *services.AuthService
	repo      *mocks.MockActivityRepository
	users     *mocks.MockUserRepository
	identity  *mocks.MockIdentityGateway
	blacklist *mocks.MockTokenBlacklist
	redis     *mocks.MockRedisClient
	live      *services.ActivitiesController
}

var testKey *rsa.PrivateKey

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	if testKey == nil {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}
		testKey = key
	}
	return testKey
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	key := signingKey(t)
	api := &testAPI{
		users:     mocks.NewMockUserRepository(),
		identity:  mocks.NewMockIdentityGateway(),
		blacklist: mocks.NewMockTokenBlacklist(),
		redis:     mocks.NewMockRedisClient(),
	}
	api.repo = mocks.NewMockActivityRepository(api.users)
	api.auth = services.NewAuthService(api.identity, api.users, api.blacklist, key, time.Hour, nil)
	api.live = services.NewActivitiesController(api.repo, nil, services.StaticSession(""), nil)
	t.Cleanup(api.live.Stop)

	h := handler.Handlers{
		Auth:         handler.NewAuthHandler(api.auth, nil),
		Registration: handler.NewRegistrationHandler(services.NewRegistrationService(api.identity, api.users, nil)),
		Activities:   handler.NewActivityHandler(api.repo, api.users, api.live, nil),
		Profile:      handler.NewProfileHandler(services.NewProfileService(api.users)),
		Health: handler.NewHealthHandler(nil, api.redis, map[string]handler.ReadinessCheck{
			"activity_feed": func() bool { return true },
		}),
	}
	authMW := middleware.NewAuthMiddleware(&key.PublicKey, api.blacklist, nil)
	api.router = handler.NewRouter(h, authMW, []string{"*"})

	api.users.SeedUser(domain.User{UID: "s1", Role: domain.RoleStudent, Career: "Civil", Email: "gar21456@uvg.edu.gt"})
	api.users.SeedUser(domain.User{UID: "s2", Role: domain.RoleStudent, Career: "Química", Email: "lop22001@uvg.edu.gt"})
	api.users.SeedUser(domain.User{UID: "t1", Role: domain.RoleTeacher, Email: "jperez@uvg.edu.gt"})
	api.users.SeedUser(domain.User{UID: "t2", Role: domain.RoleTeacher, Email: "mlopez@uvg.edu.gt"})
	return api
}

func (api *testAPI) token(t *testing.T, uid string) string {
	t.Helper()
	u, ok := api.users.User(uid)
	if !ok {
		t.Fatalf("unknown user %s", uid)
	}
	tok, err := api.auth.IssueToken(u)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return tok
}

func (api *testAPI) do(t *testing.T, method, path, uid string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+api.token(t, uid))
	}
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func draftBody(career string, capacity int) map[string]interface{} {
	return map[string]interface{}{
		"title":         "Reforestación",
		"description":   "Siembra de árboles",
		"capacity":      capacity,
		"career":        career,
		"hours_awarded": 5,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	api := newTestAPI(t)

	// ARRANGE / ACT
	rec := api.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "new12345@uvg.edu.gt", "password": "secret123", "name": "Ana", "last_name": "Ruiz", "career": "Física",
	})

	// ASSERT
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	reg := decode[handler.RegistrationResponse](t, rec)
	if reg.User.Role != domain.RoleStudent {
		t.Errorf("expected student role, got %s", reg.User.Role)
	}

	rec = api.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "new12345@uvg.edu.gt", "password": "secret123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	login := decode[handler.LoginResponse](t, rec)
	if login.Token == "" || login.User == nil || login.User.UID != reg.User.UID {
		t.Errorf("unexpected login response %+v", login)
	}
}

func TestRegister_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantField  string
	}{
		{
			name:       "non_institutional_email",
			body:       map[string]string{"email": "a@gmail.com", "password": "secret123", "name": "A", "last_name": "B", "career": "Civil"},
			wantStatus: http.StatusBadRequest,
			wantField:  "email",
		},
		{
			name:       "unknown_field",
			body:       map[string]string{"email": "a@uvg.edu.gt", "role": "MAESTRO"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing_career",
			body:       map[string]string{"email": "abc12345@uvg.edu.gt", "password": "secret123", "name": "A", "last_name": "B"},
			wantStatus: http.StatusBadRequest,
			wantField:  "career",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)

			rec := api.do(t, http.MethodPost, "/auth/register", "", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantField == "" {
				return
			}
			resp := decode[handler.ErrorResponse](t, rec)
			if len(resp.Fields) == 0 || resp.Fields[0].Field != tt.wantField {
				t.Errorf("expected field %q, got %+v", tt.wantField, resp.Fields)
			}
		})
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	api := newTestAPI(t)
	api.identity.AddAccount("s1", "gar21456@uvg.edu.gt", "secret123")

	rec := api.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "gar21456@uvg.edu.gt", "password": "wrong",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if resp := decode[handler.ErrorResponse](t, rec); resp.Error != "Correo o contraseña incorrectos" {
		t.Errorf("unexpected message %q", resp.Error)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, "s1")

	send := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(http.MethodPost, "/auth/logout"); code != http.StatusOK {
		t.Fatalf("expected logout 200, got %d", code)
	}
	if code := send(http.MethodGet, "/profile"); code != http.StatusUnauthorized {
		t.Errorf("expected revoked token to be rejected, got %d", code)
	}
}

func TestActivities_RequireAuthentication(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/activities", "", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestActivities_CreateAndList(t *testing.T) {
	// ARRANGE
	api := newTestAPI(t)
	api.repo.Seed(domain.Activity{ID: "quimica", Title: "Laboratorio", Career: "Química", Capacity: 3, CreatedBy: "t2"})

	// ACT
	rec := api.do(t, http.MethodPost, "/activities", "t1", draftBody("Civil", 3))

	// ASSERT
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[handler.CreateResponse](t, rec)
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	rec = api.do(t, http.MethodGet, "/activities", "s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list := decode[handler.ListResponse](t, rec)
	if list.Role != domain.RoleStudent || len(list.Activities) != 1 || list.Activities[0].ID != created.ID {
		t.Errorf("expected student to see only the new Civil activity, got %+v", list)
	}

	rec = api.do(t, http.MethodGet, "/activities?sort=oldest", "t1", nil)
	list = decode[handler.ListResponse](t, rec)
	if len(list.Activities) != 2 {
		t.Fatalf("expected teacher to see both activities, got %d", len(list.Activities))
	}
	for _, a := range list.Activities {
		if a.CreatedByMe != (a.ID == created.ID) {
			t.Errorf("unexpected created_by_me=%v for %s", a.CreatedByMe, a.ID)
		}
	}
}

func TestActivities_CreateValidation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/activities", "t1", draftBody("Civil", 0))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decode[handler.ErrorResponse](t, rec)
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "capacity" {
		t.Errorf("expected capacity field error, got %+v", resp.Fields)
	}
	if api.repo.CreateCalls != 0 {
		t.Errorf("expected no stored activity, got %d calls", api.repo.CreateCalls)
	}
}

func TestActivities_RoleRestrictions(t *testing.T) {
	api := newTestAPI(t)
	api.repo.Seed(domain.Activity{ID: "a1", Title: "Taller", Career: "Todas", Capacity: 3, CreatedBy: "t1"})

	tests := []struct {
		name   string
		method string
		path   string
		uid    string
		body   interface{}
	}{
		{name: "student_cannot_create", method: http.MethodPost, path: "/activities", uid: "s1", body: draftBody("Civil", 3)},
		{name: "student_cannot_finalize", method: http.MethodPost, path: "/activities/a1/finalize", uid: "s1"},
		{name: "teacher_cannot_enroll", method: http.MethodPost, path: "/activities/a1/enroll", uid: "t1"},
		{name: "teacher_has_no_goal", method: http.MethodPut, path: "/profile/goal", uid: "t1", body: map[string]int{"hour_goal": 10}},
		{name: "other_teacher_cannot_edit", method: http.MethodPut, path: "/activities/a1", uid: "t2", body: draftBody("Civil", 3)},
		{name: "other_teacher_cannot_delete", method: http.MethodDelete, path: "/activities/a1", uid: "t2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.method, tt.path, tt.uid, tt.body)
			if rec.Code != http.StatusForbidden {
				t.Errorf("expected 403, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
	if _, ok := api.repo.Get("a1"); !ok {
		t.Error("expected activity to survive")
	}
}

func TestActivities_Enroll(t *testing.T) {
	tests := []struct {
		name       string
		activity   domain.Activity
		uid        string
		wantStatus int
		wantCount  int
	}{
		{
			name:       "open_spot",
			activity:   domain.Activity{ID: "a1", Career: "Civil", Capacity: 2, EnrolledStudentIDs: []string{"s9"}},
			uid:        "s1",
			wantStatus: http.StatusOK,
			wantCount:  2,
		},
		{
			name:       "full",
			activity:   domain.Activity{ID: "a1", Career: "Todas", Capacity: 2, EnrolledStudentIDs: []string{"s8", "s9"}},
			uid:        "s1",
			wantStatus: http.StatusConflict,
			wantCount:  2,
		},
		{
			name:       "other_career",
			activity:   domain.Activity{ID: "a1", Career: "Química", Capacity: 2},
			uid:        "s1",
			wantStatus: http.StatusForbidden,
			wantCount:  0,
		},
		{
			name:       "finalized",
			activity:   domain.Activity{ID: "a1", Career: "Todas", Capacity: 2, Finalized: true},
			uid:        "s1",
			wantStatus: http.StatusConflict,
			wantCount:  0,
		},
		{
			name:       "already_enrolled",
			activity:   domain.Activity{ID: "a1", Career: "Todas", Capacity: 2, EnrolledStudentIDs: []string{"s1"}},
			uid:        "s1",
			wantStatus: http.StatusConflict,
			wantCount:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// ARRANGE
			api := newTestAPI(t)
			tt.activity.Title = "Taller"
			api.repo.Seed(tt.activity)

			// ACT
			rec := api.do(t, http.MethodPost, "/activities/a1/enroll", tt.uid, nil)

			// ASSERT
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			a, _ := api.repo.Get("a1")
			if len(a.EnrolledStudentIDs) != tt.wantCount {
				t.Errorf("expected %d enrolled, got %v", tt.wantCount, a.EnrolledStudentIDs)
			}
		})
	}
}

func TestActivities_Unenroll(t *testing.T) {
	api := newTestAPI(t)
	api.repo.Seed(domain.Activity{ID: "a1", Title: "Taller", Career: "Todas", Capacity: 2, EnrolledStudentIDs: []string{"s1"}})

	if rec := api.do(t, http.MethodDelete, "/activities/a1/enroll", "s2", nil); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a student who is not enrolled, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodDelete, "/activities/a1/enroll", "s1", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if a, _ := api.repo.Get("a1"); len(a.EnrolledStudentIDs) != 0 {
		t.Errorf("expected nobody enrolled, got %v", a.EnrolledStudentIDs)
	}
}

func TestActivities_OwnerLifecycle(t *testing.T) {
	// ARRANGE
	api := newTestAPI(t)
	api.repo.Seed(domain.Activity{ID: "a1", Title: "Taller", Career: "Todas", Capacity: 5, HoursAwarded: 6, CreatedBy: "t1", EnrolledStudentIDs: []string{"s1", "s2"}})

	// ACT / ASSERT: shrinking below enrollment is rejected
	if rec := api.do(t, http.MethodPut, "/activities/a1", "t1", draftBody("Todas", 1)); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for capacity below enrollment, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPut, "/activities/a1", "t1", draftBody("Todas", 4)); rec.Code != http.StatusOK {
		t.Fatalf("expected update 200, got %d: %s", rec.Code, rec.Body.String())
	}

	for i := 0; i < 2; i++ {
		if rec := api.do(t, http.MethodPost, "/activities/a1/finalize", "t1", nil); rec.Code != http.StatusOK {
			t.Fatalf("finalize #%d: expected 200, got %d", i+1, rec.Code)
		}
	}
	for _, uid := range []string{"s1", "s2"} {
		// the update set hours_awarded to 5
		if u, _ := api.users.User(uid); u.HourProgress != 5 {
			t.Errorf("%s: expected 5 hours credited once, got %d", uid, u.HourProgress)
		}
	}

	rec := api.do(t, http.MethodGet, "/activities/history", "s1", nil)
	history := decode[map[string][]domain.Activity](t, rec)
	if len(history["activities"]) != 1 {
		t.Errorf("expected finalized activity in history, got %v", history)
	}
	if rec := api.do(t, http.MethodPut, "/activities/a1", "t1", draftBody("Todas", 4)); rec.Code != http.StatusBadRequest {
		t.Errorf("expected finalized activity to reject edits, got %d", rec.Code)
	}

	if rec := api.do(t, http.MethodDelete, "/activities/a1", "t1", nil); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodDelete, "/activities/a1", "t1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 once the activity is gone, got %d", rec.Code)
	}
}

func TestActivities_UnknownID(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/activities/missing/enroll", "s1", nil)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestActivities_BackendUnavailable(t *testing.T) {
	api := newTestAPI(t)
	api.repo.GetError = domain.NewRemoteError("list activities", io.ErrUnexpectedEOF)

	rec := api.do(t, http.MethodGet, "/activities", "s1", nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestProfile(t *testing.T) {
	api := newTestAPI(t)

	if rec := api.do(t, http.MethodPut, "/profile/goal", "s1", map[string]int{"hour_goal": 0}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a zero goal, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPut, "/profile/goal", "s1", map[string]int{"hour_goal": 40}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec := api.do(t, http.MethodGet, "/profile", "s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	p := decode[services.Profile](t, rec)
	if !p.HasGoal || p.User.HourGoal != 40 || p.HoursRemaining != 40 || p.Carnet != "21456" {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestCareers(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/careers", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string][]string](t, rec)
	if len(body["activity"]) != len(body["registration"])+1 || body["activity"][0] != domain.CareerAll {
		t.Errorf("unexpected careers %v", body)
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	resp := decode[handler.HealthResponse](t, rec)
	if resp.Status != "UP" || resp.Uptime == "" {
		t.Errorf("unexpected health response %+v", resp)
	}

	// No database is wired in these tests, so readiness reports DOWN.
	rec = api.do(t, http.MethodGet, "/health/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a database, got %d", rec.Code)
	}
	ready := decode[map[string]interface{}](t, rec)
	checks, _ := ready["checks"].(map[string]interface{})
	for _, name := range []string{"database", "redis", "activity_feed"} {
		if _, ok := checks[name]; !ok {
			t.Errorf("expected %s check in readiness response", name)
		}
	}
}

func TestActivities_Stream(t *testing.T) {
	// ARRANGE
	api := newTestAPI(t)
	api.repo.Seed(
		domain.Activity{ID: "civil", Title: "Civil", Career: "Civil", Capacity: 2},
		domain.Activity{ID: "quimica", Title: "Química", Career: "Química", Capacity: 2},
	)
	api.live.Start(context.Background())
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/activities/stream", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+api.token(t, "s1"))

	// ACT
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// ASSERT
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before a success event: %v", err)
		}
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var ev handler.StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("invalid event payload: %v", err)
		}
		if ev.Status != services.StatusSuccess {
			continue
		}
		if len(ev.Activities) != 1 || ev.Activities[0].ID != "civil" {
			t.Errorf("expected only the Civil activity, got %+v", ev.Activities)
		}
		return
	}
}
