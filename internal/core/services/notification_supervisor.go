package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
	"github.com/mashoras/activity-service/internal/metrics"
)

// NotificationSupervisor keeps one NotificationObserver running per student
// profile and reconciles that set periodically.
type NotificationSupervisor struct {
	users      ports.UserRepository
	activities ports.ActivityRepository
	dedup      ports.DedupStore
	notifier   ports.Notifier
	interval   time.Duration
	log        *zap.Logger

	mu        sync.Mutex
	observers map[string]*supervised
	lastSync  time.Time
}

type supervised struct {
	viewer   domain.Viewer
	observer *NotificationObserver
}

func NewNotificationSupervisor(
	users ports.UserRepository,
	activities ports.ActivityRepository,
	dedup ports.DedupStore,
	notifier ports.Notifier,
	interval time.Duration,
	log *zap.Logger,
) *NotificationSupervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationSupervisor{
		users:      users,
		activities: activities,
		dedup:      dedup,
		notifier:   notifier,
		interval:   interval,
		log:        log.Named("supervisor"),
		observers:  make(map[string]*supervised),
	}
}

// Run reconciles immediately and then on every interval until ctx is done.
// All observers are stopped before it returns.
func (s *NotificationSupervisor) Run(ctx context.Context) error {
	defer s.StopAll()

	if err := s.Reconcile(ctx); err != nil {
		s.log.Warn("initial reconcile failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutting down observers")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Reconcile(ctx); err != nil {
				s.log.Warn("reconcile failed", zap.Error(err))
			}
		}
	}
}

// Reconcile starts observers for new students, restarts those whose career
// changed and stops those whose profile disappeared.
func (s *NotificationSupervisor) Reconcile(ctx context.Context) error {
	students, err := s.users.ListUsersByRole(ctx, domain.RoleStudent)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(students))
	for _, u := range students {
		seen[u.UID] = true
		viewer := domain.Viewer{UserID: u.UID, Role: u.Role, Career: u.Career}
		if cur, ok := s.observers[u.UID]; ok {
			if cur.viewer == viewer && cur.observer.Running() {
				continue
			}
			cur.observer.Stop()
			delete(s.observers, u.UID)
		}
		obs := NewNotificationObserver(s.activities, s.dedup, s.notifier, s.log)
		if obs.Start(ctx, viewer) {
			s.observers[u.UID] = &supervised{viewer: viewer, observer: obs}
		}
	}
	for uid, cur := range s.observers {
		if !seen[uid] {
			cur.observer.Stop()
			delete(s.observers, uid)
		}
	}

	s.lastSync = time.Now()
	metrics.ActiveObservers.Set(float64(len(s.observers)))
	s.log.Debug("observers reconciled", zap.Int("active", len(s.observers)))
	return nil
}

func (s *NotificationSupervisor) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, cur := range s.observers {
		cur.observer.Stop()
		delete(s.observers, uid)
	}
	metrics.ActiveObservers.Set(0)
}

func (s *NotificationSupervisor) ActiveObservers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// IsReady reports whether a reconcile succeeded recently.
func (s *NotificationSupervisor) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastSync.IsZero() && time.Since(s.lastSync) < 3*s.interval
}
