package services

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
	"github.com/mashoras/activity-service/internal/metrics"
)

// Event classes used in dedup keys.
const (
	EventNewActivity      = "new"
	EventActivityFinished = "finished"
)

const (
	titleNewActivity      = "Nueva actividad"
	titleActivityFinished = "Actividad finalizada"
)

// DedupKey is the composite (event class, activity id) key.
func DedupKey(eventClass, activityID string) string {
	return eventClass + "_" + activityID
}

// NotificationID hashes a dedup key so repeated notifications for the same
// key collapse on the device.
func NotificationID(key string) int32 {
	return int32(xxhash.Sum64String(key))
}

// NotificationObserver watches the activity stream on behalf of one student
// and raises at most one notification per (event class, activity).
type NotificationObserver struct {
	activities ports.ActivityRepository
	dedup      ports.DedupStore
	notifier   ports.Notifier
	log        *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	alive  int
	wg     sync.WaitGroup
}

func NewNotificationObserver(
	activities ports.ActivityRepository,
	dedup ports.DedupStore,
	notifier ports.Notifier,
	log *zap.Logger,
) *NotificationObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationObserver{
		activities: activities,
		dedup:      dedup,
		notifier:   notifier,
		log:        log.Named("notifications"),
	}
}

// Start begins both watches for viewer. It does nothing for teachers, for an
// anonymous viewer, or when the observer is already running.
func (o *NotificationObserver) Start(ctx context.Context, viewer domain.Viewer) bool {
	if viewer.UserID == "" {
		o.log.Debug("no authenticated user, not observing activities")
		return false
	}
	if viewer.Role.IsTeacher() {
		o.log.Debug("teacher account, student notifications disabled", zap.String("uid", viewer.UserID))
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	log := o.log.With(zap.String("uid", viewer.UserID), zap.String("career", viewer.Career))
	log.Info("starting activity observers")

	o.alive = 2
	o.wg.Add(2)
	go func() {
		defer o.watchDone()
		err := WatchActivityChanges(ctx, o.activities, nil, func(changes []domain.ActivityChange) {
			o.onAllActivities(ctx, viewer, changes)
		})
		o.watchEnded(ctx, log, "new-activity", err)
	}()
	go func() {
		defer o.watchDone()
		enrolled := func(a domain.Activity) bool { return a.IsEnrolled(viewer.UserID) }
		err := WatchActivityChanges(ctx, o.activities, enrolled, func(changes []domain.ActivityChange) {
			o.onEnrolledActivities(ctx, viewer, changes)
		})
		o.watchEnded(ctx, log, "enrolled-activity", err)
	}()
	return true
}

// Stop releases both subscriptions. Once it returns no further notification
// is raised. Safe to call repeatedly or without Start.
func (o *NotificationObserver) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	o.log.Debug("stopping activity observers")
	cancel()
	o.wg.Wait()
}

// Running reports whether both watches are still alive. A watch ended by a
// transport failure is not restarted here.
func (o *NotificationObserver) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancel != nil && o.alive == 2
}

func (o *NotificationObserver) watchDone() {
	o.mu.Lock()
	o.alive--
	o.mu.Unlock()
	o.wg.Done()
}

func (o *NotificationObserver) watchEnded(ctx context.Context, log *zap.Logger, watch string, err error) {
	if err == nil || ctx.Err() != nil {
		return
	}
	metrics.SubscriptionErrors.WithLabelValues(watch).Inc()
	log.Error("activity watch terminated", zap.String("watch", watch), zap.Error(err))
}

func (o *NotificationObserver) onAllActivities(ctx context.Context, v domain.Viewer, changes []domain.ActivityChange) {
	for _, ch := range changes {
		if ch.Type != domain.ChangeAdded {
			continue
		}
		a := ch.Activity
		if a.Finalized || !a.IsEligibleFor(v.Career) {
			continue
		}
		body := a.Title
		if body == "" {
			body = titleNewActivity
		}
		o.notifyOnce(ctx, v.UserID, EventNewActivity, a.ID, titleNewActivity, body)
	}
}

func (o *NotificationObserver) onEnrolledActivities(ctx context.Context, v domain.Viewer, changes []domain.ActivityChange) {
	for _, ch := range changes {
		if ch.Type != domain.ChangeModified || !ch.Activity.Finalized {
			continue
		}
		body := ch.Activity.Title
		if body == "" {
			body = titleActivityFinished
		}
		o.notifyOnce(ctx, v.UserID, EventActivityFinished, ch.Activity.ID, titleActivityFinished, body)
	}
}

// notifyOnce marks before delivering: a failed delivery is not retried, so a
// key is never notified twice.
func (o *NotificationObserver) notifyOnce(ctx context.Context, uid, eventClass, activityID, title, body string) {
	if ctx.Err() != nil {
		return
	}
	key := DedupKey(eventClass, activityID)
	fresh, err := o.dedup.MarkIfAbsent(ctx, uid+":"+key)
	if err != nil {
		o.log.Warn("dedup store unavailable", zap.String("key", key), zap.Error(err))
		return
	}
	if !fresh {
		metrics.NotificationsDeduplicated.Inc()
		return
	}
	n := ports.Notification{UserID: uid, ID: NotificationID(key), Title: title, Body: body}
	if err := o.notifier.ShowNotification(ctx, n); err != nil {
		metrics.NotificationsFailed.Inc()
		o.log.Error("notification delivery failed", zap.String("uid", uid), zap.String("key", key), zap.Error(err))
		return
	}
	metrics.NotificationsSent.WithLabelValues(eventClass).Inc()
	o.log.Info("notification sent", zap.String("uid", uid), zap.String("key", key))
}

// WatchActivityChanges turns the snapshot stream into per-document changes.
// When keep is non-nil only activities it accepts are considered, so an
// activity leaving the subset is reported as REMOVED.
func WatchActivityChanges(
	ctx context.Context,
	repo ports.ActivityRepository,
	keep func(domain.Activity) bool,
	fn func([]domain.ActivityChange),
) error {
	var prev map[string]domain.Activity
	return repo.WatchActivities(ctx, func(list []domain.Activity) {
		subset := list
		if keep != nil {
			subset = make([]domain.Activity, 0, len(list))
			for _, a := range list {
				if keep(a) {
					subset = append(subset, a)
				}
			}
		}
		changes, index := domain.DiffActivities(prev, subset)
		prev = index
		if len(changes) > 0 {
			fn(changes)
		}
	})
}
