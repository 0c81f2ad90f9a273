package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/metrics"
)

const (
	listenerMinReconnectInterval = 10 * time.Second
	listenerMaxReconnectInterval = time.Minute

	reloadTimeout             = 30 * time.Second
	healthCheckStaleThreshold = 5 * time.Minute
)

// ErrConnectionLost ends every open subscription when the listener drops its
// connection. Subscribers are expected to resubscribe explicitly.
var ErrConnectionLost = errors.New("change feed connection lost")

// Listener is the subset of *pq.Listener the feed uses.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Loader reads the full current value of the watched collection.
type Loader[T any] func(ctx context.Context) (T, error)

// Feed listens for PostgreSQL NOTIFY signals on one channel, re-reads the
// collection on each signal and fans the snapshot out to every subscriber.
type Feed[T any] struct {
	name         string
	channel      string
	load         Loader[T]
	pingInterval time.Duration
	log          *zap.Logger

	mu     sync.Mutex
	subs   map[int]*subscriber[T]
	nextID int
	seq    uint64

	lastProcessed atomic.Int64
	healthy       atomic.Bool
}

type subscriber[T any] struct {
	values  chan T
	failed  chan error
	lastSeq uint64
}

func New[T any](name, channel string, load Loader[T], pingInterval time.Duration, log *zap.Logger) *Feed[T] {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Feed[T]{
		name:         name,
		channel:      channel,
		load:         load,
		pingInterval: pingInterval,
		log:          log.Named("feed").With(zap.String("feed", name)),
		subs:         make(map[int]*subscriber[T]),
	}
	f.lastProcessed.Store(time.Now().UnixNano())
	f.healthy.Store(true)
	return f
}

// NewPQListener opens a reconnecting listener that logs connection problems.
func NewPQListener(dbURL string, log *zap.Logger) *pq.Listener {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("listener error", zap.Int("event", int(ev)), zap.Error(err))
		}
	}
	return pq.NewListener(dbURL, listenerMinReconnectInterval, listenerMaxReconnectInterval, reportProblem)
}

// IsHealthy reports whether the listener connection is up.
func (f *Feed[T]) IsHealthy() bool { return f.healthy.Load() }

// IsReady additionally requires a recent successful reload.
func (f *Feed[T]) IsReady() bool {
	last := time.Unix(0, f.lastProcessed.Load())
	return f.IsHealthy() && time.Since(last) <= healthCheckStaleThreshold
}

// Run listens until ctx is cancelled. Subscribe works without Run, but then
// only ever sees the initial snapshot and explicit Refresh calls.
func (f *Feed[T]) Run(ctx context.Context, listener Listener) error {
	defer listener.Close()

	if err := listener.Listen(f.channel); err != nil {
		f.healthy.Store(false)
		return errors.Wrapf(err, "listen %s", f.channel)
	}
	f.log.Info("listening for changes", zap.String("channel", f.channel))

	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.log.Info("shutting down")
			f.failAll(ctx.Err())
			return ctx.Err()

		case n, ok := <-listener.NotificationChannel():
			if !ok {
				f.healthy.Store(false)
				f.failAll(ErrConnectionLost)
				return ErrConnectionLost
			}
			if n == nil {
				// pq sends nil after reconnecting; changes may have been missed.
				f.log.Warn("listener reconnected, ending open subscriptions")
				f.failAll(ErrConnectionLost)
				f.healthy.Store(true)
				continue
			}
			f.healthy.Store(true)
			if err := f.Refresh(ctx); err != nil {
				f.log.Error("reload after notification failed", zap.Error(err))
				f.failAll(err)
			}

		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					f.healthy.Store(false)
					f.log.Warn("listener ping failed", zap.Error(err))
				}
			}()
			// Safety net for notifications lost while reconnecting.
			if err := f.Refresh(ctx); err != nil {
				f.log.Warn("periodic reload failed", zap.Error(err))
			}
		}
	}
}

// Refresh reloads the collection and broadcasts it. A failed reload leaves
// subscribers untouched.
func (f *Feed[T]) Refresh(ctx context.Context) error {
	seq := f.nextSeq()
	ctx, cancel := context.WithTimeout(ctx, reloadTimeout)
	defer cancel()

	v, err := f.load(ctx)
	if err != nil {
		return err
	}
	f.lastProcessed.Store(time.Now().UnixNano())

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		s.offer(seq, v)
	}
	metrics.FeedBroadcasts.WithLabelValues(f.name).Inc()
	return nil
}

// Subscribe calls fn with the current snapshot and then with every newer one,
// from the calling goroutine. It returns ctx.Err() on cancellation or the
// error that ended the feed.
func (f *Feed[T]) Subscribe(ctx context.Context, fn func(T)) error {
	s := &subscriber[T]{values: make(chan T, 1), failed: make(chan error, 1)}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = s
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}()

	seq := f.nextSeq()
	initial, err := f.load(ctx)
	if err != nil {
		return domain.NewRemoteError("initial snapshot", err)
	}
	f.mu.Lock()
	s.offer(seq, initial)
	f.mu.Unlock()

	for {
		// Cancellation wins over a pending value.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.failed:
			return domain.NewRemoteError(f.name+" subscription", err)
		case v := <-s.values:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn(v)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (f *Feed[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed[T]) nextSeq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq
}

func (f *Feed[T]) failAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		select {
		case s.failed <- err:
		default:
		}
	}
}

// offer replaces any unread value. Snapshots loaded before the last delivered
// one are dropped. Must be called with the feed lock held.
func (s *subscriber[T]) offer(seq uint64, v T) {
	if seq < s.lastSeq {
		return
	}
	s.lastSeq = seq
	select {
	case <-s.values:
	default:
	}
	s.values <- v
}
