package audit

import (
	"context"
	"sync/atomic"
	"time"
)

// trailBuffer bounds the entries waiting to be written.
const trailBuffer = 256

// Logger is the logging surface of the trail.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Trail writes entries in the background.
type Trail struct {
	repo    Repository
	queue   chan Entry
	logger  Logger
	onError func(error)
	now     func() time.Time
	dropped atomic.Uint64
}

// NewTrail returns a trail writing to repo.
func NewTrail(repo Repository) *Trail {
	return &Trail{
		repo:   repo,
		queue:  make(chan Entry, trailBuffer),
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger. Call before Run.
func (t *Trail) SetLogger(l Logger) {
	if l != nil {
		t.logger = l
	}
}

// SetOnError sets a callback for failed writes. Call before Run.
func (t *Trail) SetOnError(fn func(error)) { t.onError = fn }

// Record queues an entry, stamping its time. It never blocks; when the
// queue is full the entry is dropped and counted.
func (t *Trail) Record(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now().UTC()
	}
	select {
	case t.queue <- e:
	default:
		t.dropped.Add(1)
		t.logger.Warn("audit queue full, entry dropped", "command", e.Command)
	}
}

// Dropped returns the number of entries lost to a full queue.
func (t *Trail) Dropped() uint64 { return t.dropped.Load() }

// List reads entries from the repository.
func (t *Trail) List(ctx context.Context, f Filter) (*ListResult, error) {
	return t.repo.List(ctx, f)
}

// Prune removes entries older than retentionDays. A non-positive retention
// keeps everything.
func (t *Trail) Prune(ctx context.Context, retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	return t.repo.Prune(ctx, now.AddDate(0, 0, -retentionDays))
}

// Run writes queued entries until ctx is cancelled, then drains what is
// already queued.
func (t *Trail) Run(ctx context.Context) {
	for {
		select {
		case e := <-t.queue:
			// A write already dequeued finishes even if ctx ends meanwhile.
			t.store(context.WithoutCancel(ctx), e)
		case <-ctx.Done():
			t.drain()
			return
		}
	}
}

func (t *Trail) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-t.queue:
			t.store(ctx, e)
		default:
			return
		}
	}
}

func (t *Trail) store(ctx context.Context, e Entry) {
	if err := t.repo.Create(ctx, &e); err != nil {
		t.logger.Error("audit write failed", "command", e.Command, "error", err)
		if t.onError != nil {
			t.onError(err)
		}
	}
}
