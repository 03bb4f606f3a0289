package history

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/model"
)

// recorderBuffer bounds the events waiting to be written.
const recorderBuffer = 256

// Logger is the logging surface of the recorder.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder persists the domain events history cares about. Observe is
// called on the engine's delivery path and never blocks; Run performs the
// writes on its own goroutine.
type Recorder struct {
	repo    Repository
	queue   chan model.Event
	logger  Logger
	onError func(error)
	dropped atomic.Uint64
}

// NewRecorder returns a recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{
		repo:   repo,
		queue:  make(chan model.Event, recorderBuffer),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger. Call before Run.
func (r *Recorder) SetLogger(l Logger) {
	if l != nil {
		r.logger = l
	}
}

// SetOnError sets a callback for failed writes. Call before Run.
func (r *Recorder) SetOnError(fn func(error)) { r.onError = fn }

// Wants reports whether the recorder stores events of this name.
func Wants(name string) bool {
	return name == model.EventConversationTerminated || name == model.EventNewVoicemailMessage
}

// Observe queues an event. Events history does not store are ignored;
// when the queue is full the event is dropped and counted.
func (r *Recorder) Observe(ev model.Event) {
	if !Wants(ev.Name) {
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
		r.logger.Warn("history queue full, event dropped", "event", ev.Name)
	}
}

// Dropped returns the number of events lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Run writes queued events until ctx is cancelled, then drains what is
// already queued.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case ev := <-r.queue:
			// A write already dequeued finishes even if ctx ends meanwhile.
			r.store(context.WithoutCancel(ctx), ev)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-r.queue:
			r.store(ctx, ev)
		default:
			return
		}
	}
}

// Store writes one event synchronously.
func (r *Recorder) Store(ctx context.Context, ev model.Event) error {
	switch p := ev.Payload.(type) {
	case model.Conversation:
		return r.repo.SaveConversation(ctx, FromConversation(p))
	case model.VoicemailNotice:
		return r.repo.SaveVoicemail(ctx, &VoicemailRecord{
			Extension:  p.Extension,
			Context:    p.Context,
			New:        p.New,
			Old:        p.Old,
			ReceivedAt: ev.Time,
		})
	default:
		return nil
	}
}

func (r *Recorder) store(ctx context.Context, ev model.Event) {
	if err := r.Store(ctx, ev); err != nil {
		r.logger.Error("history write failed", "event", ev.Name, "error", err)
		if r.onError != nil {
			r.onError(err)
		}
	}
}

// PruneOlderThan removes history older than the retention window. A
// non-positive retention keeps everything.
func PruneOlderThan(ctx context.Context, repo Repository, retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	return repo.Prune(ctx, now.AddDate(0, 0, -retentionDays))
}
