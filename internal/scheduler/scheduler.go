package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sentinel errors.
var (
	ErrInvalidSchedule = errors.New("scheduler: invalid schedule")
	ErrDuplicateJob    = errors.New("scheduler: job already added")
	ErrUnknownJob      = errors.New("scheduler: unknown job")
)

// parser accepts standard 5-field expressions (minute, hour, dom, month,
// dow) and descriptors such as @hourly.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is a named periodic task. Run receives the scheduler's context.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Logger is the logging surface of the scheduler.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// cronLogger adapts Logger to the cron library, which logs skipped runs.
type cronLogger struct{ l Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	if msg == "skip" {
		c.l.Warn("scheduled job still running, tick skipped")
	}
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(msg, append([]any{"error", err}, kv...)...)
}

// Observer is told the outcome of every run.
type Observer func(name string, took time.Duration, err error)

// Scheduler owns a cron instance and the jobs registered on it.
type Scheduler struct {
	cron     *cron.Cron
	logger   Logger
	observer Observer

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
	jobs    map[string]Job
}

// New creates a stopped scheduler. A nil logger discards output.
func New(logger Logger) *Scheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	cl := cronLogger{l: logger}
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		logger:  logger,
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
		jobs:    make(map[string]Job),
	}
}

// SetObserver installs a hook told about every run. Call before Start.
func (s *Scheduler) SetObserver(o Observer) { s.observer = o }

// Validate reports whether expr is a schedule the scheduler accepts.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, expr, err)
	}
	return nil
}

// Add registers a job. An empty schedule disables the job and is not an
// error.
func (s *Scheduler) Add(job Job) error {
	if job.Schedule == "" {
		s.logger.Info("scheduled job disabled", "job", job.Name)
		return nil
	}
	if job.Run == nil {
		return fmt.Errorf("scheduler: job %q has no Run function", job.Name)
	}
	sched, err := parser.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	s.jobs[job.Name] = job
	s.entries[job.Name] = s.cron.Schedule(sched, cron.FuncJob(func() { s.run(job) }))
	return nil
}

// Start begins firing jobs. Runs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	for _, name := range s.Jobs() {
		if next, ok := s.Next(name); ok {
			s.logger.Info("scheduled job registered", "job", name, "next", next.Format(time.RFC3339))
		}
	}
}

// Stop stops firing and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Jobs returns the names of the registered jobs, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next returns the next fire time of a job. It is zero until Start.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// RunNow runs a job synchronously outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(job)
}

// run executes one job with panic recovery, timing and logging.
func (s *Scheduler) run(job Job) (err error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %s panicked: %v", job.Name, r)
			s.logger.Error("scheduled job panicked", "job", job.Name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
		took := time.Since(start)
		switch {
		case err != nil:
			s.logger.Warn("scheduled job failed", "job", job.Name, "duration_ms", took.Milliseconds(), "error", err)
		default:
			s.logger.Info("scheduled job finished", "job", job.Name, "duration_ms", took.Milliseconds())
		}
		if s.observer != nil {
			s.observer(job.Name, took, err)
		}
	}()

	return job.Run(ctx)
}
