package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/15 * * * *", false},
		{"30 3 * * *", false},
		{"@hourly", false},
		{"not a cron expr", true},
		{"* * * * * *", true},
		{"61 * * * *", true},
	}
	for _, tt := range tests {
		err := Validate(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("Validate(%q) error = %v, want %v", tt.expr, err, ErrInvalidSchedule)
		}
	}
}

func TestAdd(t *testing.T) {
	s := New(nil)
	noop := func(context.Context) error { return nil }

	if err := s.Add(Job{Name: "resync", Schedule: "*/15 * * * *", Run: noop}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Add(Job{Name: "resync", Schedule: "@daily", Run: noop}); !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("Add(duplicate) error = %v, want %v", err, ErrDuplicateJob)
	}
	if err := s.Add(Job{Name: "prune", Schedule: "nope", Run: noop}); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("Add(bad schedule) error = %v, want %v", err, ErrInvalidSchedule)
	}
	if err := s.Add(Job{Name: "off", Run: noop}); err != nil {
		t.Errorf("Add(empty schedule) error = %v, want nil", err)
	}
	if err := s.Add(Job{Name: "norun", Schedule: "@daily"}); err == nil {
		t.Error("Add(nil Run) error = nil, want error")
	}

	if got := s.Jobs(); len(got) != 1 || got[0] != "resync" {
		t.Errorf("Jobs() = %v, want [resync]", got)
	}
}

func TestStartSetsNext(t *testing.T) {
	s := New(nil)
	if err := s.Add(Job{Name: "resync", Schedule: "* * * * *", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	defer s.Stop()

	next, ok := s.Next("resync")
	if !ok {
		t.Fatal("Next() ok = false")
	}
	if next.IsZero() || time.Until(next) > time.Minute {
		t.Errorf("Next() = %v, want within a minute", next)
	}
	if _, ok := s.Next("missing"); ok {
		t.Error("Next(missing) ok = true")
	}
}

func TestRunNow(t *testing.T) {
	s := New(nil)

	type outcome struct {
		name string
		err  error
	}
	var seen []outcome
	s.SetObserver(func(name string, _ time.Duration, err error) {
		seen = append(seen, outcome{name, err})
	})

	type ctxKey struct{}
	var gotCtx context.Context
	boom := errors.New("pbx down")

	jobs := []Job{
		{Name: "ok", Schedule: "@daily", Run: func(ctx context.Context) error { gotCtx = ctx; return nil }},
		{Name: "fails", Schedule: "@daily", Run: func(context.Context) error { return boom }},
		{Name: "panics", Schedule: "@daily", Run: func(context.Context) error { panic("kaboom") }},
	}
	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			t.Fatal(err)
		}
	}

	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	s.Start(ctx)
	defer s.Stop()

	if err := s.RunNow("ok"); err != nil {
		t.Errorf("RunNow(ok) error = %v", err)
	}
	if gotCtx == nil || gotCtx.Value(ctxKey{}) != "v" {
		t.Error("job did not receive the scheduler context")
	}
	if err := s.RunNow("fails"); !errors.Is(err, boom) {
		t.Errorf("RunNow(fails) error = %v, want %v", err, boom)
	}
	if err := s.RunNow("panics"); err == nil {
		t.Error("RunNow(panics) error = nil, want recovered panic")
	}
	if err := s.RunNow("missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("RunNow(missing) error = %v, want %v", err, ErrUnknownJob)
	}

	if len(seen) != 3 {
		t.Fatalf("observer saw %d runs, want 3", len(seen))
	}
	if seen[0].err != nil || seen[1].err == nil || seen[2].err == nil {
		t.Errorf("observer outcomes = %+v", seen)
	}
}
