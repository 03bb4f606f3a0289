package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-cti/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func TestNewEntry(t *testing.T) {
	ok := NewEntry(SourceAPI, "call", map[string]string{"from": "201"}, 1500*time.Millisecond, nil)
	if ok.Outcome != OutcomeOK || ok.Error != "" {
		t.Errorf("ok entry = %+v, want outcome ok without error", ok)
	}
	if ok.DurationMS != 1500 {
		t.Errorf("DurationMS = %d, want 1500", ok.DurationMS)
	}

	failed := NewEntry(SourceMQTT, "park", nil, 0, errors.New("no such channel"))
	if failed.Outcome != OutcomeFailed || failed.Error != "no such channel" {
		t.Errorf("failed entry = %+v, want outcome failed with error", failed)
	}
}

func TestNewEntryRedactsCredentials(t *testing.T) {
	args := map[string]string{"username": "admin", "secret": "hunter2", "Password": "x", "vmPin": "1234", "to": "201"}
	e := NewEntry(SourceAPI, "login", args, 0, nil)

	want := map[string]string{"username": "admin", "secret": "***", "Password": "***", "vmPin": "***", "to": "201"}
	for k, v := range want {
		if got := e.Args[k]; got != v {
			t.Errorf("Args[%q] = %q, want %q", k, got, v)
		}
	}
	if args["secret"] != "hunter2" {
		t.Error("NewEntry() modified the caller's args")
	}
	if e := NewEntry(SourceMQTT, "ping", nil, 0, nil); e.Args != nil {
		t.Errorf("Args = %v, want nil", e.Args)
	}
}

func TestRepository_CreateAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entries := []Entry{
		{Command: "call", Args: map[string]string{"from": "201", "to": "202"}, Subject: "alice", Source: SourceAPI, Outcome: OutcomeOK, DurationMS: 12, CreatedAt: base},
		{Command: "park", Source: SourceMQTT, RequestID: "req-1", Outcome: OutcomeFailed, Error: "timeout", CreatedAt: base.Add(time.Minute)},
		{Command: "call", Subject: "bob", Source: SourceAPI, Outcome: OutcomeOK, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if entries[i].ID == "" {
			t.Fatal("Create() did not assign an ID")
		}
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 || len(all.Entries) != 3 {
		t.Fatalf("List() total = %d, entries = %d, want 3", all.Total, len(all.Entries))
	}
	if all.Entries[0].Subject != "bob" {
		t.Errorf("first entry subject = %q, want most recent (bob)", all.Entries[0].Subject)
	}
	if all.Limit != defaultLimit {
		t.Errorf("Limit = %d, want %d", all.Limit, defaultLimit)
	}

	oldest := all.Entries[2]
	if oldest.Args["to"] != "202" {
		t.Errorf("Args = %v, want to=202", oldest.Args)
	}
	if !oldest.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", oldest.CreatedAt, base)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by command", Filter{Command: "call"}, 2},
		{"by subject", Filter{Subject: "alice"}, 1},
		{"by source", Filter{Source: SourceMQTT}, 1},
		{"by outcome", Filter{Outcome: OutcomeFailed}, 1},
		{"combined", Filter{Command: "call", Subject: "carol"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.want {
				t.Errorf("Total = %d, want %d", res.Total, tt.want)
			}
		})
	}

	failed, err := repo.List(ctx, Filter{Outcome: OutcomeFailed})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got := failed.Entries[0]; got.Error != "timeout" || got.RequestID != "req-1" {
		t.Errorf("failed entry = %+v, want error timeout and request_id req-1", got)
	}
}

func TestRepository_ListPaging(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		e := Entry{Command: "dndGet", Source: SourceAPI, Outcome: OutcomeOK, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := repo.Create(ctx, &e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	page, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 5 || len(page.Entries) != 1 {
		t.Errorf("page total = %d, entries = %d, want 5 and 1", page.Total, len(page.Entries))
	}

	clamped, err := repo.List(ctx, Filter{Limit: 10000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if clamped.Limit != maxLimit || clamped.Offset != 0 {
		t.Errorf("clamped limit/offset = %d/%d, want %d/0", clamped.Limit, clamped.Offset, maxLimit)
	}
}

func TestTrail_RecordRunPrune(t *testing.T) {
	repo := newTestRepo(t)
	trail := NewTrail(repo)
	trail.now = func() time.Time { return base }

	trail.Record(NewEntry(SourceAPI, "call", nil, 0, nil))
	old := NewEntry(SourceAPI, "hangup", nil, 0, nil)
	old.CreatedAt = base.AddDate(0, 0, -40)
	trail.Record(old)

	// A cancelled context makes Run drain the queue and return.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trail.Run(ctx)

	res, err := trail.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("Total = %d, want 2", res.Total)
	}
	if !res.Entries[0].CreatedAt.Equal(base) {
		t.Errorf("stamped CreatedAt = %v, want %v", res.Entries[0].CreatedAt, base)
	}

	n, err := trail.Prune(context.Background(), 30, base)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d, want 1", n)
	}
	if n, _ := trail.Prune(context.Background(), 0, base); n != 0 {
		t.Errorf("Prune(0) removed %d, want 0", n)
	}
}

type failingRepo struct{ Repository }

func (failingRepo) Create(context.Context, *Entry) error { return errors.New("disk full") }

func TestTrail_DropsAndReportsErrors(t *testing.T) {
	trail := NewTrail(failingRepo{})
	var failures int
	trail.SetOnError(func(error) { failures++ })

	for i := 0; i < trailBuffer+3; i++ {
		trail.Record(Entry{Command: "call"})
	}
	if got := trail.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trail.Run(ctx)
	if failures != trailBuffer {
		t.Errorf("onError called %d times, want %d", failures, trailBuffer)
	}
}
