package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/database"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// timeLayout has a fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000Z"
)

// SQLiteRepository keeps history in the proxy database.
type SQLiteRepository struct {
	db *database.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository returns a repository over a migrated database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

// SaveConversation inserts a record, replacing an earlier one with the
// same ID.
func (r *SQLiteRepository) SaveConversation(ctx context.Context, rec ConversationRecord) error {
	answered := 0
	if rec.Answered {
		answered = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, source_exten, dest_exten, source_channel, dest_channel,
			caller_num, caller_name, dialing_num, final_state, answered,
			started_at, connected_at, ended_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			dest_channel = excluded.dest_channel,
			final_state = excluded.final_state,
			answered = excluded.answered,
			connected_at = excluded.connected_at,
			ended_at = excluded.ended_at,
			duration_seconds = excluded.duration_seconds`,
		rec.ID, rec.SourceExten, rec.DestExten, rec.SourceChannel, rec.DestChannel,
		rec.CallerNum, rec.CallerName, rec.DialingNum, rec.FinalState, answered,
		formatTime(rec.StartedAt), nullableTime(rec.ConnectedAt), nullableTime(rec.EndedAt),
		rec.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("saving conversation %s: %w", rec.ID, err)
	}
	return nil
}

// SaveVoicemail inserts a notification and sets its ID.
func (r *SQLiteRepository) SaveVoicemail(ctx context.Context, rec *VoicemailRecord) error {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO voicemail_notices (extension, context, new_messages, old_messages, received_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Extension, rec.Context, rec.New, rec.Old, formatTime(rec.ReceivedAt))
	if err != nil {
		return fmt.Errorf("saving voicemail notice: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// ListConversations returns one page of records matching f.
func (r *SQLiteRepository) ListConversations(ctx context.Context, f Filter) (*ListResult, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var conds []string
	var args []any
	if f.Extension != "" {
		conds = append(conds, "(source_exten = ? OR dest_exten = ?)")
		args = append(args, f.Extension, f.Extension)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "started_at >= ?")
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "started_at < ?")
		args = append(args, formatTime(f.Until))
	}
	if f.AnsweredOnly {
		conds = append(conds, "answered = 1")
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM conversations " + where //nolint:gosec // conditions are parameterised
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}

	query := `SELECT id, source_exten, dest_exten, source_channel, dest_channel,
		caller_num, caller_name, dialing_num, final_state, answered,
		started_at, connected_at, ended_at, duration_seconds
		FROM conversations ` + where + ` ORDER BY started_at DESC, id LIMIT ? OFFSET ?` //nolint:gosec // conditions are parameterised
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	result := &ListResult{Conversations: []ConversationRecord{}, Total: total, Limit: f.Limit, Offset: f.Offset}
	for rows.Next() {
		rec, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result.Conversations = append(result.Conversations, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return result, nil
}

func scanConversation(rows *sql.Rows) (ConversationRecord, error) {
	var rec ConversationRecord
	var answered int
	var started string
	var connected, ended sql.NullString
	if err := rows.Scan(&rec.ID, &rec.SourceExten, &rec.DestExten, &rec.SourceChannel, &rec.DestChannel,
		&rec.CallerNum, &rec.CallerName, &rec.DialingNum, &rec.FinalState, &answered,
		&started, &connected, &ended, &rec.DurationSeconds); err != nil {
		return rec, fmt.Errorf("scanning conversation: %w", err)
	}
	rec.Answered = answered == 1

	var err error
	if rec.StartedAt, err = parseTime(started); err != nil {
		return rec, fmt.Errorf("parsing started_at %q: %w", started, err)
	}
	for _, col := range []struct {
		src sql.NullString
		dst **time.Time
	}{{connected, &rec.ConnectedAt}, {ended, &rec.EndedAt}} {
		if !col.src.Valid {
			continue
		}
		t, err := parseTime(col.src.String)
		if err != nil {
			return rec, fmt.Errorf("parsing timestamp %q: %w", col.src.String, err)
		}
		*col.dst = &t
	}
	return rec, nil
}

// ListVoicemail returns the latest notifications of an extension, newest
// first. An empty extension lists all mailboxes.
func (r *SQLiteRepository) ListVoicemail(ctx context.Context, extension string, limit int) ([]VoicemailRecord, error) {
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	query := `SELECT id, extension, context, new_messages, old_messages, received_at FROM voicemail_notices`
	var args []any
	if extension != "" {
		query += ` WHERE extension = ?`
		args = append(args, extension)
	}
	query += ` ORDER BY received_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying voicemail notices: %w", err)
	}
	defer rows.Close()

	out := []VoicemailRecord{}
	for rows.Next() {
		var rec VoicemailRecord
		var received string
		if err := rows.Scan(&rec.ID, &rec.Extension, &rec.Context, &rec.New, &rec.Old, &received); err != nil {
			return nil, fmt.Errorf("scanning voicemail notice: %w", err)
		}
		if rec.ReceivedAt, err = parseTime(received); err != nil {
			return nil, fmt.Errorf("parsing received_at %q: %w", received, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating voicemail notices: %w", err)
	}
	return out, nil
}

// Prune deletes conversations that started and notifications that
// arrived before the cutoff, returning the number of rows removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := formatTime(before)
	var removed int64
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM conversations WHERE started_at < ?",
			"DELETE FROM voicemail_notices WHERE received_at < ?",
		} {
			res, err := tx.ExecContext(ctx, q, cutoff)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return removed, nil
}
