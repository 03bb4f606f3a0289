package history

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/model"
)

// ConversationRecord is a finished conversation.
type ConversationRecord struct {
	ID              string     `json:"id"`
	SourceExten     string     `json:"source_exten"`
	DestExten       string     `json:"dest_exten"`
	SourceChannel   string     `json:"source_channel"`
	DestChannel     string     `json:"dest_channel,omitempty"`
	CallerNum       string     `json:"caller_num,omitempty"`
	CallerName      string     `json:"caller_name,omitempty"`
	DialingNum      string     `json:"dialing_num,omitempty"`
	FinalState      string     `json:"final_state"`
	Answered        bool       `json:"answered"`
	StartedAt       time.Time  `json:"started_at"`
	ConnectedAt     *time.Time `json:"connected_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
}

// FromConversation projects a terminated conversation into a record.
func FromConversation(c model.Conversation) ConversationRecord {
	rec := ConversationRecord{
		ID:            c.ID,
		SourceExten:   c.SourceExten,
		DestExten:     c.DestExten,
		SourceChannel: c.SourceChannel,
		DestChannel:   c.DestChannel,
		CallerNum:     c.CallerNum,
		CallerName:    c.CallerName,
		DialingNum:    c.DialingNum,
		FinalState:    string(c.State),
		Answered:      c.ConnectedAt != nil,
		StartedAt:     c.StartedAt,
		ConnectedAt:   c.ConnectedAt,
		EndedAt:       c.EndedAt,
	}
	if c.ConnectedAt != nil && c.EndedAt != nil {
		rec.DurationSeconds = c.EndedAt.Sub(*c.ConnectedAt).Seconds()
	}
	return rec
}

// VoicemailRecord is one mailbox notification.
type VoicemailRecord struct {
	ID         int64     `json:"id"`
	Extension  string    `json:"extension"`
	Context    string    `json:"context,omitempty"`
	New        int       `json:"new"`
	Old        int       `json:"old"`
	ReceivedAt time.Time `json:"received_at"`
}

// Filter selects conversation records.
type Filter struct {
	Extension    string    // either side of the conversation
	Since        time.Time // started at or after
	Until        time.Time // started before
	AnsweredOnly bool
	Limit        int // default 50, max 500
	Offset       int
}

// ListResult is one page of conversation records, newest first.
type ListResult struct {
	Conversations []ConversationRecord `json:"conversations"`
	Total         int                  `json:"total"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}

// Repository stores and queries history.
type Repository interface {
	SaveConversation(ctx context.Context, rec ConversationRecord) error
	SaveVoicemail(ctx context.Context, rec *VoicemailRecord) error
	ListConversations(ctx context.Context, f Filter) (*ListResult, error)
	ListVoicemail(ctx context.Context, extension string, limit int) ([]VoicemailRecord, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}
