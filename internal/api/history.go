package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/audit"
	"github.com/nerrad567/gray-logic-cti/internal/history"
)

// maxQueryParamLen bounds free-text query parameters.
const maxQueryParamLen = 64

// handleListConversations returns finished conversations, newest first.
//
// Query: extension, since, until (RFC 3339), answered (bool), limit, offset.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "conversation history is disabled")
		return
	}

	f, err := parseHistoryFilter(r.URL.Query())
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.history.ListConversations(r.Context(), f)
	if err != nil {
		s.logger.Error("listing conversation history failed", "error", err)
		writeInternalError(w, "failed to load conversation history")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListVoicemail returns mailbox notifications, newest first.
//
// Query: extension, limit.
func (s *Server) handleListVoicemail(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "conversation history is disabled")
		return
	}

	q := r.URL.Query()
	ext := q.Get("extension")
	if len(ext) > maxQueryParamLen {
		writeBadRequest(w, "extension exceeds maximum length")
		return
	}
	limit, err := parseNonNegative(q, "limit")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	recs, err := s.history.ListVoicemail(r.Context(), ext, limit)
	if err != nil {
		s.logger.Error("listing voicemail history failed", "error", err)
		writeInternalError(w, "failed to load voicemail history")
		return
	}
	if recs == nil {
		recs = []history.VoicemailRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"voicemail": recs,
		"count":     len(recs),
	})
}

// handleListCommandAudit returns executed commands, newest first.
//
// Query: command, subject, source, outcome, limit, offset.
func (s *Server) handleListCommandAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "command audit is disabled")
		return
	}

	f, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.audit.List(r.Context(), f)
	if err != nil {
		s.logger.Error("listing command audit failed", "error", err)
		writeInternalError(w, "failed to load command audit")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parseAuditFilter validates the query of the command audit endpoint.
func parseAuditFilter(q url.Values) (audit.Filter, error) {
	f := audit.Filter{
		Command: q.Get("command"),
		Subject: q.Get("subject"),
		Source:  q.Get("source"),
		Outcome: audit.Outcome(q.Get("outcome")),
	}
	for name, v := range map[string]string{"command": f.Command, "subject": f.Subject} {
		if len(v) > maxQueryParamLen {
			return f, fmt.Errorf("%s exceeds maximum length", name)
		}
	}
	switch f.Source {
	case "", audit.SourceAPI, audit.SourceMQTT:
	default:
		return f, fmt.Errorf("source must be %s or %s", audit.SourceAPI, audit.SourceMQTT)
	}
	switch f.Outcome {
	case "", audit.OutcomeOK, audit.OutcomeFailed:
	default:
		return f, fmt.Errorf("outcome must be %s or %s", audit.OutcomeOK, audit.OutcomeFailed)
	}

	var err error
	if f.Limit, err = parseNonNegative(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseNonNegative(q, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

// parseHistoryFilter validates the query of the conversations endpoint.
func parseHistoryFilter(q url.Values) (history.Filter, error) {
	var f history.Filter

	f.Extension = q.Get("extension")
	if len(f.Extension) > maxQueryParamLen {
		return f, fmt.Errorf("extension exceeds maximum length")
	}

	var err error
	if f.Since, err = parseTimeParam(q, "since"); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam(q, "until"); err != nil {
		return f, err
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Until.After(f.Since) {
		return f, fmt.Errorf("until must be after since")
	}

	if v := q.Get("answered"); v != "" {
		if f.AnsweredOnly, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("answered must be a boolean")
		}
	}
	if f.Limit, err = parseNonNegative(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseNonNegative(q, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func parseTimeParam(q url.Values, name string) (time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}

func parseNonNegative(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
