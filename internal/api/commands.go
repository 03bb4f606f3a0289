package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
	"github.com/nerrad567/gray-logic-cti/internal/audit"
	"github.com/nerrad567/gray-logic-cti/internal/commands"
	"github.com/nerrad567/gray-logic-cti/internal/proxy"
)

// commandRequest is the body of POST /commands/{name}. An empty body runs
// the command without arguments.
type commandRequest struct {
	Args map[string]string `json:"args"`
}

// commandResponse is the body of a successful command.
type commandResponse struct {
	Command string `json:"command"`
	Result  any    `json:"result"`
}

// handleListCommands returns the command names the engine accepts.
func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	names := s.engine.Commands()
	writeJSON(w, http.StatusOK, map[string]any{
		"commands": names,
		"count":    len(names),
	})
}

// handleExecuteCommand runs one command and waits for its result.
func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	start := time.Now()
	res, err := s.engine.Do(r.Context(), name, commands.Args(req.Args))
	s.recordCommand(r, name, req.Args, time.Since(start), err)
	if err != nil {
		s.logger.Info("command failed",
			"command", name,
			"subject", claimsFrom(r.Context()).Subject,
			"error", err,
		)
		writeCommandError(w, err)
		return
	}

	s.logger.Info("command executed", "command", name, "subject", claimsFrom(r.Context()).Subject)
	writeJSON(w, http.StatusOK, commandResponse{Command: name, Result: res})
}

// recordCommand adds the execution to the audit trail, if one is set.
func (s *Server) recordCommand(r *http.Request, name string, args map[string]string, took time.Duration, err error) {
	if s.audit == nil {
		return
	}
	e := audit.NewEntry(audit.SourceAPI, name, args, took, err)
	e.Subject = claimsFrom(r.Context()).Subject
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
		e.RequestID = id
	}
	s.audit.Record(e)
}

// writeCommandError maps command failures onto HTTP statuses.
func writeCommandError(w http.ResponseWriter, err error) {
	var pe *ami.ProtocolError
	switch {
	case errors.Is(err, proxy.ErrUnknownCommand):
		writeNotFound(w, err.Error())
	case errors.Is(err, commands.ErrMissingArg), errors.Is(err, commands.ErrInvalidArg):
		writeBadRequest(w, err.Error())
	case errors.Is(err, commands.ErrNotFound), errors.Is(err, proxy.ErrNoConversation),
		errors.Is(err, proxy.ErrNoChannel), errors.Is(err, proxy.ErrNotParked):
		writeNotFound(w, err.Error())
	case errors.Is(err, ami.ErrNotConnected), errors.Is(err, ami.ErrConnectionLost), errors.Is(err, ami.ErrClosed):
		writeUnavailable(w, err.Error())
	case errors.Is(err, ami.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.As(err, &pe):
		writeError(w, http.StatusBadGateway, ErrCodePBX, pe.Message)
	default:
		writeInternalError(w, err.Error())
	}
}
