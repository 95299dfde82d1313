package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/session"
	"github.com/Iron-Ham/tinytree/internal/slackbridge"
)

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.cfg.Sessions != nil {
		resp.ActiveSessions = s.cfg.Sessions.ActiveCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// slashCommand acknowledges at once and dispatches in the background;
// Slack expects an answer within three seconds.
func (s *Server) slashCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slash command: "+err.Error())
		return
	}
	if cmd.Command != slackbridge.CommandTinytree && cmd.Command != slackbridge.CommandLegacy {
		writeError(w, http.StatusNotFound, "unknown command "+cmd.Command)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := slackbridge.Route(s.baseCtx, s.cfg.Commands, cmd); err != nil {
			s.logger.WithUser(cmd.UserID).Error("slash command failed",
				"command", cmd.Command, "error", err.Error())
		}
	}()
	w.WriteHeader(http.StatusOK)
}

type specRequest struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Document  string `json:"document"`
	Mode      string `json:"mode,omitempty"`
}

type specResponse struct {
	RequestID string `json:"request_id"`
}

func (s *Server) uploadSpec(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxSpecBytes)

	var req specRequest
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document exceeds 1MB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	switch {
	case strings.TrimSpace(req.UserID) == "":
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	case strings.TrimSpace(req.ChannelID) == "":
		writeError(w, http.StatusBadRequest, "channel_id is required")
		return
	case strings.TrimSpace(req.Document) == "":
		writeError(w, http.StatusBadRequest, "document is required")
		return
	}

	var mode session.Mode
	if req.Mode != "" {
		m, err := session.ParseMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = m
	}

	requestID, err := s.cfg.Specs.HandleSpecDocument(r.Context(), req.UserID, req.ChannelID, mode, req.Document)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, specResponse{RequestID: requestID})
	case errors.Is(err, errors.ErrUserBusy):
		writeError(w, http.StatusConflict, "a run is already in progress for this user")
	case errors.Is(err, errors.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.WithUser(req.UserID).Error("spec upload failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
