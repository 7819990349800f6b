package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes    = 64 << 10
	requestIDHeader = "X-Request-ID"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "message is too large")
			return
		}
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is required")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.engine.HandleTurn(r.Context(), body.Message, strings.TrimSpace(body.SessionID))
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", reply.SessionID).Msg("chat turn abandoned")
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}

	if reply.RequestID != "" {
		w.Header().Set(requestIDHeader, reply.RequestID)
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "session_id"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	existed := s.engine.Reset(r.Context(), sessionID)
	message := "session not found"
	if existed {
		message = s.engine.ResetReply()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reset":      existed,
		"session_id": sessionID,
		"message":    message,
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"oracle":   s.oracle,
		"sessions": s.engine.Sessions(),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
