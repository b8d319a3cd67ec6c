package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// maxBodyBytes bounds request bodies; scenario documents dominate.
const maxBodyBytes = 8 << 20

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req models.ExecuteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.engine.ExecuteTurn(r.Context(), &req)
	if err != nil {
		s.logger.Error("turn failed", "session_id", req.SessionID, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	doc, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sc, err := scenario.Parse(doc)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sessionID := uuid.NewString()
	if err := s.engine.UploadScenario(r.Context(), sessionID, sc); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.logger.Info("scenario uploaded", "session_id", sessionID, "scenario", sc.Name)
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sc, err := s.engine.DownloadScenario(r.PathValue("sessionId"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BotID      string `json:"botId"`
		BotVersion string `json:"botVersion"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	sessionID := r.PathValue("sessionId")
	if err := s.engine.ResetSession(r.Context(), sessionID, body.BotID, body.BotVersion); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID, "status": "reset"})
}

func (s *Server) handleIntentMapping(w http.ResponseWriter, r *http.Request) {
	var rules []scenario.IntentMappingRule
	if err := decodeJSON(r, &rules); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.engine.SetIntentMapping(rules)
	s.logger.Info("intent mapping replaced", "rules", len(rules))
	writeJSON(w, http.StatusOK, map[string]int{"rules": len(rules)})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.Sessions(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.Session(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
