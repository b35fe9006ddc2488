package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/observability"
	"github.com/haasonsaas/echodesk/internal/proactive"
	"github.com/haasonsaas/echodesk/pkg/models"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type respondRequest struct {
	ConversationID string `json:"conversation_id"`
	AccountID      string `json:"account_id"`
	Text           string `json:"text"`
}

type respondResponse struct {
	ConversationID string `json:"conversation_id"`
	*agent.Response
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	if req.AccountID == "" {
		req.AccountID = s.config.DefaultAccount
	}

	ctx := observability.AddRequestID(r.Context(), uuid.NewString())
	ctx = observability.AddAccountID(ctx, req.AccountID)
	resp := s.config.Agent.Respond(ctx, req.ConversationID, req.Text, 0)
	if resp == nil {
		writeError(w, http.StatusInternalServerError, "no response")
		return
	}
	writeJSON(w, http.StatusOK, respondResponse{ConversationID: req.ConversationID, Response: resp})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.config.Sessions.List(r.Context())
	if err != nil {
		s.logger.Error("list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": ids})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	history, err := s.config.Sessions.History(r.Context(), id)
	if err != nil {
		s.logger.Error("load history", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if history == nil {
		history = []models.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"messages":        history,
	})
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.config.Sessions.Clear(r.Context(), id); err != nil {
		s.logger.Error("clear history", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) withProactive(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.Proactive == nil {
			writeError(w, http.StatusServiceUnavailable, "proactive messaging is not configured")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleListTriggers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"triggers": s.config.Proactive.Engine().List()})
}

// decodeTrigger reads a trigger body. Triggers are enabled unless the
// body says otherwise.
func decodeTrigger(r *http.Request) (*models.ProactiveTrigger, error) {
	t := &models.ProactiveTrigger{Enabled: true}
	if err := decodeJSON(r, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTrigger(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	engine := s.config.Proactive.Engine()
	id, err := engine.Add(t)
	if err != nil {
		if errors.Is(err, proactive.ErrDuplicateTrigger) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, _ := engine.Get(id)
	s.logger.Info("trigger created", "trigger_id", id, "type", created.Type)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	t, ok := s.config.Proactive.Engine().Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "trigger not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTrigger(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTrigger(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	if t.ID != "" && t.ID != id {
		writeError(w, http.StatusBadRequest, "id in body does not match path")
		return
	}
	t.ID = id
	engine := s.config.Proactive.Engine()
	if err := engine.Update(t); err != nil {
		s.writeTriggerError(w, err)
		return
	}
	updated, _ := engine.Get(id)
	writeJSON(w, http.StatusOK, updated)
}

type patchTriggerRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handlePatchTrigger(w http.ResponseWriter, r *http.Request) {
	var req patchTriggerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	id := r.PathValue("id")
	engine := s.config.Proactive.Engine()
	if err := engine.SetEnabled(id, *req.Enabled); err != nil {
		s.writeTriggerError(w, err)
		return
	}
	t, _ := engine.Get(id)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.config.Proactive.Engine().Remove(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "trigger not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeTriggerError(w http.ResponseWriter, err error) {
	if errors.Is(err, proactive.ErrTriggerNotFound) {
		writeError(w, http.StatusNotFound, "trigger not found")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	all := s.config.Proactive.Queue().List()
	status := models.QueueStatus(r.URL.Query().Get("status"))
	msgs := make([]models.QueuedMessage, 0, len(all))
	for _, m := range all {
		if status != "" && m.Status != status {
			continue
		}
		msgs = append(msgs, m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleGetQueued(w http.ResponseWriter, r *http.Request) {
	m, ok := s.config.Proactive.Queue().Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCancelQueued(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	queue := s.config.Proactive.Queue()
	m, ok := queue.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if !queue.Cancel(r.Context(), id) {
		writeError(w, http.StatusConflict, "message is "+string(m.Status))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRateLimit(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Proactive.Limiter().Status())
}

func (s *Server) handleProactiveStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Proactive.Status())
}
