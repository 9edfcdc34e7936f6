package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelierhq/atelier/pkg/agent"
	"github.com/atelierhq/atelier/pkg/broadcast"
	"github.com/atelierhq/atelier/pkg/canvas"
	"github.com/atelierhq/atelier/pkg/persona"
	"github.com/atelierhq/atelier/pkg/sharedcontext"
)

type createCanvasRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateCanvas(w http.ResponseWriter, r *http.Request) {
	var req createCanvasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		req.Title = "Untitled canvas"
	}

	c, err := s.canvases.CreateCanvas(r.Context(), req.Title)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create canvas")
		writeError(w, http.StatusInternalServerError, "failed to create canvas")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCanvases(w http.ResponseWriter, r *http.Request) {
	canvases, err := s.canvases.ListCanvases(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list canvases")
		writeError(w, http.StatusInternalServerError, "failed to list canvases")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"canvases": canvases})
}

func (s *Server) handleGetCanvas(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")

	c, err := s.canvases.GetCanvas(r.Context(), canvasID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			writeError(w, http.StatusNotFound, "canvas not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get canvas")
		return
	}

	nodes, err := s.canvases.ListNodes(r.Context(), canvasID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list nodes")
		return
	}
	edges, err := s.canvases.ListEdges(r.Context(), canvasID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list edges")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"canvas":  c,
		"nodes":   nodes,
		"edges":   edges,
		"viewers": s.hub.ViewerCount(canvasID),
	})
}

type invokeAgentRequest struct {
	Prompt  string `json:"prompt"`
	Persona string `json:"persona,omitempty"`
	Model   string `json:"model,omitempty"`
}

func (s *Server) handleInvokeAgent(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")

	if _, err := s.canvases.GetCanvas(r.Context(), canvasID); err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			writeError(w, http.StatusNotFound, "canvas not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get canvas")
		return
	}

	var req invokeAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	personaKey := req.Persona
	if personaKey == "" {
		personaKey = s.defaultPersona
	}
	if !persona.IsValidKey(personaKey) {
		writeError(w, http.StatusBadRequest, "unknown persona: "+personaKey)
		return
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	session, err := s.invoker.Invoke(r.Context(), canvasID, personaKey, model, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrEmptyPrompt):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, agent.ErrMaxConcurrent):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			s.logger.Error().Err(err).Str("canvas_id", canvasID).Msg("Failed to invoke agent")
			writeError(w, http.StatusInternalServerError, "failed to invoke agent")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")

	sessions, err := s.sessions.ListByCanvas(r.Context(), canvasID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

type saveSnapshotRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")

	var req saveSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "snapshot name is required")
		return
	}

	snapshot, err := s.canvases.SaveSnapshot(r.Context(), canvasID, req.Name)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			writeError(w, http.StatusNotFound, "canvas not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save snapshot")
		return
	}

	writeJSON(w, http.StatusCreated, snapshot)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")

	snapshots, err := s.canvases.ListSnapshots(r.Context(), canvasID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": snapshots})
}

func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshotID := chi.URLParam(r, "snapshotID")

	snapshot, err := s.canvases.RestoreSnapshot(r.Context(), snapshotID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		s.logger.Error().Err(err).Str("snapshot_id", snapshotID).Msg("Failed to restore snapshot")
		writeError(w, http.StatusInternalServerError, "failed to restore snapshot")
		return
	}

	s.hub.Publish(snapshot.CanvasID, broadcast.EventCanvasRestored, map[string]interface{}{
		"snapshotId": snapshot.ID,
	})

	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")

	if s.shared == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": []sharedcontext.Entry{}})
		return
	}

	entries, err := s.shared.GetRecentEntries(r.Context(), canvasID, sharedcontext.QueryOptions{Limit: 50})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read shared context")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	type personaView struct {
		persona.Persona
		Overridden bool `json:"overridden"`
	}

	views := []personaView{}
	for _, p := range persona.All() {
		view := personaView{Persona: p}
		if s.overrides != nil {
			override, err := s.overrides.Get(r.Context(), p.Key)
			if err == nil && override != nil {
				view.Overridden = true
			}
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"personas": views})
}

type updatePromptsRequest struct {
	BaseInstructions *string  `json:"base_instructions,omitempty"`
	SystemSuffix     *string  `json:"system_suffix,omitempty"`
	SchedulerPrompts []string `json:"scheduler_prompts,omitempty"`
	UpdatedBy        string   `json:"updated_by,omitempty"`
}

func (s *Server) handleUpdatePersonaPrompts(w http.ResponseWriter, r *http.Request) {
	personaKey := chi.URLParam(r, "personaKey")

	if s.overrides == nil {
		writeError(w, http.StatusServiceUnavailable, "persona overrides are not available")
		return
	}

	var req updatePromptsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	override, err := s.overrides.Upsert(r.Context(), personaKey, persona.OverridePatch{
		BaseInstructions: req.BaseInstructions,
		SystemSuffix:     req.SystemSuffix,
		SchedulerPrompts: req.SchedulerPrompts,
		UpdatedBy:        req.UpdatedBy,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, override)
}

func (s *Server) handleResetPersonaPrompts(w http.ResponseWriter, r *http.Request) {
	personaKey := chi.URLParam(r, "personaKey")

	if s.overrides == nil {
		writeError(w, http.StatusServiceUnavailable, "persona overrides are not available")
		return
	}

	if err := s.overrides.Reset(r.Context(), personaKey); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
