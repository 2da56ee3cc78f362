package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/user/cuecard/internal/glossary"
	"github.com/user/cuecard/internal/types"
)

// maxAudioBody bounds a single audio chunk upload.
const maxAudioBody = 10 << 20

func (o *Orchestrator) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", o.handleHealth)
	mux.HandleFunc("POST /events", o.handleCreateEvent)
	mux.HandleFunc("POST /events/{id}/sessions", o.eventAction(o.coordinator.CreateAgentSessions))
	mux.HandleFunc("POST /events/{id}/start", o.eventAction(o.coordinator.StartEvent))
	mux.HandleFunc("POST /events/{id}/pause", o.eventAction(o.coordinator.PauseEvent))
	mux.HandleFunc("POST /events/{id}/resume", o.eventAction(o.coordinator.ResumeEvent))
	mux.HandleFunc("POST /events/{id}/close", o.eventAction(o.coordinator.CloseEvent))
	mux.HandleFunc("POST /events/{id}/start-test", o.eventAction(o.coordinator.StartSessionsForTesting))
	mux.HandleFunc("POST /events/{id}/audio", o.handleAudio)
	mux.HandleFunc("POST /events/{id}/glossary", o.handleGlossary)
	mux.HandleFunc("GET /events/{id}/status", o.handleStatus)
	mux.HandleFunc("GET /events", o.handleListEvents)
	return mux
}

func (o *Orchestrator) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (o *Orchestrator) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID string `json:"event_id"`
	}
	if r.Body != nil {
		// An empty body means a generated id.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	eventID := types.EventID(req.EventID)
	if eventID == "" {
		eventID = types.NewEventID()
	}

	rec, err := o.store.EnsureAgent(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"event_id": string(eventID),
		"agent_id": string(rec.ID),
		"status":   string(rec.Status),
	})
}

// eventAction adapts a coordinator operation into a handler. Operation
// failures surface as 409: the event exists but is in the wrong state.
func (o *Orchestrator) eventAction(fn func(ctx context.Context, eventID types.EventID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := types.EventID(r.PathValue("id"))
		if eventID == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("event id required"))
			return
		}
		if err := fn(r.Context(), eventID); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (o *Orchestrator) handleAudio(w http.ResponseWriter, r *http.Request) {
	eventID := types.EventID(r.PathValue("id"))
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read audio body: %w", err))
		return
	}

	encoding := r.URL.Query().Get("encoding")
	speaker := r.URL.Query().Get("speaker")
	sampleRate := 16000
	if v := r.URL.Query().Get("sample_rate"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			sampleRate = parsed
		}
	}

	if err := o.ingestor.AppendAudio(r.Context(), eventID, data, encoding, sampleRate, speaker); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (o *Orchestrator) handleGlossary(w http.ResponseWriter, r *http.Request) {
	eventID := types.EventID(r.PathValue("id"))
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read glossary body: %w", err))
		return
	}
	terms, err := glossary.Parse(data, eventID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := o.store.ReplaceGlossary(r.Context(), eventID, terms); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// A live runtime picks the new terms up immediately.
	if rt, ok := o.manager.Get(eventID); ok {
		rt.Lock()
		rt.Glossary = glossary.NewCache(terms)
		rt.Unlock()
	}
	writeJSON(w, http.StatusOK, map[string]int{"terms": len(terms)})
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	eventID := types.EventID(r.PathValue("id"))
	rt, ok := o.manager.Get(eventID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("event %s is not live", eventID))
		return
	}
	writeJSON(w, http.StatusOK, o.tracker.Snapshot(rt))
}

func (o *Orchestrator) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	ids := o.manager.EventIDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"live_events": out})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
