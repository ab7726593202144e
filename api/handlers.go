package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"argus/core"

	"github.com/gorilla/mux"
)

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	a.respondJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}, http.StatusOK)
}

// ingestEvent accepts a single event for processing. Severity in the body
// is ignored: classification is owned by the pipeline.
func (a *API) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var e core.SecurityEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		a.respondError(w, "invalid event body", http.StatusBadRequest)
		return
	}
	if !e.Type.IsValid() {
		a.respondError(w, "unknown event type", http.StatusBadRequest)
		return
	}
	e.Severity = ""

	a.pipeline.Log(&e)
	a.respondJSON(w, map[string]string{
		"event_id": e.EventID,
		"severity": string(e.Severity),
	}, http.StatusAccepted)
}

func (a *API) eventsForActor(w http.ResponseWriter, r *http.Request) {
	actorID := mux.Vars(r)["id"]
	events := a.pipeline.EventsForActor(actorID, queryLimit(r))
	a.respondJSON(w, map[string]interface{}{
		"actor_id": actorID,
		"count":    len(events),
		"events":   events,
	}, http.StatusOK)
}

func (a *API) eventsByType(w http.ResponseWriter, r *http.Request) {
	eventType := core.EventType(mux.Vars(r)["type"])
	if !eventType.IsValid() {
		a.respondError(w, "unknown event type", http.StatusBadRequest)
		return
	}
	events := a.pipeline.EventsByType(eventType, queryLimit(r))
	a.respondJSON(w, map[string]interface{}{
		"type":   eventType,
		"count":  len(events),
		"events": events,
	}, http.StatusOK)
}

func (a *API) highSeverityEvents(w http.ResponseWriter, r *http.Request) {
	events := a.pipeline.HighSeverityEvents(queryLimit(r))
	a.respondJSON(w, map[string]interface{}{
		"count":  len(events),
		"events": events,
	}, http.StatusOK)
}

func (a *API) actorRisk(w http.ResponseWriter, r *http.Request) {
	actorID := mux.Vars(r)["id"]
	a.respondJSON(w, map[string]interface{}{
		"actor_id":   actorID,
		"risk_score": a.pipeline.ActorRiskScore(actorID),
	}, http.StatusOK)
}

func (a *API) status(w http.ResponseWriter, _ *http.Request) {
	a.respondJSON(w, map[string]interface{}{
		"buffered_events":    a.pipeline.BufferLen(),
		"stream_subscribers": a.hub.ClientCount(),
		"timestamp":          time.Now().UTC(),
	}, http.StatusOK)
}

// queryLimit parses the limit query parameter, defaulting and clamping to
// defaultQueryLimit.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultQueryLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > defaultQueryLimit {
		return defaultQueryLimit
	}
	return n
}
