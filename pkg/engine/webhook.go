package engine

import (
	"encoding/json"
	"net/http"
)

// RevisionEvent is the inbound notification that a source moved to a new
// revision. Matched against registered applications by source location.
type RevisionEvent struct {
	Location string `json:"location"`
	Revision string `json:"revision"`
}

// NotifyRevision fast-tracks the next tick of every application whose source
// location matches the event instead of waiting for the polling interval.
// Returns the number of applications triggered.
func (e *Engine) NotifyRevision(event RevisionEvent) int {
	triggered := 0
	for _, app := range e.registry.List() {
		if app.Source.Location != event.Location {
			continue
		}
		if worker, ok := e.workers.Load(app.Name); ok {
			worker.clearDegraded()
			worker.requestRefresh(TriggerWebhook)
			triggered++
		}
	}
	e.log.Info("Revision event processed", "location", event.Location, "revision", event.Revision, "applications", triggered)
	return triggered
}

// WebhookHandler accepts POSTed RevisionEvents, e.g. from a repository
// post-receive hook.
func (e *Engine) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var event RevisionEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			http.Error(w, "malformed event payload", http.StatusBadRequest)
			return
		}
		if event.Location == "" {
			http.Error(w, "location is required", http.StatusBadRequest)
			return
		}
		triggered := e.NotifyRevision(event)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"triggered": triggered})
	})
}
