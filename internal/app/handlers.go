package app

import (
	"encoding/json"
	"net/http"
)

// handleHealth reports that the process is up.
func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleStatus returns the current delivery status as JSON.
func (a *Application) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := a.Status(r.Context())
	if err != nil {
		a.Logger.Error("failed to build status", "error", err)
		http.Error(w, "failed to load status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		a.Logger.Warn("failed to write status response", "error", err)
	}
}
