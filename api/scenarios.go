/*
scenarios.go - Demo scenario endpoints

PURPOSE:
  Lists and loads the fixtures embedded in the seed package, so a fresh
  server can be populated with realistic users and pools for demos.

AVAILABLE SCENARIOS:
  france-team:        CP restant/acquis and RTT for a Paris team
  luxembourg-office:  CP in hours and Compensatoire for a Luxembourg office

USAGE VIA API:
  GET  /api/scenarios
  GET  /api/scenarios/current
  POST /api/scenarios/load   {"scenario_id": "france-team"}

NOTE:
  Loading is additive and idempotent: users and pools are upserted and
  opening grants carry idempotency keys, so loading twice changes nothing.
  The routes are only mounted when server.enable_scenarios is set.

SEE ALSO:
  - seed/seed.go: Fixture format and loader
*/
package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/warp/leave-engine/seed"
)

type scenarioState struct {
	mu      sync.Mutex
	current string
}

func (s *scenarioState) set(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = id
}

func (s *scenarioState) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	list, err := seed.Scenarios()
	if err != nil {
		h.fail(w, r, "Failed to list scenarios", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetCurrentScenario returns the last scenario loaded through the API, or null.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	id := h.scenarios.get()
	if id == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	list, err := seed.Scenarios()
	if err != nil {
		h.fail(w, r, "Failed to list scenarios", err)
		return
	}
	for _, s := range list {
		if s.ID == id {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, seed.Scenario{ID: id, Name: id})
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fixture, err := seed.Embedded(req.ScenarioID)
	if err != nil {
		h.fail(w, r, "Unknown scenario", err)
		return
	}
	report, err := seed.Load(r.Context(), h.Repo, h.Clock, fixture)
	if err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}
	h.scenarios.set(req.ScenarioID)
	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID,
		"users", report.Users, "grants", report.Grants, "skipped", report.Skipped)

	writeJSON(w, http.StatusOK, LoadScenarioResponse{ScenarioID: req.ScenarioID, Report: report})
}
