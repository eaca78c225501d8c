package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/daeho/tripmate/internal/agent"
	"github.com/daeho/tripmate/internal/planner"
)

// maxRequestBodySize limits POST body sizes.
const maxRequestBodySize = 1 << 20 // 1 MB

// MultiAgentPlanner is the staged pipeline that runs all specialists.
type MultiAgentPlanner interface {
	Plan(ctx context.Context, req planner.Requirements, sessionID string) planner.PlanResponse
}

// GraphPlanner is the tool-calling research agent.
type GraphPlanner interface {
	GenerateSchedule(ctx context.Context, sessionID string, req agent.Request) (*agent.ScheduleResult, error)
}

// Gateway exposes the planners over HTTP.
type Gateway struct {
	planner MultiAgentPlanner
	agent   GraphPlanner
}

func New(p MultiAgentPlanner, a GraphPlanner) *Gateway {
	return &Gateway{planner: p, agent: a}
}

// RegisterHTTPHandlers registers all planner endpoints:
//
//	GET  /healthz
//	POST /api/v1/planner/multi-agent
//	POST /api/v1/planner/graph
func (g *Gateway) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", g.handleHealth)
	mux.HandleFunc("/api/v1/planner/multi-agent", g.handleMultiAgent)
	mux.HandleFunc("/api/v1/planner/graph", g.handleGraph)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MultiAgentRequest is the request body for POST /api/v1/planner/multi-agent.
type MultiAgentRequest struct {
	planner.Requirements
	SessionID string `json:"sessionId,omitempty"`
}

func (g *Gateway) handleMultiAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req MultiAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Destination == "" {
		http.Error(w, "destination is required", http.StatusBadRequest)
		return
	}
	if req.StartDate == "" || req.EndDate == "" {
		http.Error(w, "startDate and endDate are required", http.StatusBadRequest)
		return
	}

	resp := g.planner.Plan(r.Context(), req.Requirements, req.SessionID)
	writeJSON(w, http.StatusOK, resp)
}

// GraphRequest is the request body for POST /api/v1/planner/graph.
type GraphRequest struct {
	Destination string `json:"destination"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Budget      int    `json:"budget"`
	Theme       string `json:"theme,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
}

func (g *Gateway) handleGraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req GraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Destination == "" {
		http.Error(w, "destination is required", http.StatusBadRequest)
		return
	}

	result, err := g.agent.GenerateSchedule(r.Context(), req.SessionID, agent.Request{
		Destination: req.Destination,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Budget:      req.Budget,
		Theme:       req.Theme,
	})
	if err != nil {
		log.Printf("Warning: graph planner failed: %v", err)
		http.Error(w, "Schedule generation failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response is already partially written; log only.
		log.Printf("Warning: failed to encode response: %v", err)
	}
}
