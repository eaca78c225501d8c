// Package planner implements the multi-specialist trip planning
// workflow: a coordinator, four specialists, a budget optimizer, and a
// schedule synthesizer arranged on a shared-state graph.
package planner

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/daeho/tripmate/internal/graph"
	"github.com/daeho/tripmate/internal/observability"
	"github.com/daeho/tripmate/internal/tour"
)

// PlanResponse is the externally visible result of a planning run.
// Specialists that never ran still appear, with status pending.
type PlanResponse struct {
	Success      bool           `json:"success"`
	Destination  string         `json:"destination"`
	Schedule     []ScheduleDay  `json:"schedule"`
	BudgetPlan   map[string]any `json:"budgetPlan"`
	AgentResults AgentResults   `json:"agentResults"`
	Messages     []string       `json:"messages"`
	Errors       []string       `json:"errors"`
}

type AgentResults struct {
	Transport     AgentResult `json:"transport"`
	Accommodation AgentResult `json:"accommodation"`
	Restaurant    AgentResult `json:"restaurant"`
	Activity      AgentResult `json:"activity"`
}

// Planner owns the linear-with-fan-in topology: coordinator → abort
// check → the four specialists in sequence → budget optimizer →
// schedule synthesizer. One Planner serves concurrent requests.
type Planner struct {
	graph  *graph.Graph[State, Update]
	logger *observability.Logger
}

func New(llm llms.Model, places PlaceSource, table *tour.Table, checkpointer graph.Checkpointer[State], logger *observability.Logger) *Planner {
	nodes := NewNodes(llm, places, table, logger)
	synth := NewSynthesizer(llm, logger)

	g := graph.New(Apply)
	g.AddNode("coordinator", nodes.Coordinator)
	g.AddNode("transport_agent", nodes.Transport)
	g.AddNode("accommodation_agent", nodes.Accommodation)
	g.AddNode("restaurant_agent", nodes.Restaurant)
	g.AddNode("activity_agent", nodes.Activity)
	g.AddNode("budget_optimizer", nodes.BudgetOptimizer)
	g.AddNode("schedule_generator", synth.Generate)

	g.SetEntryPoint("coordinator")
	g.AddConditionalEdges("coordinator", RouteAfterCoordinator, map[string]string{
		"specialists": "transport_agent",
		"error":       graph.End,
	})
	g.AddEdge("transport_agent", "accommodation_agent")
	g.AddEdge("accommodation_agent", "restaurant_agent")
	g.AddEdge("restaurant_agent", "activity_agent")
	g.AddEdge("activity_agent", "budget_optimizer")
	g.AddEdge("budget_optimizer", "schedule_generator")
	g.AddEdge("schedule_generator", graph.End)

	if checkpointer != nil {
		g.SetCheckpointer(checkpointer)
	}

	return &Planner{graph: g, logger: logger}
}

// Plan runs the full workflow for one request. It never returns an
// error: a failed graph run degrades to the initial state plus an
// error entry, so the response is always well formed.
func (p *Planner) Plan(ctx context.Context, req Requirements, sessionID string) PlanResponse {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if len(req.Preferences) == 0 {
		req.Preferences = []string{"healing"}
	}

	initial := State{
		Requirements: req,
		Places:       map[PlaceCategory][]Place{},
		Phase:        PhaseInitializing,
	}

	ctx = withSession(ctx, sessionID)
	final, err := p.graph.Run(ctx, initial, sessionID)
	if err != nil {
		log.Printf("planner: graph execution failed: %v", err)
		final = initial
		final.Errors = append(final.Errors, "일정 생성 실패: "+err.Error())
	}

	return formatResult(final)
}

func formatResult(s State) PlanResponse {
	orPending := func(r *AgentResult, agent string) AgentResult {
		if r != nil && r.Status != "" {
			return *r
		}
		return pendingResult(agent)
	}

	resp := PlanResponse{
		Success:     s.Phase == PhaseComplete,
		Destination: s.Requirements.Destination,
		Schedule:    s.FinalSchedule,
		BudgetPlan:  s.OptimizedPlan,
		AgentResults: AgentResults{
			Transport:     orPending(s.TransportResult, "transport"),
			Accommodation: orPending(s.AccommodationResult, "accommodation"),
			Restaurant:    orPending(s.RestaurantResult, "restaurant"),
			Activity:      orPending(s.ActivityResult, "activity"),
		},
		Messages: s.Messages,
		Errors:   s.Errors,
	}

	// Null-free JSON for the frontend.
	if resp.Schedule == nil {
		resp.Schedule = []ScheduleDay{}
	}
	if resp.BudgetPlan == nil {
		resp.BudgetPlan = map[string]any{}
	}
	if resp.Messages == nil {
		resp.Messages = []string{}
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	return resp
}
