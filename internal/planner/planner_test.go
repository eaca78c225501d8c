package planner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/daeho/tripmate/internal/graph"
	"github.com/daeho/tripmate/internal/observability"
	"github.com/daeho/tripmate/internal/tour"
)

// fakeLLM returns canned responses in call order. A non-nil err makes
// every call fail.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.responses[idx]}},
	}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, nil)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

type fakePlaces struct {
	byType   map[tour.ContentType][]tour.Place
	err      error
	lastArea string
}

func (f *fakePlaces) AreaBasedList(ctx context.Context, areaCode string, ct tour.ContentType, rows int) ([]tour.Place, error) {
	f.lastArea = areaCode
	if f.err != nil {
		return nil, f.err
	}
	return f.byType[ct], nil
}

func testRequirements() Requirements {
	return Requirements{
		Destination: "제주",
		StartDate:   "2025-06-01",
		EndDate:     "2025-06-03",
		Budget:      1000000,
		Travelers:   2,
	}
}

func newTestPlanner(llm llms.Model, places PlaceSource, cp graph.Checkpointer[State]) *Planner {
	return New(llm, places, tour.DefaultTable(), cp, observability.NewLogger())
}

func TestPlan_AllExternalCallsFail(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection refused")}
	places := &fakePlaces{err: errors.New("tour API down")}

	resp := newTestPlanner(llm, places, nil).Plan(context.Background(), testRequirements(), "s1")

	// The fallback schedule still completes the run.
	if !resp.Success {
		t.Error("expected success=true via fallback schedule")
	}
	if len(resp.Schedule) != 3 {
		t.Fatalf("expected 3 schedule days, got %d", len(resp.Schedule))
	}
	for _, day := range resp.Schedule {
		if len(day.Items) != 4 {
			t.Errorf("day %d: expected 4 items, got %d", day.Day, len(day.Items))
		}
	}

	for name, r := range map[string]AgentResult{
		"transport":     resp.AgentResults.Transport,
		"accommodation": resp.AgentResults.Accommodation,
		"restaurant":    resp.AgentResults.Restaurant,
		"activity":      resp.AgentResults.Activity,
	} {
		if r.Status != StatusFailed {
			t.Errorf("%s: expected failed status, got %s", name, r.Status)
		}
		if len(r.Recommendations) != 0 {
			t.Errorf("%s: expected no recommendations", name)
		}
	}
}

func TestPlan_SuccessPath(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		// transport
		`{"recommendations": [{"type": "비행기", "estimated_cost": 120000, "recommendation_reason": "빠름"}], "total_transport_cost": 240000, "notes": "왕복 기준"}`,
		// accommodation
		`{"recommendations": [{"name": "신라호텔", "price_per_night": 250000}], "notes": ""}`,
		// restaurant
		`{"recommendations": [{"name": "우진해장국"}, {"name": "자매국수"}], "notes": ""}`,
		// activity
		`{"recommendations": [{"name": "성산일출봉"}, {"name": "만장굴"}], "notes": ""}`,
		// budget
		`{"budget_breakdown": {"total": 900000}, "within_budget": true}`,
		// schedule, fenced to exercise the recovery parser
		"```json\n" + `{"schedule": [{"day": 1, "theme": "동부 일주", "items": [
			{"time": "09:00", "type": "ATTRACTION", "name": "성산일출봉", "description": "일출 명소"},
			{"time": "12:00", "type": "RESTAURANT", "name": "우진해장국 본점", "description": "점심"}
		]}]}` + "\n```",
	}}
	places := &fakePlaces{byType: map[tour.ContentType][]tour.Place{
		tour.ContentAttraction: {{Title: "성산일출봉", MapX: "126.942", MapY: "33.458"}},
		tour.ContentRestaurant: {{Title: "우진해장국", MapX: "126.518", MapY: "33.512"}},
	}}

	resp := newTestPlanner(llm, places, nil).Plan(context.Background(), testRequirements(), "s1")

	if !resp.Success {
		t.Fatalf("expected success, errors: %v", resp.Errors)
	}
	if places.lastArea != "39" {
		t.Errorf("expected resolved area code 39, got %q", places.lastArea)
	}
	if resp.AgentResults.Transport.Status != StatusSuccess {
		t.Errorf("transport status = %s", resp.AgentResults.Transport.Status)
	}
	if got := resp.BudgetPlan["within_budget"]; got != true {
		t.Errorf("budget plan not carried through: %v", resp.BudgetPlan)
	}
	if len(resp.Schedule) != 1 || len(resp.Schedule[0].Items) != 2 {
		t.Fatalf("unexpected schedule shape: %+v", resp.Schedule)
	}

	// Exact-name match in the item's own category.
	first := resp.Schedule[0].Items[0]
	if first.Lat == nil || *first.Lat != 33.458 {
		t.Errorf("expected enriched attraction coords, got %v", first.Lat)
	}
	// Reworded name resolves by substring.
	second := resp.Schedule[0].Items[1]
	if second.Lat == nil || *second.Lat != 33.512 || *second.Lng != 126.518 {
		t.Errorf("expected substring-matched restaurant coords, got %v/%v", second.Lat, second.Lng)
	}
}

func TestPlan_EmptyScheduleTriggersRetriesThenFallback(t *testing.T) {
	// Specialists fail to parse; schedule stage parses but stays empty,
	// which consumes all three attempts before the fallback engages.
	llm := &fakeLLM{responses: []string{
		"not json", "not json", "not json", "not json", "not json",
		`{"schedule": []}`,
	}}
	resp := newTestPlanner(llm, &fakePlaces{}, nil).Plan(context.Background(), testRequirements(), "s1")

	if !resp.Success {
		t.Error("expected fallback completion")
	}
	if len(resp.Schedule) != 3 {
		t.Errorf("expected 3 fallback days, got %d", len(resp.Schedule))
	}
	// 5 stage calls + 3 schedule attempts
	if llm.calls != 8 {
		t.Errorf("expected 8 LLM calls (3 schedule attempts), got %d", llm.calls)
	}
}

func TestPlan_FailedSpecialistDoesNotAbort(t *testing.T) {
	// Only the restaurant call errors out; everything else succeeds.
	llm := &stageLLM{byStage: map[int]string{
		0: `{"recommendations": [{"type": "KTX"}]}`,
		1: `{"recommendations": [{"name": "호텔A"}]}`,
		3: `{"recommendations": [{"name": "관광지A"}]}`,
		4: `{"budget_breakdown": {}}`,
		5: `{"schedule": [{"day": 1, "theme": "t", "items": [{"time": "09:00", "type": "ATTRACTION", "name": "관광지A", "description": ""}]}]}`,
	}, failAt: 2}

	resp := newTestPlanner(llm, &fakePlaces{}, nil).Plan(context.Background(), testRequirements(), "s1")

	if !resp.Success {
		t.Fatalf("pipeline should reach complete, errors: %v", resp.Errors)
	}
	if resp.AgentResults.Restaurant.Status != StatusFailed {
		t.Errorf("restaurant should be failed, got %s", resp.AgentResults.Restaurant.Status)
	}
	if resp.AgentResults.Activity.Status != StatusSuccess {
		t.Errorf("activity should still succeed, got %s", resp.AgentResults.Activity.Status)
	}
}

// stageLLM answers by call index and fails exactly one stage.
type stageLLM struct {
	mu      sync.Mutex
	byStage map[int]string
	failAt  int
	calls   int
}

func (f *stageLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx == f.failAt {
		return nil, errors.New("timeout")
	}
	content, ok := f.byStage[idx]
	if !ok {
		content = "{}"
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}, nil
}

func (f *stageLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func TestPlan_CheckpointsFinalState(t *testing.T) {
	saver := graph.NewMemorySaver[State]()
	llm := &fakeLLM{err: errors.New("down")}

	newTestPlanner(llm, &fakePlaces{}, saver).Plan(context.Background(), testRequirements(), "session-42")

	got, ok, err := saver.Get("session-42")
	if err != nil || !ok {
		t.Fatalf("expected checkpoint for session-42: ok=%v err=%v", ok, err)
	}
	if got.Phase != PhaseComplete {
		t.Errorf("checkpointed phase = %q, want complete", got.Phase)
	}
}

func TestPlan_GeneratesSessionID(t *testing.T) {
	saver := graph.NewMemorySaver[State]()
	llm := &fakeLLM{err: errors.New("down")}

	resp := newTestPlanner(llm, &fakePlaces{}, saver).Plan(context.Background(), testRequirements(), "")
	if !resp.Success {
		t.Error("expected fallback success with generated session id")
	}
}

func TestApply_MergeSemantics(t *testing.T) {
	s := State{Phase: PhaseInitializing}

	s = Apply(s, Update{
		Phase:    PhaseSpecialistAnalysis,
		Messages: []string{"m1"},
		Errors:   []string{"e1"},
		Places:   map[PlaceCategory][]Place{CategoryRestaurant: {{Name: "식당"}}},
	})
	s = Apply(s, Update{
		Messages: []string{"m2"},
		Places:   map[PlaceCategory][]Place{CategoryActivity: {{Name: "관광지"}}},
	})

	if s.Phase != PhaseSpecialistAnalysis {
		t.Errorf("phase = %q", s.Phase)
	}
	if len(s.Messages) != 2 || s.Messages[0] != "m1" || s.Messages[1] != "m2" {
		t.Errorf("messages must concatenate in order: %v", s.Messages)
	}
	if len(s.Errors) != 1 {
		t.Errorf("errors must persist: %v", s.Errors)
	}
	// A later category write must not clobber the other category.
	if len(s.Places[CategoryRestaurant]) != 1 || len(s.Places[CategoryActivity]) != 1 {
		t.Errorf("places index lost a category: %v", s.Places)
	}

	// Replacement within the owning category.
	s = Apply(s, Update{
		Places: map[PlaceCategory][]Place{CategoryRestaurant: {{Name: "새식당"}, {Name: "또식당"}}},
	})
	if len(s.Places[CategoryRestaurant]) != 2 {
		t.Errorf("owning category must be replaced: %v", s.Places[CategoryRestaurant])
	}
}

func TestItemTypeCategory(t *testing.T) {
	cases := []struct {
		t    ItemType
		cat  PlaceCategory
		want bool
	}{
		{ItemAttraction, CategoryActivity, true},
		{ItemActivity, CategoryActivity, true},
		{ItemRestaurant, CategoryRestaurant, true},
		{ItemAccommodation, CategoryAccommodation, true},
		{ItemTransport, "", false},
		{ItemType("CAFE"), "", false},
	}
	for _, c := range cases {
		cat, ok := c.t.Category()
		if ok != c.want || cat != c.cat {
			t.Errorf("Category(%s) = %v, %v; want %v, %v", c.t, cat, ok, c.cat, c.want)
		}
	}
}
