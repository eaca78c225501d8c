package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/daeho/tripmate/internal/governance"
	"github.com/daeho/tripmate/internal/graph"
	"github.com/daeho/tripmate/internal/jsonrepair"
	"github.com/daeho/tripmate/internal/observability"
	"github.com/daeho/tripmate/internal/tools"
	"github.com/daeho/tripmate/internal/tour"
)

const (
	// maxToolRounds caps the research loop. Once spent, the agent is
	// forced onto the schedule branch with whatever it has gathered.
	maxToolRounds = 8

	llmTimeout = 15 * time.Second

	// transcriptLimit bounds the tool-output digest fed to the final
	// schedule request. Older output is dropped first.
	transcriptLimit = 8000
)

// ScheduleEntry is one time slot of the generated itinerary.
type ScheduleEntry struct {
	DayNumber   int     `json:"dayNumber"`
	Time        string  `json:"time"`
	PlaceName   string  `json:"placeName"`
	PlaceType   string  `json:"placeType"`
	Description string  `json:"description"`
	Lat         float64 `json:"lat,omitempty"`
	Lng         float64 `json:"lng,omitempty"`
}

// ScheduleResult is the agent's final answer.
type ScheduleResult struct {
	Schedules []ScheduleEntry `json:"schedules"`
	Summary   string          `json:"summary"`
	Tips      []string        `json:"tips"`
}

// Request describes one trip to plan.
type Request struct {
	Destination string
	StartDate   string
	EndDate     string
	Budget      int
	Theme       string
}

type agentState struct {
	messages     []llms.MessageContent
	transcripts  []string
	pendingCalls []llms.ToolCall
	rounds       int
	result       *ScheduleResult
}

type agentUpdate struct {
	messages     []llms.MessageContent
	transcripts  []string
	pendingCalls *[]llms.ToolCall
	roundDone    bool
	result       *ScheduleResult
}

func applyAgent(s agentState, u agentUpdate) agentState {
	s.messages = append(s.messages, u.messages...)
	s.transcripts = append(s.transcripts, u.transcripts...)
	if u.pendingCalls != nil {
		s.pendingCalls = *u.pendingCalls
	}
	if u.roundDone {
		s.rounds++
	}
	if u.result != nil {
		s.result = u.result
	}
	return s
}

// GraphAgent plans a trip with a research loop: the model calls catalog
// lookup tools until it has enough material, then a final request turns
// the gathered transcripts into a day-by-day schedule.
type GraphAgent struct {
	llm      llms.Model
	registry *tools.Registry
	table    *tour.Table
	policy   governance.PolicyEngine
	logger   *observability.Logger
	graph    *graph.Graph[agentState, agentUpdate]
}

// NewGraphAgent builds the research agent. A nil policy allows every
// tool call.
func NewGraphAgent(llm llms.Model, registry *tools.Registry, table *tour.Table, policy governance.PolicyEngine, logger *observability.Logger) *GraphAgent {
	a := &GraphAgent{
		llm:      llm,
		registry: registry,
		table:    table,
		policy:   policy,
		logger:   logger,
	}

	g := graph.New(applyAgent)
	g.AddNode("planner", a.plannerNode)
	g.AddNode("tools", a.toolsNode)
	g.AddNode("scheduler", a.schedulerNode)
	g.SetEntryPoint("planner")
	g.AddConditionalEdges("planner", routeAfterPlanner, map[string]string{
		"tools":    "tools",
		"schedule": "scheduler",
	})
	g.AddEdge("tools", "planner")
	g.AddEdge("scheduler", graph.End)
	a.graph = g
	return a
}

func routeAfterPlanner(s agentState) string {
	if len(s.pendingCalls) > 0 && s.rounds < maxToolRounds {
		return "tools"
	}
	return "schedule"
}

// GenerateSchedule runs the research loop and returns the itinerary.
// The result is never nil; if the model's final answer cannot be
// parsed, Schedules is empty and Summary carries the raw text.
func (a *GraphAgent) GenerateSchedule(ctx context.Context, sessionID string, req Request) (*ScheduleResult, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ctx = withSession(ctx, sessionID)

	days := dayCount(req.StartDate, req.EndDate)
	theme := a.table.ThemeDescription(req.Theme)

	system := `당신은 한국 여행 전문 플래너입니다. 제공된 도구로 실제 관광지, 맛집, 숙소 정보를 조사한 뒤 여행 일정을 만듭니다.
먼저 get_area_code로 지역 코드를 확인하고, 검색 도구들로 장소를 충분히 수집하세요.
조사가 끝났다고 판단되면 도구 호출 없이 "조사 완료"라고만 답하세요.`

	human := fmt.Sprintf(`다음 조건의 %d일 여행을 위해 장소를 조사해 주세요.
- 여행지: %s
- 기간: %s ~ %s
- 예산: %d원
- 테마: %s`,
		days, req.Destination, req.StartDate, req.EndDate, req.Budget, theme)

	initial := agentState{
		messages: []llms.MessageContent{
			{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(system)}},
			{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(human)}},
		},
	}

	final, err := a.graph.Run(ctx, initial, sessionID)
	if err != nil {
		return nil, err
	}
	if final.result == nil {
		return &ScheduleResult{Schedules: []ScheduleEntry{}, Tips: []string{}}, nil
	}
	return final.result, nil
}

func (a *GraphAgent) plannerNode(ctx context.Context, s agentState) (agentUpdate, error) {
	llmTools := make([]llms.Tool, 0, len(a.registry.Tools))
	for _, t := range a.registry.Tools {
		llmTools = append(llmTools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()
	resp, err := a.llm.GenerateContent(callCtx, s.messages, llms.WithTools(llmTools))
	if err == nil && len(resp.Choices) == 0 {
		err = fmt.Errorf("empty model response")
	}
	if err != nil {
		// Research failure ends the loop; the scheduler works with
		// whatever transcripts exist.
		log.Printf("Warning: planner turn failed: %v", err)
		none := []llms.ToolCall{}
		return agentUpdate{pendingCalls: &none, roundDone: true}, nil
	}

	choice := resp.Choices[0]

	var parts []llms.ContentPart
	if choice.Content != "" {
		parts = append(parts, llms.TextContent{Text: choice.Content})
	}
	for _, tc := range choice.ToolCalls {
		parts = append(parts, tc)
	}

	calls := choice.ToolCalls
	return agentUpdate{
		messages:     []llms.MessageContent{{Role: llms.ChatMessageTypeAI, Parts: parts}},
		pendingCalls: &calls,
		roundDone:    true,
	}, nil
}

func (a *GraphAgent) toolsNode(ctx context.Context, s agentState) (agentUpdate, error) {
	sessionID := sessionFrom(ctx)
	a.logger.LogRoute(sessionID, "planner", "tools")

	var messages []llms.MessageContent
	var transcripts []string

	for _, tc := range s.pendingCalls {
		tool := a.registry.Get(tc.FunctionCall.Name)
		var result string
		if tool == nil {
			result = fmt.Sprintf("오류: %s 도구를 찾을 수 없습니다", tc.FunctionCall.Name)
		} else if reason, denied := a.denied(ctx, tc, sessionID); denied {
			result = "거부됨: " + reason
		} else {
			a.logger.LogToolCall(sessionID, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
			res, err := tool.Execute(ctx, tc.FunctionCall.Arguments)
			if err != nil {
				res = fmt.Sprintf("오류: %v", err)
			}
			result = res
		}
		a.logger.LogToolResult(sessionID, tc.FunctionCall.Name, result)

		messages = append(messages, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{
				llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       tc.FunctionCall.Name,
					Content:    result,
				},
			},
		})
		transcripts = append(transcripts, result)
	}

	none := []llms.ToolCall{}
	return agentUpdate{
		messages:     messages,
		transcripts:  transcripts,
		pendingCalls: &none,
	}, nil
}

func (a *GraphAgent) denied(ctx context.Context, tc llms.ToolCall, sessionID string) (string, bool) {
	if a.policy == nil {
		return "", false
	}
	res, err := a.policy.Evaluate(ctx, governance.Request{
		Tool:      tc.FunctionCall.Name,
		Arguments: tc.FunctionCall.Arguments,
		SessionID: sessionID,
	})
	if err != nil {
		return err.Error(), true
	}
	if res.Effect == governance.EffectDeny {
		return res.Reason, true
	}
	return "", false
}

func (a *GraphAgent) schedulerNode(ctx context.Context, s agentState) (agentUpdate, error) {
	sessionID := sessionFrom(ctx)
	a.logger.LogRoute(sessionID, "planner", "schedule")

	digest := tailTruncate(strings.Join(s.transcripts, "\n\n"), transcriptLimit)
	if digest == "" {
		digest = "조사된 장소 정보가 없습니다."
	}

	system := `조사된 장소 정보를 바탕으로 여행 일정을 JSON으로 작성합니다.
반드시 아래 형식의 JSON만 출력하세요. 설명이나 다른 텍스트를 붙이지 마세요.
{
  "schedules": [
    {"dayNumber": 1, "time": "09:00", "placeName": "장소명", "placeType": "ATTRACTION", "description": "설명", "lat": 33.5, "lng": 126.5}
  ],
  "summary": "여행 요약",
  "tips": ["팁1", "팁2"]
}
placeType은 ATTRACTION, RESTAURANT, ACCOMMODATION, ACTIVITY, TRANSPORT 중 하나입니다.
조사 결과에 좌표가 있으면 lat/lng에 그대로 옮기세요.`

	human := "조사 결과:\n" + digest + "\n\n위 정보로 전체 일정 JSON을 작성해 주세요."

	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(system)}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(human)}},
	}

	callCtx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()
	resp, err := a.llm.GenerateContent(callCtx, messages, llms.WithTemperature(0.7))
	if err == nil && len(resp.Choices) == 0 {
		err = fmt.Errorf("empty model response")
	}
	if err != nil {
		return agentUpdate{result: &ScheduleResult{
			Schedules: []ScheduleEntry{},
			Summary:   fmt.Sprintf("일정 생성 실패: %v", err),
			Tips:      []string{},
		}}, nil
	}

	content := resp.Choices[0].Content
	a.logger.LogLLM(sessionID, "schedule", human, content)

	var result ScheduleResult
	if !jsonrepair.Decode(content, &result) || len(result.Schedules) == 0 {
		return agentUpdate{result: &ScheduleResult{
			Schedules: []ScheduleEntry{},
			Summary:   content,
			Tips:      []string{},
		}}, nil
	}
	if result.Tips == nil {
		result.Tips = []string{}
	}
	a.logger.LogSchedule(sessionID, scheduleDays(result.Schedules), false)
	return agentUpdate{result: &result}, nil
}

type sessionKey struct{}

func withSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func sessionFrom(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(string); ok {
		return id
	}
	return ""
}

func scheduleDays(entries []ScheduleEntry) int {
	max := 0
	for _, e := range entries {
		if e.DayNumber > max {
			max = e.DayNumber
		}
	}
	return max
}

// dayCount returns the inclusive length of a trip in days; malformed
// or inverted ranges fall back to three days.
func dayCount(start, end string) int {
	s, err1 := time.Parse("2006-01-02", start)
	e, err2 := time.Parse("2006-01-02", end)
	if err1 != nil || err2 != nil || e.Before(s) {
		return 3
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// tailTruncate keeps the last limit runes, favoring the most recent
// tool output.
func tailTruncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[len(r)-limit:])
}
