package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/daeho/tripmate/internal/governance"
	"github.com/daeho/tripmate/internal/observability"
	"github.com/daeho/tripmate/internal/tools"
	"github.com/daeho/tripmate/internal/tour"
)

type fakeLLM struct {
	responses []*llms.ContentResponse
	calls     int
	err       error
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, nil)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func textResponse(content string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}
}

func toolCallResponse(name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:   "call-1",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      name,
				Arguments: args,
			},
		}},
	}}}
}

type echoTool struct {
	name   string
	output string
	calls  int
}

func (t *echoTool) Name() string               { return t.name }
func (t *echoTool) Description() string        { return "test tool" }
func (t *echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (t *echoTool) Execute(ctx context.Context, input string) (string, error) {
	t.calls++
	return t.output, nil
}

func testAgent(llm llms.Model, tool tools.Tool) *GraphAgent {
	registry := tools.NewRegistry()
	if tool != nil {
		registry.Register(tool)
	}
	return NewGraphAgent(llm, registry, tour.DefaultTable(), nil, observability.NewLogger())
}

func testRequest() Request {
	return Request{
		Destination: "제주도",
		StartDate:   "2025-06-01",
		EndDate:     "2025-06-03",
		Budget:      1000000,
		Theme:       "HEALING",
	}
}

func TestGenerateSchedule_ToolLoopThenSchedule(t *testing.T) {
	scheduleJSON := `{
		"schedules": [
			{"dayNumber": 1, "time": "09:00", "placeName": "성산일출봉", "placeType": "ATTRACTION", "description": "일출 명소", "lat": 33.458, "lng": 126.942},
			{"dayNumber": 2, "time": "12:00", "placeName": "우진해장국", "placeType": "RESTAURANT", "description": "점심"}
		],
		"summary": "제주 힐링 여행",
		"tips": ["렌터카 예약"]
	}`

	llm := &fakeLLM{responses: []*llms.ContentResponse{
		toolCallResponse("lookup", `{"q": "제주"}`),
		textResponse("조사 완료"),
		textResponse(scheduleJSON),
	}}
	tool := &echoTool{name: "lookup", output: "1. 성산일출봉\n   좌표: (33.458, 126.942)"}
	a := testAgent(llm, tool)

	result, err := a.GenerateSchedule(context.Background(), "s1", testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if tool.calls != 1 {
		t.Errorf("expected 1 tool call, got %d", tool.calls)
	}
	if llm.calls != 3 {
		t.Errorf("expected 3 llm calls, got %d", llm.calls)
	}
	if len(result.Schedules) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Schedules))
	}
	first := result.Schedules[0]
	if first.PlaceName != "성산일출봉" || first.Lat != 33.458 || first.Lng != 126.942 {
		t.Errorf("unexpected first entry: %+v", first)
	}
	if result.Summary != "제주 힐링 여행" || len(result.Tips) != 1 {
		t.Errorf("unexpected summary/tips: %q %v", result.Summary, result.Tips)
	}
}

func TestGenerateSchedule_MaxRoundsForcesSchedule(t *testing.T) {
	// The model keeps asking for tools; the loop must stop on its own.
	llm := &fakeLLM{responses: []*llms.ContentResponse{
		toolCallResponse("lookup", `{}`),
	}}
	tool := &echoTool{name: "lookup", output: "결과"}
	a := testAgent(llm, tool)

	_, err := a.GenerateSchedule(context.Background(), "s1", testRequest())
	if err != nil {
		t.Fatal(err)
	}
	// 8 planner rounds plus the final schedule request.
	if llm.calls != maxToolRounds+1 {
		t.Errorf("expected %d llm calls, got %d", maxToolRounds+1, llm.calls)
	}
	// The guard fires after the eighth planner turn, so that turn's
	// tool calls are never executed.
	if tool.calls != maxToolRounds-1 {
		t.Errorf("expected %d tool executions, got %d", maxToolRounds-1, tool.calls)
	}
}

func TestGenerateSchedule_UnparsableAnswerKeepsRawText(t *testing.T) {
	llm := &fakeLLM{responses: []*llms.ContentResponse{
		textResponse("조사 완료"),
		textResponse("죄송합니다, 일정을 만들 수 없습니다."),
	}}
	a := testAgent(llm, nil)

	result, err := a.GenerateSchedule(context.Background(), "", testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Schedules) != 0 {
		t.Errorf("expected empty schedules, got %d", len(result.Schedules))
	}
	if !strings.Contains(result.Summary, "죄송합니다") {
		t.Errorf("expected raw text as summary, got %q", result.Summary)
	}
}

func TestGenerateSchedule_EmptyChoicesEndsLoop(t *testing.T) {
	// Providers can return a response with no choices at all (content
	// filter); both the research loop and the schedule turn must treat
	// that as a failed generation, not a fault.
	llm := &fakeLLM{responses: []*llms.ContentResponse{{Choices: nil}}}
	a := testAgent(llm, nil)

	result, err := a.GenerateSchedule(context.Background(), "s1", testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Schedules) != 0 {
		t.Errorf("expected empty schedules, got %d", len(result.Schedules))
	}
	if !strings.Contains(result.Summary, "일정 생성 실패") {
		t.Errorf("expected failure summary, got %q", result.Summary)
	}
	// One planner turn ends the loop, then the schedule turn fails too.
	if llm.calls != 2 {
		t.Errorf("expected 2 llm calls, got %d", llm.calls)
	}
}

func TestGenerateSchedule_LLMFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("provider down")}
	a := testAgent(llm, nil)

	result, err := a.GenerateSchedule(context.Background(), "s1", testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Schedules) != 0 {
		t.Errorf("expected empty schedules, got %d", len(result.Schedules))
	}
	if !strings.Contains(result.Summary, "일정 생성 실패") {
		t.Errorf("expected failure summary, got %q", result.Summary)
	}
}

func TestGenerateSchedule_PolicyDeniesTool(t *testing.T) {
	llm := &fakeLLM{responses: []*llms.ContentResponse{
		toolCallResponse("lookup", `{}`),
		textResponse("조사 완료"),
		textResponse("no json"),
	}}
	tool := &echoTool{name: "lookup", output: "결과"}

	registry := tools.NewRegistry()
	registry.Register(tool)
	policy := governance.NewDefaultPolicyEngine()
	policy.DenyTool("lookup")
	a := NewGraphAgent(llm, registry, tour.DefaultTable(), policy, observability.NewLogger())

	_, err := a.GenerateSchedule(context.Background(), "s1", testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if tool.calls != 0 {
		t.Errorf("denied tool was executed %d times", tool.calls)
	}
}

func TestDayCount(t *testing.T) {
	cases := []struct {
		start, end string
		want       int
	}{
		{"2025-06-01", "2025-06-03", 3},
		{"2025-06-01", "2025-06-01", 1},
		{"2025-06-05", "2025-06-01", 3},
		{"bad", "2025-06-01", 3},
	}
	for _, c := range cases {
		if got := dayCount(c.start, c.end); got != c.want {
			t.Errorf("dayCount(%q, %q) = %d, want %d", c.start, c.end, got, c.want)
		}
	}
}

func TestTailTruncate(t *testing.T) {
	if got := tailTruncate("abcdef", 4); got != "cdef" {
		t.Errorf("got %q", got)
	}
	if got := tailTruncate("짧은 문자열", 100); got != "짧은 문자열" {
		t.Errorf("got %q", got)
	}
	// Rune-based, so multi-byte text keeps whole characters.
	if got := tailTruncate("가나다라", 2); got != "다라" {
		t.Errorf("got %q", got)
	}
}
