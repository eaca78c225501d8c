package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/daeho/tripmate/internal/jsonrepair"
	"github.com/daeho/tripmate/internal/observability"
	"github.com/daeho/tripmate/internal/tour"
)

const llmTimeout = 15 * time.Second

// PlaceSource is the slice of the tour client the specialists need.
type PlaceSource interface {
	AreaBasedList(ctx context.Context, areaCode string, ct tour.ContentType, rows int) ([]tour.Place, error)
}

// Nodes holds the specialist stage nodes. One Nodes value serves
// concurrent runs; it carries no per-run state.
type Nodes struct {
	llm    llms.Model
	places PlaceSource
	table  *tour.Table
	logger *observability.Logger
}

func NewNodes(llm llms.Model, places PlaceSource, table *tour.Table, logger *observability.Logger) *Nodes {
	return &Nodes{llm: llm, places: places, table: table, logger: logger}
}

type sessionKey struct{}

func withSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func sessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// generate runs one system+human exchange with its own timeout.
func (n *Nodes) generate(ctx context.Context, stage, system, human string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(system)}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(human)}},
	}

	resp, err := n.llm.GenerateContent(ctx, messages, llms.WithTemperature(0.7))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty model response")
	}

	content := resp.Choices[0].Content
	n.logger.LogLLM(sessionFrom(ctx), stage, human, content)
	return content, nil
}

// Coordinator resolves the destination's area code and opens the run.
func (n *Nodes) Coordinator(ctx context.Context, s State) (Update, error) {
	req := s.Requirements
	if code, ok := n.table.AreaCode(req.Destination); ok {
		req.AreaCode = code
		log.Printf("planner: area code %s for %s", code, req.Destination)
	}

	n.logger.LogNode(sessionFrom(ctx), "coordinator", "done")

	return Update{
		Requirements: &req,
		Phase:        PhaseSpecialistAnalysis,
		Messages: []string{
			fmt.Sprintf("🎯 여행 계획 시작: %s", req.Destination),
			fmt.Sprintf("📅 기간: %s ~ %s", req.StartDate, req.EndDate),
			fmt.Sprintf("💰 예산: %d원", req.Budget),
		},
	}, nil
}

// RouteAfterCoordinator aborts the run when a precondition error was
// already recorded.
func RouteAfterCoordinator(s State) string {
	if len(s.Errors) > 0 {
		return "error"
	}
	return "specialists"
}

const transportSystem = `한국 여행 교통 전문가입니다.
반드시 다음 JSON 형식으로만 응답:
{"recommendations": [{"type": "KTX/비행기/버스/자가용", "from_location": "출발지", "to_location": "도착지", "estimated_cost": 비용숫자, "duration": "소요시간", "recommendation_reason": "추천이유"}], "total_transport_cost": 총비용숫자, "notes": "참고사항"}`

// Transport analyzes how to get there. It is the one specialist that
// never consults the place catalog.
func (n *Nodes) Transport(ctx context.Context, s State) (Update, error) {
	req := s.Requirements

	human := fmt.Sprintf("목적지: %s, 기간: %s~%s, 인원: %d명, 예산: %d원",
		req.Destination, req.StartDate, req.EndDate, req.Travelers, req.Budget)

	content, err := n.generate(ctx, "transport", transportSystem, human)
	if err != nil {
		return Update{
			TransportResult: failedResult("transport", err),
			Messages:        []string{"⚠️ 교통 전문가: 기본 추천 사용"},
		}, nil
	}

	data, ok := jsonrepair.Parse(content)
	if !ok {
		return Update{
			TransportResult: failedResult("transport", fmt.Errorf("응답 파싱 실패")),
			Messages:        []string{"⚠️ 교통 전문가: 기본 추천 사용"},
		}, nil
	}

	return Update{
		TransportResult: successResult("transport", data),
		Messages:        []string{"✈️ 교통 전문가: 분석 완료"},
	}, nil
}

const accommodationSystem = `한국 숙소 전문가입니다. 실제 검색된 숙소를 바탕으로 추천합니다.
반드시 다음 JSON 형식으로만 응답:
{"recommendations": [{"name": "실제숙소명", "type": "호텔/펜션/리조트", "price_per_night": 가격숫자, "location": "위치", "features": ["특징"], "why_recommended": "추천이유"}], "total_accommodation_cost": 총비용숫자, "notes": "참고사항"}
중요: 반드시 아래 실제 검색 결과에서 선택하세요.`

func (n *Nodes) Accommodation(ctx context.Context, s State) (Update, error) {
	return n.specialistWithPlaces(ctx, s, specialistSpec{
		agent:       "accommodation",
		category:    CategoryAccommodation,
		fetchRows:   10,
		promptRows:  10,
		coordRows:   10,
		system:      accommodationSystem,
		okMessage:   "🏨 숙소 전문가: 분석 완료",
		failMessage: "⚠️ 숙소 전문가: 분석 실패",
		resultInto: func(u *Update, r *AgentResult) {
			u.AccommodationResult = r
		},
	})
}

const restaurantSystem = `한국 맛집 전문가입니다. 실제 검색된 맛집을 바탕으로 추천합니다.
반드시 다음 JSON 형식으로만 응답:
{"recommendations": [{"name": "실제식당명", "cuisine": "음식종류", "price_range": "가격대", "specialty": "대표메뉴", "location": "위치", "best_for": "아침/점심/저녁"}], "daily_food_budget": 일일식비숫자, "notes": "참고사항"}
중요: 실제 검색 결과에서 최소 8개 이상 추천하세요.`

// Restaurant over-fetches candidates so the synthesizer has enough
// distinct names to fill a multi-day plan without repeats.
func (n *Nodes) Restaurant(ctx context.Context, s State) (Update, error) {
	return n.specialistWithPlaces(ctx, s, specialistSpec{
		agent:       "restaurant",
		category:    CategoryRestaurant,
		fetchRows:   20,
		promptRows:  15,
		coordRows:   15,
		system:      restaurantSystem,
		extraHuman:  "최소 8개 이상 추천해주세요.",
		okMessage:   "🍽️ 맛집 전문가: 분석 완료",
		failMessage: "⚠️ 맛집 전문가: 분석 실패",
		resultInto: func(u *Update, r *AgentResult) {
			u.RestaurantResult = r
		},
	})
}

const activitySystem = `한국 관광/액티비티 전문가입니다. 실제 검색된 관광지를 바탕으로 추천합니다.
반드시 다음 JSON 형식으로만 응답:
{"recommendations": [{"name": "실제관광지명", "type": "관광지/체험/자연", "duration": "소요시간", "cost": 비용숫자, "description": "설명", "best_time": "추천시간대"}], "total_activity_cost": 총비용숫자, "notes": "참고사항"}
중요: 실제 검색 결과에서 최소 8개 이상 추천하세요.`

func (n *Nodes) Activity(ctx context.Context, s State) (Update, error) {
	return n.specialistWithPlaces(ctx, s, specialistSpec{
		agent:       "activity",
		category:    CategoryActivity,
		fetchRows:   20,
		promptRows:  15,
		coordRows:   15,
		system:      activitySystem,
		extraHuman:  "최소 8개 이상 추천해주세요.",
		okMessage:   "🎯 액티비티 전문가: 분석 완료",
		failMessage: "⚠️ 액티비티 전문가: 분석 실패",
		resultInto: func(u *Update, r *AgentResult) {
			u.ActivityResult = r
		},
	})
}

type specialistSpec struct {
	agent       string
	category    PlaceCategory
	fetchRows   int
	promptRows  int
	coordRows   int
	system      string
	extraHuman  string
	okMessage   string
	failMessage string
	resultInto  func(*Update, *AgentResult)
}

// specialistWithPlaces is the shared shape of the three catalog-backed
// specialists: fetch candidates, embed them in the prompt, generate,
// recover. Fetched coordinates go into the places index even when the
// generation step fails; they only feed enrichment.
func (n *Nodes) specialistWithPlaces(ctx context.Context, s State, spec specialistSpec) (Update, error) {
	req := s.Requirements

	var fetched []tour.Place
	if req.AreaCode != "" {
		var err error
		fetched, err = n.places.AreaBasedList(ctx, req.AreaCode, spec.category.ContentType(), spec.fetchRows)
		if err != nil {
			log.Printf("planner: %s place fetch failed: %v", spec.agent, err)
			fetched = nil
		}
		n.logger.LogPlaceFetch(sessionFrom(ctx), string(spec.category), len(fetched))
	}

	update := Update{}
	if geocoded := toIndexPlaces(tour.FilterWithCoords(fetched, spec.coordRows), spec.category); len(geocoded) > 0 {
		update.Places = map[PlaceCategory][]Place{spec.category: geocoded}
	}

	human := fmt.Sprintf("목적지: %s, 기간: %s~%s\n인원: %d명, 예산: %d원\n\n실제 검색 결과:\n%s",
		req.Destination, req.StartDate, req.EndDate, req.Travelers, req.Budget,
		tour.FormatForPrompt(fetched, spec.promptRows))
	if spec.extraHuman != "" {
		human += "\n\n" + spec.extraHuman
	}

	content, err := n.generate(ctx, spec.agent, spec.system, human)
	if err != nil {
		spec.resultInto(&update, failedResult(spec.agent, err))
		update.Messages = []string{spec.failMessage}
		return update, nil
	}

	data, ok := jsonrepair.Parse(content)
	if !ok {
		spec.resultInto(&update, failedResult(spec.agent, fmt.Errorf("응답 파싱 실패")))
		update.Messages = []string{spec.failMessage}
		return update, nil
	}

	spec.resultInto(&update, successResult(spec.agent, data))
	update.Messages = []string{spec.okMessage}
	return update, nil
}

const budgetSystem = `여행 예산 최적화 전문가입니다.
반드시 다음 JSON 형식으로만 응답:
{"budget_breakdown": {"transport": 교통비, "accommodation": 숙박비, "food": 식비, "activities": 액티비티비, "miscellaneous": 기타, "total": 총액}, "within_budget": true/false, "savings_tips": ["절약팁1", "절약팁2"], "optimized_selections": {"transport": "선택교통편", "accommodation": "선택숙소", "must_visit": ["필수관광지"], "must_eat": ["필수맛집"]}, "notes": "예산조언"}`

// BudgetOptimizer is advisory: its output is never required by the
// synthesizer, so failure degrades to an empty plan and a log line.
func (n *Nodes) BudgetOptimizer(ctx context.Context, s State) (Update, error) {
	req := s.Requirements

	human := fmt.Sprintf(`여행: %s, %s~%s
인원: %d명, 총 예산: %d원

교통: %s
숙소: %s
맛집: %s
관광: %s`,
		req.Destination, req.StartDate, req.EndDate, req.Travelers, req.Budget,
		sampleJSON(s.TransportResult, 3),
		sampleJSON(s.AccommodationResult, 3),
		sampleJSON(s.RestaurantResult, 5),
		sampleJSON(s.ActivityResult, 5))

	content, err := n.generate(ctx, "budget", budgetSystem, human)
	if err == nil {
		if data, ok := jsonrepair.Parse(content); ok {
			return Update{
				OptimizedPlan: data,
				Messages:      []string{"💰 예산 최적화 완료"},
			}, nil
		}
		err = fmt.Errorf("응답 파싱 실패")
	}

	log.Printf("planner: budget optimizer failed: %v", err)
	return Update{
		OptimizedPlan: map[string]any{},
		Messages:      []string{"⚠️ 예산 최적화: 기본값 사용"},
	}, nil
}

func failedResult(agent string, err error) *AgentResult {
	return &AgentResult{
		Agent:           agent,
		Status:          StatusFailed,
		Data:            map[string]any{},
		Recommendations: []map[string]any{},
		Notes:           err.Error(),
	}
}

func successResult(agent string, data map[string]any) *AgentResult {
	return &AgentResult{
		Agent:           agent,
		Status:          StatusSuccess,
		Data:            data,
		Recommendations: recommendationList(data),
		Notes:           stringField(data, "notes"),
	}
}

func recommendationList(data map[string]any) []map[string]any {
	raw, _ := data["recommendations"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func toIndexPlaces(places []tour.Place, category PlaceCategory) []Place {
	var out []Place
	for _, p := range places {
		lat, lng, ok := p.Coords()
		if !ok {
			continue
		}
		name := p.Title
		if name == "" {
			name = "이름없음"
		}
		out = append(out, Place{
			Name:     name,
			Category: category,
			Lat:      lat,
			Lng:      lng,
			Address:  p.Address,
		})
	}
	return out
}

// sampleJSON renders the first max recommendations of a result as JSON
// for the budget prompt.
func sampleJSON(result *AgentResult, max int) string {
	if result == nil || len(result.Recommendations) == 0 {
		return "[]"
	}
	recs := result.Recommendations
	if len(recs) > max {
		recs = recs[:max]
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return "[]"
	}
	return string(b)
}
