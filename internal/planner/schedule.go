package planner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/daeho/tripmate/internal/jsonrepair"
	"github.com/daeho/tripmate/internal/observability"
)

const scheduleRetries = 2 // 3 attempts total

const scheduleSystem = `여행 일정 전문가입니다. 반드시 유효한 JSON만 출력하세요.
형식:
{"schedule":[{"day":1,"theme":"테마","items":[{"time":"09:00","type":"ATTRACTION","name":"장소명","description":"설명"}]}]}

규칙:
- 문자열은 반드시 큰따옴표 사용
- 마지막 항목 뒤에 쉼표 금지
- 중요: 같은 맛집이나 관광지가 전체 일정에서 2번 이상 반복 금지!`

// Synthesizer builds the final day-by-day itinerary from the
// specialists' recommendations. It is the only stage with retries, and
// the only one with a deterministic fallback.
type Synthesizer struct {
	llm    llms.Model
	logger *observability.Logger
	now    func() time.Time
}

func NewSynthesizer(llm llms.Model, logger *observability.Logger) *Synthesizer {
	return &Synthesizer{llm: llm, logger: logger, now: time.Now}
}

// Generate is the terminal stage node.
func (sy *Synthesizer) Generate(ctx context.Context, s State) (Update, error) {
	req := s.Requirements
	start, days := tripSpan(req.StartDate, req.EndDate, sy.now)

	accNames := recommendationNames(s.AccommodationResult, 3)
	restNames := recommendationNames(s.RestaurantResult, 8)
	actNames := recommendationNames(s.ActivityResult, 8)

	human := fmt.Sprintf(`목적지: %s, 기간: %d일

사용할 장소:
- 숙소: %s
- 맛집: %s
- 관광지: %s

%d일 일정을 JSON으로 만들어주세요.
각 일자에 아침(09:00), 점심(12:00), 오후(14:00), 저녁(18:00) 일정.
각 장소는 전체 일정에서 한 번만 사용!`,
		req.Destination, days,
		namesOrDefault(accNames, "추천 숙소"),
		namesOrDefault(restNames, "추천 맛집"),
		namesOrDefault(actNames, "추천 관광지"),
		days)

	for attempt := 0; attempt <= scheduleRetries; attempt++ {
		schedule, ok := sy.tryGenerate(ctx, human)
		if ok {
			sy.logger.LogSchedule(sessionFrom(ctx), days, false)
			return Update{
				FinalSchedule: EnrichCoordinates(schedule, s.Places),
				Phase:         PhaseComplete,
				Messages: []string{
					"📋 최종 일정 생성 완료",
					fmt.Sprintf("✅ %s %d일 여행 계획 완성!", req.Destination, days),
				},
			}, nil
		}
		log.Printf("planner: schedule generation attempt %d failed", attempt+1)
	}

	// All AI attempts exhausted: build the deterministic fallback.
	log.Printf("planner: using fallback schedule")
	fallback := buildFallbackSchedule(req.Destination, days, start, restNames, actNames)
	sy.logger.LogSchedule(sessionFrom(ctx), days, true)

	return Update{
		FinalSchedule: EnrichCoordinates(fallback, s.Places),
		Phase:         PhaseComplete,
		Messages: []string{
			"📋 기본 일정 생성 완료",
			fmt.Sprintf("✅ %s %d일 여행 계획 완성!", req.Destination, days),
		},
	}, nil
}

func (sy *Synthesizer) tryGenerate(ctx context.Context, human string) ([]ScheduleDay, bool) {
	callCtx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(scheduleSystem)}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(human)}},
	}
	resp, err := sy.llm.GenerateContent(callCtx, messages, llms.WithTemperature(0.7))
	if err != nil {
		log.Printf("planner: schedule generation error: %v", err)
		return nil, false
	}
	if len(resp.Choices) == 0 {
		return nil, false
	}
	content := resp.Choices[0].Content
	sy.logger.LogLLM(sessionFrom(ctx), "schedule", human, content)

	var parsed struct {
		Schedule []ScheduleDay `json:"schedule"`
	}
	if !jsonrepair.Decode(content, &parsed) || len(parsed.Schedule) == 0 {
		return nil, false
	}
	return parsed.Schedule, true
}

// tripSpan computes the inclusive day count. Unparsable dates degrade
// to a 3-day trip anchored at the current date.
func tripSpan(startDate, endDate string, now func() time.Time) (time.Time, int) {
	start, err1 := time.Parse("2006-01-02", startDate)
	end, err2 := time.Parse("2006-01-02", endDate)
	if err1 != nil || err2 != nil || end.Before(start) {
		return now(), 3
	}
	days := int(end.Sub(start).Hours()/24) + 1
	return start, days
}

func recommendationNames(result *AgentResult, max int) []string {
	if result == nil {
		return nil
	}
	var names []string
	for _, rec := range result.Recommendations {
		if len(names) >= max {
			break
		}
		if name, ok := rec["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

func namesOrDefault(names []string, def string) string {
	if len(names) == 0 {
		return def
	}
	return strings.Join(names, ", ")
}

// buildFallbackSchedule assembles one day at a time from fixed slots,
// draining each category's queue so no real place repeats. Exhausted
// queues yield destination placeholders, which may repeat.
func buildFallbackSchedule(destination string, days int, start time.Time, restNames, actNames []string) []ScheduleDay {
	restQueue := append([]string(nil), restNames...)
	actQueue := append([]string(nil), actNames...)

	next := func(queue *[]string, def string) string {
		if len(*queue) == 0 {
			return def
		}
		head := (*queue)[0]
		*queue = (*queue)[1:]
		return head
	}

	schedule := make([]ScheduleDay, 0, days)
	for day := 1; day <= days; day++ {
		date := start.AddDate(0, 0, day-1).Format("2006-01-02")
		items := []ScheduleItem{
			{Time: "09:00", Type: ItemAttraction, Name: next(&actQueue, destination+" 관광지"), Description: "오전 관광"},
			{Time: "12:00", Type: ItemRestaurant, Name: next(&restQueue, destination+" 맛집"), Description: "점심 식사"},
			{Time: "14:00", Type: ItemAttraction, Name: next(&actQueue, destination+" 명소"), Description: "오후 관광"},
			{Time: "18:00", Type: ItemRestaurant, Name: next(&restQueue, destination+" 식당"), Description: "저녁 식사"},
		}
		schedule = append(schedule, ScheduleDay{
			Day:   day,
			Date:  date,
			Theme: fmt.Sprintf("Day %d", day),
			Items: items,
		})
	}
	return schedule
}

// EnrichCoordinates resolves each item's coordinates against the
// places index: the item's own category first, then every category,
// matching on a case-sensitive substring in either direction. The
// generator may lightly reword a real place name, hence the fuzz. No
// match leaves the coordinates null.
func EnrichCoordinates(schedule []ScheduleDay, places map[PlaceCategory][]Place) []ScheduleDay {
	for di := range schedule {
		for ii := range schedule[di].Items {
			item := &schedule[di].Items[ii]
			item.Lat, item.Lng = findCoordinates(item.Name, item.Type, places)
		}
	}
	return schedule
}

func findCoordinates(name string, itemType ItemType, places map[PlaceCategory][]Place) (*float64, *float64) {
	category, ok := itemType.Category()
	if !ok {
		// TRANSPORT and unknown tags are never geocoded.
		return nil, nil
	}

	if lat, lng, found := matchIn(places[category], name); found {
		return lat, lng
	}

	for _, cat := range allCategories {
		if cat == category {
			continue
		}
		if lat, lng, found := matchIn(places[cat], name); found {
			return lat, lng
		}
	}
	return nil, nil
}

func matchIn(entries []Place, name string) (*float64, *float64, bool) {
	if name == "" {
		return nil, nil, false
	}
	for _, p := range entries {
		if p.Name == "" {
			continue
		}
		if strings.Contains(name, p.Name) || strings.Contains(p.Name, name) {
			lat, lng := p.Lat, p.Lng
			return &lat, &lng, true
		}
	}
	return nil, nil, false
}
