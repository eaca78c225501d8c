package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/daeho/tripmate/internal/tour"
)

// TourSource is the slice of the tour client the lookup tools need.
type TourSource interface {
	AreaBasedList(ctx context.Context, areaCode string, ct tour.ContentType, rows int) ([]tour.Place, error)
	SearchKeyword(ctx context.Context, keyword, areaCode string, ct tour.ContentType, rows int) ([]tour.Place, error)
	LocationBasedList(ctx context.Context, lat, lng float64, radius int, ct tour.ContentType, rows int) ([]tour.Place, error)
}

// RegisterTourTools wires the full catalog toolset into a registry.
func RegisterTourTools(r *Registry, client TourSource, table *tour.Table) {
	r.Register(&AreaCodeTool{table: table})
	r.Register(NewKeywordSearchTool(client, "search_attractions", "관광지", tour.ContentAttraction,
		"관광지를 검색합니다. 키워드 예: 해변, 산, 공원, 전망대"))
	r.Register(NewKeywordSearchTool(client, "search_restaurants", "맛집", tour.ContentRestaurant,
		"맛집/음식점을 검색합니다. 키워드 예: 해산물, 고기, 한식, 카페"))
	r.Register(NewKeywordSearchTool(client, "search_accommodations", "숙소", tour.ContentAccommodation,
		"숙소를 검색합니다. 키워드 예: 호텔, 펜션, 리조트, 게스트하우스"))
	r.Register(NewKeywordSearchTool(client, "search_activities", "액티비티", tour.ContentLeports,
		"레포츠/액티비티를 검색합니다. 키워드 예: 서핑, 스키, 래프팅, 골프"))
	r.Register(&PopularPlacesTool{client: client})
	r.Register(&NearbyPlacesTool{client: client})
}

// AreaCodeTool resolves a region name to its catalog area code.
type AreaCodeTool struct {
	table *tour.Table
}

func (t *AreaCodeTool) Name() string { return "get_area_code" }

func (t *AreaCodeTool) Description() string {
	return "지역명으로 지역 코드를 조회합니다. 다른 검색 도구에 지역 코드를 넘길 때 먼저 호출하세요."
}

func (t *AreaCodeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"area_name": map[string]any{
				"type":        "string",
				"description": "지역명 (예: 서울, 부산, 제주, 강원)",
			},
		},
		"required": []string{"area_name"},
	}
}

func (t *AreaCodeTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		AreaName string `json:"area_name"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	if code, ok := t.table.AreaCode(args.AreaName); ok {
		return fmt.Sprintf("지역코드: %s (지역명: %s)", code, args.AreaName), nil
	}

	available := make([]string, 0, len(t.table.Areas))
	for name := range t.table.Areas {
		available = append(available, name)
	}
	return fmt.Sprintf("'%s' 지역을 찾을 수 없습니다. 사용 가능한 지역: %s",
		args.AreaName, strings.Join(available, ", ")), nil
}

// KeywordSearchTool searches one content type of the catalog by keyword.
type KeywordSearchTool struct {
	client      TourSource
	name        string
	label       string
	contentType tour.ContentType
	description string
}

func NewKeywordSearchTool(client TourSource, name, label string, ct tour.ContentType, description string) *KeywordSearchTool {
	return &KeywordSearchTool{
		client:      client,
		name:        name,
		label:       label,
		contentType: ct,
		description: description,
	}
}

func (t *KeywordSearchTool) Name() string        { return t.name }
func (t *KeywordSearchTool) Description() string { return t.description }

func (t *KeywordSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"keyword": map[string]any{
				"type":        "string",
				"description": "검색 키워드",
			},
			"area_code": map[string]any{
				"type":        "string",
				"description": "지역 코드 (get_area_code로 조회, 선택사항)",
			},
			"num_of_rows": map[string]any{
				"type":        "integer",
				"description": "검색 결과 개수 (기본 5개)",
			},
		},
		"required": []string{"keyword"},
	}
}

func (t *KeywordSearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Keyword   string `json:"keyword"`
		AreaCode  string `json:"area_code"`
		NumOfRows int    `json:"num_of_rows"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.NumOfRows <= 0 {
		args.NumOfRows = 5
	}

	places, err := t.client.SearchKeyword(ctx, args.Keyword, args.AreaCode, t.contentType, args.NumOfRows)
	if err != nil {
		return "", fmt.Errorf("%s 검색 실패: %w", t.label, err)
	}
	if len(places) == 0 {
		return fmt.Sprintf("'%s' 관련 %s를 찾을 수 없습니다.", args.Keyword, t.label), nil
	}
	return formatPlaces(places, t.label), nil
}

// PopularPlacesTool lists an area's most popular places of a given type.
type PopularPlacesTool struct {
	client TourSource
}

func (t *PopularPlacesTool) Name() string { return "get_popular_places" }

func (t *PopularPlacesTool) Description() string {
	return "특정 지역의 인기 장소를 조회합니다. place_type: attraction, restaurant, accommodation, activity"
}

func (t *PopularPlacesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"area_code": map[string]any{
				"type":        "string",
				"description": "지역 코드 (get_area_code로 조회)",
			},
			"place_type": map[string]any{
				"type":        "string",
				"description": "장소 유형 (attraction/restaurant/accommodation/activity, 기본 attraction)",
			},
			"num_of_rows": map[string]any{
				"type":        "integer",
				"description": "결과 개수 (기본 10개)",
			},
		},
		"required": []string{"area_code"},
	}
}

func (t *PopularPlacesTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		AreaCode  string `json:"area_code"`
		PlaceType string `json:"place_type"`
		NumOfRows int    `json:"num_of_rows"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.NumOfRows <= 0 {
		args.NumOfRows = 10
	}

	ct, label := placeTypeContent(args.PlaceType)
	places, err := t.client.AreaBasedList(ctx, args.AreaCode, ct, args.NumOfRows)
	if err != nil {
		return "", fmt.Errorf("인기 장소 조회 실패: %w", err)
	}
	if len(places) == 0 {
		return fmt.Sprintf("해당 지역의 %s 정보를 찾을 수 없습니다.", label), nil
	}
	return formatPlaces(places, "인기 "+label), nil
}

// NearbyPlacesTool searches around a coordinate.
type NearbyPlacesTool struct {
	client TourSource
}

func (t *NearbyPlacesTool) Name() string { return "get_nearby_places" }

func (t *NearbyPlacesTool) Description() string {
	return "특정 위치 주변의 장소를 검색합니다."
}

func (t *NearbyPlacesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"latitude": map[string]any{
				"type":        "number",
				"description": "위도 (예: 33.4996)",
			},
			"longitude": map[string]any{
				"type":        "number",
				"description": "경도 (예: 126.5312)",
			},
			"place_type": map[string]any{
				"type":        "string",
				"description": "장소 유형 (attraction/restaurant/accommodation, 기본 attraction)",
			},
			"radius": map[string]any{
				"type":        "integer",
				"description": "검색 반경 미터 (기본 5000m)",
			},
		},
		"required": []string{"latitude", "longitude"},
	}
}

func (t *NearbyPlacesTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		PlaceType string  `json:"place_type"`
		Radius    int     `json:"radius"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.Radius <= 0 {
		args.Radius = 5000
	}

	ct, label := placeTypeContent(args.PlaceType)
	places, err := t.client.LocationBasedList(ctx, args.Latitude, args.Longitude, args.Radius, ct, 5)
	if err != nil {
		return "", fmt.Errorf("주변 장소 검색 실패: %w", err)
	}
	if len(places) == 0 {
		return fmt.Sprintf("주변 %dm 내에 %s을(를) 찾을 수 없습니다.", args.Radius, label), nil
	}
	return formatPlaces(places, fmt.Sprintf("주변 %dm 내 %s", args.Radius, label)), nil
}

func placeTypeContent(placeType string) (tour.ContentType, string) {
	switch placeType {
	case "restaurant":
		return tour.ContentRestaurant, "맛집"
	case "accommodation":
		return tour.ContentAccommodation, "숙소"
	case "activity":
		return tour.ContentLeports, "액티비티"
	default:
		return tour.ContentAttraction, "관광지"
	}
}

// formatPlaces renders results including coordinates; the schedule
// stage downstream copies these coordinates into the itinerary.
func formatPlaces(places []tour.Place, label string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "검색된 %s (%d개):", label, len(places))
	for i, p := range places {
		title := p.Title
		if title == "" {
			title = "이름없음"
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, title)
		addr := p.Address
		if addr == "" {
			addr = "주소없음"
		}
		fmt.Fprintf(&b, "\n   주소: %s", addr)
		if p.ContentID != "" {
			fmt.Fprintf(&b, "\n   콘텐츠ID: %s", p.ContentID)
		}
		if lat, lng, ok := p.Coords(); ok {
			fmt.Fprintf(&b, "\n   좌표: (%g, %g)", lat, lng)
		}
	}
	return b.String()
}
