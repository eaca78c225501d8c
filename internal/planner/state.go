package planner

import (
	"github.com/daeho/tripmate/internal/tour"
)

// Requirements describes the trip being planned. It is immutable for
// the whole run except AreaCode, which the coordinator resolves once.
type Requirements struct {
	Destination     string   `json:"destination"`
	AreaCode        string   `json:"areaCode,omitempty"`
	StartDate       string   `json:"startDate"`
	EndDate         string   `json:"endDate"`
	Budget          int      `json:"budget"`
	Travelers       int      `json:"travelers"`
	Preferences     []string `json:"preferences"`
	SpecialRequests string   `json:"specialRequests,omitempty"`
}

// Status is the lifecycle state of a specialist result.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// AgentResult is one specialist's contribution. Data and
// Recommendations are opaque payloads whose shape is specialist
// specific; downstream stages only read the "name" field.
type AgentResult struct {
	Agent           string           `json:"agent"`
	Status          Status           `json:"status"`
	Data            map[string]any   `json:"data"`
	Recommendations []map[string]any `json:"recommendations"`
	Notes           string           `json:"notes"`
}

func pendingResult(agent string) AgentResult {
	return AgentResult{
		Agent:           agent,
		Status:          StatusPending,
		Data:            map[string]any{},
		Recommendations: []map[string]any{},
		Notes:           "",
	}
}

// PlaceCategory keys the places index. It is a closed enumeration;
// adding a category means updating ContentType and ItemType.Category.
type PlaceCategory string

const (
	CategoryAccommodation PlaceCategory = "accommodation"
	CategoryRestaurant    PlaceCategory = "restaurant"
	CategoryActivity      PlaceCategory = "activity"
)

// allCategories fixes the scan order of the cross-category coordinate
// fallback so enrichment is deterministic.
var allCategories = []PlaceCategory{CategoryActivity, CategoryRestaurant, CategoryAccommodation}

// ContentType maps a category to the catalog listing it is fetched from.
func (c PlaceCategory) ContentType() tour.ContentType {
	switch c {
	case CategoryAccommodation:
		return tour.ContentAccommodation
	case CategoryRestaurant:
		return tour.ContentRestaurant
	case CategoryActivity:
		return tour.ContentAttraction
	}
	return ""
}

// ItemType tags a schedule item with what kind of stop it is.
type ItemType string

const (
	ItemAttraction    ItemType = "ATTRACTION"
	ItemActivity      ItemType = "ACTIVITY"
	ItemRestaurant    ItemType = "RESTAURANT"
	ItemAccommodation ItemType = "ACCOMMODATION"
	ItemTransport     ItemType = "TRANSPORT"
)

// Category maps an item type to the index category it is geocoded
// from. ok is false for TRANSPORT and unrecognized tags, which are
// never geocoded.
func (t ItemType) Category() (PlaceCategory, bool) {
	switch t {
	case ItemAttraction, ItemActivity:
		return CategoryActivity, true
	case ItemRestaurant:
		return CategoryRestaurant, true
	case ItemAccommodation:
		return CategoryAccommodation, true
	default:
		return "", false
	}
}

// Place is a geocoded catalog entry kept for coordinate enrichment.
// Only entries with usable coordinates enter the index.
type Place struct {
	Name     string        `json:"name"`
	Category PlaceCategory `json:"category"`
	Lat      float64       `json:"lat"`
	Lng      float64       `json:"lng"`
	Address  string        `json:"address,omitempty"`
}

// ScheduleItem is one stop in a day plan. Lat/Lng stay null when
// enrichment found no matching place.
type ScheduleItem struct {
	Time        string   `json:"time"`
	Type        ItemType `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
}

// ScheduleDay is one day of the final itinerary.
type ScheduleDay struct {
	Day   int            `json:"day"`
	Date  string         `json:"date,omitempty"`
	Theme string         `json:"theme"`
	Items []ScheduleItem `json:"items"`
}

// Workflow phases.
const (
	PhaseInitializing       = "initializing"
	PhaseSpecialistAnalysis = "specialist_analysis"
	PhaseComplete           = "complete"
)

// State is the shared record threaded through every node of a planning
// run. Errors and Messages are append-only logs; everything else is
// last-writer-wins (see Apply).
type State struct {
	Requirements        Requirements              `json:"requirements"`
	TransportResult     *AgentResult              `json:"transportResult"`
	AccommodationResult *AgentResult              `json:"accommodationResult"`
	RestaurantResult    *AgentResult              `json:"restaurantResult"`
	ActivityResult      *AgentResult              `json:"activityResult"`
	Places              map[PlaceCategory][]Place `json:"places"`
	OptimizedPlan       map[string]any            `json:"optimizedPlan"`
	FinalSchedule       []ScheduleDay             `json:"finalSchedule"`
	Phase               string                    `json:"phase"`
	Errors              []string                  `json:"errors"`
	Messages            []string                  `json:"messages"`
}

// Update is a node's partial contribution to the state. Nil fields
// mean "no change"; Places carries only the categories the node owns;
// Errors and Messages are increments to append.
type Update struct {
	Requirements        *Requirements
	TransportResult     *AgentResult
	AccommodationResult *AgentResult
	RestaurantResult    *AgentResult
	ActivityResult      *AgentResult
	Places              map[PlaceCategory][]Place
	OptimizedPlan       map[string]any
	FinalSchedule       []ScheduleDay
	Phase               string
	Errors              []string
	Messages            []string
}

// Apply is the state reducer. Replacement is per field; the two
// log-like fields concatenate instead, preserving emission order. The
// places index is copied on write so earlier checkpoints never see
// later category writes, and a node only ever replaces its own
// category's list.
func Apply(s State, u Update) State {
	if u.Requirements != nil {
		s.Requirements = *u.Requirements
	}
	if u.TransportResult != nil {
		s.TransportResult = u.TransportResult
	}
	if u.AccommodationResult != nil {
		s.AccommodationResult = u.AccommodationResult
	}
	if u.RestaurantResult != nil {
		s.RestaurantResult = u.RestaurantResult
	}
	if u.ActivityResult != nil {
		s.ActivityResult = u.ActivityResult
	}
	if len(u.Places) > 0 {
		merged := make(map[PlaceCategory][]Place, len(s.Places)+len(u.Places))
		for k, v := range s.Places {
			merged[k] = v
		}
		for k, v := range u.Places {
			merged[k] = v
		}
		s.Places = merged
	}
	if u.OptimizedPlan != nil {
		s.OptimizedPlan = u.OptimizedPlan
	}
	if u.FinalSchedule != nil {
		s.FinalSchedule = u.FinalSchedule
	}
	if u.Phase != "" {
		s.Phase = u.Phase
	}
	s.Errors = append(s.Errors, u.Errors...)
	s.Messages = append(s.Messages, u.Messages...)
	return s
}
