package tour

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	listTimeout   = 15 * time.Second
	searchTimeout = 10 * time.Second
)

// Place is a single catalog entry as returned by the API.
type Place struct {
	Title     string `json:"title"`
	Address   string `json:"addr1"`
	Tel       string `json:"tel"`
	ContentID string `json:"contentid"`
	MapX      string `json:"mapx"` // longitude
	MapY      string `json:"mapy"` // latitude
}

// Coords parses the string coordinate fields. ok is false when the
// catalog entry carries no usable coordinates.
func (p Place) Coords() (lat, lng float64, ok bool) {
	if p.MapY == "" || p.MapX == "" {
		return 0, 0, false
	}
	lat, errY := strconv.ParseFloat(p.MapY, 64)
	lng, errX := strconv.ParseFloat(p.MapX, 64)
	if errY != nil || errX != nil || lat == 0 || lng == 0 {
		return 0, 0, false
	}
	return lat, lng, true
}

// Client is a REST client for the Korea Tourism Organization catalog.
// It is stateless and safe for concurrent use.
type Client struct {
	key     string
	baseURL string
	table   *Table
	http    *http.Client
}

func NewClient(key, baseURL string, table *Table) *Client {
	if table == nil {
		table = DefaultTable()
	}
	return &Client{
		key:     key,
		baseURL: baseURL,
		table:   table,
		http:    &http.Client{},
	}
}

// Table exposes the lookup table the client was built with.
func (c *Client) Table() *Table { return c.table }

// AreaBasedList fetches up to rows places of the given content type in
// an area, ordered by popularity. An unconfigured API key or unknown
// content type yields an empty result, not an error; the planner keeps
// going without real candidates.
func (c *Client) AreaBasedList(ctx context.Context, areaCode string, ct ContentType, rows int) ([]Place, error) {
	typeID, ok := c.table.ContentTypeID(ct)
	if !ok {
		log.Printf("tour: unknown content type %q", ct)
		return nil, nil
	}
	if c.key == "" {
		log.Printf("tour: API key not configured, skipping %s lookup", ct)
		return nil, nil
	}

	// The service key is pre-encoded; building the URL by hand avoids
	// double-encoding it.
	u := fmt.Sprintf("%s/areaBasedList2?serviceKey=%s", c.baseURL, c.key)
	u += "&MobileOS=ETC&MobileApp=TripMate&_type=json"
	u += fmt.Sprintf("&numOfRows=%d&pageNo=1&arrange=P", rows)
	u += fmt.Sprintf("&contentTypeId=%d&areaCode=%s", typeID, areaCode)

	return c.fetch(ctx, u, listTimeout)
}

// SearchKeyword searches the catalog by keyword, optionally scoped to
// an area and content type.
func (c *Client) SearchKeyword(ctx context.Context, keyword, areaCode string, ct ContentType, rows int) ([]Place, error) {
	if c.key == "" {
		return nil, nil
	}

	u := fmt.Sprintf("%s/searchKeyword2?serviceKey=%s", c.baseURL, c.key)
	u += "&MobileOS=ETC&MobileApp=TripMate&_type=json"
	u += fmt.Sprintf("&numOfRows=%d&pageNo=1&arrange=P", rows)
	u += "&keyword=" + url.QueryEscape(keyword)
	if areaCode != "" {
		u += "&areaCode=" + areaCode
	}
	if ct != "" {
		if typeID, ok := c.table.ContentTypeID(ct); ok {
			u += fmt.Sprintf("&contentTypeId=%d", typeID)
		}
	}

	return c.fetch(ctx, u, searchTimeout)
}

// LocationBasedList finds places near a coordinate within radius meters.
func (c *Client) LocationBasedList(ctx context.Context, lat, lng float64, radius int, ct ContentType, rows int) ([]Place, error) {
	if c.key == "" {
		return nil, nil
	}

	u := fmt.Sprintf("%s/locationBasedList2?serviceKey=%s", c.baseURL, c.key)
	u += "&MobileOS=ETC&MobileApp=TripMate&_type=json"
	u += fmt.Sprintf("&numOfRows=%d&pageNo=1&arrange=E", rows)
	u += fmt.Sprintf("&mapX=%f&mapY=%f&radius=%d", lng, lat, radius)
	if ct != "" {
		if typeID, ok := c.table.ContentTypeID(ct); ok {
			u += fmt.Sprintf("&contentTypeId=%d", typeID)
		}
	}

	return c.fetch(ctx, u, searchTimeout)
}

func (c *Client) fetch(ctx context.Context, rawURL string, timeout time.Duration) ([]Place, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build tour request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tour request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tour response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tour API status %d", resp.StatusCode)
	}

	return decodePlaces(body)
}

// The catalog wraps results several levels deep and is loose with
// types: "items" is an empty string when there are no results, and
// "item" is a bare object instead of an array for a single result.
func decodePlaces(body []byte) ([]Place, error) {
	var envelope struct {
		Response struct {
			Body struct {
				Items json.RawMessage `json:"items"`
			} `json:"body"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode tour response: %w", err)
	}

	raw := envelope.Response.Body.Items
	if len(raw) == 0 || string(raw) == `""` || string(raw) == "null" {
		return nil, nil
	}

	var items struct {
		Item json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode tour items: %w", err)
	}
	if len(items.Item) == 0 {
		return nil, nil
	}

	var places []Place
	if err := json.Unmarshal(items.Item, &places); err == nil {
		return places, nil
	}

	var single Place
	if err := json.Unmarshal(items.Item, &single); err != nil {
		return nil, fmt.Errorf("decode tour item: %w", err)
	}
	return []Place{single}, nil
}
