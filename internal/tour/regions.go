package tour

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed regions.yaml
var embeddedRegions []byte

// ContentType identifies a catalog listing category.
type ContentType string

const (
	ContentAttraction    ContentType = "attraction"
	ContentCulture       ContentType = "culture"
	ContentFestival      ContentType = "festival"
	ContentLeports       ContentType = "leports"
	ContentAccommodation ContentType = "accommodation"
	ContentShopping      ContentType = "shopping"
	ContentRestaurant    ContentType = "restaurant"
)

// Table holds the static lookup data for the tourism catalog: region
// name to area code, content type to numeric ID, and theme descriptions.
type Table struct {
	Areas        map[string]string `yaml:"areas"`
	ContentTypes map[string]int    `yaml:"content_types"`
	Themes       map[string]string `yaml:"themes"`
}

// DefaultTable parses the embedded region data. The embedded copy is
// validated by tests, so a parse failure here is a build defect.
func DefaultTable() *Table {
	t, err := parseTable(embeddedRegions)
	if err != nil {
		panic(fmt.Sprintf("embedded regions.yaml is invalid: %v", err))
	}
	return t
}

// LoadTable reads a region table from path, falling back to the
// embedded copy when path is empty.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region table: %w", err)
	}
	return parseTable(data)
}

func parseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse region table: %w", err)
	}
	if len(t.Areas) == 0 || len(t.ContentTypes) == 0 {
		return nil, fmt.Errorf("region table missing areas or content_types")
	}
	return &t, nil
}

// AreaCode resolves a destination name to an area code. Matching is a
// substring check in both directions so "제주도" still resolves to 제주.
func (t *Table) AreaCode(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for area, code := range t.Areas {
		if strings.Contains(name, area) || strings.Contains(area, name) {
			return code, true
		}
	}
	return "", false
}

// ContentTypeID returns the numeric catalog ID for a content type.
func (t *Table) ContentTypeID(ct ContentType) (int, bool) {
	id, ok := t.ContentTypes[string(ct)]
	return id, ok
}

// ThemeDescription returns the human description for a theme tag, or
// the tag itself when unknown.
func (t *Table) ThemeDescription(theme string) string {
	if d, ok := t.Themes[theme]; ok {
		return d
	}
	return theme
}
