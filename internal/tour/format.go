package tour

import (
	"fmt"
	"strings"
)

// FormatForPrompt renders a candidate list as the compact numbered
// listing embedded in specialist prompts.
func FormatForPrompt(places []Place, max int) string {
	if len(places) == 0 {
		return "검색 결과 없음"
	}
	if len(places) > max {
		places = places[:max]
	}

	var b strings.Builder
	for i, p := range places {
		title := p.Title
		if title == "" {
			title = "이름없음"
		}
		fmt.Fprintf(&b, "%d. %s", i+1, title)
		if p.Address != "" {
			fmt.Fprintf(&b, " - %s", p.Address)
		}
		if p.Tel != "" {
			fmt.Fprintf(&b, " (Tel: %s)", p.Tel)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FilterWithCoords keeps at most max places that carry usable
// coordinates. These feed the coordinate enrichment step.
func FilterWithCoords(places []Place, max int) []Place {
	if len(places) > max {
		places = places[:max]
	}
	var out []Place
	for _, p := range places {
		if _, _, ok := p.Coords(); ok {
			out = append(out, p)
		}
	}
	return out
}
