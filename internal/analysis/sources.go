package analysis

import (
	"fmt"
	"strings"

	"github.com/klytics/creditkit/internal/ai"
)

// FilterSources keeps sources that have both a title and a URI, in order.
func FilterSources(sources []ai.Source) []ai.Source {
	out := make([]ai.Source, 0, len(sources))
	for _, s := range sources {
		if strings.TrimSpace(s.Title) == "" || strings.TrimSpace(s.URI) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// RenderSources returns one "- [title](uri)" line per displayable source.
// It returns "" when nothing is displayable.
func RenderSources(sources []ai.Source) string {
	var b strings.Builder
	for _, s := range FilterSources(sources) {
		fmt.Fprintf(&b, "- [%s](%s)\n", s.Title, s.URI)
	}
	return b.String()
}
