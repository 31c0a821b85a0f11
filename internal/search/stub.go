package search

import (
	"context"
	"fmt"
	"strings"
)

// StubProvider synthesizes deterministic placeholder results. Used when no
// live provider is configured and as the fallback behind one.
type StubProvider struct{}

type stubTemplate struct {
	titlePrefix string
	titleLimit  int
	kind        string
	content     string
}

var stubTemplates = []stubTemplate{
	{
		titlePrefix: "Research Article: ",
		titleLimit:  50,
		kind:        "research",
		content:     "This article discusses %s. It surveys several perspectives on the topic, recent developments and expert commentary, and points to implications for stakeholders along with open areas for investigation.",
	},
	{
		titlePrefix: "Expert Analysis on ",
		titleLimit:  40,
		kind:        "analysis",
		content:     "Practitioners share their view of %s. The analysis covers current trends, challenges and opportunities, and notes that outcomes vary with local conditions and implementation choices.",
	},
	{
		titlePrefix: "Market Report: ",
		titleLimit:  45,
		kind:        "market-report",
		content:     "A market-level look at %s. The report examines the competitive landscape, regulatory context and growth projections, with metrics that indicate both risks and potential rewards.",
	},
	{
		titlePrefix: "Case Study: ",
		titleLimit:  50,
		kind:        "case-study",
		content:     "A real-world case study of %s. It walks through practical examples and lessons learned, and shows how much results depend on planning and risk assessment.",
	},
	{
		titlePrefix: "Technical Overview: ",
		titleLimit:  45,
		kind:        "technical",
		content:     "Technical background on %s. The overview covers implementation requirements, infrastructure needs and the theoretical foundations behind practical applications.",
	},
}

func (StubProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slug := truncateRunes(strings.ReplaceAll(query, " ", "-"), 30)
	results := make([]Result, 0, len(stubTemplates))
	for _, tmpl := range stubTemplates {
		results = append(results, Result{
			Title:   tmpl.titlePrefix + truncateRunes(query, tmpl.titleLimit),
			URL:     fmt.Sprintf("https://example.com/%s/%s", tmpl.kind, slug),
			Content: fmt.Sprintf(tmpl.content, query),
		})
	}
	if maxResults >= 0 && maxResults < len(results) {
		results = results[:maxResults]
	}
	return results, nil
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
