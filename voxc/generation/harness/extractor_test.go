package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractor_Extract(t *testing.T) {
	x := NewExtractor()

	tests := []struct {
		name     string
		raw      string
		html     string
		strategy ExtractionStrategy
	}{
		{
			name:     "structured json",
			raw:      `{"html": "<div>x</div>"}`,
			html:     "<div>x</div>",
			strategy: StrategyStructuredJSON,
		},
		{
			name:     "fenced block only",
			raw:      "```html\n<p>y</p>\n```",
			html:     "<p>y</p>",
			strategy: StrategyFencedCodeBlock,
		},
		{
			name:     "fenced block with chatter",
			raw:      "Sure! Here you go:\n```html\n<main>hi</main>\n```\nLet me know.",
			html:     "<main>hi</main>",
			strategy: StrategyFencedCodeBlock,
		},
		{
			name:     "json without html falls through to fence",
			raw:      "{\"page\": 1}\n```html\n<p>z</p>\n```",
			html:     "<p>z</p>",
			strategy: StrategyFencedCodeBlock,
		},
		{
			name:     "json with non-string html",
			raw:      `{"html": 42}`,
			html:     `{"html": 42}`,
			strategy: StrategyRawFallback,
		},
		{
			name:     "json with blank html",
			raw:      `{"html": "  "}`,
			html:     "",
			strategy: StrategyStructuredJSON,
		},
		{
			name:     "json with empty html",
			raw:      `{"html": ""}`,
			html:     "",
			strategy: StrategyStructuredJSON,
		},
		{
			name:     "plain text",
			raw:      "sorry, out of domain",
			html:     "sorry, out of domain",
			strategy: StrategyRawFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := x.Extract(tt.raw)
			assert.Equal(t, tt.html, res.HTML)
			assert.Equal(t, tt.strategy, res.Strategy)
			assert.Equal(t, tt.strategy == StrategyRawFallback, res.Degraded())
		})
	}
}

func TestExtractionStrategy_RoundTripsNames(t *testing.T) {
	for _, s := range []ExtractionStrategy{StrategyStructuredJSON, StrategyFencedCodeBlock, StrategyRawFallback} {
		assert.Equal(t, s, ParseExtractionStrategy(s.String()))
	}
	assert.Equal(t, StrategyRawFallback, ParseExtractionStrategy("bogus"))
	assert.Equal(t, "unknown", ExtractionStrategy(0).String())
}
