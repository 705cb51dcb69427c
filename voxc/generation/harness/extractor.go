package harness

import (
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/xeipuuv/gojsonschema"
)

// ExtractionStrategy names the method that recovered HTML from a completion.
type ExtractionStrategy int

const (
	StrategyStructuredJSON ExtractionStrategy = iota + 1
	StrategyFencedCodeBlock
	StrategyRawFallback
)

func (s ExtractionStrategy) String() string {
	switch s {
	case StrategyStructuredJSON:
		return "structured_json"
	case StrategyFencedCodeBlock:
		return "fenced_code_block"
	case StrategyRawFallback:
		return "raw_fallback"
	default:
		return "unknown"
	}
}

// ParseExtractionStrategy is the inverse of String; unknown names map to RawFallback.
func ParseExtractionStrategy(name string) ExtractionStrategy {
	switch name {
	case "structured_json":
		return StrategyStructuredJSON
	case "fenced_code_block":
		return StrategyFencedCodeBlock
	default:
		return StrategyRawFallback
	}
}

// ExtractionResult is the HTML recovered from one completion.
type ExtractionResult struct {
	HTML     string
	Strategy ExtractionStrategy
}

// Degraded reports whether the caller should warn about output quality.
func (r ExtractionResult) Degraded() bool {
	return r.Strategy == StrategyRawFallback
}

const htmlPayloadSchema = `{
	"type": "object",
	"required": ["html"],
	"properties": {
		"html": {"type": "string"}
	}
}`

// Extractor pulls a single HTML document out of an arbitrary completion,
// trying strict strategies before lenient ones.
type Extractor struct {
	fence     *regexp.Regexp
	schema    *gojsonschema.Schema
	validator *JSONValidator
}

func NewExtractor() *Extractor {
	validator := NewJSONValidator()
	schema, err := validator.CompileSchema(htmlPayloadSchema)
	if err != nil {
		panic(err)
	}

	return &Extractor{
		fence:     regexp.MustCompile("(?s)```html\\s*(.*?)```"),
		schema:    schema,
		validator: validator,
	}
}

// Extract never fails: when nothing matches, the trimmed completion is the result.
func (x *Extractor) Extract(raw string) ExtractionResult {
	if html, ok := x.structuredJSON(raw); ok {
		return ExtractionResult{HTML: html, Strategy: StrategyStructuredJSON}
	}

	if m := x.fence.FindStringSubmatch(raw); m != nil {
		return ExtractionResult{HTML: strings.TrimSpace(m[1]), Strategy: StrategyFencedCodeBlock}
	}

	return ExtractionResult{HTML: strings.TrimSpace(raw), Strategy: StrategyRawFallback}
}

func (x *Extractor) structuredJSON(raw string) (string, bool) {
	if err := x.validator.Validate(raw, x.schema); err != nil {
		return "", false
	}

	var payload struct {
		HTML string `json:"html"`
	}
	if err := sonic.UnmarshalString(raw, &payload); err != nil {
		return "", false
	}

	// The schema requires the key, so an empty page is still a structured answer.
	return strings.TrimSpace(payload.HTML), true
}
