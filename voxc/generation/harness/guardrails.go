package harness

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const maxSanitizedLength = 512

// Guardrails bounds completion size and masks secrets before text leaves the process.
type Guardrails struct {
	maxOutputSize int              // 0 disables the size check
	outputFilters []*regexp.Regexp // regex patterns masked by SanitizeOutput
	jsonValidator *JSONValidator   // for schema validation
}

// DefaultGuardrails returns guardrails with only the built-in redaction patterns.
func DefaultGuardrails(maxOutputSize int) *Guardrails {
	return &Guardrails{
		maxOutputSize: maxOutputSize,
		outputFilters: []*regexp.Regexp{
			regexp.MustCompile(`(?i)password[:=]\s*\S+`),
			regexp.MustCompile(`(?i)api[_-]?key[:=]\s*\S+`),
			regexp.MustCompile(`(?i)secret[:=]\s*\S+`),
			regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`),
			regexp.MustCompile(`\b(sk|gsk)[-_][A-Za-z0-9_\-]{8,}`),
		},
		jsonValidator: NewJSONValidator(),
	}
}

// NewGuardrails creates guardrails with default redaction patterns plus any extra ones.
func NewGuardrails(maxOutputSize int, extraPatterns ...string) (*Guardrails, error) {
	g := DefaultGuardrails(maxOutputSize)

	for _, p := range extraPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
		g.outputFilters = append(g.outputFilters, re)
	}

	return g, nil
}

// ValidateOutputSize checks if a completion is within limits.
func (g *Guardrails) ValidateOutputSize(output string) error {
	if g.maxOutputSize > 0 && len(output) > g.maxOutputSize {
		return fmt.Errorf("output size %d exceeds maximum %d", len(output), g.maxOutputSize)
	}
	return nil
}

// ValidateJSON validates a JSON document against a schema.
func (g *Guardrails) ValidateJSON(data string, schema *gojsonschema.Schema) error {
	return g.jsonValidator.Validate(data, schema)
}

// SanitizeOutput masks sensitive information and truncates collaborator text
// before it is shown to a client.
func (g *Guardrails) SanitizeOutput(output string) string {
	sanitized := output

	for _, filter := range g.outputFilters {
		sanitized = filter.ReplaceAllString(sanitized, "[REDACTED]")
	}

	if len(sanitized) > maxSanitizedLength {
		sanitized = strings.ToValidUTF8(sanitized[:maxSanitizedLength], "") + "…"
	}

	return sanitized
}

// JSONValidator handles JSON schema validation.
type JSONValidator struct{}

// NewJSONValidator creates a new JSON validator.
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{}
}

// CompileSchema parses a JSON schema once so it can be reused per call.
func (v *JSONValidator) CompileSchema(schema string) (*gojsonschema.Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return compiled, nil
}

// Validate checks if JSON data conforms to a schema. Malformed JSON is an error.
func (v *JSONValidator) Validate(data string, schema *gojsonschema.Schema) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
