package apierr

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/kaptinlin/jsonschema"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxMessageLength bounds free-text fields when no limit is configured.
const DefaultMaxMessageLength = 4000

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRequired fails with INVALID_INPUT listing every field of obj that
// is absent, null or a blank string.
func ValidateRequired(obj map[string]any, fields ...string) error {
	var missing []string
	for _, f := range fields {
		v, ok := obj[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return New(CodeInvalidInput,
		"Missing required fields: "+strings.Join(missing, ", "),
		map[string]any{"missing": missing},
	)
}

// ValidateEmail fails with INVALID_INPUT when s is empty or not an address.
func ValidateEmail(s string) error {
	if strings.TrimSpace(s) == "" {
		return InvalidInput("Email is required")
	}
	if err := validate.Var(s, "email"); err != nil {
		return Wrap(err, CodeInvalidInput, "Invalid email format")
	}
	return nil
}

// ValidateMessage normalizes s to NFC, trims it and checks that it is
// non-empty and at most maxLen characters. It returns the normalized text.
func ValidateMessage(s string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	msg := strings.TrimSpace(norm.NFC.String(s))
	if msg == "" {
		return "", InvalidInput("Message cannot be empty")
	}
	if n := utf8.RuneCountInString(msg); n > maxLen {
		return "", New(CodeInvalidInput,
			fmt.Sprintf("Message too long (max %d characters)", maxLen),
			map[string]any{"length": n, "max": maxLen},
		)
	}
	return msg, nil
}

// Schema is a compiled JSON Schema for request payloads.
type Schema struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(raw []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	s, err := compiler.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustCompileSchema is CompileSchema that panics on error.
func MustCompileSchema(raw string) *Schema {
	s, err := CompileSchema([]byte(raw))
	if err != nil {
		panic(err)
	}
	return s
}

// Validate fails with INVALID_INPUT listing every violation in body.
func (s *Schema) Validate(body []byte) error {
	result := s.schema.ValidateJSON(body)
	if result.IsValid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors))
	for key, ev := range result.Errors {
		violations = append(violations, fmt.Sprintf("%v: %v", key, ev))
	}
	slices.Sort(violations)
	return New(CodeInvalidInput, "Request body does not match schema",
		map[string]any{"violations": violations},
	)
}

// ValidateSchema validates body against s.
func ValidateSchema(s *Schema, body []byte) error {
	if s == nil {
		return nil
	}
	return s.Validate(body)
}
