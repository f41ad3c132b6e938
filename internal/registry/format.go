package registry

import (
	"fmt"
	"strings"

	"github.com/starford/gtsreg/internal/gts"
	"github.com/starford/gtsreg/internal/schemaengine"
)

// FormatValidationErrors turns raw engine errors into validation errors with
// readable messages. Keywords without a dedicated message keep the engine's.
func FormatValidationErrors(raw []schemaengine.RawError) []gts.ValidationError {
	out := make([]gts.ValidationError, 0, len(raw))
	for _, e := range raw {
		ve := gts.ValidationError{
			InstancePath: e.InstancePath,
			SchemaPath:   e.SchemaPath,
			Keyword:      e.Keyword,
			Message:      formatMessage(e),
			Params:       e.Params,
			Data:         e.Data,
		}
		if ve.InstancePath == "" {
			ve.InstancePath = "/"
		}
		if ve.SchemaPath == "" {
			ve.SchemaPath = "#"
		}
		if ve.Params == nil {
			ve.Params = map[string]any{}
		}
		out = append(out, ve)
	}
	return out
}

func formatMessage(e schemaengine.RawError) string {
	p := e.Params
	switch e.Keyword {
	case "type":
		if t, ok := p["type"]; ok {
			return fmt.Sprintf("must be %v", t)
		}
	case "required":
		if name, ok := p["missingProperty"]; ok {
			return fmt.Sprintf("missing required property '%v'", name)
		}
	case "additionalProperties":
		if name, ok := p["additionalProperty"]; ok {
			return fmt.Sprintf("must NOT have additional property '%v'", name)
		}
	case "pattern":
		if pat, ok := p["pattern"]; ok {
			return fmt.Sprintf("must match pattern %q", fmt.Sprint(pat))
		}
	case "enum":
		if vals, ok := p["allowedValues"].([]any); ok {
			parts := make([]string, len(vals))
			for i, v := range vals {
				parts[i] = fmt.Sprint(v)
			}
			return "must be one of: " + strings.Join(parts, ", ")
		}
	case "minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum":
		cmp, ok1 := p["comparison"]
		limit, ok2 := p["limit"]
		if ok1 && ok2 {
			return fmt.Sprintf("must be %v %v", cmp, limit)
		}
	case "minItems":
		if limit, ok := p["limit"]; ok {
			return fmt.Sprintf("must NOT have fewer than %v items", limit)
		}
	case "maxItems":
		if limit, ok := p["limit"]; ok {
			return fmt.Sprintf("must NOT have more than %v items", limit)
		}
	case "anyOf", "oneOf", "allOf":
		return fmt.Sprintf("must match %s schema", e.Keyword)
	case "format":
		if f, ok := p["format"]; ok {
			return fmt.Sprintf("must match format %q", fmt.Sprint(f))
		}
	}
	return e.Message
}
