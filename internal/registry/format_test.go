package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/gtsreg/internal/schemaengine"
)

func TestFormatValidationErrors_Messages(t *testing.T) {
	cases := []struct {
		raw  schemaengine.RawError
		want string
	}{
		{schemaengine.RawError{Keyword: "type", Params: map[string]any{"type": "string"}}, "must be string"},
		{schemaengine.RawError{Keyword: "required", Params: map[string]any{"missingProperty": "id"}}, "missing required property 'id'"},
		{schemaengine.RawError{Keyword: "additionalProperties", Params: map[string]any{"additionalProperty": "extra"}}, "must NOT have additional property 'extra'"},
		{schemaengine.RawError{Keyword: "pattern", Params: map[string]any{"pattern": "^a+$"}}, `must match pattern "^a+$"`},
		{schemaengine.RawError{Keyword: "enum", Params: map[string]any{"allowedValues": []any{"a", float64(2)}}}, "must be one of: a, 2"},
		{schemaengine.RawError{Keyword: "minimum", Params: map[string]any{"comparison": ">=", "limit": float64(1)}}, "must be >= 1"},
		{schemaengine.RawError{Keyword: "exclusiveMaximum", Params: map[string]any{"comparison": "<", "limit": 2.5}}, "must be < 2.5"},
		{schemaengine.RawError{Keyword: "minItems", Params: map[string]any{"limit": 2}}, "must NOT have fewer than 2 items"},
		{schemaengine.RawError{Keyword: "maxItems", Params: map[string]any{"limit": 3}}, "must NOT have more than 3 items"},
		{schemaengine.RawError{Keyword: "oneOf"}, "must match oneOf schema"},
		{schemaengine.RawError{Keyword: "format", Params: map[string]any{"format": "email"}}, `must match format "email"`},
		{schemaengine.RawError{Keyword: "const", Message: "value must be 'x'"}, "value must be 'x'"},
		{schemaengine.RawError{Keyword: "required", Message: "engine text"}, "engine text"},
	}
	for _, tc := range cases {
		t.Run(tc.raw.Keyword, func(t *testing.T) {
			got := FormatValidationErrors([]schemaengine.RawError{tc.raw})
			require.Len(t, got, 1)
			assert.Equal(t, tc.want, got[0].Message)
		})
	}
}

func TestFormatValidationErrors_Defaults(t *testing.T) {
	got := FormatValidationErrors([]schemaengine.RawError{{Keyword: "type", Params: map[string]any{"type": "object"}}})
	require.Len(t, got, 1)
	assert.Equal(t, "/", got[0].InstancePath)
	assert.Equal(t, "#", got[0].SchemaPath)

	got = FormatValidationErrors([]schemaengine.RawError{{InstancePath: "/a/0", SchemaPath: "#/properties/a", Keyword: "x"}})
	assert.Equal(t, "/a/0", got[0].InstancePath)
	assert.Equal(t, "#/properties/a", got[0].SchemaPath)
	assert.NotNil(t, got[0].Params)
}
