package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PlainJSON(t *testing.T) {
	r, err := Parse([]byte(`{"id": "gts.x.core.events.type.v1~", "n": 2}`))
	require.NoError(t, err)
	m, ok := r.Value.(map[string]any)
	require.True(t, ok, "value = %T, want map", r.Value)
	assert.Equal(t, "gts.x.core.events.type.v1~", m["id"])
	assert.Equal(t, float64(2), m["n"])
}

func TestParse_CommentsAndTrailingCommas(t *testing.T) {
	input := "{\n  // line comment\n  \"a\": 1, /* block */\n  \"b\": [1, 2,],\n}\n"
	r, err := Parse([]byte(input))
	require.NoError(t, err)
	assert.Len(t, r.Value.(map[string]any), 2)
	require.Len(t, r.Standard, len(input))
	// Offsets must survive comment stripping.
	assert.Equal(t, strings.Index(input, `"b"`), strings.Index(string(r.Standard), `"b"`))
	assert.NotContains(t, string(r.Standard), "//", "line comment not stripped")
}

func TestParse_DoesNotMutateInput(t *testing.T) {
	input := []byte("{/* c */\"a\": 1}")
	orig := string(input)
	_, err := Parse(input)
	require.NoError(t, err)
	assert.Equal(t, orig, string(input))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"a": `))
	assert.Error(t, err, "truncated document")
}

func TestIsCandidate(t *testing.T) {
	cases := map[string]bool{
		"a.json":          true,
		"dir/b.JSONC":     true,
		"events.gts":      true,
		"readme.md":       false,
		"noext":           false,
		"schema.json.bak": false,
	}
	for p, want := range cases {
		assert.Equal(t, want, IsCandidate(p, nil), "IsCandidate(%q)", p)
	}
	assert.False(t, IsCandidate("a.json", []string{".yaml"}), "custom extensions should replace the defaults")
}
