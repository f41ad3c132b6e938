package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/gtsreg/internal/gts"
	"github.com/starford/gtsreg/internal/schemaengine"
)

// countingEngine records which schemas get compiled.
type countingEngine struct {
	inner    *schemaengine.Engine
	compiled map[string]int
}

func newCountingEngine() *countingEngine {
	return &countingEngine{inner: schemaengine.New(), compiled: make(map[string]int)}
}

func (c *countingEngine) Compile(uri string, doc any, load schemaengine.LoadFunc) (schemaengine.Validator, error) {
	c.compiled[gts.DecodeID(uri)]++
	return c.inner.Compile(uri, doc, load)
}

func TestUpdate_StricterSchemaRevalidatesObjects(t *testing.T) {
	r := New()
	ingest(t, r,
		FileInput{Path: "schemas/item.json", Content: itemSchema()},
		FileInput{Path: "one.json", Content: item(itemOne, float64(1))},
	)
	o, _ := r.Object(itemOne)
	require.True(t, o.Validation.Valid)

	stricter := itemSchema()
	stricter["required"] = []any{"x", "label"}
	require.NoError(t, r.Update(context.Background(),
		[]FileInput{{Path: "schemas/item.json", Content: stricter}}, nil))

	o, _ = r.Object(itemOne)
	req := errorsWithKeyword(o, "required")
	require.Len(t, req, 1)
	assert.Equal(t, "label", req[0].Params["missingProperty"])
}

func TestUpdate_RemovedSchemaReportsNotFound(t *testing.T) {
	r := New()
	ingest(t, r,
		FileInput{Path: "schemas/item.json", Content: itemSchema()},
		FileInput{Path: "one.json", Content: item(itemOne, float64(1))},
	)

	require.NoError(t, r.Update(context.Background(), nil, []string{"schemas/item.json"}))

	o, _ := r.Object(itemOne)
	schemaErrs := errorsWithKeyword(o, "schema")
	require.Len(t, schemaErrs, 1)
	assert.Equal(t, itemType, schemaErrs[0].Params["schemaId"])
}

func TestUpdate_LeavesUnrelatedEntitiesAlone(t *testing.T) {
	eng := newCountingEngine()
	r := New(WithEngine(eng))
	ingest(t, r,
		FileInput{Path: "schemas/item.json", Content: itemSchema()},
		FileInput{Path: "inner.json", Content: schemaDoc(innerType, map[string]any{"type": "object"})},
		FileInput{Path: "one.json", Content: item(itemOne, float64(1))},
		FileInput{Path: "other.json", Content: map[string]any{
			"id":   "gts.x.test.reg.inner.v1.0",
			"type": innerType,
		}},
	)
	other, _ := r.Object("gts.x.test.reg.inner.v1.0")
	sentinel := gts.ValidationError{Keyword: "sentinel"}
	other.Validation.Errors = append(other.Validation.Errors, sentinel)

	eng.compiled = make(map[string]int)
	require.NoError(t, r.Update(context.Background(),
		[]FileInput{{Path: "one.json", Content: item(itemOne, "bad")}}, nil))

	assert.Equal(t, map[string]int{itemType: 1}, eng.compiled)
	assert.Contains(t, other.Validation.Errors, sentinel)
	o, _ := r.Object(itemOne)
	assert.Len(t, errorsWithKeyword(o, "type"), 1)
}

func TestUpdate_NewTargetClearsDanglingReference(t *testing.T) {
	r := New()
	ingest(t, r, FileInput{Path: "two.json", Content: map[string]any{
		"id":   itemTwo,
		"type": itemType,
		"x":    float64(1),
		"peer": itemOne,
	}})
	two, _ := r.Object(itemTwo)
	require.Len(t, errorsWithKeyword(two, ""), 1)

	require.NoError(t, r.Update(context.Background(), []FileInput{
		{Path: "schemas/item.json", Content: itemSchema()},
		{Path: "one.json", Content: item(itemOne, float64(1))},
	}, nil))

	two, _ = r.Object(itemTwo)
	assert.True(t, two.Validation.Valid, "%v", two.Validation.Errors)
}

func TestUpdate_TransitiveThroughSchemas(t *testing.T) {
	r := New()
	ingest(t, r,
		FileInput{Path: "outer.json", Content: schemaDoc(outerType, map[string]any{
			"type": "object",
			"properties": map[string]any{
				"inner": map[string]any{"$ref": gts.EncodeID(innerType)},
			},
		})},
		FileInput{Path: "inner.json", Content: schemaDoc(innerType, map[string]any{"type": "object"})},
		FileInput{Path: "obj.json", Content: map[string]any{
			"id":    "gts.x.test.reg.outer.v1.0",
			"type":  outerType,
			"inner": map[string]any{},
		}},
	)
	o, _ := r.Object("gts.x.test.reg.outer.v1.0")
	require.True(t, o.Validation.Valid)

	require.NoError(t, r.Update(context.Background(), []FileInput{
		{Path: "inner.json", Content: schemaDoc(innerType, map[string]any{
			"type":     "object",
			"required": []any{"n"},
		})},
	}, nil))

	o, _ = r.Object("gts.x.test.reg.outer.v1.0")
	assert.Len(t, errorsWithKeyword(o, "required"), 1)
}
