package gts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidID(t *testing.T) {
	tests := map[string]bool{
		"gts.x.core.events.type.v1~":                          true,
		"gts.x.core.events.type.v1.2~":                        true,
		"gts.x.core.events.type.v1~x.shop.orders.placed.v1.0": true,
		"gts.x.core.events.type.v1~x.shop.orders.placed.v1~":  true,
		"gts.x.core.events.type.v01~":                         false,
		"gts.X.core.events.type.v1~":                          false,
		"gts.x.core.events.v1~":                               false,
		"x.core.events.type.v1~":                              false,
		"gts.":                                                false,
		"":                                                    false,
	}
	for id, want := range tests {
		assert.Equal(t, want, IsValidID(id), id)
	}
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, "gts.x.core.events.type.v1~", TypeOf("gts.x.core.events.type.v1~x.shop.orders.placed.v1.0"))
	assert.Equal(t, "", TypeOf("gts.x.core.events.type.v1~"))
	assert.Equal(t, "", TypeOf("gts.x.core.events.type.v1"))
	assert.Equal(t, "", TypeOf("not an id"))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, id := range []string{
		"gts.x.core.events.type.v1~",
		"gts.x.core.events.type.v1~x.shop.orders.placed.v1.0",
	} {
		enc := EncodeID(id)
		assert.Equal(t, "gts://"+id, enc)
		assert.Equal(t, id, DecodeID(enc))
	}
}

func TestDecodeID_Total(t *testing.T) {
	assert.Equal(t, "gts.x.core.events.type.v1~", DecodeID("gts://gts.x.core.events.type.v1~#/definitions/a"))
	assert.Equal(t, "gts.x.core.events.type.v1~", DecodeID("gts://gts.x.core.events.base.v1~/gts.x.core.events.type.v1~"))
	assert.Equal(t, "plain", DecodeID("plain"))
	assert.Equal(t, "", DecodeID(""))
	assert.Equal(t, "gts.x.a.b.c.v1~", DecodeID("gts.x.a.b.c.v1~"))
	assert.Equal(t, "https://json-schema.org/draft/2020-12/schema", DecodeID("https://json-schema.org/draft/2020-12/schema"))
	assert.Equal(t, "%zz", DecodeID("gts://%zz"))
}

func TestIsMetaSchemaURI(t *testing.T) {
	assert.True(t, IsMetaSchemaURI("http://json-schema.org/draft-07/schema#"))
	assert.True(t, IsMetaSchemaURI("https://json-schema.org/draft/2020-12/schema"))
	assert.False(t, IsMetaSchemaURI("gts://gts.x.core.events.type.v1~"))
}

func TestSourcePathToPointer(t *testing.T) {
	assert.Equal(t, "/", SourcePathToPointer(""))
	assert.Equal(t, "/a/b", SourcePathToPointer("a.b"))
	assert.Equal(t, "/items/2/ref", SourcePathToPointer("items[2].ref"))
	assert.Equal(t, "/props/x.y", SourcePathToPointer(`props["x.y"]`))
	assert.Equal(t, "/a~1b", SourcePathToPointer(`["a/b"]`))
	assert.Equal(t, "/a]b/c", SourcePathToPointer(`["a]b"].c`))
	assert.Equal(t, `/say "hi"`, SourcePathToPointer(`["say \"hi\""]`))
	assert.Equal(t, `/back\slash`, SourcePathToPointer(`["back\\slash"]`))
	assert.Equal(t, "/x.y/0", SourcePathToPointer(`['x.y'][0]`))
	assert.Equal(t, "/open", SourcePathToPointer("[open"))
}

func TestPrefixPath(t *testing.T) {
	assert.Equal(t, "/2", PrefixPath(2, ""))
	assert.Equal(t, "/2", PrefixPath(2, "/"))
	assert.Equal(t, "/2/x", PrefixPath(2, "/x"))
	assert.Equal(t, "/0/x", PrefixPath(0, "x"))
}
