package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func intp(n int) *int { return &n }

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"files", "entities", "refs"} {
		var count int
		require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM `+table).Scan(&count), "%s table missing", table)
	}
}

func TestOpenInMemory(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.UpsertFile(FileRow{Path: "a.json", Checksum: "1", Valid: true}, nil, nil))
	cs, _ := db.GetChecksum("a.json")
	assert.Equal(t, "1", cs)
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	f := FileRow{Path: "types.json", Name: "types.json", Checksum: "abc123", Valid: true, EntityCount: 1}
	ents := []EntityRow{{ID: "gts.a.b.c.d.v1~", Kind: "schema", Valid: true}}
	require.NoError(t, db.UpsertFile(f, ents, nil))
	cs, err := db.GetChecksum("types.json")
	require.NoError(t, err)
	assert.Equal(t, "abc123", cs)
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.json")
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestUpsertReplacesEntitiesAndRefs(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFile(FileRow{Path: "a.json", Checksum: "1"},
		[]EntityRow{{ID: "old", Kind: "object"}},
		[]RefRow{{SourceID: "old", TargetID: "x", Pointer: "/ref"}})
	_ = db.UpsertFile(FileRow{Path: "a.json", Checksum: "2"},
		[]EntityRow{{ID: "new", Kind: "object", ListSequence: intp(0)}},
		[]RefRow{{SourceID: "new", TargetID: "y", Pointer: "/ref"}})

	old, _ := db.GetEntity("old")
	assert.Nil(t, old, "old entity should be removed")

	e, err := db.GetEntity("new")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "a.json", e.Path)
	require.NotNil(t, e.ListSequence)
	assert.Equal(t, 0, *e.ListSequence)

	stale, _ := db.Referrers("x")
	assert.Empty(t, stale)
	refs, _ := db.Referrers("y")
	require.Len(t, refs, 1)
	assert.Equal(t, "new", refs[0].SourceID)
	assert.Equal(t, "a.json", refs[0].FilePath)
}

func TestUpsertMovesIdentifierBetweenFiles(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFile(FileRow{Path: "a.json"}, []EntityRow{{ID: "dup", Kind: "object"}},
		[]RefRow{{SourceID: "dup", TargetID: "t", Pointer: "/a"}})
	_ = db.UpsertFile(FileRow{Path: "b.json"}, []EntityRow{{ID: "dup", Kind: "object"}}, nil)

	e, _ := db.GetEntity("dup")
	require.NotNil(t, e)
	assert.Equal(t, "b.json", e.Path)
	refs, _ := db.Referrers("t")
	assert.Empty(t, refs, "refs of the replaced entity should go")
}

func TestReferrersIncludeSchemaUsers(t *testing.T) {
	db := testDB(t)
	typeID := "gts.acme.core.events.order.v1~"
	_ = db.UpsertFile(FileRow{Path: "types.json"}, []EntityRow{{ID: typeID, Kind: "schema"}}, nil)
	_ = db.UpsertFile(FileRow{Path: "objs.json"}, []EntityRow{
		{ID: "o1", Kind: "object", SchemaID: typeID, ListSequence: intp(0)},
		{ID: "o2", Kind: "object", ListSequence: intp(1)},
	}, []RefRow{{SourceID: "o2", TargetID: typeID, Pointer: "/parent"}})

	refs, err := db.Referrers(typeID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "o1", refs[0].SourceID)
	assert.Empty(t, refs[0].Pointer)
	assert.Equal(t, "o2", refs[1].SourceID)
	assert.Equal(t, "/parent", refs[1].Pointer)
}

func TestDeleteFile(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFile(FileRow{Path: "del.json", Checksum: "x"},
		[]EntityRow{{ID: "e", Kind: "object"}},
		[]RefRow{{SourceID: "e", TargetID: "target"}})

	require.NoError(t, db.DeleteFile("del.json"))
	cs, _ := db.GetChecksum("del.json")
	assert.Empty(t, cs)
	e, _ := db.GetEntity("e")
	assert.Nil(t, e, "entity survived delete")
	refs, _ := db.Referrers("target")
	assert.Empty(t, refs)
}

func TestAllChecksums(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFile(FileRow{Path: "a.json", Checksum: "1"}, nil, nil)
	_ = db.UpsertFile(FileRow{Path: "b.json", Checksum: "2"}, nil, nil)

	got, err := db.AllChecksums()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.json": "1", "b.json": "2"}, got)
}

func TestUpdateValidationAndFilters(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFile(FileRow{Path: "a.json"}, []EntityRow{
		{ID: "gts.x.y.z.a.v1~", Kind: "schema", Valid: true},
		{ID: "gts.x.y.z.a.v1~x.y.z.i.v1", Kind: "object", Valid: true},
		{ID: "plain", Kind: "object", Valid: true},
	}, nil)

	require.NoError(t, db.UpdateValidation([]EntityRow{
		{ID: "plain", Valid: false, ErrorCount: 2},
		{ID: "unknown", Valid: false, ErrorCount: 1},
	}))

	invalid, total, err := db.ListEntities(EntityFilter{Invalid: true})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "plain", invalid[0].ID)
	assert.Equal(t, 2, invalid[0].ErrorCount)

	objs, total, _ := db.ListEntities(EntityFilter{Kind: "object"})
	assert.Equal(t, 2, total)
	assert.Len(t, objs, 2)

	hits, total, _ := db.ListEntities(EntityFilter{Query: "gts.x"})
	require.Equal(t, 2, total)
	assert.Equal(t, "gts.x.y.z.a.v1~", hits[0].ID)

	page, total, _ := db.ListEntities(EntityFilter{Limit: 1, Offset: 1})
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "gts.x.y.z.a.v1~x.y.z.i.v1", page[0].ID)
}

func TestListFiles(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFile(FileRow{Path: "b.json", Valid: false, Error: "syntax"}, nil, nil)
	_ = db.UpsertFile(FileRow{Path: "a.json", Valid: true, EntityCount: 3}, nil, nil)

	files, err := db.ListFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.json", files[0].Path)
	assert.Equal(t, "syntax", files[1].Error)
	assert.False(t, files[0].UpdatedAt.IsZero(), "updated_at should be set")
}
