package workspace

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/gtsreg/internal/apperr"
	"github.com/starford/gtsreg/internal/index"
	"github.com/starford/gtsreg/internal/registry"
	"github.com/starford/gtsreg/internal/storage"
	"github.com/starford/gtsreg/internal/testutil"
)

const (
	orderType  = "gts.acme.shop.orders.order.v1~"
	orderOne   = "gts.acme.shop.orders.order.v1.0"
	orderTwo   = "gts.acme.shop.orders.order.v1.1"
	shipmentID = "gts.acme.shop.orders.shipment.v1.0"
)

const typesJSON = `{
  // order type
  "$id": "gts://gts.acme.shop.orders.order.v1~",
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["total"],
  "properties": {
    "total": {"type": "number"},
  },
}
`

const ordersJSON = `[
  {"id": "gts.acme.shop.orders.order.v1.0", "type": "gts.acme.shop.orders.order.v1~", "total": 10},
  {"id": "gts.acme.shop.orders.order.v1.1", "type": "gts.acme.shop.orders.order.v1~", "total": "ten"}
]
`

const shipmentJSON = `{"id": "gts.acme.shop.orders.shipment.v1.0", "order": "gts.acme.shop.orders.order.v1.0"}`

type testEnv struct {
	dir   string
	store storage.Provider
	db    *index.DB
	svc   *Service

	mu     sync.Mutex
	events []string
}

func newTestEnv(t *testing.T, files map[string]string) *testEnv {
	t.Helper()
	env := &testEnv{}
	env.dir, env.store = testutil.TestWorkspace(t)
	env.db = testutil.TestDB(t)
	testutil.WriteFiles(t, env.dir, files)

	reg := registry.New(registry.WithFetcher(StoreFetcher(env.store)))
	env.svc = NewService(env.store, env.db, reg, WithEventCallback(func(kind, path, gen string) {
		env.mu.Lock()
		defer env.mu.Unlock()
		assert.NotEmpty(t, gen, "event %s:%s without generation", kind, path)
		env.events = append(env.events, kind+":"+path)
	}))
	require.NoError(t, env.svc.Load(context.Background()))
	return env
}

func (e *testEnv) recorded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func defaultFiles() map[string]string {
	return map[string]string{
		"types.json":  typesJSON,
		"orders.json": ordersJSON,
	}
}

func TestLoad_IndexesAndValidates(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	ctx := context.Background()

	all, total, err := env.svc.Entities(ctx, index.EntityFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, all, 3)

	invalid, total, _ := env.svc.Entities(ctx, index.EntityFilter{Invalid: true})
	require.Equal(t, 1, total)
	assert.Equal(t, orderTwo, invalid[0].ID)
	assert.Equal(t, 1, invalid[0].ErrorCount)

	files, err := env.svc.Files(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "orders.json", files[0].Path)
	assert.Equal(t, 2, files[0].EntityCount)

	st := env.svc.Stats(ctx)
	assert.Equal(t, 2, st.Objects)
	assert.Equal(t, 1, st.Schemas)
	assert.Equal(t, 1, st.Invalid)
	assert.Zero(t, st.Pending)
}

func TestLoad_SkipsToolingDir(t *testing.T) {
	files := defaultFiles()
	files[".gts/cache.json"] = `{"id": "gts.acme.shop.orders.order.v1.9", "total": 1}`
	env := newTestEnv(t, files)

	_, err := env.svc.Entity(context.Background(), "gts.acme.shop.orders.order.v1.9")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "tooling file should not be ingested")
}

func TestLoad_RemovesStaleRows(t *testing.T) {
	dir, store := testutil.TestWorkspace(t)
	db := testutil.TestDB(t)
	testutil.WriteFiles(t, dir, defaultFiles())
	_ = db.UpsertFile(index.FileRow{Path: "gone.json", Checksum: "old"}, []index.EntityRow{{ID: "stale", Kind: "object"}}, nil)

	svc := NewService(store, db, registry.New())
	require.NoError(t, svc.Load(context.Background()))
	cs, _ := db.GetChecksum("gone.json")
	assert.Empty(t, cs, "stale file row survived")
	e, _ := db.GetEntity("stale")
	assert.Nil(t, e, "stale entity survived")
}

func TestDiagnostics_LocatesErrors(t *testing.T) {
	env := newTestEnv(t, defaultFiles())

	diags, err := env.svc.Diagnostics(context.Background(), "orders.json")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	d := diags[0]
	assert.True(t, d.Located)
	assert.Equal(t, orderTwo, d.EntityID)
	assert.Equal(t, "/1/total", d.InstancePath)
	assert.Equal(t, "type", d.Keyword)

	line := strings.Split(ordersJSON, "\n")[2]
	want := strings.Index(line, `"total"`) + 1
	assert.Equal(t, 2, d.Range.Start.Line)
	assert.Equal(t, want, d.Range.Start.Character)
	assert.Equal(t, len("total"), d.Range.End.Character-d.Range.Start.Character)
}

func TestDiagnostics_InvalidFile(t *testing.T) {
	files := defaultFiles()
	files["broken.json"] = `{"id": `
	env := newTestEnv(t, files)

	diags, err := env.svc.Diagnostics(context.Background(), "broken.json")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.False(t, diags[0].Located)
	assert.NotEmpty(t, diags[0].Message)
	assert.Zero(t, diags[0].Range.Start.Line, "parse error should sit at document start")
	assert.Zero(t, diags[0].Range.Start.Character)

	rows, _ := env.svc.Files(context.Background())
	for _, r := range rows {
		if r.Path == "broken.json" {
			assert.False(t, r.Valid)
			assert.NotEmpty(t, r.Error)
		}
	}
}

func TestDiagnostics_UnknownFile(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	_, err := env.svc.Diagnostics(context.Background(), "nope.json")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAllDiagnostics(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	all := env.svc.AllDiagnostics(context.Background())
	assert.Len(t, all, 1)
	assert.Len(t, all["orders.json"], 1)
}

func TestUpdateFile_RevalidatesDependents(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	ctx := context.Background()

	stricter := strings.Replace(typesJSON, `"total": {"type": "number"}`, `"total": {"type": "string"}`, 1)
	_, err := env.svc.UpdateFile(ctx, "types.json", []byte(stricter), "")
	require.NoError(t, err)

	one, err := env.svc.Entity(ctx, orderOne)
	require.NoError(t, err)
	assert.False(t, one.Validation.Valid, "order 0 should now be invalid")
	two, _ := env.svc.Entity(ctx, orderTwo)
	assert.True(t, two.Validation.Valid, "order 1 should now be valid: %+v", two.Validation.Errors)

	invalid, _, _ := env.svc.Entities(ctx, index.EntityFilter{Invalid: true})
	require.Len(t, invalid, 1, "index not updated")
	assert.Equal(t, orderOne, invalid[0].ID)
	assert.Equal(t, []string{"updated:types.json"}, env.recorded())
}

func TestUpdateFile_Conflict(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	_, err := env.svc.UpdateFile(context.Background(), "types.json", []byte("{}"), "bogus")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = env.svc.UpdateFile(context.Background(), "missing.json", []byte("{}"), "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateFile(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	ctx := context.Background()

	d, err := env.svc.CreateFile(ctx, "ship/one.json", []byte(shipmentJSON))
	require.NoError(t, err)
	require.Len(t, d.Entities, 1)
	assert.Equal(t, shipmentID, d.Entities[0].ID)
	assert.Empty(t, d.Diagnostics)

	_, err = env.svc.CreateFile(ctx, "ship/one.json", []byte("{}"))
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	assert.Equal(t, []string{"created:ship/one.json"}, env.recorded())
}

func TestReferrers(t *testing.T) {
	files := defaultFiles()
	files["shipment.json"] = shipmentJSON
	env := newTestEnv(t, files)
	ctx := context.Background()

	refs, err := env.svc.Referrers(ctx, orderOne)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, shipmentID, refs[0].SourceID)
	assert.Equal(t, "/order", refs[0].Pointer)
	assert.Equal(t, "shipment.json", refs[0].FilePath)

	d, err := env.svc.Entity(ctx, orderType)
	require.NoError(t, err)
	assert.Equal(t, "schema", d.Kind)
	assert.Len(t, d.Referrers, 2)
}

func TestDeleteFile_LeavesDanglingSchema(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	ctx := context.Background()

	require.NoError(t, env.svc.DeleteFile(ctx, "types.json"))
	one, err := env.svc.Entity(ctx, orderOne)
	require.NoError(t, err)
	require.False(t, one.Validation.Valid)
	assert.Equal(t, "schema", one.Validation.Errors[0].Keyword)

	diags, _ := env.svc.Diagnostics(ctx, "orders.json")
	require.Len(t, diags, 2)
	assert.True(t, diags[0].Located)
	assert.Equal(t, 1, diags[0].Range.Start.Line, "schema diagnostic should sit on the first element's type key")

	assert.ErrorIs(t, env.svc.DeleteFile(ctx, "types.json"), apperr.ErrNotFound)
}

func TestMoveFile(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	ctx := context.Background()

	d, err := env.svc.MoveFile(ctx, "orders.json", "archive/orders.json")
	require.NoError(t, err)
	assert.Len(t, d.Entities, 2)

	e, _ := env.svc.Entity(ctx, orderOne)
	require.NotNil(t, e)
	assert.Equal(t, "archive/orders.json", e.Path)
	_, err = env.svc.Diagnostics(ctx, "orders.json")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "old path still known")
}

func TestValidateDocument_Overlay(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	ctx := context.Background()

	fixed := strings.Replace(ordersJSON, `"ten"`, `10`, 1)
	diags, err := env.svc.ValidateDocument(ctx, "orders.json", []byte(fixed))
	require.NoError(t, err)
	assert.Empty(t, diags)

	two, _ := env.svc.Entity(ctx, orderTwo)
	assert.False(t, two.Validation.Valid, "overlay must not persist into the registry")

	draft := `{"id": "gts.acme.shop.orders.shipment.v1.5", "order": "gts.acme.shop.orders.order.v1.7"}`
	diags, err = env.svc.ValidateDocument(ctx, "draft.json", []byte(draft))
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "GTS reference not found")
	assert.True(t, diags[0].Located)

	_, err = env.svc.Entity(ctx, "gts.acme.shop.orders.shipment.v1.5")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "overlay entity leaked")
	assert.Empty(t, env.recorded(), "overlay should not emit events")
}

func TestValidateDocument_CollidingIdentifierIsRestored(t *testing.T) {
	files := defaultFiles()
	files["shipment.json"] = shipmentJSON
	files["scratch.json"] = `{"id": "gts.acme.shop.notes.note.v1.0"}`
	env := newTestEnv(t, files)
	ctx := context.Background()

	before, err := env.svc.Diagnostics(ctx, "shipment.json")
	require.NoError(t, err)
	require.Empty(t, before)

	buffer := `{"id": "gts.acme.shop.orders.order.v1.0", "type": "gts.acme.shop.orders.order.v1~", "total": 1}`
	_, err = env.svc.ValidateDocument(ctx, "scratch.json", []byte(buffer))
	require.NoError(t, err)

	one, err := env.svc.Entity(ctx, orderOne)
	require.NoError(t, err)
	assert.Equal(t, "orders.json", one.Path)
	after, err := env.svc.Diagnostics(ctx, "shipment.json")
	require.NoError(t, err)
	assert.Empty(t, after, "shipment must still resolve its order")
	orders, _ := env.svc.Diagnostics(ctx, "orders.json")
	assert.Len(t, orders, 1)

	_, err = env.svc.UpdateFile(ctx, "types.json", []byte(typesJSON), "")
	require.NoError(t, err)
	shipment, err := env.svc.Entity(ctx, shipmentID)
	require.NoError(t, err)
	assert.True(t, shipment.Validation.Valid, "persisted state: %+v", shipment.Validation.Errors)
}

func TestSync(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	ctx := context.Background()

	changed, err := env.svc.Sync(ctx, "types.json")
	require.NoError(t, err)
	assert.False(t, changed, "unchanged file")

	testutil.WriteFiles(t, env.dir, map[string]string{"shipment.json": shipmentJSON})
	changed, err = env.svc.Sync(ctx, "shipment.json")
	require.NoError(t, err)
	require.True(t, changed, "new file")
	_, err = env.svc.Entity(ctx, shipmentID)
	assert.NoError(t, err)

	require.NoError(t, env.store.Delete("shipment.json"))
	changed, err = env.svc.Sync(ctx, "shipment.json")
	require.NoError(t, err)
	require.True(t, changed, "deleted file")
	_, err = env.svc.Entity(ctx, shipmentID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "entity survived removal")

	assert.Equal(t, []string{"created:shipment.json", "deleted:shipment.json"}, env.recorded())
}

func TestDefaultFile(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	ctx := context.Background()

	p, ok := env.svc.DefaultFile(ctx)
	assert.True(t, ok)
	assert.Equal(t, "orders.json", p, "first listed file")

	require.NoError(t, env.svc.SetDefaultFile(ctx, "types.json"))
	p, _ = env.svc.DefaultFile(ctx)
	assert.Equal(t, "types.json", p)
	assert.ErrorIs(t, env.svc.SetDefaultFile(ctx, "nope.json"), apperr.ErrNotFound)
}

func TestFetchJSON(t *testing.T) {
	env := newTestEnv(t, defaultFiles())
	ctx := context.Background()

	v, err := env.svc.FetchJSON(ctx, "types.json", false)
	require.NoError(t, err)
	doc, ok := v.(map[string]any)
	require.True(t, ok, "doc = %#v", v)
	assert.Equal(t, "gts://"+orderType, doc["$id"])

	_, err = env.svc.FetchJSON(ctx, "/missing.json", false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
