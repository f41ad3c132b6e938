package internal

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/gtsreg/internal/lock"
	"github.com/starford/gtsreg/internal/testutil"
)

func testConfig(t *testing.T, files map[string]string) *Config {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, files)
	cfg := NewDefaultConfig()
	cfg.Workspace.Path = dir
	cfg.Workspace.Watch = false
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "gtsreg.db")
	return cfg
}

func TestCheck_ReportsLocatedErrors(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"types/order.json": `{"$id": "gts://gts.acme.shop.orders.order.v1~", "type": "object",
  "properties": {"total": {"type": "number"}}}`,
		"orders/one.json": "{\n  \"id\": \"gts.acme.shop.orders.order.v1.0\",\n  \"type\": \"gts.acme.shop.orders.order.v1~\",\n  \"total\": \"ten\"\n}",
		".gts/ignored.json": `{"id": "gts.x.y.z.w.v1.0", "type": "gts.x.y.z.missing.v1~"}`,
		"broken.json":       `{"id": `,
	})

	diags, err := Check(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	require.NoError(t, err)
	require.Len(t, diags, 2, "%+v", diags)

	one := diags["orders/one.json"]
	require.Len(t, one, 1)
	assert.True(t, one[0].Located)
	assert.Equal(t, 3, one[0].Range.Start.Line)

	b := diags["broken.json"]
	require.Len(t, b, 1)
	assert.False(t, b[0].Located)
}

func TestCheck_StructuralDisabled(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"types/order.json": `{"$id": "gts://gts.acme.shop.orders.order.v1~", "type": "object",
  "properties": {"total": {"type": "number"}}}`,
		"orders/one.json": `{"id": "gts.acme.shop.orders.order.v1.0", "type": "gts.acme.shop.orders.order.v1~", "total": "ten"}`,
	})
	cfg.Validation.Structural = false

	diags, err := Check(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestCheck_RequiresConfig(t *testing.T) {
	_, err := Check(context.Background())
	assert.ErrorIs(t, err, errConfigRequired)
}

func TestOpen_PersistentTakesLock(t *testing.T) {
	cfg := testConfig(t, nil)
	app, err := newApplication([]Option{WithConfig(cfg), WithLogOutput(io.Discard)})
	require.NoError(t, err)

	e, err := app.open(context.Background(), app.logger(), true)
	require.NoError(t, err)
	_, err = app.open(context.Background(), app.logger(), true)
	assert.ErrorIs(t, err, lock.ErrLocked)
	e.close()

	e, err = app.open(context.Background(), app.logger(), true)
	require.NoError(t, err, "reopen")
	e.close()
}
