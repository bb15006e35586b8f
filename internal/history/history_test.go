package history_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/history"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"codeberg.org/hydrocam/hydrocam/internal/pipeline"
	"codeberg.org/hydrocam/hydrocam/internal/sensor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openService(t *testing.T, dbPath string) history.Recorder {
	t.Helper()

	rec, err := history.NewService(history.Config{DBPath: dbPath, Enabled: true}, logger.Nop())
	require.NoError(t, err)
	return rec
}

func entryAt(ms int64, brightness float64) *history.Entry {
	return &history.Entry{
		ID:          uuid.New(),
		CapturedAt:  time.UnixMilli(ms),
		Brightness:  brightness,
		DurationMS:  1200,
		Temperature: 71.6,
		Humidity:    45,
	}
}

func TestRecordAndRecent(t *testing.T) {
	rec := openService(t, filepath.Join(t.TempDir(), "history.db"))
	defer rec.Close()
	ctx := context.Background()

	assert.True(t, rec.Enabled())

	first := entryAt(1000, 10)
	second := entryAt(2000, 20)
	third := entryAt(3000, 30)
	third.SensorError = "Failed to read sensor"

	for _, e := range []*history.Entry{first, third, second} {
		require.NoError(t, rec.Record(ctx, e))
	}

	entries, err := rec.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, third.ID, entries[0].ID)
	assert.Equal(t, second.ID, entries[1].ID)
	assert.Equal(t, first.ID, entries[2].ID)

	assert.Equal(t, int64(3000), entries[0].CapturedAt.UnixMilli())
	assert.Equal(t, 30.0, entries[0].Brightness)
	assert.Equal(t, int64(1200), entries[0].DurationMS)
	assert.Equal(t, 71.6, entries[0].Temperature)
	assert.Equal(t, "Failed to read sensor", entries[0].SensorError)
	assert.False(t, entries[0].Saved)

	limited, err := rec.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMarkSaved(t *testing.T) {
	rec := openService(t, filepath.Join(t.TempDir(), "history.db"))
	defer rec.Close()
	ctx := context.Background()

	e := entryAt(5000, 99)
	require.NoError(t, rec.Record(ctx, e))
	require.NoError(t, rec.MarkSaved(ctx, e.ID, "/out/5000.png"))

	entries, err := rec.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Saved)
	assert.Equal(t, "/out/5000.png", entries[0].Path)

	err = rec.MarkSaved(ctx, uuid.New(), "/out/missing.png")
	assert.True(t, errors.HasCode(err, history.ErrNotFound))
}

func TestRecordRejectsInvalid(t *testing.T) {
	rec := openService(t, filepath.Join(t.TempDir(), "history.db"))
	defer rec.Close()

	err := rec.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, history.ErrInvalidEntry))

	err = rec.Record(context.Background(), &history.Entry{})
	assert.True(t, errors.HasCode(err, history.ErrInvalidEntry))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = rec.Record(ctx, entryAt(1, 1))
	assert.True(t, errors.HasCode(err, history.ErrOperationTimeout))
}

func TestDuplicateIDRejected(t *testing.T) {
	rec := openService(t, filepath.Join(t.TempDir(), "history.db"))
	defer rec.Close()

	e := entryAt(1, 1)
	require.NoError(t, rec.Record(context.Background(), e))

	err := rec.Record(context.Background(), e)
	assert.True(t, errors.HasCode(err, history.ErrStorageAccess))
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	rec := openService(t, path)
	require.NoError(t, rec.Record(context.Background(), entryAt(1, 1)))
	require.NoError(t, rec.Close())

	rec = openService(t, path)
	defer rec.Close()

	entries, err := rec.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	rec := openService(t, path)
	require.NoError(t, rec.Record(context.Background(), entryAt(1, 1)))
	require.NoError(t, rec.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE schema_versions SET version = ?`, history.SchemaVersion+41)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	rec = openService(t, path)
	defer rec.Close()

	entries, err := rec.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	backups, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "history_v42_")
}

func TestDisabledIsNoop(t *testing.T) {
	rec, err := history.NewService(history.Config{Enabled: false}, logger.Nop())
	require.NoError(t, err)

	assert.False(t, rec.Enabled())
	assert.NoError(t, rec.Record(context.Background(), entryAt(1, 1)))
	assert.NoError(t, rec.MarkSaved(context.Background(), uuid.New(), "x"))

	entries, err := rec.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, rec.Close())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, history.Config{Enabled: false}.Validate())
	assert.NoError(t, history.DefaultConfig().Validate())

	err := history.Config{Enabled: true}.Validate()
	assert.True(t, errors.HasCode(err, history.ErrInvalidDBPath))

	_, err = history.NewService(history.Config{Enabled: true}, logger.Nop())
	assert.True(t, errors.HasCode(err, history.ErrInvalidConfig))
}

func TestEntryFromResult(t *testing.T) {
	end := time.UnixMilli(1714564800000)
	r := &pipeline.Result{
		ID:         uuid.New(),
		Brightness: 42.5,
		CaptureEnd: end,
		Duration:   1500 * time.Millisecond,
		Reading: sensor.Reading{
			Err: errors.New().New(errors.ErrSensorRead),
		},
	}

	e := history.EntryFromResult(r)
	assert.Equal(t, r.ID, e.ID)
	assert.Equal(t, end, e.CapturedAt)
	assert.Equal(t, int64(1500), e.DurationMS)
	assert.Equal(t, 42.5, e.Brightness)
	assert.Equal(t, "Failed to read sensor", e.SensorError)
	assert.False(t, e.Saved)
}
