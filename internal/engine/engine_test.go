package engine

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypersignal/backend/internal/columnar"
	"github.com/hypersignal/backend/internal/config"
	"github.com/hypersignal/backend/internal/models"
)

func newTestEngine(t *testing.T) (*Engine, *models.FileRecord) {
	t.Helper()

	cfg := config.Default()
	store, err := columnar.NewStore(t.TempDir())
	require.NoError(t, err)

	columns := []models.ColumnInfo{
		{Name: "date", Type: models.ColumnTypeDate},
		{Name: "region", Type: models.ColumnTypeString},
		{Name: "amount", Type: models.ColumnTypeFloat, Nullable: true},
	}

	staging, err := store.NewStaging()
	require.NoError(t, err)
	w, err := columnar.NewWriter(staging, columns)
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	regions := []string{"서울", "부산", "서울", "대구"}
	amounts := []driver.Value{100.0, 200.0, 300.0, nil}
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Append([]driver.Value{base.AddDate(0, 0, i), regions[i], amounts[i]}))
	}
	require.NoError(t, w.Finalize(""))
	require.NoError(t, w.Close())

	fileID := "test-file"
	path, err := store.Publish(staging, fileID)
	require.NoError(t, err)

	rec := &models.FileRecord{
		FileID:    fileID,
		Filename:  "sales.csv",
		RowCount:  4,
		Columns:   columns,
		StorePath: path,
	}

	eng := NewEngine(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(eng.Close)
	return eng, rec
}

func TestExecuteAggregate(t *testing.T) {
	eng, rec := newTestEngine(t)

	res, err := eng.Execute(context.Background(),
		rec, "SELECT region, SUM(amount) AS total FROM data GROUP BY region ORDER BY total DESC")
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "total"}, res.Columns)
	require.Equal(t, 3, res.TotalRows)
	assert.False(t, res.Truncated)
	assert.Equal(t, "서울", res.Rows[0][0])
	assert.InDelta(t, 400.0, res.Rows[0][1], 0.001)
}

func TestExecuteDateFormatting(t *testing.T) {
	eng, rec := newTestEngine(t)

	res, err := eng.Execute(context.Background(),
		rec, "SELECT date FROM data ORDER BY date LIMIT 1")
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalRows)
	assert.Equal(t, "2024-01-01", res.Rows[0][0])
}

func TestExecuteNullPassthrough(t *testing.T) {
	eng, rec := newTestEngine(t)

	res, err := eng.Execute(context.Background(),
		rec, "SELECT amount FROM data WHERE region = '대구'")
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalRows)
	assert.Nil(t, res.Rows[0][0])
}

func TestExecuteTruncation(t *testing.T) {
	eng, rec := newTestEngine(t)
	eng.cfg.Query.MaxResultRows = 2

	res, err := eng.Execute(context.Background(), rec, "SELECT * FROM data")
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalRows)
	assert.True(t, res.Truncated)
}

func TestExecuteRejectsMutation(t *testing.T) {
	eng, rec := newTestEngine(t)

	_, err := eng.Execute(context.Background(), rec, "DELETE FROM data")
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
}

func TestExecuteSyntaxErrorFromEngine(t *testing.T) {
	eng, rec := newTestEngine(t)

	_, err := eng.Execute(context.Background(), rec, "SELECT no_such_column FROM data")
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
	assert.Contains(t, synErr.Message, "no_such_column")
}

func TestPreview(t *testing.T) {
	eng, rec := newTestEngine(t)

	res, err := eng.Preview(context.Background(), rec, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalRows)
	assert.Equal(t, []string{"date", "region", "amount"}, res.Columns)
}

func TestHandleReuseAndEvict(t *testing.T) {
	eng, rec := newTestEngine(t)

	_, err := eng.Execute(context.Background(), rec, "SELECT COUNT(*) FROM data")
	require.NoError(t, err)
	assert.NotNil(t, eng.handles.Get(rec.FileID))

	eng.Evict(rec.FileID)
	assert.Nil(t, eng.handles.Get(rec.FileID))
}

// buildIntStore publishes a single-column integer parquet store for
// tests that need their own row volume or store layout.
func buildIntStore(t *testing.T, root string, rows int) (*columnar.Store, *models.FileRecord) {
	t.Helper()

	store, err := columnar.NewStore(root)
	require.NoError(t, err)

	columns := []models.ColumnInfo{{Name: "v", Type: models.ColumnTypeInteger}}
	staging, err := store.NewStaging()
	require.NoError(t, err)
	w, err := columnar.NewWriter(staging, columns)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		require.NoError(t, w.Append([]driver.Value{int64(i)}))
	}
	require.NoError(t, w.Finalize(""))
	require.NoError(t, w.Close())

	fileID := "int-file"
	path, err := store.Publish(staging, fileID)
	require.NoError(t, err)

	rec := &models.FileRecord{
		FileID:    fileID,
		Filename:  "numbers.csv",
		RowCount:  int64(rows),
		Columns:   columns,
		StorePath: path,
	}
	return store, rec
}

func TestExecuteTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Query.TimeoutSeconds = 1

	store, rec := buildIntStore(t, t.TempDir(), 5000)
	eng := NewEngine(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(eng.Close)

	_, err := eng.Execute(context.Background(), rec,
		"SELECT COUNT(*) FROM data a JOIN data b ON a.v <> b.v JOIN data c ON b.v <> c.v")
	var toErr *TimeoutError
	require.ErrorAs(t, err, &toErr)

	// The handle survives a cancelled query.
	res, err := eng.Execute(context.Background(), rec, "SELECT COUNT(*) AS n FROM data")
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalRows)
	assert.EqualValues(t, 5000, res.Rows[0][0])
}

func TestExecuteCanceledContext(t *testing.T) {
	eng, rec := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Execute(ctx, rec, "SELECT region FROM data")
	require.ErrorIs(t, err, context.Canceled)
	var synErr *SyntaxError
	assert.False(t, errors.As(err, &synErr))
}

func TestExecuteStorePathWithQuote(t *testing.T) {
	store, rec := buildIntStore(t, filepath.Join(t.TempDir(), "o'data"), 3)
	eng := NewEngine(config.Default(), store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(eng.Close)

	res, err := eng.Execute(context.Background(), rec, "SELECT COUNT(*) AS n FROM data")
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Rows[0][0])
}
