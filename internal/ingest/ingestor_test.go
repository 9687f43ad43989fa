package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypersignal/backend/internal/columnar"
	"github.com/hypersignal/backend/internal/config"
	"github.com/hypersignal/backend/internal/metastore"
	"github.com/hypersignal/backend/internal/models"
)

func newTestIngestor(t *testing.T) (*Ingestor, metastore.Store) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Storage.StoreDirectory = filepath.Join(dir, "store")
	cfg.Storage.PartitionRowThreshold = 100

	meta, err := metastore.OpenSQLite(context.Background(), filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	store, err := columnar.NewStore(cfg.Storage.StoreDirectory)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIngestor(cfg, meta, store, log), meta
}

const salesCSV = `date,region,amount,returned
2024-01-01,서울,1500.5,false
2024-01-02,부산,2000,true
2024-01-03,서울,,false
`

func TestIngestCSV(t *testing.T) {
	ing, meta := newTestIngestor(t)
	ctx := context.Background()

	rec, err := ing.Ingest(ctx, "sales.csv", strings.NewReader(salesCSV))
	require.NoError(t, err)

	assert.Equal(t, "sales.csv", rec.Filename)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, int64(3), rec.RowCount)
	assert.False(t, rec.IsPartitioned)
	assert.Equal(t, "date", rec.DateColumn)

	require.Len(t, rec.Columns, 4)
	assert.Equal(t, models.ColumnTypeDate, rec.Columns[0].Type)
	assert.Equal(t, models.ColumnTypeString, rec.Columns[1].Type)
	assert.Equal(t, models.ColumnTypeFloat, rec.Columns[2].Type)
	assert.True(t, rec.Columns[2].Nullable)
	assert.Equal(t, models.ColumnTypeBoolean, rec.Columns[3].Type)

	// The published store holds a single parquet file.
	_, err = os.Stat(filepath.Join(rec.StorePath, columnar.SingleFileName))
	require.NoError(t, err)

	// The record is durable.
	got, err := meta.GetFile(ctx, rec.FileID)
	require.NoError(t, err)
	assert.Equal(t, rec.RowCount, got.RowCount)
}

func TestIngestVersioning(t *testing.T) {
	ing, _ := newTestIngestor(t)
	ctx := context.Background()

	first, err := ing.Ingest(ctx, "sales.csv", strings.NewReader(salesCSV))
	require.NoError(t, err)
	second, err := ing.Ingest(ctx, "sales.csv", strings.NewReader(salesCSV))
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.NotEqual(t, first.FileID, second.FileID)

	// Both versions remain readable.
	_, err = os.Stat(filepath.Join(first.StorePath, columnar.SingleFileName))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(second.StorePath, columnar.SingleFileName))
	assert.NoError(t, err)
}

func TestIngestPartitioned(t *testing.T) {
	ing, _ := newTestIngestor(t)
	ctx := context.Background()

	var sb strings.Builder
	sb.WriteString("date,amount\n")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "2024-%02d-%02d,100\n", i%12+1, i%28+1)
	}

	rec, err := ing.Ingest(ctx, "daily.csv", strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.True(t, rec.IsPartitioned)
	assert.Equal(t, "date", rec.DateColumn)

	// The span covers a full year, so buckets are monthly.
	entries, err := os.ReadDir(filepath.Join(rec.StorePath, columnar.PartsDirName))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[0].Name(), "bucket=")
}

func TestIngestRejectsUnsupportedExtension(t *testing.T) {
	ing, _ := newTestIngestor(t)

	_, err := ing.Ingest(context.Background(), "notes.txt", strings.NewReader("hello"))
	var ingErr *IngestionError
	require.ErrorAs(t, err, &ingErr)
	assert.Contains(t, ingErr.Message, "unsupported file type")
}

func TestIngestRejectsEmptyFile(t *testing.T) {
	ing, _ := newTestIngestor(t)

	_, err := ing.Ingest(context.Background(), "empty.csv", strings.NewReader("a,b\n"))
	var ingErr *IngestionError
	require.True(t, errors.As(err, &ingErr))
	assert.Contains(t, ingErr.Message, "no data rows")
}

func TestIngestRowLimit(t *testing.T) {
	ing, _ := newTestIngestor(t)
	ing.cfg.Storage.MaxRows = 2

	_, err := ing.Ingest(context.Background(), "sales.csv", strings.NewReader(salesCSV))
	var ingErr *IngestionError
	require.ErrorAs(t, err, &ingErr)
	assert.Contains(t, ingErr.Message, "row limit")
}

func TestIngestPublishesOnlyParquet(t *testing.T) {
	ing, _ := newTestIngestor(t)

	rec, err := ing.Ingest(context.Background(), "sales.csv", strings.NewReader(salesCSV))
	require.NoError(t, err)

	// The raw upload must not travel into the store with the parquet.
	entries, err := os.ReadDir(rec.StorePath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, columnar.SingleFileName, entries[0].Name())
}

func TestIngestDateColumnLowestNullRate(t *testing.T) {
	ing, _ := newTestIngestor(t)

	csv := `ordered,delivered,qty
2024-01-01,,1
,2024-01-05,2
,2024-01-06,3
2024-01-04,2024-01-07,4
`
	rec, err := ing.Ingest(context.Background(), "orders.csv", strings.NewReader(csv))
	require.NoError(t, err)

	// Both date columns have nulls; the one with fewer wins.
	assert.Equal(t, "delivered", rec.DateColumn)
}

func TestIngestSampleValuesFromHead(t *testing.T) {
	ing, _ := newTestIngestor(t)
	ing.cfg.Storage.SampleRows = 2

	csv := `date,region
2024-01-01,서울
2024-01-02,부산
2024-01-03,대구
2024-01-04,인천
`
	rec, err := ing.Ingest(context.Background(), "regions.csv", strings.NewReader(csv))
	require.NoError(t, err)

	require.Len(t, rec.Columns, 2)
	assert.Equal(t, []string{"서울", "부산"}, rec.Columns[1].SampleValues)
}
