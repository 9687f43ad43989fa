// Package ingest turns uploaded tabular files into typed parquet stores
// with inferred schemas. Ingestion runs in two passes over the saved
// upload: the first scans every row to infer column types and count
// rows, the second writes typed values out through DuckDB. Keeping both
// passes streaming bounds memory regardless of input size.
package ingest

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hypersignal/backend/internal/columnar"
	"github.com/hypersignal/backend/internal/config"
	"github.com/hypersignal/backend/internal/metastore"
	"github.com/hypersignal/backend/internal/models"
)

// IngestionError marks a failure caused by the uploaded file itself
// rather than by the server.
type IngestionError struct {
	Message string
	Err     error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *IngestionError) Unwrap() error { return e.Err }

func ingestErrf(err error, format string, args ...any) *IngestionError {
	return &IngestionError{Message: fmt.Sprintf(format, args...), Err: err}
}

// Ingestor runs the upload-to-store pipeline.
type Ingestor struct {
	cfg   *config.Config
	meta  metastore.Store
	store *columnar.Store
	log   *slog.Logger
}

// NewIngestor creates an Ingestor backed by the given stores.
func NewIngestor(cfg *config.Config, meta metastore.Store, store *columnar.Store, log *slog.Logger) *Ingestor {
	return &Ingestor{cfg: cfg, meta: meta, store: store, log: log.With("component", "ingest")}
}

// Ingest consumes an uploaded file and returns the new FileRecord. The
// record becomes visible only after the parquet store is fully written
// and published, so readers never observe a partial version.
func (ing *Ingestor) Ingest(ctx context.Context, filename string, r io.Reader) (*models.FileRecord, error) {
	ext := filepath.Ext(filename)
	if !SupportedExtension(ext) {
		return nil, ingestErrf(nil, "unsupported file type %q, expected csv, xlsx, xls, or parquet", ext)
	}

	staging, err := ing.store.NewStaging()
	if err != nil {
		return nil, err
	}
	defer ing.store.Discard(staging)

	uploadPath, size, err := ing.store.SaveUpload(staging, filename, r)
	if err != nil {
		return nil, err
	}
	if max := ing.cfg.Storage.MaxUploadBytes; max > 0 && size > max {
		return nil, ingestErrf(nil, "file is %d bytes, exceeding the %d byte limit", size, max)
	}

	start := time.Now()
	ing.log.Info("ingestion started", "filename", filename, "size_bytes", size)

	columns, rowCount, dateColumn, err := ing.scanSchema(ctx, uploadPath)
	if err != nil {
		return nil, err
	}

	partitioned := dateColumn != "" && rowCount >= ing.cfg.Storage.PartitionRowThreshold

	if err := ing.writeStore(ctx, uploadPath, staging, columns, dateColumn, partitioned); err != nil {
		return nil, err
	}

	// The raw upload is not part of the published layout; only the
	// parquet output moves into the store.
	if err := os.Remove(uploadPath); err != nil {
		return nil, fmt.Errorf("removing staged upload: %w", err)
	}

	version, err := ing.meta.NextVersion(ctx, filename)
	if err != nil {
		return nil, err
	}

	fileID := uuid.New().String()
	storePath, err := ing.store.Publish(staging, fileID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &models.FileRecord{
		FileID:        fileID,
		Filename:      filename,
		Version:       version,
		FileSize:      size,
		RowCount:      rowCount,
		Columns:       columns,
		StorePath:     storePath,
		DateColumn:    dateColumn,
		IsPartitioned: partitioned,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := ing.meta.SaveFile(ctx, rec); err != nil {
		ing.store.Delete(fileID)
		return nil, err
	}

	ing.log.Info("ingestion complete",
		"file_id", fileID,
		"filename", filename,
		"version", version,
		"rows", rowCount,
		"columns", len(columns),
		"partitioned", partitioned,
		"duration", time.Since(start))
	return rec, nil
}

// scanSchema is the first pass: it reads every row, accumulating type
// evidence per column, and enforces the row limit. It also picks the
// date-partition candidate column.
func (ing *Ingestor) scanSchema(ctx context.Context, path string) ([]models.ColumnInfo, int64, string, error) {
	reader, err := OpenRowReader(path)
	if err != nil {
		return nil, 0, "", ingestErrf(err, "failed to read file")
	}
	defer reader.Close()

	header := reader.Columns()
	if len(header) == 0 {
		return nil, 0, "", ingestErrf(nil, "file has no columns")
	}

	stats := make([]*columnStats, len(header))
	seen := make(map[string]int, len(header))
	for i, name := range header {
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		// Duplicate headers get a numeric suffix so column names stay
		// unique within the record.
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		stats[i] = newColumnStats(name)
	}

	sampleRows := int64(ing.cfg.Storage.SampleRows)

	var rowCount int64
	for {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, "", ingestErrf(err, "failed while reading row %d", rowCount+1)
		}
		if rowCount%100_000 == 0 && ctx.Err() != nil {
			return nil, 0, "", ctx.Err()
		}

		rowCount++
		if max := ing.cfg.Storage.MaxRows; max > 0 && rowCount > max {
			return nil, 0, "", ingestErrf(nil, "file exceeds the %d row limit", max)
		}
		inSample := sampleRows <= 0 || rowCount <= sampleRows
		for i := range stats {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			stats[i].observe(cell, inSample)
		}
	}
	if rowCount == 0 {
		return nil, 0, "", ingestErrf(nil, "file contains a header but no data rows")
	}

	columns := make([]models.ColumnInfo, len(stats))
	for i, s := range stats {
		columns[i] = s.resolve()
	}
	return columns, rowCount, pickDateColumn(columns, stats), nil
}

// writeStore is the second pass: typed conversion and parquet export.
func (ing *Ingestor) writeStore(ctx context.Context, path, staging string, columns []models.ColumnInfo, dateColumn string, partitioned bool) error {
	reader, err := OpenRowReader(path)
	if err != nil {
		return ingestErrf(err, "failed to reopen file")
	}
	defer reader.Close()

	writer, err := columnar.NewWriter(staging, columns)
	if err != nil {
		return err
	}
	defer writer.Close()

	for {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ingestErrf(err, "failed while reading row %d", writer.RowCount()+1)
		}
		if writer.RowCount()%100_000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}

		typed := make([]driver.Value, len(columns))
		for i, col := range columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			typed[i] = typedValue(cell, col.Type)
		}
		if err := writer.Append(typed); err != nil {
			return err
		}
	}

	partitionBy := ""
	if partitioned {
		partitionBy = dateColumn
	}
	return writer.Finalize(partitionBy)
}

// typedValue converts a raw cell for its column type. Cells that fail to
// parse become NULL rather than aborting the load; inference ran over
// the same data, so a residual mismatch is a stray cell, not a schema
// error.
func typedValue(cell string, t models.ColumnType) driver.Value {
	if IsNullValue(cell) {
		return nil
	}
	cell = strings.TrimSpace(cell)

	switch t {
	case models.ColumnTypeInteger:
		if n, ok := ParseInt(cell); ok {
			return n
		}
	case models.ColumnTypeFloat:
		if f, ok := ParseFloat(cell); ok {
			return f
		}
	case models.ColumnTypeDate:
		if ts, ok := ParseDate(cell); ok {
			return ts
		}
	case models.ColumnTypeDatetime:
		if ts, ok := ParseTemporal(cell); ok {
			return ts
		}
	case models.ColumnTypeBoolean:
		if b, ok := ParseBool(cell); ok {
			return b
		}
	default:
		return cell
	}
	return nil
}

// pickDateColumn chooses the partition candidate: the temporal column
// with the lowest null rate, earliest column winning ties. stats is
// positionally aligned with columns.
func pickDateColumn(columns []models.ColumnInfo, stats []*columnStats) string {
	best := ""
	bestRate := 0.0
	for i, col := range columns {
		if !col.Type.IsTemporal() {
			continue
		}
		s := stats[i]
		rate := float64(s.nulls) / float64(s.nulls+s.nonEmpty)
		if best == "" || rate < bestRate {
			best = col.Name
			bestRate = rate
		}
	}
	return best
}
