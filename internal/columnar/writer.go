package columnar

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/hypersignal/backend/internal/models"
)

const writerBatchSize = 50000

// monthBucketSpan is the date span above which partitions switch from
// daily to monthly buckets.
const monthBucketSpan = 90 * 24 * time.Hour

// Writer loads typed rows into a scratch DuckDB table and exports the
// result as parquet into a staging directory. Loading through DuckDB
// keeps memory bounded for inputs larger than RAM and gives the export
// step a typed table to COPY from.
type Writer struct {
	db       *sql.DB
	dbPath   string
	staging  string
	columns  []models.ColumnInfo
	batch    [][]driver.Value
	rowCount int64
}

// NewWriter creates the scratch database and its typed data table inside
// the staging directory.
func NewWriter(staging string, columns []models.ColumnInfo) (*Writer, error) {
	dbPath := filepath.Join(staging, "scratch.duckdb")

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='1GB'",
			"PRAGMA threads=4",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = fmt.Sprintf("%s %s", quoteIdent(col.Name), duckType(col.Type))
	}
	if _, err := db.Exec(fmt.Sprintf("CREATE TABLE data (%s)", strings.Join(defs, ", "))); err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create data table: %w", err)
	}

	return &Writer{
		db:      db,
		dbPath:  dbPath,
		staging: staging,
		columns: columns,
		batch:   make([][]driver.Value, 0, writerBatchSize),
	}, nil
}

// Append buffers one typed row. The writer takes ownership of the slice.
// Row length must match the schema.
func (w *Writer) Append(row []driver.Value) error {
	if len(row) != len(w.columns) {
		return fmt.Errorf("row has %d values, schema has %d columns", len(row), len(w.columns))
	}
	w.batch = append(w.batch, row)
	w.rowCount++

	if len(w.batch) >= writerBatchSize {
		return w.flushBatch()
	}
	return nil
}

// RowCount returns the number of rows appended so far.
func (w *Writer) RowCount() int64 { return w.rowCount }

// flushBatch writes the buffered rows through the native Appender API.
func (w *Writer) flushBatch() error {
	if len(w.batch) == 0 {
		return nil
	}

	conn, err := w.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "data")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for i, row := range w.batch {
			if err := appender.AppendRow(row...); err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	w.batch = w.batch[:0]
	return nil
}

// Finalize flushes pending rows and exports the table as parquet. When
// dateColumn is non-empty the export is hive-partitioned under parts/ by
// a derived bucket column, monthly when the date span exceeds 90 days
// and daily otherwise. Otherwise a single data.parquet is written.
func (w *Writer) Finalize(dateColumn string) error {
	if err := w.flushBatch(); err != nil {
		return err
	}

	if dateColumn == "" {
		target := filepath.Join(w.staging, SingleFileName)
		_, err := w.db.Exec(fmt.Sprintf(
			"COPY data TO '%s' (FORMAT PARQUET)", escapeSQLString(target)))
		if err != nil {
			return fmt.Errorf("parquet export failed: %w", err)
		}
		return nil
	}

	var minDate, maxDate sql.NullTime
	q := fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM data", quoteIdent(dateColumn), quoteIdent(dateColumn))
	if err := w.db.QueryRow(q).Scan(&minDate, &maxDate); err != nil {
		return fmt.Errorf("date range query failed: %w", err)
	}

	bucketFmt := "%Y-%m-%d"
	if minDate.Valid && maxDate.Valid && maxDate.Time.Sub(minDate.Time) > monthBucketSpan {
		bucketFmt = "%Y-%m"
	}

	target := filepath.Join(w.staging, PartsDirName)
	stmt := fmt.Sprintf(
		"COPY (SELECT *, COALESCE(strftime(%s, '%s'), 'unknown') AS bucket FROM data) TO '%s' (FORMAT PARQUET, PARTITION_BY (bucket))",
		quoteIdent(dateColumn), bucketFmt, escapeSQLString(target))
	if _, err := w.db.Exec(stmt); err != nil {
		return fmt.Errorf("partitioned parquet export failed: %w", err)
	}
	return nil
}

// Close releases the scratch database and removes its file.
func (w *Writer) Close() error {
	err := w.db.Close()
	os.Remove(w.dbPath)
	os.Remove(w.dbPath + ".wal")
	return err
}

func duckType(t models.ColumnType) string {
	switch t {
	case models.ColumnTypeInteger:
		return "BIGINT"
	case models.ColumnTypeFloat:
		return "DOUBLE"
	case models.ColumnTypeDate:
		return "DATE"
	case models.ColumnTypeDatetime:
		return "TIMESTAMP"
	case models.ColumnTypeBoolean:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
