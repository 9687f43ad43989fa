package ingest

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/xuri/excelize/v2"
)

// RowReader iterates a tabular source as rows of raw cell strings. Next
// returns io.EOF after the last row. Rows may be shorter than the header
// when trailing cells are empty.
type RowReader interface {
	Columns() []string
	Next() ([]string, error)
	Close() error
}

// SupportedExtension reports whether ext (with leading dot, any case)
// names a format the ingester can read.
func SupportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".csv", ".xlsx", ".xls", ".parquet":
		return true
	}
	return false
}

// OpenRowReader opens path with a reader chosen by file extension.
func OpenRowReader(path string) (RowReader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return openCSV(path)
	case ".xlsx", ".xls":
		return openExcel(path)
	case ".parquet":
		return openParquet(path)
	default:
		return nil, fmt.Errorf("unsupported file extension %q", filepath.Ext(path))
	}
}

type csvReader struct {
	f       *os.File
	r       *csv.Reader
	columns []string
}

func openCSV(path string) (*csvReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}

	r := csv.NewReader(DecodeReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("csv file %s is empty", filepath.Base(path))
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}
	return &csvReader{f: f, r: r, columns: columns}, nil
}

func (c *csvReader) Columns() []string { return c.columns }

func (c *csvReader) Next() ([]string, error) {
	rec, err := c.r.Read()
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *csvReader) Close() error { return c.f.Close() }

type excelReader struct {
	f       *excelize.File
	rows    *excelize.Rows
	columns []string
}

func openExcel(path string) (*excelReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("workbook %s has no sheets", filepath.Base(path))
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	if !rows.Next() {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}
	header, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("read header row: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}
	return &excelReader{f: f, rows: rows, columns: columns}, nil
}

func (e *excelReader) Columns() []string { return e.columns }

func (e *excelReader) Next() ([]string, error) {
	if !e.rows.Next() {
		if err := e.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	cells, err := e.rows.Columns()
	if err != nil {
		return nil, err
	}
	return cells, nil
}

func (e *excelReader) Close() error {
	e.rows.Close()
	return e.f.Close()
}

// parquetReader scans a parquet file through an in-memory DuckDB
// connection and stringifies every value, so the same inference path
// handles all formats uniformly.
type parquetReader struct {
	db      *sql.DB
	rows    *sql.Rows
	columns []string
	scan    []any
}

func openParquet(path string) (*parquetReader, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	rows, err := db.Query("SELECT * FROM read_parquet(?)", path)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read parquet: %w", err)
	}

	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		db.Close()
		return nil, fmt.Errorf("parquet columns: %w", err)
	}

	scan := make([]any, len(columns))
	for i := range scan {
		scan[i] = new(any)
	}
	return &parquetReader{db: db, rows: rows, columns: columns, scan: scan}, nil
}

func (p *parquetReader) Columns() []string { return p.columns }

func (p *parquetReader) Next() ([]string, error) {
	if !p.rows.Next() {
		if err := p.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	if err := p.rows.Scan(p.scan...); err != nil {
		return nil, err
	}

	out := make([]string, len(p.scan))
	for i, v := range p.scan {
		out[i] = stringifyCell(*(v.(*any)))
	}
	return out, nil
}

func (p *parquetReader) Close() error {
	p.rows.Close()
	return p.db.Close()
}

func stringifyCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", x)
	}
}
