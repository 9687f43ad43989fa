// Package engine executes validated SQL against ingested parquet stores.
// Each file gets an in-memory DuckDB handle exposing a single view named
// data; handles are cached with a sliding TTL and closed on eviction.
package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/marcboeker/go-duckdb"

	"github.com/hypersignal/backend/internal/columnar"
	"github.com/hypersignal/backend/internal/config"
	"github.com/hypersignal/backend/internal/models"
)

// TimeoutError marks a query cancelled for exceeding the execution
// time budget.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query exceeded the %s execution limit", e.Limit)
}

// Result is the outcome of one query execution. Rows hold JSON-ready
// values: numbers, strings, bools, and nil. A result cut off at the row
// cap is flagged Truncated but still returned.
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	TotalRows int      `json:"total_rows"`
	Truncated bool     `json:"truncated"`
}

// Engine owns the per-file DuckDB handles.
type Engine struct {
	cfg     *config.Config
	store   *columnar.Store
	handles *ttlcache.Cache[string, *sql.DB]
	openMu  sync.Mutex
	log     *slog.Logger
}

// NewEngine creates an Engine and starts its handle janitor.
func NewEngine(cfg *config.Config, store *columnar.Store, log *slog.Logger) *Engine {
	handles := ttlcache.New[string, *sql.DB](
		ttlcache.WithTTL[string, *sql.DB](time.Duration(cfg.Query.HandleTTL) * time.Minute),
	)
	handles.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, *sql.DB]) {
		item.Value().Close()
	})
	go handles.Start()

	return &Engine{
		cfg:     cfg,
		store:   store,
		handles: handles,
		log:     log.With("component", "engine"),
	}
}

// Execute validates query and runs it against rec's data view.
func (e *Engine) Execute(ctx context.Context, rec *models.FileRecord, query string) (*Result, error) {
	if err := ValidateSQL(query); err != nil {
		return nil, err
	}
	return e.run(ctx, rec, query)
}

// Preview returns the first limit rows of rec without validation
// overhead.
func (e *Engine) Preview(ctx context.Context, rec *models.FileRecord, limit int) (*Result, error) {
	if limit < 1 || limit > e.cfg.Query.MaxResultRows {
		limit = e.cfg.Query.MaxResultRows
	}
	return e.run(ctx, rec, fmt.Sprintf("SELECT * FROM data LIMIT %d", limit))
}

func (e *Engine) run(ctx context.Context, rec *models.FileRecord, query string) (*Result, error) {
	db, err := e.handle(rec)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout())
	defer cancel()

	start := time.Now()
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Limit: e.cfg.QueryTimeout()}
		}
		// A cancelled request is not a query defect.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &SyntaxError{Message: duckdbMessage(err)}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: columns, Rows: make([][]any, 0, 64)}
	scan := make([]any, len(columns))
	for i := range scan {
		scan[i] = new(any)
	}

	for rows.Next() {
		if len(res.Rows) >= e.cfg.Query.MaxResultRows {
			res.Truncated = true
			break
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		out := make([]any, len(scan))
		for i, v := range scan {
			out[i] = sanitizeValue(*(v.(*any)))
		}
		res.Rows = append(res.Rows, out)
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Limit: e.cfg.QueryTimeout()}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	res.TotalRows = len(res.Rows)

	e.log.Debug("query executed",
		"file_id", rec.FileID,
		"rows", res.TotalRows,
		"truncated", res.Truncated,
		"duration", time.Since(start))
	return res, nil
}

// handle returns the cached DuckDB handle for rec, opening one on miss.
// Gets extend the TTL, so handles stay warm under active chat sessions.
func (e *Engine) handle(rec *models.FileRecord) (*sql.DB, error) {
	if item := e.handles.Get(rec.FileID); item != nil {
		return item.Value(), nil
	}

	e.openMu.Lock()
	defer e.openMu.Unlock()
	if item := e.handles.Get(rec.FileID); item != nil {
		return item.Value(), nil
	}

	db, err := e.open(rec)
	if err != nil {
		return nil, err
	}
	e.handles.Set(rec.FileID, db, ttlcache.DefaultTTL)
	e.log.Debug("opened query handle", "file_id", rec.FileID, "partitioned", rec.IsPartitioned)
	return db, nil
}

func (e *Engine) open(rec *models.FileRecord) (*sql.DB, error) {
	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", e.cfg.Query.DuckDBMemoryCap),
			fmt.Sprintf("PRAGMA threads=%d", e.cfg.Query.DuckDBThreads),
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

	var view string
	if rec.IsPartitioned {
		view = fmt.Sprintf(
			"CREATE VIEW data AS SELECT * EXCLUDE (bucket) FROM read_parquet('%s', hive_partitioning=1)",
			escapeSQLString(e.store.PartsGlob(rec.FileID)))
	} else {
		view = fmt.Sprintf(
			"CREATE VIEW data AS SELECT * FROM read_parquet('%s')",
			escapeSQLString(e.store.ParquetPath(rec.FileID)))
	}
	if _, err := db.Exec(view); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create data view: %w", err)
	}
	return db, nil
}

// Evict closes and drops the handle for fileID, if any. Called when a
// file is deleted so its parquet directory can be removed.
func (e *Engine) Evict(fileID string) {
	e.handles.Delete(fileID)
}

// Close drops all handles.
func (e *Engine) Close() {
	e.handles.Stop()
	e.handles.DeleteAll()
}

// sanitizeValue maps driver values onto JSON-encodable ones. NaN and
// infinities have no JSON representation and become nil.
func sanitizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		return sanitizeValue(float64(x))
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	case duckdb.Decimal:
		return x.Float64()
	default:
		return v
	}
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// duckdbMessage trims driver prefixes off an execution error so the
// message shown to the model and the user starts at the useful part.
func duckdbMessage(err error) string {
	msg := err.Error()
	for _, prefix := range []string{"duckdb: ", "Binder Error: ", "Parser Error: "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}
