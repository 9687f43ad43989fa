package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hypersignal/backend/internal/models"
)

// SQLiteStore implements Store on a single SQLite database file.
//
// Timestamps are stored as RFC3339Nano strings: SQLite has no native
// timestamp type and TEXT round-trips reliably with modernc.org/sqlite.
// Columns and messages are stored as JSON; the store reads and writes
// whole records, so there is nothing to gain from relational message rows.
type SQLiteStore struct {
	db *sql.DB
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	file_id        TEXT PRIMARY KEY,
	filename       TEXT NOT NULL,
	version        INTEGER NOT NULL,
	file_size      INTEGER NOT NULL,
	row_count      INTEGER NOT NULL,
	columns        TEXT NOT NULL,
	store_path     TEXT NOT NULL,
	date_column    TEXT NOT NULL DEFAULT '',
	is_partitioned INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_filename ON files(filename);

CREATE TABLE IF NOT EXISTS chats (
	chat_id    TEXT PRIMARY KEY,
	file_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	messages   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_file ON chats(file_id);

CREATE TABLE IF NOT EXISTS suggestions (
	file_id    TEXT PRIMARY KEY,
	questions  TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// OpenSQLite opens (and if needed initializes) the metadata database.
// Use ":memory:" as the path for an ephemeral store in tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening metadata db: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent chat persistence.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging metadata db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing metadata schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SaveFile inserts a new FileRecord.
func (s *SQLiteStore) SaveFile(ctx context.Context, rec *models.FileRecord) error {
	cols, err := json.Marshal(rec.Columns)
	if err != nil {
		return fmt.Errorf("encoding columns: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO files (file_id, filename, version, file_size, row_count,
			columns, store_path, date_column, is_partitioned, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.FileID, rec.Filename, rec.Version, rec.FileSize, rec.RowCount,
		string(cols), rec.StorePath, rec.DateColumn, boolToInt(rec.IsPartitioned),
		encodeTime(rec.CreatedAt), encodeTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting file record: %w", err)
	}
	return nil
}

const fileColumns = `file_id, filename, version, file_size, row_count,
	columns, store_path, date_column, is_partitioned, created_at, updated_at`

func scanFile(row interface{ Scan(...any) error }) (*models.FileRecord, error) {
	var (
		rec           models.FileRecord
		cols          string
		isPartitioned int
		created, upd  string
	)
	err := row.Scan(&rec.FileID, &rec.Filename, &rec.Version, &rec.FileSize,
		&rec.RowCount, &cols, &rec.StorePath, &rec.DateColumn, &isPartitioned,
		&created, &upd)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cols), &rec.Columns); err != nil {
		return nil, fmt.Errorf("decoding columns: %w", err)
	}
	rec.IsPartitioned = isPartitioned != 0
	rec.CreatedAt = decodeTime(created)
	rec.UpdatedAt = decodeTime(upd)
	return &rec, nil
}

// GetFile returns the record for a file ID.
func (s *SQLiteStore) GetFile(ctx context.Context, fileID string) (*models.FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE file_id = ?`, fileID)
	rec, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading file record: %w", err)
	}
	return rec, nil
}

// ListFiles returns all records, newest first.
func (s *SQLiteStore) ListFiles(ctx context.Context) ([]*models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing file records: %w", err)
	}
	defer rows.Close()

	var out []*models.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("reading file record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// NextVersion returns max(version)+1 for a filename, or 1 when unseen.
func (s *SQLiteStore) NextVersion(ctx context.Context, filename string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM files WHERE filename = ?`, filename).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying versions: %w", err)
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}

// DeleteFile removes a file record.
func (s *SQLiteStore) DeleteFile(ctx context.Context, fileID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("deleting file record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetChat returns a session by ID.
func (s *SQLiteStore) GetChat(ctx context.Context, chatID string) (*models.ChatSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chat_id, file_id, title, messages, created_at, updated_at
		FROM chats WHERE chat_id = ?`, chatID)
	sess, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading chat session: %w", err)
	}
	return sess, nil
}

func scanChat(row interface{ Scan(...any) error }) (*models.ChatSession, error) {
	var (
		sess         models.ChatSession
		messages     string
		created, upd string
	)
	err := row.Scan(&sess.ChatID, &sess.FileID, &sess.Title, &messages, &created, &upd)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messages), &sess.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}
	sess.CreatedAt = decodeTime(created)
	sess.UpdatedAt = decodeTime(upd)
	return &sess, nil
}

// SaveChat upserts a whole session.
func (s *SQLiteStore) SaveChat(ctx context.Context, sess *models.ChatSession) error {
	msgs, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chats (chat_id, file_id, title, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			title = excluded.title,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		sess.ChatID, sess.FileID, sess.Title, string(msgs),
		encodeTime(sess.CreatedAt), encodeTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving chat session: %w", err)
	}
	return nil
}

// ListChatsByFile returns sessions for a file, most recently updated first.
func (s *SQLiteStore) ListChatsByFile(ctx context.Context, fileID string) ([]*models.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, file_id, title, messages, created_at, updated_at
		FROM chats WHERE file_id = ? ORDER BY updated_at DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing chat sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatSession
	for rows.Next() {
		sess, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("reading chat session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListChats returns summaries of all sessions.
func (s *SQLiteStore) ListChats(ctx context.Context) ([]models.ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, file_id, title, messages, created_at, updated_at
		FROM chats ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing chat sessions: %w", err)
	}
	defer rows.Close()

	var out []models.ChatSummary
	for rows.Next() {
		sess, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("reading chat session: %w", err)
		}
		out = append(out, models.ChatSummary{
			ChatID:       sess.ChatID,
			FileID:       sess.FileID,
			Title:        sess.Title,
			MessageCount: len(sess.Messages),
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
		})
	}
	return out, rows.Err()
}

// DeleteChat removes a session; deleting a missing session succeeds.
func (s *SQLiteStore) DeleteChat(ctx context.Context, chatID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("deleting chat session: %w", err)
	}
	return nil
}

// GetSuggestions returns the stored suggestion pool for a file.
func (s *SQLiteStore) GetSuggestions(ctx context.Context, fileID string) ([]string, error) {
	var questions string
	err := s.db.QueryRowContext(ctx,
		`SELECT questions FROM suggestions WHERE file_id = ?`, fileID).Scan(&questions)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading suggestions: %w", err)
	}
	var out []string
	if err := json.Unmarshal([]byte(questions), &out); err != nil {
		return nil, fmt.Errorf("decoding suggestions: %w", err)
	}
	return out, nil
}

// SaveSuggestions replaces the suggestion pool for a file.
func (s *SQLiteStore) SaveSuggestions(ctx context.Context, fileID string, questions []string) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("encoding suggestions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO suggestions (file_id, questions, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			questions = excluded.questions,
			updated_at = excluded.updated_at`,
		fileID, string(data), encodeTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving suggestions: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
