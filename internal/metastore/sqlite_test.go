package metastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypersignal/backend/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(fileID, filename string, version int) *models.FileRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.FileRecord{
		FileID:   fileID,
		Filename: filename,
		Version:  version,
		FileSize: 1234,
		RowCount: 100,
		Columns: []models.ColumnInfo{
			{Name: "date", Type: models.ColumnTypeDate, Nullable: false, SampleValues: []string{"2024-01-01"}},
			{Name: "region", Type: models.ColumnTypeString, Nullable: false, SampleValues: []string{"seoul"}},
			{Name: "amount", Type: models.ColumnTypeFloat, Nullable: true, SampleValues: []string{"10.5"}},
		},
		StorePath:  "/tmp/store/" + fileID,
		DateColumn: "date",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSQLiteStore_FileRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("f1", "sales.csv", 1)
	require.NoError(t, store.SaveFile(ctx, rec))

	got, err := store.GetFile(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, rec.Filename, got.Filename)
	assert.Equal(t, rec.Columns, got.Columns)
	assert.Equal(t, rec.DateColumn, got.DateColumn)
	assert.Equal(t, rec.RowCount, got.RowCount)
	assert.False(t, got.IsPartitioned)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestSQLiteStore_GetFileNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetFile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Versioning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.NextVersion(ctx, "sales.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, store.SaveFile(ctx, sampleRecord("f1", "sales.csv", 1)))

	v, err = store.NextVersion(ctx, "sales.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	require.NoError(t, store.SaveFile(ctx, sampleRecord("f2", "sales.csv", 2)))

	// Both versions remain listed; the first is untouched.
	files, err := store.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)

	versions := map[int]bool{}
	for _, f := range files {
		assert.Equal(t, "sales.csv", f.Filename)
		versions[f.Version] = true
	}
	assert.True(t, versions[1])
	assert.True(t, versions[2])

	// Unrelated filenames version independently.
	v, err = store.NextVersion(ctx, "other.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestSQLiteStore_DeleteFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveFile(ctx, sampleRecord("f1", "sales.csv", 1)))
	require.NoError(t, store.DeleteFile(ctx, "f1"))

	_, err := store.GetFile(ctx, "f1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.DeleteFile(ctx, "f1"), ErrNotFound)
}

func TestSQLiteStore_ChatRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	sess := &models.ChatSession{
		ChatID: "c1",
		FileID: "f1",
		Title:  "총 판매액은?",
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: "총 판매액은?", Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.SaveChat(ctx, sess))

	got, err := store.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, sess.Title, got.Title)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, models.RoleUser, got.Messages[0].Role)

	// Upsert with an appended assistant message.
	sess.Messages = append(sess.Messages, models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   "총 판매액은 1,000원입니다.",
		Timestamp: now.Add(time.Second),
		SQLQuery:  `SELECT SUM("amount") FROM data`,
	})
	sess.UpdatedAt = now.Add(time.Second)
	require.NoError(t, store.SaveChat(ctx, sess))

	got, err = store.GetChat(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, `SELECT SUM("amount") FROM data`, got.Messages[1].SQLQuery)
}

func TestSQLiteStore_ChatSurvivesFileDeletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveFile(ctx, sampleRecord("f1", "sales.csv", 1)))

	now := time.Now().UTC()
	require.NoError(t, store.SaveChat(ctx, &models.ChatSession{
		ChatID:    "c1",
		FileID:    "f1",
		Title:     "hello",
		Messages:  []models.ChatMessage{{Role: models.RoleUser, Content: "hi", Timestamp: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}))

	require.NoError(t, store.DeleteFile(ctx, "f1"))

	// History stays readable after the backing file is gone.
	got, err := store.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "f1", got.FileID)

	_, err = store.GetFile(ctx, got.FileID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_DeleteChatIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.SaveChat(ctx, &models.ChatSession{
		ChatID: "c1", FileID: "f1", Title: "t",
		Messages: []models.ChatMessage{}, CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, store.DeleteChat(ctx, "c1"))
	// A second delete of the same session still succeeds.
	require.NoError(t, store.DeleteChat(ctx, "c1"))
	require.NoError(t, store.DeleteChat(ctx, "never-existed"))
}

func TestSQLiteStore_ListChats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"c1", "c2"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveChat(ctx, &models.ChatSession{
			ChatID: id, FileID: "f1", Title: id,
			Messages:  []models.ChatMessage{{Role: models.RoleUser, Content: "q", Timestamp: ts}},
			CreatedAt: ts, UpdatedAt: ts,
		}))
	}

	summaries, err := store.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	// Most recently updated first.
	assert.Equal(t, "c2", summaries[0].ChatID)
	assert.Equal(t, 1, summaries[0].MessageCount)

	byFile, err := store.ListChatsByFile(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, byFile, 2)

	byFile, err = store.ListChatsByFile(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, byFile)
}

func TestSQLiteStore_Suggestions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetSuggestions(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, got)

	pool := []string{"월별 판매액 추이를 보여주세요", "지역별 합계를 비교해주세요"}
	require.NoError(t, store.SaveSuggestions(ctx, "f1", pool))

	got, err = store.GetSuggestions(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, pool, got)
}
