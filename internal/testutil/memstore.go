// memstore.go - In-memory metastore implementation for testing
package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/hypersignal/backend/internal/metastore"
	"github.com/hypersignal/backend/internal/models"
)

// MemStore implements metastore.Store in memory.
type MemStore struct {
	mu          sync.RWMutex
	files       map[string]*models.FileRecord
	chats       map[string]*models.ChatSession
	suggestions map[string][]string
}

var _ metastore.Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		files:       make(map[string]*models.FileRecord),
		chats:       make(map[string]*models.ChatSession),
		suggestions: make(map[string][]string),
	}
}

func (m *MemStore) SaveFile(_ context.Context, rec *models.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.files[rec.FileID] = &cp
	return nil
}

func (m *MemStore) GetFile(_ context.Context, fileID string) (*models.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.files[fileID]
	if !ok {
		return nil, metastore.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemStore) ListFiles(_ context.Context) ([]*models.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.FileRecord, 0, len(m.files))
	for _, rec := range m.files {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) NextVersion(_ context.Context, filename string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, rec := range m.files {
		if rec.Filename == filename && rec.Version > max {
			max = rec.Version
		}
	}
	return max + 1, nil
}

func (m *MemStore) DeleteFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[fileID]; !ok {
		return metastore.ErrNotFound
	}
	delete(m.files, fileID)
	return nil
}

func (m *MemStore) GetChat(_ context.Context, chatID string) (*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.chats[chatID]
	if !ok {
		return nil, metastore.ErrNotFound
	}
	cp := *sess
	cp.Messages = append([]models.ChatMessage(nil), sess.Messages...)
	return &cp, nil
}

func (m *MemStore) SaveChat(_ context.Context, sess *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sess
	cp.Messages = append([]models.ChatMessage(nil), sess.Messages...)
	m.chats[sess.ChatID] = &cp
	return nil
}

func (m *MemStore) ListChatsByFile(_ context.Context, fileID string) ([]*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.ChatSession, 0)
	for _, sess := range m.chats {
		if sess.FileID != fileID {
			continue
		}
		cp := *sess
		cp.Messages = append([]models.ChatMessage(nil), sess.Messages...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemStore) ListChats(_ context.Context) ([]models.ChatSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ChatSummary, 0, len(m.chats))
	for _, sess := range m.chats {
		out = append(out, models.ChatSummary{
			ChatID:       sess.ChatID,
			FileID:       sess.FileID,
			Title:        sess.Title,
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
			MessageCount: len(sess.Messages),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemStore) DeleteChat(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, chatID)
	return nil
}

func (m *MemStore) GetSuggestions(_ context.Context, fileID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.suggestions[fileID]...), nil
}

func (m *MemStore) SaveSuggestions(_ context.Context, fileID string, questions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suggestions[fileID] = append([]string(nil), questions...)
	return nil
}

func (m *MemStore) Close() error { return nil }
