// Package columnar manages the on-disk parquet store that query
// execution reads from. Each ingested file version owns one directory
// keyed by file ID, holding either a single data.parquet or a
// hive-partitioned parts/ tree for large datasets.
package columnar

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	// SingleFileName is the parquet file written for unpartitioned data.
	SingleFileName = "data.parquet"
	// PartsDirName holds the hive-partitioned tree for partitioned data.
	PartsDirName = "parts"
)

// Store lays out parquet directories under a single root. Writes land in
// a staging directory first and become visible with a rename, so a crash
// mid-ingestion never leaves a half-written store behind a live file ID.
type Store struct {
	root string
}

// NewStore creates the store root (and its staging area) if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "tmp"), 0755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// NewStaging allocates an empty staging directory for one ingestion.
func (s *Store) NewStaging() (string, error) {
	dir := filepath.Join(s.root, "tmp", uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}
	return dir, nil
}

// SaveUpload streams an uploaded file into the staging area and returns
// its path. The name keeps the original extension so the reader can
// dispatch on it.
func (s *Store) SaveUpload(staging, originalName string, r io.Reader) (string, int64, error) {
	path := filepath.Join(staging, "upload"+filepath.Ext(originalName))

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("creating upload file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("writing upload file: %w", err)
	}
	return path, size, nil
}

// Publish moves a completed staging directory to its final location
// under fileID. The rename is the commit point of an ingestion.
func (s *Store) Publish(staging, fileID string) (string, error) {
	final := s.PathFor(fileID)
	if err := os.RemoveAll(final); err != nil {
		return "", fmt.Errorf("clearing store path: %w", err)
	}
	if err := os.Rename(staging, final); err != nil {
		return "", fmt.Errorf("publishing store path: %w", err)
	}
	return final, nil
}

// Discard removes a staging directory after a failed ingestion.
func (s *Store) Discard(staging string) {
	os.RemoveAll(staging)
}

// PathFor returns the directory that holds fileID's parquet data.
func (s *Store) PathFor(fileID string) string {
	return filepath.Join(s.root, fileID)
}

// ParquetPath returns the single-file parquet path for fileID.
func (s *Store) ParquetPath(fileID string) string {
	return filepath.Join(s.root, fileID, SingleFileName)
}

// PartsGlob returns the recursive glob matching fileID's partition files.
func (s *Store) PartsGlob(fileID string) string {
	return filepath.Join(s.root, fileID, PartsDirName, "**", "*.parquet")
}

// Delete removes fileID's data directory. Missing directories are not an
// error so deletes stay idempotent.
func (s *Store) Delete(fileID string) error {
	if err := os.RemoveAll(s.PathFor(fileID)); err != nil {
		return fmt.Errorf("deleting store path: %w", err)
	}
	return nil
}
