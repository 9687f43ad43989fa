package models

import "time"

// ColumnType is the inferred logical type of a column.
type ColumnType string

const (
	ColumnTypeString   ColumnType = "string"
	ColumnTypeInteger  ColumnType = "integer"
	ColumnTypeFloat    ColumnType = "float"
	ColumnTypeDate     ColumnType = "date"
	ColumnTypeDatetime ColumnType = "datetime"
	ColumnTypeBoolean  ColumnType = "boolean"
)

// IsNumeric reports whether values of this type can be charted.
func (t ColumnType) IsNumeric() bool {
	return t == ColumnTypeInteger || t == ColumnTypeFloat
}

// IsTemporal reports whether this type carries a date component.
func (t ColumnType) IsTemporal() bool {
	return t == ColumnTypeDate || t == ColumnTypeDatetime
}

// ColumnInfo describes one column of an ingested file.
type ColumnInfo struct {
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	Nullable     bool       `json:"nullable"`
	SampleValues []string   `json:"sample_values,omitempty"`
}

// FileRecord is the durable metadata for one ingested file version.
// Records are immutable once created; re-uploading the same filename
// creates a new version instead of overwriting.
type FileRecord struct {
	FileID        string       `json:"file_id"`
	Filename      string       `json:"filename"`
	Version       int          `json:"version"`
	FileSize      int64        `json:"file_size"`
	RowCount      int64        `json:"row_count"`
	Columns       []ColumnInfo `json:"columns"`
	StorePath     string       `json:"store_path"`
	DateColumn    string       `json:"date_column,omitempty"`
	IsPartitioned bool         `json:"is_partitioned"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ColumnNames returns the ordered column names.
func (r *FileRecord) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the ColumnInfo with the given name, if present.
func (r *FileRecord) Column(name string) (ColumnInfo, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// FileUploadResponse is returned by the upload endpoint.
type FileUploadResponse struct {
	FileID   string       `json:"file_id"`
	Filename string       `json:"filename"`
	Version  int          `json:"version"`
	RowCount int64        `json:"row_count"`
	Columns  []ColumnInfo `json:"columns"`
	Message  string       `json:"message"`
}
