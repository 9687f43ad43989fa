// handlers_files.go - File upload and retrieval handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hypersignal/backend/internal/metastore"
	"github.com/hypersignal/backend/internal/models"
)

// previewDefaultRows is the default page size of the data preview.
const previewDefaultRows = 100

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	meta     metastore.Store
	ingestor Ingestor
	engine   QueryEngine
	cleanup  func(fileID string) error
}

// NewFileHandler creates a new file handler instance. cleanup removes a
// file's columnar store after its record is deleted.
func NewFileHandler(meta metastore.Store, ingestor Ingestor, engine QueryEngine, cleanup func(fileID string) error) FileHandler {
	return &FileHandlerImpl{
		meta:     meta,
		ingestor: ingestor,
		engine:   engine,
		cleanup:  cleanup,
	}
}

// HandleUploadFile accepts a multipart upload and runs ingestion
// synchronously, returning the created FileRecord.
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("multipart field \"file\" is required", err)
	}

	src, err := fh.Open()
	if err != nil {
		return NewBadRequestError("failed to open uploaded file", err)
	}
	defer src.Close()

	rec, err := h.ingestor.Ingest(c.Request().Context(), fh.Filename, src)
	if err != nil {
		return MapDomainError(err)
	}

	return c.JSON(http.StatusCreated, models.FileUploadResponse{
		FileID:   rec.FileID,
		Filename: rec.Filename,
		Version:  rec.Version,
		RowCount: rec.RowCount,
		Columns:  rec.Columns,
		Message:  "file ingested successfully",
	})
}

// HandleListFiles returns all file records, newest first.
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	files, err := h.meta.ListFiles(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"files": files})
}

// HandleGetFile returns one file record.
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	rec, err := h.meta.GetFile(c.Request().Context(), id)
	if err != nil {
		return MapDomainError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleGetFileData returns a capped preview of the file's rows.
func (h *FileHandlerImpl) HandleGetFileData(c echo.Context) error {
	res, err := h.previewData(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// HandleGetFileDataMsgpack returns the preview in MessagePack format for
// clients rendering large grids.
func (h *FileHandlerImpl) HandleGetFileDataMsgpack(c echo.Context) error {
	res, err := h.previewData(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(res)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func (h *FileHandlerImpl) previewData(c echo.Context) (any, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = previewDefaultRows
	}

	ctx := c.Request().Context()
	rec, err := h.meta.GetFile(ctx, id)
	if err != nil {
		return nil, MapDomainError(err)
	}

	res, err := h.engine.Preview(ctx, rec, limit)
	if err != nil {
		return nil, MapDomainError(err)
	}
	return res, nil
}

// HandleDeleteFile removes a file record and its columnar store. Chat
// sessions referencing the file are kept.
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	ctx := c.Request().Context()
	if err := h.meta.DeleteFile(ctx, id); err != nil {
		return MapDomainError(err)
	}

	h.engine.Evict(id)
	if err := h.cleanup(id); err != nil {
		return NewInternalError("failed to remove file data", err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted", "file_id": id})
}
