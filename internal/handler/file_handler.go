package handler

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/labstack/echo/v4"

	"tprm-service/internal/middleware"
	"tprm-service/internal/service"
	"tprm-service/internal/storage"
	"tprm-service/internal/storage/pdfmerge"
)

// presignExpiry is the lifetime of generated download URLs.
const presignExpiry = 15 * time.Minute

// FileHandler exposes the storage gateway: upload, presign and PDF merge.
type FileHandler struct {
	files *storage.FileService
}

func NewFileHandler(files *storage.FileService) *FileHandler {
	return &FileHandler{files: files}
}

// Upload handles POST /files (multipart form, field "file").
func (h *FileHandler) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "a file field is required")
	}
	if err := storage.ValidateUpload(fileHeader.Filename, fileHeader.Size); err != nil {
		return badRequest(c, err.Error())
	}

	src, err := fileHeader.Open()
	if err != nil {
		return fail(c, err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, storage.MaxUploadBytes+1))
	if err != nil {
		return fail(c, err)
	}
	if len(data) > storage.MaxUploadBytes {
		return badRequest(c, fmt.Sprintf("file exceeds the %d byte limit", storage.MaxUploadBytes))
	}

	customName := c.FormValue("custom_name")
	if customName == "" {
		customName = fileHeader.Filename
	}

	result, err := h.files.Upload(c.Request().Context(), middleware.TenantID(c), middleware.UserID(c), data, customName)
	if err != nil {
		return fail(c, fmt.Errorf("%w: %v", service.ErrUpstream, err))
	}
	return created(c, result)
}

type presignRequest struct {
	S3Key string `json:"s3_key"`
}

// Presign handles POST /files/presign.
func (h *FileHandler) Presign(c echo.Context) error {
	var req presignRequest
	if err := c.Bind(&req); err != nil || req.S3Key == "" {
		return badRequest(c, "s3_key is required")
	}

	url, err := h.files.Presign(c.Request().Context(), middleware.TenantID(c), middleware.UserID(c), req.S3Key, presignExpiry)
	if err != nil {
		return fail(c, fmt.Errorf("%w: %v", service.ErrUpstream, err))
	}
	return ok(c, echo.Map{"url": url, "expires_in_seconds": int(presignExpiry.Seconds())})
}

// MergePDFs handles POST /files/merge-pdfs (multipart, repeated "files"
// field). The uploaded documents are converted to PDF, concatenated in form
// order and the merged blob stored back in the gateway.
func (h *FileHandler) MergePDFs(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "multipart form with a files field is required")
	}
	headers := form.File["files"]
	if len(headers) < 2 {
		return badRequest(c, "at least 2 files are required")
	}

	inputs := make([]pdfmerge.Input, 0, len(headers))
	for _, fh := range headers {
		if err := storage.ValidateUpload(fh.Filename, fh.Size); err != nil {
			return badRequest(c, err.Error())
		}
		src, err := fh.Open()
		if err != nil {
			return fail(c, err)
		}
		data, err := io.ReadAll(io.LimitReader(src, storage.MaxUploadBytes+1))
		src.Close()
		if err != nil {
			return fail(c, err)
		}
		inputs = append(inputs, pdfmerge.Input{Name: fh.Filename, Data: data})
	}

	result, err := pdfmerge.Merge(inputs)
	if err != nil {
		if errors.Is(err, pdfmerge.ErrInsufficientInputs) {
			return fail(c, service.ErrInsufficientInputs)
		}
		return fail(c, err)
	}

	mergedName := c.FormValue("custom_name")
	if mergedName == "" {
		mergedName = fmt.Sprintf("merged-%d.pdf", time.Now().Unix())
	}
	upload, err := h.files.Upload(c.Request().Context(), middleware.TenantID(c), middleware.UserID(c), result.PDF, mergedName)
	if err != nil {
		return fail(c, fmt.Errorf("%w: %v", service.ErrUpstream, err))
	}

	return created(c, echo.Map{
		"merged":        upload,
		"failed_inputs": result.Failed,
	})
}
