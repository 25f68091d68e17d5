package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/internal/apperr"
	"github.com/storefront/apiserver/types"
)

const (
	maxMultipartMemory = 8 << 20
	maxImageBytes      = 5 << 20
	formFieldFile      = "file"
)

// FileAPI stores and serves product images.
type FileAPI interface {
	UploadProductImage(ctx context.Context, filename string, data []byte) (types.UploadedFile, error)
	OpenProductImage(ctx context.Context, name string) (io.ReadCloser, string, error)
}

// FileHandler provides product image upload and download.
type FileHandler struct {
	files FileAPI
	log   *logrus.Logger
}

func NewFileHandler(files FileAPI, log *logrus.Logger) *FileHandler {
	return &FileHandler{files: files, log: log}
}

func (h *FileHandler) UploadProductImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	filename, data, err := readFormFile(r.MultipartForm, formFieldFile, maxImageBytes)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}

	uploaded, err := h.files.UploadProductImage(r.Context(), filename, data)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploaded)
}

func (h *FileHandler) GetProductImage(w http.ResponseWriter, r *http.Request) {
	reader, contentType, err := h.files.OpenProductImage(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		h.log.WithError(err).Warn("failed to stream product image")
	}
}

func readFormFile(form *multipart.Form, field string, limit int64) (string, []byte, error) {
	if form == nil {
		return "", nil, apperr.Validation("missing form data")
	}

	files := form.File[field]
	if len(files) == 0 {
		return "", nil, apperr.Validation("make sure that the file is an image")
	}
	if len(files) > 1 {
		return "", nil, apperr.Validation("only one file is allowed")
	}

	header := files[0]
	file, err := header.Open()
	if err != nil {
		return "", nil, apperr.Validation("failed to read file")
	}
	defer file.Close()

	data, err := readFileLimited(file, limit)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, errors.Join(apperr.Validation("failed to read upload"), err)
	}
	if int64(len(data)) > limit {
		return nil, apperr.Validation("uploaded file too large")
	}
	return data, nil
}
