package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/internal/apperr"
	"github.com/storefront/apiserver/internal/storage"
	"github.com/storefront/apiserver/types"
)

const productImagePrefix = "products/"

var (
	allowedImageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
	imageNamePattern = regexp.MustCompile(`^[a-f0-9]{64}\.(jpg|jpeg|png|gif|webp)$`)
)

// ObjectStore is the subset of object storage used for product images.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// FileService stores product images under content-addressed keys.
type FileService struct {
	store         ObjectStore
	publicBaseURL string
	log           *logrus.Logger
}

func NewFileService(store ObjectStore, publicBaseURL string, log *logrus.Logger) *FileService {
	return &FileService{
		store:         store,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		log:           log,
	}
}

// UploadProductImage stores data and returns the URL to reference it by.
// Uploading the same bytes twice yields the same key.
func (s *FileService) UploadProductImage(ctx context.Context, filename string, data []byte) (types.UploadedFile, error) {
	if len(data) == 0 {
		return types.UploadedFile{}, apperr.Validation("file is empty")
	}

	ext := strings.ToLower(path.Ext(filename))
	if !allowedImageExts[ext] {
		return types.UploadedFile{}, apperr.Validation("file extension %q is not allowed", ext)
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return types.UploadedFile{}, apperr.Validation("file is not an image")
	}

	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + ext
	key := productImagePrefix + name

	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		s.log.WithError(err).WithField("key", key).Error("failed to upload product image")
		return types.UploadedFile{}, apperr.Persistence(err, "failed to upload file")
	}

	return types.UploadedFile{
		SecureURL: s.publicBaseURL + "/api/files/product/" + name,
		Key:       key,
	}, nil
}

// OpenProductImage returns a reader for a previously uploaded image and its content type.
func (s *FileService) OpenProductImage(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if !imageNamePattern.MatchString(name) {
		return nil, "", apperr.NotFound("file %q not found", name)
	}

	reader, err := s.store.Get(ctx, productImagePrefix+name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", apperr.NotFound("file %q not found", name)
		}
		s.log.WithError(err).WithField("name", name).Error("failed to read product image")
		return nil, "", apperr.Persistence(err, "failed to read file")
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return reader, contentType, nil
}
