package service

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"egaku/internal/models"
	"egaku/internal/observability"
	"egaku/internal/repository"
	"egaku/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/image/webp"
)

const maxExtLen = 16

type UploadService struct {
	store    storage.Store
	files    repository.FileRepository
	maxBytes int64
	now      func() time.Time
}

type UploadInput struct {
	UserID      uint
	Filename    string
	Size        int64
	ContentType string
	Body        io.Reader
}

func NewUploadService(store storage.Store, files repository.FileRepository, maxBytes int64) *UploadService {
	return &UploadService{store: store, files: files, maxBytes: maxBytes, now: time.Now}
}

// Upload stores the file under a random name that keeps the original extension and
// returns its public URL. WebP files must decode.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (string, error) {
	if in.Body == nil || in.Filename == "" {
		return "", models.NewValidationError("file is required")
	}
	if s.maxBytes > 0 && in.Size > s.maxBytes {
		return "", models.NewValidationError(fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	if len(ext) > maxExtLen || strings.ContainsAny(ext, `/\`) {
		return "", models.NewValidationError("invalid file extension")
	}

	body := bufio.NewReaderSize(in.Body, storage.ChunkSize)
	if ext == ".webp" {
		head, _ := body.Peek(4096)
		if _, err := webp.DecodeConfig(bytes.NewReader(head)); err != nil {
			return "", models.NewValidationError("invalid webp image")
		}
	}

	key := strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	written, err := s.store.Put(ctx, key, body, in.Size, in.ContentType)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	observability.UploadBytes.WithLabelValues(s.store.Name()).Add(float64(written))

	url := s.store.URL(key)
	if err := s.files.Create(ctx, &models.UploadedFile{
		URL:        url,
		Filename:   filepath.Base(in.Filename),
		StorageKey: key,
		Size:       written,
		UserID:     in.UserID,
		UploadTime: s.now(),
	}); err != nil {
		return "", err
	}
	return url, nil
}
