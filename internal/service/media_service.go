package service

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/vlm"
	"github.com/google/uuid"
)

// Sentinel errors for media uploads.
var (
	ErrUnsupportedFileType = newError(ErrValidation, "unsupported file type")
	ErrFileTooLarge        = newError(ErrValidation, "file too large")
)

// Allowed exam photo types, detected from content.
var allowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// MediaService stores uploaded exam photos on local disk.
type MediaService struct {
	cfg *config.Config
}

// NewMediaService creates a new MediaService.
func NewMediaService(cfg *config.Config) *MediaService {
	return &MediaService{cfg: cfg}
}

// SaveExamPhotos validates and writes the photos under
// UPLOAD_DIR/exam_photos/<unix-millis>/ with uuid filenames, returning their contents.
func (s *MediaService) SaveExamPhotos(files []*multipart.FileHeader) ([]vlm.Image, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if s.cfg.MaxUploadFiles > 0 && len(files) > s.cfg.MaxUploadFiles {
		return nil, fmt.Errorf("%w: %d (max: %d)", ErrTooManyFiles, len(files), s.cfg.MaxUploadFiles)
	}

	dir := filepath.Join(s.cfg.UploadDir, "exam_photos", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	images := make([]vlm.Image, 0, len(files))
	for _, fh := range files {
		img, err := s.readPhoto(fh)
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}

		name := uuid.New().String() + allowedMIMETypes[img.MIMEType]
		if err := os.WriteFile(filepath.Join(dir, name), img.Data, 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("write file: %w", err)
		}
		img.Filename = name
		images = append(images, img)
	}
	return images, nil
}

func (s *MediaService) readPhoto(fh *multipart.FileHeader) (vlm.Image, error) {
	if fh.Size > s.cfg.MaxUploadBytes {
		return vlm.Image{}, fmt.Errorf("%w: %s is %d bytes (max: %d)", ErrFileTooLarge, fh.Filename, fh.Size, s.cfg.MaxUploadBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return vlm.Image{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return vlm.Image{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return vlm.Image{}, fmt.Errorf("%w: %s", ErrFileTooLarge, fh.Filename)
	}

	mimeType := http.DetectContentType(data)
	if _, ok := allowedMIMETypes[mimeType]; !ok {
		return vlm.Image{}, fmt.Errorf("%w: %s (allowed: image/jpeg, image/png)", ErrUnsupportedFileType, mimeType)
	}
	return vlm.Image{MIMEType: mimeType, Data: data}, nil
}

// UploadDirWritable reports whether files can be created in the upload root.
func (s *MediaService) UploadDirWritable() error {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(s.cfg.UploadDir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
