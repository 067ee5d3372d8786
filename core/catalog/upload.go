package catalog

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"Bt1QMedia/core/apperr"
	"Bt1QMedia/core/audio"
	"Bt1QMedia/logger"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// UploadPolicy limits what admins may upload.
type UploadPolicy struct {
	MaxBytes    int64
	AllowedExts []string // lower-case with leading dot; empty allows any extension
}

func (p UploadPolicy) allows(ext string) bool {
	if len(p.AllowedExts) == 0 {
		return true
	}
	for _, allowed := range p.AllowedExts {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

// UploadResult describes a stored upload.
type UploadResult struct {
	FilePath string         `json:"file_path"`
	Size     int64          `json:"size"`
	Metadata audio.Metadata `json:"metadata"`
}

// SanitizeFilename slugs the base name and keeps the (lower-cased) extension.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(name))
	base := slug.Make(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "file"
	}
	if slug.Make(strings.TrimPrefix(ext, ".")) == "" {
		ext = ""
	}
	return base + ext
}

// Upload stores a media file under a sanitized, collision-free key and probes MP3 metadata.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, apperr.BadRequestf("No file selected")
	}
	key := SanitizeFilename(filename)
	ext := filepath.Ext(key)
	if !s.uploads.allows(ext) {
		return nil, apperr.BadRequestf("Invalid file type. Allowed: %s", strings.Join(s.uploads.AllowedExts, ", "))
	}

	// Spool to disk: probing needs to seek and the object stores want a size.
	tmp, err := os.CreateTemp("", "bt1qmedia-upload-*")
	if err != nil {
		return nil, apperr.Wrap(err, "failed to buffer upload")
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	limit := s.uploads.MaxBytes
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	size, err := io.Copy(tmp, src)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to read upload")
	}
	if limit > 0 && size > limit {
		return nil, apperr.BadRequestf("File too large")
	}
	if size == 0 {
		return nil, apperr.BadRequestf("File is empty")
	}

	var md audio.Metadata
	if audio.IsMP3(key) {
		if md, err = audio.ProbeMP3(tmp); err != nil {
			logger.Warn("[Upload] could not read mp3 metadata", logger.String("file", key), logger.ErrorField(err))
		}
	}

	exists, err := s.objects.Exists(ctx, key)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to check existing file")
	}
	if exists {
		key = strings.TrimSuffix(key, ext) + "-" + uuid.NewString()[:8] + ext
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, apperr.Wrap(err, "failed to rewind upload")
	}
	if err := s.objects.Put(ctx, key, tmp, size, contentTypeFor(key)); err != nil {
		return nil, apperr.Wrap(err, "failed to store upload")
	}

	logger.Info("[Upload] file stored",
		logger.String("file", key),
		logger.Int64("size", size),
		logger.Int("duration", md.Duration))
	return &UploadResult{FilePath: key, Size: size, Metadata: md}, nil
}
