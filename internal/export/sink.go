package export

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/local/partkit/internal/storage"
	"github.com/rs/zerolog/log"
)

// DirSink writes files into a local directory.
type DirSink struct {
	Dir string
}

func (d DirSink) Emit(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	p := filepath.Join(d.Dir, filepath.Base(name))
	tmp, err := os.CreateTemp(d.Dir, ".partkit-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	log.Debug().Str("path", p).Int("size", len(data)).Msg("wrote export file")
	return nil
}

// Uploader stores objects under a key.
type Uploader interface {
	UploadFile(ctx context.Context, key string, data []byte, password string, meta *storage.FileMetadata) error
	Bucket() string
}

// S3Sink uploads files under Prefix, encrypting them when Password is set.
type S3Sink struct {
	Client   Uploader
	Prefix   string
	Password string
}

// Key returns the object key used for name.
func (s S3Sink) Key(name string) string {
	return path.Join(strings.Trim(s.Prefix, "/"), name)
}

func (s S3Sink) Emit(ctx context.Context, name string, data []byte) error {
	contentType := "application/pdf"
	if strings.HasSuffix(strings.ToLower(name), ".zip") {
		contentType = "application/zip"
	}
	meta := &storage.FileMetadata{
		OriginalName: name,
		ContentType:  contentType,
		Size:         int64(len(data)),
		Metadata: map[string]string{
			"created": time.Now().UTC().Format(time.RFC3339),
			"source":  "partkit",
		},
	}
	key := s.Key(name)
	if err := s.Client.UploadFile(ctx, key, data, s.Password, meta); err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", s.Client.Bucket(), key, err)
	}
	return nil
}

// PruneDir removes regular files directly under dir whose modification
// time is older than maxAge. Temp files from interrupted writes are
// included. It returns the number of files removed.
func PruneDir(dir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if now.Sub(info.ModTime()) >= maxAge {
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		log.Info().Str("dir", dir).Int("removed", removed).Msg("pruned old export files")
	}
	return removed
}
