// Package uploads stores event photos on local disk and serves them under /uploads/.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/sanitize"
	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/rs/zerolog"
)

// PublicPrefix is the URL path uploaded photos are served from.
const PublicPrefix = "/uploads/"

const (
	defaultMaxBytes = 5 << 20
	sniffLen        = 512
	maxNameAttempts = 5
)

// ErrTooLarge is returned when an upload exceeds the configured size.
var ErrTooLarge = validation.New("eventPhoto", "file is too large")

// Store writes uploaded photos to a directory.
type Store struct {
	dir      string
	maxBytes int64
	now      func() time.Time
	logger   zerolog.Logger
}

func NewStore(cfg config.UploadsConfig, logger zerolog.Logger) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Store{
		dir:      dir,
		maxBytes: maxBytes,
		now:      time.Now,
		logger:   logger.With().Str("component", "uploads").Logger(),
	}, nil
}

// MaxBytes is the largest accepted upload.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save writes the photo as "<unix-millis>-<name>" and returns its public path.
// Only image content is accepted.
func (s *Store) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", validation.New("eventPhoto", "file is empty")
	}
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		return "", validation.New("eventPhoto", "must be an image")
	}

	file, name, err := s.create(filename)
	if err != nil {
		return "", err
	}
	path := file.Name()

	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(file, io.LimitReader(body, s.maxBytes+1))
	closeErr := file.Close()
	switch {
	case err != nil:
		s.discard(path)
		return "", fmt.Errorf("write upload: %w", err)
	case written > s.maxBytes:
		s.discard(path)
		return "", ErrTooLarge
	case closeErr != nil:
		s.discard(path)
		return "", fmt.Errorf("close upload: %w", closeErr)
	}
	if err := ctx.Err(); err != nil {
		s.discard(path)
		return "", err
	}

	s.logger.Debug().Str("file", name).Int64("bytes", written).Msg("photo stored")
	return PublicPrefix + name, nil
}

// Remove deletes a photo previously returned by Save. References that point
// elsewhere, such as external URLs, are ignored.
func (s *Store) Remove(_ context.Context, ref string) error {
	name, ok := strings.CutPrefix(ref, PublicPrefix)
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove photo: %w", err)
	}
	return nil
}

// Handler serves stored photos. Mount it at PublicPrefix.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(PublicPrefix, http.FileServer(filesOnly{http.Dir(s.dir)}))
}

func (s *Store) create(filename string) (*os.File, string, error) {
	base := sanitize.Filename(filename)
	millis := s.now().UnixMilli()
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := fmt.Sprintf("%d-%s", millis+int64(attempt), base)
		file, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create upload: %w", err)
		}
	}
	return nil, "", fmt.Errorf("create upload: no free name for %q", base)
}

func (s *Store) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove partial upload")
	}
}

// filesOnly hides directory listings.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
