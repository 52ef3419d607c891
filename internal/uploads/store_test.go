package uploads

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestStore(t *testing.T, maxBytes int64) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(config.UploadsConfig{Dir: dir, MaxBytes: maxBytes}, zerolog.Nop())
	require.NoError(t, err)
	store.now = func() time.Time { return time.UnixMilli(1767225600000) }
	return store, dir
}

func TestSave_WritesTimestampedName(t *testing.T) {
	store, dir := newTestStore(t, 1024)

	ref, err := store.Save(context.Background(), "../My Photo.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	require.Equal(t, "/uploads/1767225600000-My_Photo.png", ref)

	data, err := os.ReadFile(filepath.Join(dir, "1767225600000-My_Photo.png"))
	require.NoError(t, err)
	require.Equal(t, pngHeader, data)
}

func TestSave_SameNameSameMillisecond(t *testing.T) {
	store, _ := newTestStore(t, 1024)

	first, err := store.Save(context.Background(), "photo.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	second, err := store.Save(context.Background(), "photo.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestSave_RejectsNonImages(t *testing.T) {
	store, dir := newTestStore(t, 1024)

	_, err := store.Save(context.Background(), "notes.txt", strings.NewReader("just some text"))
	verr, ok := validation.As(err)
	require.True(t, ok)
	require.Equal(t, "eventPhoto", verr.Field)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSave_RejectsEmptyFile(t *testing.T) {
	store, _ := newTestStore(t, 1024)

	_, err := store.Save(context.Background(), "empty.png", bytes.NewReader(nil))
	_, ok := validation.As(err)
	require.True(t, ok)
}

func TestSave_RejectsOversizedFile(t *testing.T) {
	store, dir := newTestStore(t, 64)

	payload := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 128)...)
	_, err := store.Save(context.Background(), "big.png", bytes.NewReader(payload))
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRemove(t *testing.T) {
	store, dir := newTestStore(t, 1024)
	ref, err := store.Save(context.Background(), "photo.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	require.NoError(t, store.Remove(context.Background(), ref))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, store.Remove(context.Background(), ref), "removing twice is not an error")
	require.NoError(t, store.Remove(context.Background(), "https://example.com/a.png"))
	require.NoError(t, store.Remove(context.Background(), "/uploads/../secret"))
}

func TestHandler(t *testing.T) {
	store, _ := newTestStore(t, 1024)
	ref, err := store.Save(context.Background(), "photo.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("GET "+PublicPrefix, store.Handler())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ref, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, pngHeader, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/missing.png", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
