package middleware

import (
	"net/http"
)

const (
	// DefaultMaxBodySize is 1MB for JSON endpoints
	DefaultMaxBodySize int64 = 1 << 20

	// multipartOverhead leaves room for form fields and boundaries around an upload.
	multipartOverhead int64 = 1 << 20
)

// RequestSize limits the size of incoming request bodies with http.MaxBytesReader.
// Reads past the limit fail and handlers answer 413.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Connection", "close")
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// JSONRequestSize limits JSON request bodies to 1MB.
func JSONRequestSize() func(http.Handler) http.Handler {
	return RequestSize(DefaultMaxBodySize)
}

// UploadRequestSize limits multipart bodies to the photo limit plus form overhead.
func UploadRequestSize(maxPhotoBytes int64) func(http.Handler) http.Handler {
	return RequestSize(maxPhotoBytes + multipartOverhead)
}
