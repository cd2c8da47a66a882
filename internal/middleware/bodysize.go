package middleware

import (
	"net/http"
)

// Body size limits.
const (
	// DefaultMaxBodySize is the fallback limit for any request body.
	DefaultMaxBodySize = 1 << 20 // 1MB

	// MaxChatBodySize bounds a single chat turn. Messages are capped far
	// below this by chat.max_message_length; the slack covers JSON overhead.
	MaxChatBodySize = 64 << 10 // 64KB
)

// BodySizeLimiter limits the size of request bodies.
func BodySizeLimiter(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > maxBytes {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}

			// Chunked bodies have no Content-Length; cap the reader too.
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}

// BodySizeLimiterChat returns a middleware limiting chat request bodies.
func BodySizeLimiterChat() func(http.Handler) http.Handler {
	return BodySizeLimiter(MaxChatBodySize)
}
