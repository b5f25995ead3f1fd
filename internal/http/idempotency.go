package http

import (
	"bytes"
	"net/http"
	"time"

	"crowdfund/internal/cache"
	"crowdfund/internal/log"
	"crowdfund/internal/middleware/trace"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency cache.
	ReplayedHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 128
)

// idempotencyEntry is created by the first request for a key. Requests that
// arrive while it runs wait on done and then replay its response.
type idempotencyEntry struct {
	done   chan struct{}
	status int
	header http.Header
	body   []byte
}

// Idempotency replays the first response to a POST for the same caller and
// Idempotency-Key. Server errors are not kept, so the client may retry them.
type Idempotency struct {
	entries *cache.LRUCache[*idempotencyEntry]
	logger  *log.Logger
}

func NewIdempotency(maxKeys int, ttl time.Duration, logger *log.Logger) *Idempotency {
	if logger == nil {
		logger = log.Nop()
	}
	return &Idempotency{
		entries: cache.NewLRUCache[*idempotencyEntry](maxKeys, ttl),
		logger:  logger.WithComponent(log.ComponentHTTP),
	}
}

// Cache exposes the underlying cache for periodic cleanup.
func (i *Idempotency) Cache() *cache.LRUCache[*idempotencyEntry] {
	return i.entries
}

func (i *Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			ErrorResponse(http.StatusBadRequest, KindBadRequest, "Idempotency-Key too long").Write(w)
			return
		}

		cacheKey := sanitizeInput(r.Header.Get(IdentityHeader)) + "\x00" + r.URL.Path + "\x00" + key
		entry, stored := i.entries.SetIfAbsent(cacheKey, &idempotencyEntry{done: make(chan struct{})})
		if !stored {
			select {
			case <-entry.done:
			case <-r.Context().Done():
				return
			}
			i.logger.DebugContext(r.Context(), "Replaying idempotent response", "path", r.URL.Path)
			replay(w, entry)
			return
		}

		rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		completed := false
		defer func() {
			// A panicking handler must not leave waiters blocked.
			if !completed {
				entry.status = http.StatusInternalServerError
				close(entry.done)
				i.entries.Delete(cacheKey)
			}
		}()
		next.ServeHTTP(rec, r)
		completed = true

		entry.status = rec.status
		entry.header = w.Header().Clone()
		entry.body = rec.body.Bytes()
		close(entry.done)
		if entry.status >= http.StatusInternalServerError {
			i.entries.Delete(cacheKey)
		}
	})
}

func replay(w http.ResponseWriter, entry *idempotencyEntry) {
	for name, values := range entry.header {
		if name == trace.RequestIDHeader {
			continue
		}
		w.Header()[name] = values
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(entry.status)
	_, _ = w.Write(entry.body)
}

// recordingWriter passes the response through while keeping a copy.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
