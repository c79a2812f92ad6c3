package middleware

import (
	"net/http"
)

// StreamingResponseWriter preserves the Flusher interface for SSE relays
// while capturing the status code and byte count for logging and metrics.
type StreamingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	flushed    bool
	bytes      int64
}

// NewStreamingResponseWriter creates a new StreamingResponseWriter
func NewStreamingResponseWriter(w http.ResponseWriter) *StreamingResponseWriter {
	return &StreamingResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code
func (w *StreamingResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

// Write writes data to the response
func (w *StreamingResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Flush implements the http.Flusher interface.
// This is the critical method for SSE streaming.
func (w *StreamingResponseWriter) Flush() {
	w.flushed = true
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// StatusCode returns the captured status code
func (w *StreamingResponseWriter) StatusCode() int {
	return w.statusCode
}

// Written returns whether headers have been written
func (w *StreamingResponseWriter) Written() bool {
	return w.written
}

// Flushed reports whether the handler streamed, so long wall-clock times
// for SSE relays are not mistaken for slow requests.
func (w *StreamingResponseWriter) Flushed() bool {
	return w.flushed
}

// BytesWritten returns the number of bytes written
func (w *StreamingResponseWriter) BytesWritten() int64 {
	return w.bytes
}
