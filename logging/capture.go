package logging

import (
	"bytes"
	"log/slog"
	"sync"
)

// CaptureBuffer is a concurrency-safe io.Writer for capturing log
// output in tests.
//
//	var buf logging.CaptureBuffer
//	logging.SetLogger(slog.New(slog.NewTextHandler(&buf,
//		&slog.HandlerOptions{Level: slog.LevelDebug})))
//	// ... run a signing pass ...
//	if !buf.Contains("patched signature") { ... }
type CaptureBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *CaptureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns all captured output.
func (b *CaptureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Contains reports whether the captured output includes s.
func (b *CaptureBuffer) Contains(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Contains(b.buf.Bytes(), []byte(s))
}

// Reset clears the captured output.
func (b *CaptureBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// NewCaptureLogger returns a debug-level text logger writing into the
// given buffer.
func NewCaptureLogger(buf *CaptureBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
