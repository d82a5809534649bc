// Package device provides the seekable stream abstraction used for
// signing I/O. Devices support overwrite-in-place semantics: writing
// inside the existing content patches bytes without truncating what
// follows.
package device

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Common device errors.
var (
	ErrInvalidOffset = errors.New("seek to invalid offset")
	ErrInvalidWhence = errors.New("invalid seek whence")
)

// StreamDevice is an exclusive seekable read/write device.
type StreamDevice interface {
	io.ReadWriteSeeker

	// Len returns the current device length in bytes.
	Len() (int64, error)
}

// MemoryDevice is an in-memory StreamDevice backed by a growable
// buffer.
type MemoryDevice struct {
	buf []byte
	pos int64
}

// NewMemoryDevice creates an empty memory device.
func NewMemoryDevice() *MemoryDevice {
	return &MemoryDevice{}
}

// NewMemoryDeviceFromBytes creates a memory device over a copy of the
// given data.
func NewMemoryDeviceFromBytes(data []byte) *MemoryDevice {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &MemoryDevice{buf: buf}
}

// Read implements io.Reader.
func (d *MemoryDevice) Read(p []byte) (int, error) {
	if d.pos >= int64(len(d.buf)) {
		return 0, io.EOF
	}
	n := copy(p, d.buf[d.pos:])
	d.pos += int64(n)
	return n, nil
}

// Write implements io.Writer. Writes inside the buffer overwrite in
// place; writes at or past the end grow the buffer.
func (d *MemoryDevice) Write(p []byte) (int, error) {
	end := d.pos + int64(len(p))
	if end > int64(len(d.buf)) {
		grown := make([]byte, end)
		copy(grown, d.buf)
		d.buf = grown
	}
	copy(d.buf[d.pos:end], p)
	d.pos = end
	return len(p), nil
}

// Seek implements io.Seeker. Seeking past the end is allowed; the gap
// is zero-filled on the next write.
func (d *MemoryDevice) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = d.pos + offset
	case io.SeekEnd:
		abs = int64(len(d.buf)) + offset
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidWhence, whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidOffset, abs)
	}
	d.pos = abs
	return abs, nil
}

// Len returns the buffer length.
func (d *MemoryDevice) Len() (int64, error) {
	return int64(len(d.buf)), nil
}

// Bytes returns the device contents. The slice is owned by the device
// and must not be retained across further writes.
func (d *MemoryDevice) Bytes() []byte {
	return d.buf
}

// FileDevice is a StreamDevice over an os.File.
type FileDevice struct {
	file *os.File
}

// CreateFileDevice creates (or truncates) a file for writing and
// reading back.
func CreateFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create device file: %w", err)
	}
	return &FileDevice{file: f}, nil
}

// OpenFileDevice opens an existing file for reading and patch-writing.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open device file: %w", err)
	}
	return &FileDevice{file: f}, nil
}

// Read implements io.Reader.
func (d *FileDevice) Read(p []byte) (int, error) {
	return d.file.Read(p)
}

// Write implements io.Writer.
func (d *FileDevice) Write(p []byte) (int, error) {
	return d.file.Write(p)
}

// Seek implements io.Seeker.
func (d *FileDevice) Seek(offset int64, whence int) (int64, error) {
	return d.file.Seek(offset, whence)
}

// Len returns the file length.
func (d *FileDevice) Len() (int64, error) {
	info, err := d.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close closes the underlying file.
func (d *FileDevice) Close() error {
	return d.file.Close()
}
