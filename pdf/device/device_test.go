package device

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
)

func TestMemoryDevice(t *testing.T) {
	t.Run("write then read back", func(t *testing.T) {
		d := NewMemoryDevice()
		if _, err := d.Write([]byte("hello world")); err != nil {
			t.Fatal(err)
		}
		if _, err := d.Seek(0, io.SeekStart); err != nil {
			t.Fatal(err)
		}
		got := make([]byte, 11)
		if _, err := io.ReadFull(d, got); err != nil {
			t.Fatal(err)
		}
		if string(got) != "hello world" {
			t.Errorf("read back %q", got)
		}
	})

	t.Run("overwrite in place keeps length", func(t *testing.T) {
		d := NewMemoryDeviceFromBytes([]byte("hello world"))
		if _, err := d.Seek(6, io.SeekStart); err != nil {
			t.Fatal(err)
		}
		if _, err := d.Write([]byte("PATCH")); err != nil {
			t.Fatal(err)
		}
		if n, _ := d.Len(); n != 11 {
			t.Errorf("Len() = %d, want 11", n)
		}
		if got := string(d.Bytes()); got != "hello PATCH" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("seek whences", func(t *testing.T) {
		d := NewMemoryDeviceFromBytes([]byte("0123456789"))
		if pos, err := d.Seek(4, io.SeekStart); err != nil || pos != 4 {
			t.Errorf("SeekStart: pos=%d err=%v", pos, err)
		}
		if pos, err := d.Seek(2, io.SeekCurrent); err != nil || pos != 6 {
			t.Errorf("SeekCurrent: pos=%d err=%v", pos, err)
		}
		if pos, err := d.Seek(-3, io.SeekEnd); err != nil || pos != 7 {
			t.Errorf("SeekEnd: pos=%d err=%v", pos, err)
		}
		if _, err := d.Seek(-1, io.SeekStart); !errors.Is(err, ErrInvalidOffset) {
			t.Errorf("negative seek: %v", err)
		}
		if _, err := d.Seek(0, 99); !errors.Is(err, ErrInvalidWhence) {
			t.Errorf("bad whence: %v", err)
		}
	})

	t.Run("seek past end zero-fills on write", func(t *testing.T) {
		d := NewMemoryDeviceFromBytes([]byte("ab"))
		if _, err := d.Seek(4, io.SeekStart); err != nil {
			t.Fatal(err)
		}
		if _, err := d.Write([]byte("z")); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(d.Bytes(), []byte{'a', 'b', 0, 0, 'z'}) {
			t.Errorf("got % x", d.Bytes())
		}
	})

	t.Run("read at end returns EOF", func(t *testing.T) {
		d := NewMemoryDeviceFromBytes([]byte("x"))
		if _, err := d.Seek(0, io.SeekEnd); err != nil {
			t.Fatal(err)
		}
		if _, err := d.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
			t.Errorf("expected EOF, got %v", err)
		}
	})
}

func TestFileDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.pdf")

	d, err := CreateFileDevice(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Write([]byte("file contents")); err != nil {
		t.Fatal(err)
	}
	if n, err := d.Len(); err != nil || n != 13 {
		t.Fatalf("Len() = %d, %v", n, err)
	}

	// Patch in place.
	if _, err := d.Seek(5, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Write([]byte("XY")); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenFileDevice(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got := make([]byte, 13)
	if _, err := io.ReadFull(reopened, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "file XYntents" {
		t.Errorf("got %q", got)
	}
	if n, err := reopened.Len(); err != nil || n != 13 {
		t.Errorf("Len() = %d, %v", n, err)
	}
}
