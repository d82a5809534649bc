package generic

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
)

// trackedBuffer implements PositionedWriter over a byte buffer.
type trackedBuffer struct {
	bytes.Buffer
}

func (b *trackedBuffer) Position() int64 {
	return int64(b.Len())
}

// seekBuffer implements io.WriteSeeker over an in-memory byte slice
// with overwrite semantics.
type seekBuffer struct {
	data []byte
	pos  int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = offset
	case io.SeekCurrent:
		b.pos += offset
	case io.SeekEnd:
		b.pos = int64(len(b.data)) + offset
	}
	return b.pos, nil
}

func TestContentsPlaceholder(t *testing.T) {
	t.Run("writes zero-filled hex literal", func(t *testing.T) {
		p := NewContentsPlaceholder(4)
		var buf trackedBuffer
		buf.WriteString("junk ")
		if err := p.Write(&buf); err != nil {
			t.Fatal(err)
		}
		if got := buf.String(); got != "junk <00000000>" {
			t.Errorf("got %q", got)
		}

		start, end, err := p.Offsets()
		if err != nil {
			t.Fatal(err)
		}
		if start != 5 || end != 15 {
			t.Errorf("offsets = [%d,%d), want [5,15)", start, end)
		}
	})

	t.Run("offsets unresolved without position tracking", func(t *testing.T) {
		p := NewContentsPlaceholder(4)
		var buf bytes.Buffer
		if err := p.Write(&buf); err != nil {
			t.Fatal(err)
		}
		if _, _, err := p.Offsets(); !errors.Is(err, ErrOffsetsUnresolved) {
			t.Errorf("expected ErrOffsetsUnresolved, got %v", err)
		}
	})

	t.Run("fill patches in place", func(t *testing.T) {
		p := NewContentsPlaceholder(4)
		var buf trackedBuffer
		if err := p.Write(&buf); err != nil {
			t.Fatal(err)
		}

		out := &seekBuffer{data: append([]byte(nil), buf.Bytes()...)}
		lenBefore := len(out.data)
		if _, err := p.Fill(out, []byte{0xCA, 0xFE}); err != nil {
			t.Fatal(err)
		}
		if len(out.data) != lenBefore {
			t.Errorf("fill changed length from %d to %d", lenBefore, len(out.data))
		}
		if got := string(out.data); got != "<CAFE0000>" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("oversize contents fail", func(t *testing.T) {
		p := NewContentsPlaceholder(2)
		var buf trackedBuffer
		if err := p.Write(&buf); err != nil {
			t.Fatal(err)
		}
		out := &seekBuffer{data: buf.Bytes()}
		if _, err := p.Fill(out, []byte{1, 2, 3}); err == nil {
			t.Error("expected error for oversize contents")
		}
	})

	t.Run("default capacity", func(t *testing.T) {
		if got := NewContentsPlaceholder(0).Capacity(); got != 16*1024 {
			t.Errorf("Capacity() = %d", got)
		}
	})
}

func TestByteRangePlaceholder(t *testing.T) {
	t.Run("reserves fixed width", func(t *testing.T) {
		b := NewByteRangePlaceholder()
		var buf trackedBuffer
		if err := b.Write(&buf); err != nil {
			t.Fatal(err)
		}
		if buf.Len() != 2+ByteRangePlaceholderLength {
			t.Errorf("reserved %d bytes, want %d", buf.Len(), 2+ByteRangePlaceholderLength)
		}
		if !strings.HasPrefix(buf.String(), "[]") {
			t.Errorf("got %q", buf.String())
		}
	})

	t.Run("fill patches real values without resizing", func(t *testing.T) {
		b := NewByteRangePlaceholder()
		var buf trackedBuffer
		buf.WriteString("/ByteRange ")
		if err := b.Write(&buf); err != nil {
			t.Fatal(err)
		}

		out := &seekBuffer{data: append([]byte(nil), buf.Bytes()...)}
		lenBefore := len(out.data)
		if err := b.FillOffsets(out, 100, 220, 400); err != nil {
			t.Fatal(err)
		}
		if len(out.data) != lenBefore {
			t.Errorf("fill changed length from %d to %d", lenBefore, len(out.data))
		}
		if !strings.Contains(string(out.data), "[0 100 220 180]") {
			t.Errorf("got %q", string(out.data))
		}
		if got := b.Values(); got != [4]int64{0, 100, 220, 180} {
			t.Errorf("Values() = %v", got)
		}
		if !b.Filled() {
			t.Error("Filled() = false after fill")
		}
	})

	t.Run("double fill fails", func(t *testing.T) {
		b := NewByteRangePlaceholder()
		var buf trackedBuffer
		if err := b.Write(&buf); err != nil {
			t.Fatal(err)
		}
		out := &seekBuffer{data: buf.Bytes()}
		if err := b.FillOffsets(out, 1, 2, 3); err != nil {
			t.Fatal(err)
		}
		if err := b.FillOffsets(out, 1, 2, 3); !errors.Is(err, ErrOffsetsFilled) {
			t.Errorf("expected ErrOffsetsFilled, got %v", err)
		}
	})

	t.Run("fill before resolve fails", func(t *testing.T) {
		b := NewByteRangePlaceholder()
		out := &seekBuffer{}
		if err := b.FillOffsets(out, 1, 2, 3); !errors.Is(err, ErrOffsetsUnresolved) {
			t.Errorf("expected ErrOffsetsUnresolved, got %v", err)
		}
	})

	t.Run("overlong values fail", func(t *testing.T) {
		b := NewByteRangePlaceholder()
		var buf trackedBuffer
		if err := b.Write(&buf); err != nil {
			t.Fatal(err)
		}
		out := &seekBuffer{data: buf.Bytes()}
		// All four rendered values must be wide, so keep each span
		// length itself enormous.
		huge := int64(1) << 62
		err := b.FillOffsets(out, huge, huge+1, math.MaxInt64)
		if !errors.Is(err, ErrRangeTooLong) {
			t.Errorf("expected ErrRangeTooLong, got %v", err)
		}
	})
}

func TestPlaceholderRepeatedWrite(t *testing.T) {
	// A document may be serialized more than once; only the tracked
	// serialization that resolved the offsets must stick.
	p := NewContentsPlaceholder(4)
	var first trackedBuffer
	if err := p.Write(&first); err != nil {
		t.Fatal(err)
	}
	start1, end1, err := p.Offsets()
	if err != nil {
		t.Fatal(err)
	}

	var second trackedBuffer
	second.WriteString("prefix shifting everything ")
	if err := p.Write(&second); err != nil {
		t.Fatal(err)
	}
	start2, end2, err := p.Offsets()
	if err != nil {
		t.Fatal(err)
	}
	if start1 != start2 || end1 != end2 {
		t.Errorf("offsets moved on re-serialization: [%d,%d) vs [%d,%d)", start1, end1, start2, end2)
	}
}
