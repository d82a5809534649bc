package generic

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// PositionedWriter is implemented by writers that expose the absolute
// output offset. Placeholder objects use it to record where their
// literals land in the serialized file.
type PositionedWriter interface {
	io.Writer
	Position() int64
}

// ByteRangePlaceholderLength is the number of padding bytes reserved
// after the empty /ByteRange array, so the real offsets can be patched
// in later without moving any byte that follows.
const ByteRangePlaceholderLength = 60

// Common placeholder errors.
var (
	ErrOffsetsUnresolved = fmt.Errorf("placeholder offsets not resolved; document was not saved through a position-tracking writer")
	ErrOffsetsFilled     = fmt.Errorf("byte range offsets already filled")
	ErrRangeTooLong      = fmt.Errorf("byte range values exceed the reserved width")
)

// ContentsPlaceholder reserves a fixed-size hex string literal for
// signature bytes that are not known yet. The reserved region is
// zero-filled; the real bytes are patched in place after signing.
type ContentsPlaceholder struct {
	value    []byte
	start    int64
	end      int64
	resolved bool
}

// NewContentsPlaceholder creates a placeholder reserving size bytes.
func NewContentsPlaceholder(size int) *ContentsPlaceholder {
	if size <= 0 {
		size = 16 * 1024
	}
	return &ContentsPlaceholder{value: make([]byte, size)}
}

// Capacity returns the number of reserved bytes.
func (p *ContentsPlaceholder) Capacity() int {
	return len(p.value)
}

// Write implements PdfObject. When the writer reports positions, the
// first serialization records the resolved file offsets of the literal.
func (p *ContentsPlaceholder) Write(w io.Writer) error {
	var start int64
	pw, tracked := w.(PositionedWriter)
	if tracked {
		start = pw.Position()
	}

	data := "<" + strings.ToUpper(hex.EncodeToString(p.value)) + ">"
	n, err := io.WriteString(w, data)
	if err != nil {
		return err
	}

	if tracked && !p.resolved {
		p.start = start
		p.end = start + int64(n)
		p.resolved = true
	}
	return nil
}

// Offsets returns the resolved start and end offsets of the literal,
// including the angle bracket delimiters.
func (p *ContentsPlaceholder) Offsets() (start, end int64, err error) {
	if !p.resolved {
		return 0, 0, ErrOffsetsUnresolved
	}
	return p.start, p.end, nil
}

// Fill overwrites the reserved region in the output with the given
// bytes, hex encoded. The remainder of the region keeps its zero
// padding, so the file length never changes. Returns the padded buffer
// that now backs the literal.
func (p *ContentsPlaceholder) Fill(output io.WriteSeeker, contents []byte) ([]byte, error) {
	if !p.resolved {
		return nil, ErrOffsetsUnresolved
	}
	if len(contents) > len(p.value) {
		return nil, fmt.Errorf("final signature payload larger than reserved: allocated %d bytes, contents required %d bytes",
			len(p.value), len(contents))
	}

	copy(p.value, contents)
	contentHex := strings.ToUpper(hex.EncodeToString(p.value))

	// Overwrite past the opening '<'.
	if _, err := output.Seek(p.start+1, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(output, contentHex); err != nil {
		return nil, err
	}
	return p.value, nil
}

// ByteRangePlaceholder reserves a fixed-width /ByteRange array literal.
// The real offsets are known only after the document is serialized, so
// the first write emits an empty array followed by padding; FillOffsets
// later patches the actual values into the same region.
type ByteRangePlaceholder struct {
	offset   int64
	resolved bool
	filled   bool
	arr      [4]int64
}

// NewByteRangePlaceholder creates a new byte range placeholder.
func NewByteRangePlaceholder() *ByteRangePlaceholder {
	return &ByteRangePlaceholder{offset: -1}
}

// Write implements PdfObject.
func (b *ByteRangePlaceholder) Write(w io.Writer) error {
	if pw, ok := w.(PositionedWriter); ok && !b.resolved {
		b.offset = pw.Position()
		b.resolved = true
	}
	placeholder := "[]" + strings.Repeat(" ", ByteRangePlaceholderLength)
	_, err := io.WriteString(w, placeholder)
	return err
}

// FillOffsets patches the real byte range values into the reserved
// region: [0 sigStart sigEnd eof-sigEnd]. The trailing padding stays in
// place, so the patch never changes the file length.
func (b *ByteRangePlaceholder) FillOffsets(output io.WriteSeeker, sigStart, sigEnd, eof int64) error {
	if b.filled {
		return ErrOffsetsFilled
	}
	if !b.resolved {
		return ErrOffsetsUnresolved
	}

	b.arr = [4]int64{0, sigStart, sigEnd, eof - sigEnd}
	repr := fmt.Sprintf("[%d %d %d %d]", b.arr[0], b.arr[1], b.arr[2], b.arr[3])
	if len(repr) > ByteRangePlaceholderLength+2 {
		return fmt.Errorf("%w: %d > %d", ErrRangeTooLong, len(repr), ByteRangePlaceholderLength+2)
	}

	if _, err := output.Seek(b.offset, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.WriteString(output, repr); err != nil {
		return err
	}

	b.filled = true
	return nil
}

// Values returns the byte range as [start1 len1 start2 len2].
func (b *ByteRangePlaceholder) Values() [4]int64 {
	return b.arr
}

// Filled reports whether the real offsets have been patched in.
func (b *ByteRangePlaceholder) Filled() bool {
	return b.filled
}
