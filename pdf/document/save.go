package document

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/CrackerCat/podofo/pdf/device"
	"github.com/CrackerCat/podofo/pdf/generic"
)

// DefaultVersion is the PDF version written when SaveOptions does not
// override it.
const DefaultVersion = "1.7"

// SaveOptions carries save configuration. It is treated as an opaque
// pass-through by the signing engine.
type SaveOptions struct {
	// Version is the PDF header version, e.g. "1.7".
	Version string

	// SkipDocumentID suppresses the trailer /ID array. Mostly useful
	// for byte-deterministic test output.
	SkipDocumentID bool
}

// countingWriter tracks the absolute output offset so placeholder
// objects can record where their literals land.
type countingWriter struct {
	w io.Writer
	n int64
}

// Write implements io.Writer.
func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Position implements generic.PositionedWriter.
func (c *countingWriter) Position() int64 {
	return c.n
}

// Save serializes the document to the device from offset zero: header,
// body objects in numeric order, cross-reference table and trailer.
// Placeholder objects inside the body resolve their file offsets as
// they are written.
func (d *Document) Save(dev device.StreamDevice, opts SaveOptions) error {
	if _, err := dev.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to output start: %w", err)
	}

	version := opts.Version
	if version == "" {
		version = DefaultVersion
	}

	cw := &countingWriter{w: dev}

	// Header with a binary marker comment so transfer tools treat the
	// file as binary.
	if _, err := fmt.Fprintf(cw, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", version); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	offsets := make([]int64, len(d.objects))
	for i, obj := range d.objects {
		offsets[i] = cw.Position()
		if err := obj.Write(cw); err != nil {
			return fmt.Errorf("failed to write object %d: %w", obj.ObjectNumber, err)
		}
	}

	xrefOffset := cw.Position()
	if _, err := fmt.Fprintf(cw, "xref\n0 %d\n", len(d.objects)+1); err != nil {
		return fmt.Errorf("failed to write xref: %w", err)
	}
	if _, err := io.WriteString(cw, "0000000000 65535 f \n"); err != nil {
		return fmt.Errorf("failed to write xref: %w", err)
	}
	for _, off := range offsets {
		if _, err := fmt.Fprintf(cw, "%010d 00000 n \n", off); err != nil {
			return fmt.Errorf("failed to write xref: %w", err)
		}
	}

	trailer := generic.NewDictionary()
	trailer.Set("Size", generic.IntegerObject(len(d.objects)+1))
	trailer.Set("Root", d.objects[0].Reference())
	if !opts.SkipDocumentID {
		trailer.Set("ID", documentID())
	}

	if _, err := io.WriteString(cw, "trailer\n"); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}
	if err := trailer.Write(cw); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}
	if _, err := fmt.Fprintf(cw, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}

	return nil
}

// documentID builds a fresh two-part /ID array.
func documentID() generic.ArrayObject {
	id1 := make([]byte, 16)
	id2 := make([]byte, 16)
	rand.Read(id1)
	rand.Read(id2)
	return generic.ArrayObject{
		generic.NewHexString(id1),
		generic.NewHexString(id2),
	}
}
