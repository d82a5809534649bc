// Package generic provides the PDF object types used to build and
// serialize documents.
package generic

import (
	"fmt"
	"io"
	"regexp"
	"strconv"

	"golang.org/x/text/encoding/unicode"
)

// PdfObject is the base interface for all PDF objects.
type PdfObject interface {
	// Write serializes the object in PDF syntax.
	Write(w io.Writer) error
}

// Reference represents an indirect reference to a PDF object.
type Reference struct {
	ObjectNumber     int
	GenerationNumber int
}

// NewReference creates a new reference.
func NewReference(objNum, genNum int) Reference {
	return Reference{ObjectNumber: objNum, GenerationNumber: genNum}
}

// Write implements PdfObject.
func (r Reference) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d %d R", r.ObjectNumber, r.GenerationNumber)
	return err
}

// IsZero reports whether the reference is the zero reference.
func (r Reference) IsZero() bool {
	return r.ObjectNumber == 0 && r.GenerationNumber == 0
}

// String returns the string representation.
func (r Reference) String() string {
	return fmt.Sprintf("%d %d R", r.ObjectNumber, r.GenerationNumber)
}

// IndirectObject is a numbered object in the document body.
type IndirectObject struct {
	ObjectNumber     int
	GenerationNumber int
	Object           PdfObject
}

// NewIndirectObject creates a new indirect object.
func NewIndirectObject(objNum, genNum int, obj PdfObject) *IndirectObject {
	return &IndirectObject{
		ObjectNumber:     objNum,
		GenerationNumber: genNum,
		Object:           obj,
	}
}

// Reference returns the reference to this object.
func (i *IndirectObject) Reference() Reference {
	return Reference{ObjectNumber: i.ObjectNumber, GenerationNumber: i.GenerationNumber}
}

// Write implements PdfObject.
func (i *IndirectObject) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%d %d obj\n", i.ObjectNumber, i.GenerationNumber); err != nil {
		return err
	}
	if err := i.Object.Write(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendobj\n")
	return err
}

// NullObject represents the PDF null object.
type NullObject struct{}

// Write implements PdfObject.
func (n NullObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, "null")
	return err
}

// BooleanObject represents a PDF boolean.
type BooleanObject bool

// Write implements PdfObject.
func (b BooleanObject) Write(w io.Writer) error {
	s := "false"
	if b {
		s = "true"
	}
	_, err := io.WriteString(w, s)
	return err
}

// IntegerObject represents a PDF integer.
type IntegerObject int64

// Write implements PdfObject.
func (i IntegerObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(i), 10))
	return err
}

// RealObject represents a PDF real number.
type RealObject float64

// Write implements PdfObject.
func (r RealObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatFloat(float64(r), 'f', -1, 64))
	return err
}

// NameObject represents a PDF name. The value is stored without the
// leading slash.
type NameObject string

var nameEscapeRegex = regexp.MustCompile(`[^!-~]|[#%/\[\]()<>{}]`)

// Write implements PdfObject.
func (n NameObject) Write(w io.Writer) error {
	escaped := nameEscapeRegex.ReplaceAllStringFunc(string(n), func(s string) string {
		return fmt.Sprintf("#%02X", s[0])
	})
	_, err := io.WriteString(w, "/"+escaped)
	return err
}

// String returns the name with the leading slash.
func (n NameObject) String() string {
	return "/" + string(n)
}

// StringObject represents a PDF string, serialized either as a literal
// string or as a hex string.
type StringObject struct {
	Value []byte
	Hex   bool
}

// NewLiteralString creates a literal string object.
func NewLiteralString(s string) *StringObject {
	return &StringObject{Value: []byte(s)}
}

// NewHexString creates a hex string object.
func NewHexString(data []byte) *StringObject {
	return &StringObject{Value: data, Hex: true}
}

// NewTextString creates a text string object. ASCII text is stored
// verbatim; anything else is encoded as UTF-16BE with a byte order mark,
// as required for PDF text strings.
func NewTextString(s string) *StringObject {
	if isASCII(s) {
		return &StringObject{Value: []byte(s)}
	}
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	encoded, err := enc.Bytes([]byte(s))
	if err != nil {
		// Unencodable runes degrade to the raw bytes rather than failing
		// serialization of the whole document.
		return &StringObject{Value: []byte(s)}
	}
	return &StringObject{Value: encoded}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7e || s[i] < 0x20 {
			return false
		}
	}
	return true
}

// Write implements PdfObject.
func (s *StringObject) Write(w io.Writer) error {
	if s.Hex {
		if _, err := io.WriteString(w, "<"); err != nil {
			return err
		}
		for _, b := range s.Value {
			if _, err := fmt.Fprintf(w, "%02X", b); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, ">")
		return err
	}

	if _, err := io.WriteString(w, "("); err != nil {
		return err
	}
	for _, b := range s.Value {
		switch b {
		case '(', ')', '\\':
			if _, err := w.Write([]byte{'\\', b}); err != nil {
				return err
			}
		case '\n':
			if _, err := io.WriteString(w, `\n`); err != nil {
				return err
			}
		case '\r':
			if _, err := io.WriteString(w, `\r`); err != nil {
				return err
			}
		default:
			if _, err := w.Write([]byte{b}); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, ")")
	return err
}

// Text returns the decoded text content of the string.
func (s *StringObject) Text() string {
	if len(s.Value) >= 2 && s.Value[0] == 0xfe && s.Value[1] == 0xff {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		decoded, err := dec.Bytes(s.Value)
		if err == nil {
			return string(decoded)
		}
	}
	return string(s.Value)
}

// ArrayObject represents a PDF array.
type ArrayObject []PdfObject

// NewArray creates an array from the given items. The result is never
// nil, so an empty array still serializes as [].
func NewArray(items ...PdfObject) ArrayObject {
	if len(items) == 0 {
		return ArrayObject{}
	}
	return ArrayObject(items)
}

// Write implements PdfObject.
func (a ArrayObject) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, item := range a {
		if i > 0 {
			if _, err := io.WriteString(w, " "); err != nil {
				return err
			}
		}
		if err := item.Write(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}

// DictionaryObject represents a PDF dictionary. Keys keep their
// insertion order so serialization is deterministic.
type DictionaryObject struct {
	keys   []string
	values map[string]PdfObject
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *DictionaryObject {
	return &DictionaryObject{values: make(map[string]PdfObject)}
}

// Write implements PdfObject.
func (d *DictionaryObject) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "<<"); err != nil {
		return err
	}
	for _, key := range d.keys {
		if err := NameObject(key).Write(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, " "); err != nil {
			return err
		}
		if err := d.values[key].Write(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, " "); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, ">>")
	return err
}

// Set sets a key to a value, keeping the original position for keys
// that already exist.
func (d *DictionaryObject) Set(key string, value PdfObject) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get retrieves a value, or nil when the key is absent.
func (d *DictionaryObject) Get(key string) PdfObject {
	return d.values[key]
}

// GetName returns the name value for a key, or "" when absent.
func (d *DictionaryObject) GetName(key string) string {
	if name, ok := d.values[key].(NameObject); ok {
		return string(name)
	}
	return ""
}

// GetInt returns the integer value for a key.
func (d *DictionaryObject) GetInt(key string) (int64, bool) {
	if i, ok := d.values[key].(IntegerObject); ok {
		return int64(i), true
	}
	return 0, false
}

// GetArray returns the array value for a key, or nil.
func (d *DictionaryObject) GetArray(key string) ArrayObject {
	if arr, ok := d.values[key].(ArrayObject); ok {
		return arr
	}
	return nil
}

// GetDict returns the dictionary value for a key, or nil.
func (d *DictionaryObject) GetDict(key string) *DictionaryObject {
	if dict, ok := d.values[key].(*DictionaryObject); ok {
		return dict
	}
	return nil
}

// Has reports whether the key is present.
func (d *DictionaryObject) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Delete removes a key.
func (d *DictionaryObject) Delete(key string) {
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (d *DictionaryObject) Keys() []string {
	return d.keys
}

// Len returns the number of entries.
func (d *DictionaryObject) Len() int {
	return len(d.keys)
}

// Rectangle represents a PDF rectangle as lower-left and upper-right
// coordinates.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

// ToArray renders the rectangle as a PDF array.
func (r *Rectangle) ToArray() ArrayObject {
	return ArrayObject{
		RealObject(r.LLX),
		RealObject(r.LLY),
		RealObject(r.URX),
		RealObject(r.URY),
	}
}

// Width returns the rectangle width.
func (r *Rectangle) Width() float64 {
	return r.URX - r.LLX
}

// Height returns the rectangle height.
func (r *Rectangle) Height() float64 {
	return r.URY - r.LLY
}
