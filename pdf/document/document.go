// Package document implements a minimal write-oriented PDF document
// with interactive-form signature fields. It provides exactly what the
// signing engine needs from a document: an object graph containing
// signature dictionaries, and a Save routine that serializes the graph
// while resolving placeholder offsets.
package document

import (
	"errors"
	"fmt"
	"time"

	"github.com/CrackerCat/podofo/pdf/generic"
)

// Common document errors.
var (
	ErrPageOutOfRange      = errors.New("page index out of range")
	ErrDuplicateFieldName  = errors.New("a field with this name already exists")
	ErrUnknownSignature    = errors.New("signature object is not part of this document")
	ErrSignatureUnprepared = errors.New("signature has no placeholder; PrepareForSigning was not called")
)

// Document is a write-oriented PDF document.
type Document struct {
	objects    []*generic.IndirectObject
	catalog    *generic.DictionaryObject
	pagesNode  *generic.DictionaryObject
	pagesRef   generic.Reference
	pageRefs   []generic.Reference
	pageDicts  []*generic.DictionaryObject
	acroForm   *generic.DictionaryObject
	signatures map[generic.Reference]*Signature
	fieldNames map[string]bool
}

// New creates an empty document with a catalog and page tree root.
func New() *Document {
	d := &Document{
		signatures: make(map[generic.Reference]*Signature),
		fieldNames: make(map[string]bool),
	}

	d.catalog = generic.NewDictionary()
	d.catalog.Set("Type", generic.NameObject("Catalog"))
	catalogRef := d.addObject(d.catalog)

	d.pagesNode = generic.NewDictionary()
	d.pagesNode.Set("Type", generic.NameObject("Pages"))
	d.pagesNode.Set("Kids", generic.ArrayObject{})
	d.pagesNode.Set("Count", generic.IntegerObject(0))
	d.pagesRef = d.addObject(d.pagesNode)

	d.catalog.Set("Pages", d.pagesRef)
	_ = catalogRef
	return d
}

// addObject appends an object to the body and returns its reference.
func (d *Document) addObject(obj generic.PdfObject) generic.Reference {
	num := len(d.objects) + 1
	ind := generic.NewIndirectObject(num, 0, obj)
	d.objects = append(d.objects, ind)
	return ind.Reference()
}

// AddPage appends a page with the given media box and returns its
// index. A nil media box defaults to US Letter.
func (d *Document) AddPage(mediaBox *generic.Rectangle) int {
	if mediaBox == nil {
		mediaBox = &generic.Rectangle{URX: 612, URY: 792}
	}

	page := generic.NewDictionary()
	page.Set("Type", generic.NameObject("Page"))
	page.Set("Parent", d.pagesRef)
	page.Set("MediaBox", mediaBox.ToArray())
	ref := d.addObject(page)

	d.pageRefs = append(d.pageRefs, ref)
	d.pageDicts = append(d.pageDicts, page)

	kids := d.pagesNode.GetArray("Kids")
	d.pagesNode.Set("Kids", append(kids, ref))
	d.pagesNode.Set("Count", generic.IntegerObject(len(d.pageRefs)))

	return len(d.pageRefs) - 1
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.pageRefs)
}

// AddSignatureField creates a signature form field with an associated
// widget annotation on the given page and returns the signature
// attached to it. The rect may be zero-sized for an invisible
// signature.
func (d *Document) AddSignatureField(name string, pageIndex int, rect *generic.Rectangle) (*Signature, error) {
	if pageIndex < 0 || pageIndex >= len(d.pageRefs) {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, pageIndex)
	}
	if d.fieldNames[name] {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateFieldName, name)
	}
	if rect == nil {
		rect = &generic.Rectangle{}
	}

	// The signature dictionary itself; its entries are populated by
	// PrepareForSigning.
	sigDict := generic.NewDictionary()
	sigRef := d.addObject(sigDict)

	field := generic.NewDictionary()
	field.Set("Type", generic.NameObject("Annot"))
	field.Set("Subtype", generic.NameObject("Widget"))
	field.Set("FT", generic.NameObject("Sig"))
	field.Set("T", generic.NewTextString(name))
	field.Set("Rect", rect.ToArray())
	field.Set("F", generic.IntegerObject(4)) // print
	field.Set("P", d.pageRefs[pageIndex])
	field.Set("V", sigRef)
	fieldRef := d.addObject(field)

	page := d.pageDicts[pageIndex]
	annots := page.GetArray("Annots")
	page.Set("Annots", append(annots, fieldRef))

	d.ensureAcroForm()
	fields := d.acroForm.GetArray("Fields")
	d.acroForm.Set("Fields", append(fields, fieldRef))

	sig := &Signature{
		doc:       d,
		ref:       sigRef,
		fieldRef:  fieldRef,
		dict:      sigDict,
		pageIndex: pageIndex,
	}
	d.signatures[sigRef] = sig
	d.fieldNames[name] = true
	return sig, nil
}

// ensureAcroForm creates the interactive form dictionary on first use.
func (d *Document) ensureAcroForm() {
	if d.acroForm != nil {
		return
	}
	d.acroForm = generic.NewDictionary()
	d.acroForm.Set("Fields", generic.ArrayObject{})
	// Signatures exist, append-only semantics expected by viewers.
	d.acroForm.Set("SigFlags", generic.IntegerObject(3))
	ref := d.addObject(d.acroForm)
	d.catalog.Set("AcroForm", ref)
}

// Signature looks up a signature by the reference of its signature
// dictionary.
func (d *Document) Signature(ref generic.Reference) (*Signature, error) {
	sig, ok := d.signatures[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSignature, ref)
	}
	return sig, nil
}

// Signature represents a signature form field value: the signature
// dictionary that will carry /Contents and /ByteRange.
type Signature struct {
	doc       *Document
	ref       generic.Reference
	fieldRef  generic.Reference
	dict      *generic.DictionaryObject
	pageIndex int

	contents  *generic.ContentsPlaceholder
	byteRange *generic.ByteRangePlaceholder
}

// Ref returns the reference of the signature dictionary.
func (s *Signature) Ref() generic.Reference {
	return s.ref
}

// FieldRef returns the reference of the owning form field.
func (s *Signature) FieldRef() generic.Reference {
	return s.fieldRef
}

// PageIndex returns the index of the page holding the signature
// widget.
func (s *Signature) PageIndex() int {
	return s.pageIndex
}

// SetReason sets the /Reason entry.
func (s *Signature) SetReason(reason string) {
	s.dict.Set("Reason", generic.NewTextString(reason))
}

// SetLocation sets the /Location entry.
func (s *Signature) SetLocation(location string) {
	s.dict.Set("Location", generic.NewTextString(location))
}

// SetContactInfo sets the /ContactInfo entry.
func (s *Signature) SetContactInfo(contact string) {
	s.dict.Set("ContactInfo", generic.NewTextString(contact))
}

// SetSignerName sets the /Name entry.
func (s *Signature) SetSignerName(name string) {
	s.dict.Set("Name", generic.NewTextString(name))
}

// PrepareForSigning writes the signature dictionary entries that must
// exist before serialization: the handler names, the signing date, a
// zero-filled /Contents literal reserving contentsSize bytes, and a
// fixed-width /ByteRange placeholder. It returns the two placeholders
// whose offsets resolve during Save.
func (s *Signature) PrepareForSigning(filter, subFilter string, contentsSize int) (*generic.ContentsPlaceholder, *generic.ByteRangePlaceholder) {
	s.dict.Set("Type", generic.NameObject("Sig"))
	s.dict.Set("Filter", generic.NameObject(filter))
	s.dict.Set("SubFilter", generic.NameObject(subFilter))
	s.dict.Set("M", generic.NewLiteralString(FormatDate(time.Now())))

	s.contents = generic.NewContentsPlaceholder(contentsSize)
	s.byteRange = generic.NewByteRangePlaceholder()
	s.dict.Set("Contents", s.contents)
	s.dict.Set("ByteRange", s.byteRange)

	return s.contents, s.byteRange
}

// Placeholders returns the prepared placeholders.
func (s *Signature) Placeholders() (*generic.ContentsPlaceholder, *generic.ByteRangePlaceholder, error) {
	if s.contents == nil || s.byteRange == nil {
		return nil, nil, ErrSignatureUnprepared
	}
	return s.contents, s.byteRange, nil
}

// FormatDate formats a time as a PDF date string.
func FormatDate(t time.Time) string {
	_, offset := t.Zone()
	offsetHours := offset / 3600
	offsetMinutes := (offset % 3600) / 60

	sign := "+"
	if offset < 0 {
		sign = "-"
		offsetHours = -offsetHours
		offsetMinutes = -offsetMinutes
	}

	return fmt.Sprintf("D:%04d%02d%02d%02d%02d%02d%s%02d'%02d'",
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(),
		sign, offsetHours, offsetMinutes)
}
