package document

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/CrackerCat/podofo/pdf/device"
	"github.com/CrackerCat/podofo/pdf/generic"
)

func TestAddPage(t *testing.T) {
	doc := New()
	if doc.PageCount() != 0 {
		t.Fatalf("new document has %d pages", doc.PageCount())
	}

	first := doc.AddPage(nil)
	second := doc.AddPage(&generic.Rectangle{URX: 595, URY: 842})
	if first != 0 || second != 1 {
		t.Errorf("page indexes = %d, %d", first, second)
	}
	if doc.PageCount() != 2 {
		t.Errorf("PageCount() = %d", doc.PageCount())
	}
}

func TestAddSignatureField(t *testing.T) {
	t.Run("wires page, form, and dictionary", func(t *testing.T) {
		doc := New()
		page := doc.AddPage(nil)
		sig, err := doc.AddSignatureField("Sig1", page, &generic.Rectangle{LLX: 1, LLY: 2, URX: 3, URY: 4})
		if err != nil {
			t.Fatal(err)
		}
		if sig.PageIndex() != page {
			t.Errorf("PageIndex() = %d", sig.PageIndex())
		}
		if sig.Ref().IsZero() || sig.FieldRef().IsZero() {
			t.Error("references not assigned")
		}

		found, err := doc.Signature(sig.Ref())
		if err != nil || found != sig {
			t.Errorf("Signature lookup: %v, %v", found, err)
		}
	})

	t.Run("duplicate field name", func(t *testing.T) {
		doc := New()
		page := doc.AddPage(nil)
		if _, err := doc.AddSignatureField("Sig1", page, nil); err != nil {
			t.Fatal(err)
		}
		if _, err := doc.AddSignatureField("Sig1", page, nil); !errors.Is(err, ErrDuplicateFieldName) {
			t.Errorf("expected ErrDuplicateFieldName, got %v", err)
		}
	})

	t.Run("page out of range", func(t *testing.T) {
		doc := New()
		if _, err := doc.AddSignatureField("Sig1", 0, nil); !errors.Is(err, ErrPageOutOfRange) {
			t.Errorf("expected ErrPageOutOfRange, got %v", err)
		}
	})

	t.Run("unknown signature lookup", func(t *testing.T) {
		doc := New()
		if _, err := doc.Signature(generic.NewReference(99, 0)); !errors.Is(err, ErrUnknownSignature) {
			t.Errorf("expected ErrUnknownSignature, got %v", err)
		}
	})
}

func TestPrepareForSigning(t *testing.T) {
	doc := New()
	page := doc.AddPage(nil)
	sig, err := doc.AddSignatureField("Sig1", page, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := sig.Placeholders(); !errors.Is(err, ErrSignatureUnprepared) {
		t.Errorf("expected ErrSignatureUnprepared before prepare, got %v", err)
	}

	contents, byteRange := sig.PrepareForSigning("Adobe.PPKLite", "adbe.pkcs7.detached", 64)
	if contents.Capacity() != 64 {
		t.Errorf("Capacity() = %d", contents.Capacity())
	}
	if byteRange == nil {
		t.Fatal("nil byte range placeholder")
	}

	gotContents, gotRange, err := sig.Placeholders()
	if err != nil || gotContents != contents || gotRange != byteRange {
		t.Error("Placeholders() does not return the prepared objects")
	}
}

func TestSave(t *testing.T) {
	buildAndSave := func(t *testing.T, opts SaveOptions) []byte {
		t.Helper()
		doc := New()
		page := doc.AddPage(nil)
		sig, err := doc.AddSignatureField("Sig1", page, nil)
		if err != nil {
			t.Fatal(err)
		}
		sig.PrepareForSigning("Adobe.PPKLite", "adbe.pkcs7.detached", 8)

		dev := device.NewMemoryDevice()
		if err := doc.Save(dev, opts); err != nil {
			t.Fatalf("Save: %v", err)
		}
		return dev.Bytes()
	}

	t.Run("file structure", func(t *testing.T) {
		data := buildAndSave(t, SaveOptions{})
		if !bytes.HasPrefix(data, []byte("%PDF-1.7\n")) {
			t.Error("missing header")
		}
		if !bytes.HasSuffix(data, []byte("%%EOF\n")) {
			t.Error("missing EOF marker")
		}
		for _, key := range []string{"/Catalog", "/Pages", "/AcroForm", "/Sig", "/ByteRange", "/Contents", "trailer", "xref"} {
			if !bytes.Contains(data, []byte(key)) {
				t.Errorf("missing %q", key)
			}
		}
	})

	t.Run("custom version", func(t *testing.T) {
		data := buildAndSave(t, SaveOptions{Version: "2.0"})
		if !bytes.HasPrefix(data, []byte("%PDF-2.0\n")) {
			t.Error("version option ignored")
		}
	})

	t.Run("document id can be skipped", func(t *testing.T) {
		withID := buildAndSave(t, SaveOptions{})
		withoutID := buildAndSave(t, SaveOptions{SkipDocumentID: true})
		if !bytes.Contains(withID, []byte("/ID")) {
			t.Error("expected /ID in trailer")
		}
		if bytes.Contains(withoutID, []byte("/ID")) {
			t.Error("unexpected /ID in trailer")
		}
	})

	t.Run("startxref points at the xref table", func(t *testing.T) {
		data := buildAndSave(t, SaveOptions{})
		m := regexp.MustCompile(`startxref\n(\d+)\n%%EOF\n$`).FindSubmatch(data)
		if m == nil {
			t.Fatal("missing startxref")
		}
		off, err := strconv.Atoi(string(m[1]))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.HasPrefix(data[off:], []byte("xref\n")) {
			t.Errorf("startxref %d does not point at the xref table", off)
		}
	})

	t.Run("xref offsets point at objects", func(t *testing.T) {
		data := buildAndSave(t, SaveOptions{SkipDocumentID: true})
		entries := regexp.MustCompile(`(\d{10}) 00000 n `).FindAllSubmatch(data, -1)
		if len(entries) == 0 {
			t.Fatal("no xref entries")
		}
		for i, e := range entries {
			off, _ := strconv.Atoi(string(e[1]))
			want := []byte(strconv.Itoa(i+1) + " 0 obj\n")
			if !bytes.HasPrefix(data[off:], want) {
				t.Errorf("entry %d: offset %d does not start object %d", i, off, i+1)
			}
		}
	})

	t.Run("placeholders resolve during save", func(t *testing.T) {
		doc := New()
		page := doc.AddPage(nil)
		sig, err := doc.AddSignatureField("Sig1", page, nil)
		if err != nil {
			t.Fatal(err)
		}
		contents, _ := sig.PrepareForSigning("Adobe.PPKLite", "adbe.pkcs7.detached", 8)

		dev := device.NewMemoryDevice()
		if err := doc.Save(dev, SaveOptions{}); err != nil {
			t.Fatal(err)
		}

		start, end, err := contents.Offsets()
		if err != nil {
			t.Fatalf("Offsets: %v", err)
		}
		data := dev.Bytes()
		if data[start] != '<' || data[end-1] != '>' {
			t.Errorf("offsets [%d,%d) do not bracket the hex literal", start, end)
		}
		if end-start != int64(2+2*8) {
			t.Errorf("literal width = %d, want %d", end-start, 2+2*8)
		}
	})
}

func TestFormatDate(t *testing.T) {
	loc := time.FixedZone("", 2*3600+30*60)
	ts := time.Date(2024, 3, 9, 14, 5, 6, 0, loc)
	if got := FormatDate(ts); got != "D:20240309140506+02'30'" {
		t.Errorf("FormatDate = %q", got)
	}

	west := time.FixedZone("", -5*3600)
	ts = time.Date(2024, 3, 9, 14, 5, 6, 0, west)
	if got := FormatDate(ts); got != "D:20240309140506-05'00'" {
		t.Errorf("FormatDate = %q", got)
	}
}

func TestTextStringFieldNames(t *testing.T) {
	doc := New()
	page := doc.AddPage(nil)
	if _, err := doc.AddSignatureField("Unterschrift süd", page, nil); err != nil {
		t.Fatal(err)
	}

	dev := device.NewMemoryDevice()
	if err := doc.Save(dev, SaveOptions{SkipDocumentID: true}); err != nil {
		t.Fatal(err)
	}
	// UTF-16BE BOM inside the literal string.
	if !strings.Contains(string(dev.Bytes()), "\xfe\xff") {
		t.Error("non-ASCII field name not encoded as UTF-16BE")
	}
}
