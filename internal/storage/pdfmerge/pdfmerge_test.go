package pdfmerge

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDetectKindByMagicBytes(t *testing.T) {
	cases := []struct {
		name string
		file string
		data []byte
		want kind
	}{
		{"pdf magic wins over extension", "report.txt", []byte("%PDF-1.7 rest"), kindPDF},
		{"png", "logo.png", pngBytes(t), kindImagePNG},
		{"jpeg", "photo.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, kindImageJPEG},
		{"zip with xlsx extension", "sheet.xlsx", []byte("PK\x03\x04rest"), kindXLSX},
		{"zip with docx extension", "doc.docx", []byte("PK\x03\x04rest"), kindDOCX},
		{"ole doc", "old.doc", []byte{0xD0, 0xCF, 0x11, 0xE0, 0x00}, kindDOC},
		{"plain text by extension", "notes.txt", []byte("hello"), kindText},
		{"unknown", "data.bin", []byte{0x00, 0x01}, kindUnknown},
	}
	for _, tc := range cases {
		if got := detectKind(tc.file, tc.data); got != tc.want {
			t.Errorf("%s: detectKind = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMergeRequiresTwoConvertibleInputs(t *testing.T) {
	_, err := Merge([]Input{
		{Name: "a.png", Data: pngBytes(t)},
		{Name: "junk.bin", Data: []byte{0x00}},
	})
	if !errors.Is(err, ErrInsufficientInputs) {
		t.Fatalf("expected ErrInsufficientInputs, got %v", err)
	}
}

func TestMergeImagesAndText(t *testing.T) {
	res, err := Merge([]Input{
		{Name: "a.png", Data: pngBytes(t)},
		{Name: "notes.txt", Data: []byte("first paragraph\nsecond paragraph")},
		{Name: "junk.bin", Data: []byte{0x00}},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !bytes.HasPrefix(res.PDF, []byte("%PDF")) {
		t.Fatal("merged output is not a PDF")
	}
	if len(res.Failed) != 1 || res.Failed[0] != "junk.bin" {
		t.Fatalf("expected junk.bin in failed list, got %v", res.Failed)
	}
}

func TestExtractPrintableTextSkipsShortRuns(t *testing.T) {
	data := append([]byte{0x00, 0x01}, []byte("meaningful words here")...)
	data = append(data, 0x02, 'a', 'b', 0x03)
	got := extractPrintableText(data)
	if got != "meaningful words here\n" {
		t.Fatalf("got %q", got)
	}
}
