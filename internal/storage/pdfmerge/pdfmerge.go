// Package pdfmerge converts heterogeneous document inputs to PDF and
// concatenates them in input order. Fewer than two successfully converted
// inputs is an error: a merge of one document is not a merge.
package pdfmerge

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/xuri/excelize/v2"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// ErrInsufficientInputs is returned when fewer than two inputs convert.
var ErrInsufficientInputs = errors.New("fewer than two inputs could be converted to PDF")

// Input is one document to merge.
type Input struct {
	Name string
	Data []byte
}

// Result reports the merged document and which inputs failed conversion.
type Result struct {
	PDF    []byte
	Failed []string
}

// Table rendering caps for spreadsheet inputs.
const (
	maxSheetRows = 20
	maxSheetCols = 10
)

// Merge converts every input to PDF and concatenates the results in input
// order. Temporary files are removed on all exit paths.
func Merge(inputs []Input) (*Result, error) {
	tmpDir, err := os.MkdirTemp("", "pdfmerge-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	var converted []string
	var failed []string
	for i, in := range inputs {
		path, err := convertToPDF(tmpDir, i, in)
		if err != nil {
			failed = append(failed, in.Name)
			continue
		}
		converted = append(converted, path)
	}

	if len(converted) < 2 {
		return nil, ErrInsufficientInputs
	}

	outPath := filepath.Join(tmpDir, "merged.pdf")
	if err := pdfapi.MergeCreateFile(converted, outPath, false, nil); err != nil {
		return nil, fmt.Errorf("failed to merge PDFs: %w", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read merged PDF: %w", err)
	}

	return &Result{PDF: data, Failed: failed}, nil
}

// kind is the detected document family of an input.
type kind int

const (
	kindUnknown kind = iota
	kindPDF
	kindDOCX
	kindDOC
	kindImagePNG
	kindImageJPEG
	kindImageGIF
	kindImageBMP
	kindImageTIFF
	kindImageWEBP
	kindText
	kindXLSX
	kindXLS
)

// detectKind sniffs magic bytes first and falls back to the extension.
func detectKind(name string, data []byte) kind {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return kindPDF
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}):
		return kindImagePNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8}):
		return kindImageJPEG
	case bytes.HasPrefix(data, []byte("GIF8")):
		return kindImageGIF
	case bytes.HasPrefix(data, []byte("BM")):
		return kindImageBMP
	case bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")):
		return kindImageTIFF
	case len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return kindImageWEBP
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		switch ext {
		case "xlsx":
			return kindXLSX
		case "docx":
			return kindDOCX
		}
		return kindDOCX
	}
	if bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0}) {
		if ext == "xls" {
			return kindXLS
		}
		return kindDOC
	}

	switch ext {
	case "pdf":
		return kindPDF
	case "txt":
		return kindText
	case "docx":
		return kindDOCX
	case "doc":
		return kindDOC
	case "xlsx":
		return kindXLSX
	case "xls":
		return kindXLS
	case "png":
		return kindImagePNG
	case "jpg", "jpeg":
		return kindImageJPEG
	case "gif":
		return kindImageGIF
	case "bmp":
		return kindImageBMP
	case "tif", "tiff":
		return kindImageTIFF
	case "webp":
		return kindImageWEBP
	}
	return kindUnknown
}

func convertToPDF(tmpDir string, index int, in Input) (string, error) {
	outPath := filepath.Join(tmpDir, fmt.Sprintf("input-%03d.pdf", index))

	switch detectKind(in.Name, in.Data) {
	case kindPDF:
		if err := os.WriteFile(outPath, in.Data, 0o600); err != nil {
			return "", err
		}
		// Reject corrupt PDFs here so they count as failed conversions
		// instead of failing the whole merge.
		if err := pdfapi.ValidateFile(outPath, nil); err != nil {
			return "", fmt.Errorf("invalid pdf %q: %w", in.Name, err)
		}
		return outPath, nil
	case kindImagePNG:
		return outPath, imageToPDF(outPath, in.Data, "PNG")
	case kindImageJPEG:
		return outPath, imageToPDF(outPath, in.Data, "JPG")
	case kindImageGIF:
		return outPath, imageToPDF(outPath, in.Data, "GIF")
	case kindImageBMP:
		return outPath, reencodedImageToPDF(outPath, in.Data, bmp.Decode)
	case kindImageTIFF:
		return outPath, reencodedImageToPDF(outPath, in.Data, tiff.Decode)
	case kindImageWEBP:
		return outPath, reencodedImageToPDF(outPath, in.Data, webp.Decode)
	case kindText:
		return outPath, textToPDF(outPath, string(in.Data))
	case kindDOCX:
		return outPath, docxToPDF(outPath, in.Data)
	case kindDOC:
		return outPath, docToPDF(tmpDir, outPath, in)
	case kindXLSX:
		return outPath, xlsxToPDF(outPath, in.Data)
	case kindXLS:
		// Legacy OLE workbooks fall back to printable-text extraction.
		return outPath, textToPDF(outPath, extractPrintableText(in.Data))
	default:
		return "", fmt.Errorf("unsupported input %q", in.Name)
	}
}

// imageToPDF centers the image on a letter page scaled to at most 95% of the
// page while preserving aspect ratio.
func imageToPDF(outPath string, data []byte, imgType string) error {
	doc := fpdf.New("P", "mm", "Letter", "")
	doc.AddPage()

	opts := fpdf.ImageOptions{ImageType: imgType}
	info := doc.RegisterImageOptionsReader("input", opts, bytes.NewReader(data))
	if doc.Err() {
		return fmt.Errorf("failed to register image: %s", doc.Error())
	}

	pageW, pageH := doc.GetPageSize()
	maxW, maxH := pageW*0.95, pageH*0.95

	w, h := info.Width(), info.Height()
	scale := 1.0
	if w > maxW {
		scale = maxW / w
	}
	if h*scale > maxH {
		scale = maxH / h
	}
	w, h = w*scale, h*scale

	doc.ImageOptions("input", (pageW-w)/2, (pageH-h)/2, w, h, false, opts, 0, "")
	return writePDF(doc, outPath)
}

func reencodedImageToPDF(outPath string, data []byte, decode func(io.Reader) (image.Image, error)) error {
	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to re-encode image: %w", err)
	}
	return imageToPDF(outPath, buf.Bytes(), "PNG")
}

// textToPDF wraps plain text as paragraphs.
func textToPDF(outPath, text string) error {
	doc := fpdf.New("P", "mm", "Letter", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 11)

	tr := doc.UnicodeTranslatorFromDescriptor("")
	for _, para := range strings.Split(text, "\n") {
		doc.MultiCell(0, 5.5, tr(para), "", "L", false)
	}
	return writePDF(doc, outPath)
}

// docxToPDF flattens the OOXML body into paragraphs and table rows. Tables
// are rendered as tab-joined cell text, paragraph per row.
func docxToPDF(outPath string, data []byte) error {
	paragraphs, err := flattenDOCX(data)
	if err != nil {
		return err
	}
	return textToPDF(outPath, strings.Join(paragraphs, "\n"))
}

// docToPDF tries headless office conversion and falls back to printable-text
// extraction when no converter is installed or the conversion fails.
func docToPDF(tmpDir, outPath string, in Input) error {
	if soffice, err := exec.LookPath("soffice"); err == nil {
		srcPath := filepath.Join(tmpDir, "legacy-"+SanitizeName(in.Name))
		if err := os.WriteFile(srcPath, in.Data, 0o600); err != nil {
			return err
		}
		cmd := exec.Command(soffice, "--headless", "--convert-to", "pdf", "--outdir", tmpDir, srcPath)
		if err := cmd.Run(); err == nil {
			produced := strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + ".pdf"
			if data, err := os.ReadFile(produced); err == nil {
				return os.WriteFile(outPath, data, 0o600)
			}
		}
	}
	return textToPDF(outPath, extractPrintableText(in.Data))
}

// xlsxToPDF renders each sheet as a table capped at the first 20 rows and 10
// columns, with an overflow notice when truncated.
func xlsxToPDF(outPath string, data []byte) error {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	doc := fpdf.New("L", "mm", "Letter", "")
	doc.SetFont("Helvetica", "", 9)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			continue
		}

		doc.AddPage()
		doc.SetFont("Helvetica", "B", 11)
		doc.CellFormat(0, 7, tr(sheet), "", 1, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 9)

		truncated := len(rows) > maxSheetRows
		if truncated {
			rows = rows[:maxSheetRows]
		}

		pageW, _ := doc.GetPageSize()
		left, _, right, _ := doc.GetMargins()
		colW := (pageW - left - right) / float64(maxSheetCols)

		for _, row := range rows {
			if len(row) > maxSheetCols {
				truncated = true
				row = row[:maxSheetCols]
			}
			for _, cell := range row {
				if len(cell) > 40 {
					cell = cell[:40]
				}
				doc.CellFormat(colW, 6, tr(cell), "1", 0, "L", false, 0, "")
			}
			doc.Ln(-1)
		}

		if truncated {
			doc.Ln(2)
			doc.SetFont("Helvetica", "I", 8)
			doc.CellFormat(0, 5, fmt.Sprintf("Sheet truncated to first %d rows x %d columns", maxSheetRows, maxSheetCols), "", 1, "L", false, 0, "")
			doc.SetFont("Helvetica", "", 9)
		}
	}

	return writePDF(doc, outPath)
}

func writePDF(doc *fpdf.Fpdf, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return doc.Output(f)
}

// extractPrintableText pulls printable runs out of a binary document as a
// last-resort conversion.
func extractPrintableText(data []byte) string {
	var b strings.Builder
	var run []byte
	flush := func() {
		if len(run) >= 4 {
			b.Write(run)
			b.WriteByte('\n')
		}
		run = run[:0]
	}
	for _, c := range data {
		if c >= 0x20 && c < 0x7F {
			run = append(run, c)
		} else {
			flush()
		}
	}
	flush()
	return b.String()
}

// SanitizeName keeps a filename safe for temp-file use.
func SanitizeName(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
}
