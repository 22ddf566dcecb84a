package pdfmerge

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// flattenDOCX extracts paragraph and table text from word/document.xml in
// document order. Only text content survives; formatting is dropped.
func flattenDOCX(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx archive: %w", err)
	}

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("docx archive has no word/document.xml")
	}
	defer docXML.Close()

	var paragraphs []string
	var current strings.Builder
	var cells []string
	inCell := false

	dec := xml.NewDecoder(docXML)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "tc":
				inCell = true
			case "t":
				var text string
				if err := dec.DecodeElement(&text, &el); err == nil {
					current.WriteString(text)
				}
			case "br", "cr":
				current.WriteString(" ")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "p":
				if inCell {
					// Cell paragraphs accumulate; the cell flushes
					// them together.
					break
				}
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			case "tc":
				cells = append(cells, current.String())
				current.Reset()
				inCell = false
			case "tr":
				paragraphs = append(paragraphs, strings.Join(cells, "\t"))
				cells = cells[:0]
			}
		}
	}

	return paragraphs, nil
}
