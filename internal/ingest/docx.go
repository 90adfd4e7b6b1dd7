package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// WordprocessingML, reduced to the elements that carry text. The tags
// omit the namespace on purpose: encoding/xml matches local names, so
// "p" matches <w:p>.
type docxDocument struct {
	Body docxBody `xml:"body"`
}

type docxBody struct {
	Paragraphs []docxParagraph `xml:"p"`
	Tables     []docxTable     `xml:"tbl"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paragraphs []docxParagraph `xml:"p"`
}

// extractDOCX pulls the text out of a .docx archive: body paragraphs
// first, then table rows with cells joined by " | ".
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening docx archive: %w", err)
	}

	var docEntry *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docEntry = f
			break
		}
	}
	if docEntry == nil {
		return "", errors.New("docx archive has no word/document.xml")
	}

	rc, err := docEntry.Open()
	if err != nil {
		return "", fmt.Errorf("opening word/document.xml: %w", err)
	}
	defer rc.Close()

	var doc docxDocument
	if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
		return "", fmt.Errorf("parsing word/document.xml: %w", err)
	}

	var sb strings.Builder
	for _, p := range doc.Body.Paragraphs {
		if text := p.text(); text != "" {
			sb.WriteString(text)
			sb.WriteByte('\n')
		}
	}
	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			cells := make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				parts := make([]string, 0, len(cell.Paragraphs))
				for _, p := range cell.Paragraphs {
					if text := p.text(); text != "" {
						parts = append(parts, text)
					}
				}
				cells[i] = strings.Join(parts, " ")
			}
			sb.WriteString(strings.Join(cells, " | "))
			sb.WriteByte('\n')
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func (p docxParagraph) text() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			sb.WriteString(t.Content)
		}
	}
	return sb.String()
}
