package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF extracts text from a PDF using pdfcpu's per-page content
// extraction. pdfcpu operates on files, so the upload goes through a
// temp file and page contents come back as one file per page.
func extractPDF(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "recall-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating temp pdf: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing temp pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp pdf: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tmpPath)
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir, err := os.MkdirTemp("", "recall-pdf-pages-")
	if err != nil {
		return "", fmt.Errorf("creating page directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tmpPath, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("extracting pdf content: %w", err)
	}

	// Page content lands in files named Content_page_<n>; collect and
	// join in page order.
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("reading page directory: %w", err)
	}
	pageTexts := make(map[int]string, pageCount)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(entry.Name(), "Content_page_%d", &pageNum); err != nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		pageTexts[pageNum] = string(content)
	}

	var sb strings.Builder
	for page := 1; page <= pageCount; page++ {
		text, ok := pageTexts[page]
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}
