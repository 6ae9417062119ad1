// Package pdfutil inspects submitted PDF documents.
package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Info summarizes a PDF.
type Info struct {
	Pages int
	// HasText is false for scans that carry no extractable text layer.
	HasText bool
}

// Inspect reads PDF bytes and reports page count and whether any page has
// text, using ledongthuc/pdf.
func Inspect(data []byte) (Info, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("new pdf reader: %w", err)
	}
	info := Info{Pages: doc.NumPage()}
	for page := 1; page <= info.Pages && !info.HasText; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return info, fmt.Errorf("page %d: %w", page, err)
		}
		info.HasText = strings.TrimSpace(content) != ""
	}
	return info, nil
}
