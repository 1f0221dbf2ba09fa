package extract

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrEncryptedPDF is returned when a PDF cannot be opened because it
// is password protected. Callers translate this into
// fetch.ErrAuthentication.
var ErrEncryptedPDF = errors.New("pdf is encrypted")

// ErrCorruptPDF is returned when the PDF structure cannot be parsed.
// Callers translate this into fetch.ErrParse.
var ErrCorruptPDF = errors.New("pdf is corrupt or malformed")

var collapseSpaces = regexp.MustCompile(`[ \t]+`)

// PDFResult carries extracted text plus document metadata, grounded on
// original_source/fetchers/pdf_fetcher.py's extract_text_from_pdf and
// extract_metadata_from_pdf.
type PDFResult struct {
	Text         string
	PageCount    int
	CreationDate string
	ModDate      string
	Author       string
	Title        string
}

// PDF extracts per-page text and metadata from raw PDF bytes. It
// writes the content to a temporary file (the pdf package requires a
// ReaderAt over a named file) and always removes it before returning.
func PDF(raw []byte) (*PDFResult, error) {
	tmp, err := os.CreateTemp("", "policywatch-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp pdf file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(raw); err != nil {
		return nil, fmt.Errorf("write temp pdf file: %w", err)
	}

	reader, f, err := pdf.Open(tmp.Name())
	if err != nil {
		if isPasswordErr(err) {
			return nil, ErrEncryptedPDF
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptPDF, err)
	}
	defer f.Close()

	var pages []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, text)
	}

	joined := strings.Join(pages, "\n\n")
	joined = collapseSpaces.ReplaceAllString(joined, " ")
	joined = collapseBlankLines.ReplaceAllString(joined, "\n\n")

	result := &PDFResult{
		Text:      strings.TrimSpace(joined),
		PageCount: numPages,
	}

	info := reader.Trailer().Key("Info")
	if !info.IsNull() {
		result.CreationDate = info.Key("CreationDate").Text()
		result.ModDate = info.Key("ModDate").Text()
		result.Author = info.Key("Author").Text()
		result.Title = info.Key("Title").Text()
	}

	return result, nil
}

func isPasswordErr(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "password") ||
		strings.Contains(strings.ToLower(err.Error()), "encrypt")
}
