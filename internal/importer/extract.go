// Package importer fetches raw content (uploaded files, crawled pages,
// inline payloads), extracts plain text from it and validates it before
// any document record exists.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"
	"golang.org/x/net/html"
)

var (
	// ErrUnsupportedType rejects files whose extension we cannot extract
	// text from. Raised before a document is created.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrTooLarge rejects files over the configured size cap, also before
	// any document is created.
	ErrTooLarge = errors.New("file exceeds size limit")
)

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".odt":  true,
	".rtf":  true,
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
}

// ValidateFile checks extension and size synchronously. A rejection here
// is a validation error for the caller, never a document in error state.
func ValidateFile(name string, size, maxSize int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !supportedExtensions[ext] {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if maxSize > 0 && size > maxSize {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, size, maxSize)
	}
	return nil
}

// ExtractFile reads a stored file and returns its plain text.
func ExtractFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return extractPDF(path)
	case ".docx", ".odt", ".rtf":
		text, err := cat.File(path)
		if err != nil {
			return "", fmt.Errorf("failed to extract %s: %w", ext, err)
		}
		return text, nil
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		text, _, err := ExtractHTML(data)
		return text, err
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
}

func extractPDF(path string) (string, error) {
	reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no extractable text in pdf %s", filepath.Base(path))
	}
	return b.String(), nil
}

// ExtractHTML returns the visible text of an HTML document plus its
// <title>. Script and style subtrees are skipped; block elements become
// paragraph breaks so the chunker sees structure.
func ExtractHTML(data []byte) (string, string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}

	var b strings.Builder
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "footer":
				return
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if trimmedText := strings.TrimSpace(n.Data); trimmedText != "" {
				b.WriteString(trimmedText)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.Data) {
			b.WriteString("\n\n")
		}
	}
	walk(doc)

	return strings.TrimSpace(b.String()), title, nil
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "li", "br", "tr",
		"h1", "h2", "h3", "h4", "h5", "h6", "pre", "blockquote":
		return true
	}
	return false
}
