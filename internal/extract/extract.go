// Package extract turns uploads into pipeline documents. Text formats are
// decoded to UTF-8; images are kept as bytes with a short caption so text
// only models still have something to work with.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/aether-labs/aether/internal/core"
)

// DefaultMaxBytes limits a single upload.
const DefaultMaxBytes = 10 << 20

const sniffLen = 512

const (
	mimeText     = "text/plain"
	mimeMarkdown = "text/markdown"
	mimeCSV      = "text/csv"
	mimeJSON     = "application/json"
	mimePDF      = "application/pdf"
	mimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var textTypes = map[string]bool{
	mimeText:     true,
	mimeMarkdown: true,
	mimeCSV:      true,
	mimeJSON:     true,
}

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

var extTypes = map[string]string{
	".txt":      mimeText,
	".text":     mimeText,
	".md":       mimeMarkdown,
	".markdown": mimeMarkdown,
	".csv":      mimeCSV,
	".json":     mimeJSON,
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".webp":     "image/webp",
	".pdf":      mimePDF,
	".docx":     mimeDOCX,
}

// Extractor validates and normalizes submissions.
type Extractor struct {
	maxBytes int64
}

// New creates an extractor. maxBytes <= 0 uses DefaultMaxBytes.
func New(maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{maxBytes: maxBytes}
}

// MaxBytes returns the upload limit.
func (e *Extractor) MaxBytes() int64 { return e.maxBytes }

// FromReader reads an upload and returns the normalized document. declared
// is the client's Content-Type and is only trusted when sniffing is
// inconclusive.
func (e *Extractor) FromReader(r io.Reader, filename, declared string) (core.Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return core.Document{}, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return core.Document{}, core.ErrValidation(core.CodeDocumentTooLarge,
			fmt.Sprintf("document too large (max %d bytes)", e.maxBytes))
	}
	return e.FromBytes(data, filename, declared)
}

// FromBytes normalizes an in-memory upload.
func (e *Extractor) FromBytes(data []byte, filename, declared string) (core.Document, error) {
	if int64(len(data)) > e.maxBytes {
		return core.Document{}, core.ErrValidation(core.CodeDocumentTooLarge,
			fmt.Sprintf("document too large (max %d bytes)", e.maxBytes))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return core.Document{}, core.ErrValidation(core.CodeEmptyDocument, "document is empty")
	}

	name := SanitizeFilename(filename)
	mt := DetectMimeType(data, filename, declared)

	switch {
	case textTypes[mt]:
		return textDocument(data, mt, name)
	case imageTypes[mt]:
		return core.Document{
			Type:     core.DocumentImage,
			Text:     imageCaption(name, mt, len(data)),
			MimeType: mt,
			Data:     data,
			Filename: name,
		}, nil
	default:
		return core.Document{}, &core.UnsupportedInputError{MimeType: mt}
	}
}

// FromText wraps pasted text as a document.
func (e *Extractor) FromText(text string) (core.Document, error) {
	return e.FromBytes([]byte(text), "", mimeText)
}

func textDocument(data []byte, mt, name string) (core.Document, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return core.Document{}, core.ErrValidation(core.CodeEmptyDocument, "document is empty")
	}
	return core.Document{Type: core.DocumentText, Text: text, MimeType: mt, Filename: name}, nil
}

func imageCaption(name, mt string, size int) string {
	if name == "" {
		name = "uploaded image"
	}
	return fmt.Sprintf("Image document %s (%s, %d bytes). The content is a chart, table or figure to be read from the image.", name, mt, size)
}

// DetectMimeType decides the media type from content first, then the file
// extension, then the declared type.
func DetectMimeType(data []byte, filename, declared string) string {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	sniffed := baseType(http.DetectContentType(head))
	byExt := extTypes[strings.ToLower(filepath.Ext(filename))]
	decl := baseType(declared)

	switch {
	case imageTypes[sniffed], sniffed == mimePDF:
		return sniffed
	case sniffed == "application/zip":
		// DOCX is a zip container.
		if byExt != "" {
			return byExt
		}
		return sniffed
	case strings.HasPrefix(sniffed, "text/"):
		// The sniffer only knows plain text; refine known text formats.
		if textTypes[byExt] {
			return byExt
		}
		if textTypes[decl] {
			return decl
		}
		if sniffed == "text/html" || sniffed == "text/xml" {
			return sniffed
		}
		return mimeText
	}

	if byExt != "" {
		return byExt
	}
	if decl != "" {
		return decl
	}
	return sniffed
}

func baseType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}

// SanitizeFilename reduces a client supplied name to a safe base name.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, "\x00", "")
	if base == "." || base == ".." || base == "/" {
		return ""
	}
	const maxLen = 200
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	return base
}
