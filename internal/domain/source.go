package domain

import "fmt"

// SourceType tags how a source is turned into raw text.
type SourceType string

const (
	// SourcePDF is a PDF file on local disk.
	SourcePDF SourceType = "pdf"
	// SourcePDFURL is a PDF fetched over HTTP(S).
	SourcePDFURL SourceType = "pdf_url"
	// SourceWeb is an HTML page fetched over HTTP(S).
	SourceWeb SourceType = "url"
	// SourceText is a UTF-8 text file on local disk.
	SourceText SourceType = "text"
)

// SourceTypes lists every supported source type.
func SourceTypes() []SourceType {
	return []SourceType{SourcePDF, SourcePDFURL, SourceWeb, SourceText}
}

// ParseSourceType validates a source type tag.
func ParseSourceType(s string) (SourceType, error) {
	for _, t := range SourceTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, s)
}

// Source is a document registered for indexing. Identity is (Type, Label).
type Source struct {
	Type     SourceType
	Location string
	Label    string
	Enabled  bool
}

// Key returns the identity of the source.
func (s Source) Key() string {
	return string(s.Type) + ":" + s.Label
}
