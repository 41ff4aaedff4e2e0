package loader

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// Subtrees that never carry page content.
var skipElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Form:     true,
	atom.Template: true,
}

// Elements that end a paragraph.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Main: true, atom.Aside: true, atom.Blockquote: true, atom.Pre: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
	atom.Table: true, atom.Tr: true, atom.Br: true, atom.Hr: true, atom.Figcaption: true,
	atom.Address: true,
}

// Web fetches an HTML page and extracts its visible text. Block elements
// become blank-line separated paragraphs. A PDF served at the URL is
// extracted as a PDF.
type Web struct {
	fetcher *fetcher
}

// Load implements Loader.
func (l *Web) Load(ctx context.Context, src domain.Source) (string, error) {
	body, mediaType, err := l.fetcher.fetch(ctx, src.Location)
	if err != nil {
		return "", fmt.Errorf("load %q: %w", src.Label, err)
	}

	if mediaType == "application/pdf" {
		text, err := extractPDF(bytes.NewReader(body), int64(len(body)))
		if err != nil {
			return "", fmt.Errorf("load %q: %w", src.Label, err)
		}
		return text, nil
	}

	text, err := HTMLText(body)
	if err != nil {
		return "", fmt.Errorf("load %q: %w", src.Label, err)
	}
	return text, nil
}

// HTMLText parses an HTML document and returns its visible text.
func HTMLText(doc []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse html: %v: %w", err, domain.ErrSourceExtraction)
	}

	var w paragraphWriter
	w.walk(root)
	w.flush()
	return strings.Join(w.paras, "\n\n"), nil
}

type paragraphWriter struct {
	paras []string
	cur   strings.Builder
}

func (w *paragraphWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.cur.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skipElements[n.DataAtom] {
			return
		}
		if blockElements[n.DataAtom] {
			w.flush()
			defer w.flush()
		} else if n.DataAtom == atom.Td || n.DataAtom == atom.Th {
			defer w.cur.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *paragraphWriter) flush() {
	text := strings.Join(strings.Fields(w.cur.String()), " ")
	w.cur.Reset()
	if text != "" {
		w.paras = append(w.paras, text)
	}
}
