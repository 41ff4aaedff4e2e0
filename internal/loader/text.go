package loader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// Text reads a local UTF-8 text file. Invalid byte sequences are replaced.
type Text struct{}

// Load implements Loader.
func (Text) Load(ctx context.Context, src domain.Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("load %q: %w", src.Label, err)
	}
	data, err := os.ReadFile(src.Location)
	if err != nil {
		return "", fmt.Errorf("load %q: %v: %w", src.Label, err, domain.ErrSourceExtraction)
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return strings.ReplaceAll(text, "\r\n", "\n"), nil
}
