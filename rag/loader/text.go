package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/tutorflow/rag"
)

// TextLoader loads plain text files as a single Document.
type TextLoader struct{}

// NewTextLoader creates a TextLoader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads a text file and returns it as a single Document.
func (l *TextLoader) Load(ctx context.Context, path string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("text loader: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return []rag.Document{}, nil
	}

	return []rag.Document{{
		Content: content,
		Metadata: map[string]any{
			rag.MetaTitle: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			"loader":      "text",
		},
	}}, nil
}

// SupportedTypes returns the extensions handled by TextLoader.
func (l *TextLoader) SupportedTypes() []string {
	return []string{".txt"}
}
