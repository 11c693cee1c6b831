package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/tutorflow/rag"
)

// HTMLFileLoader 用 Transformer 读取本地 HTML 文件
type HTMLFileLoader struct {
	transformer Transformer
}

// NewHTMLFileLoader creates an HTMLFileLoader.
func NewHTMLFileLoader(t Transformer) *HTMLFileLoader {
	if t == nil {
		t = MainContent{}
	}
	return &HTMLFileLoader{transformer: t}
}

func (l *HTMLFileLoader) Load(ctx context.Context, path string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("html loader: %w", err)
	}
	title, text, err := l.transformer.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("html loader: %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return []rag.Document{}, nil
	}
	if title == "" {
		title = filepath.Base(path)
	}
	return []rag.Document{{
		Content:  text,
		Metadata: map[string]any{rag.MetaTitle: title, "loader": "html"},
	}}, nil
}

func (l *HTMLFileLoader) SupportedTypes() []string {
	return []string{".html", ".htm"}
}
