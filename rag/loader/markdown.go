package loader

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/tutorflow/rag"
)

// MarkdownLoader loads Markdown notes, splitting by ATX headings.
// Each section becomes a Document titled by its heading; content before the
// first heading is titled by the file name.
type MarkdownLoader struct{}

// NewMarkdownLoader creates a MarkdownLoader.
func NewMarkdownLoader() *MarkdownLoader {
	return &MarkdownLoader{}
}

// Load reads a Markdown file and splits it into Documents by heading.
func (l *MarkdownLoader) Load(ctx context.Context, path string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("markdown loader: %w", err)
	}
	defer f.Close()

	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	type section struct {
		heading string
		level   int
		lines   []string
	}

	var sections []section
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := scanner.Text()
		if heading, level := parseHeading(line); heading != "" {
			sections = append(sections, section{heading: heading, level: level})
		} else {
			if len(sections) == 0 {
				// Content before any heading goes into a preamble section.
				sections = append(sections, section{heading: "", level: 0})
			}
			sections[len(sections)-1].lines = append(sections[len(sections)-1].lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("markdown loader: reading %s: %w", path, err)
	}

	// If no sections were found (empty file), return empty slice.
	if len(sections) == 0 {
		return []rag.Document{}, nil
	}

	docs := make([]rag.Document, 0, len(sections))
	for i, sec := range sections {
		content := strings.TrimSpace(strings.Join(sec.lines, "\n"))
		if content == "" {
			continue
		}

		title := sec.heading
		if title == "" {
			title = baseName
		}
		meta := map[string]any{
			rag.MetaTitle: title,
			"loader":      "markdown",
			"section":     i,
		}
		if sec.heading != "" {
			meta["heading_level"] = sec.level
			// 正文以标题行开头
			content = strings.Repeat("#", sec.level) + " " + sec.heading + "\n\n" + content
		}

		docs = append(docs, rag.Document{
			Content:  content,
			Metadata: meta,
		})
	}

	return docs, nil
}

// parseHeading detects ATX-style headings (# Heading).
// Returns the heading text and level (1-6), or ("", 0) if not a heading.
func parseHeading(line string) (heading string, level int) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", 0
	}
	level = 0
	for _, ch := range trimmed {
		if ch == '#' {
			level++
		} else {
			break
		}
	}
	if level < 1 || level > 6 {
		return "", 0
	}
	heading = strings.TrimSpace(trimmed[level:])
	if heading == "" {
		return "", 0
	}
	return heading, level
}

// SupportedTypes returns the extensions handled by MarkdownLoader.
func (l *MarkdownLoader) SupportedTypes() []string {
	return []string{".md"}
}
