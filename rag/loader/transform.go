package loader

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Transformer 把 HTML 页面转换为标题与正文
type Transformer interface {
	Name() string
	Transform(page []byte) (title, text string, err error)
}

// 内容提取方式
const (
	TransformerMainContent = "main_content"
	TransformerBodyText    = "body_text"
)

// NewTransformer 按名称创建转换器，接受 beautiful_soup / html2text 别名
func NewTransformer(name string) (Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TransformerMainContent, "beautiful_soup", "":
		return MainContent{}, nil
	case TransformerBodyText, "html2text":
		return BodyText{}, nil
	default:
		return nil, fmt.Errorf("unsupported transformer %q", name)
	}
}

// MainContent 提取 <title> 与所有 <p> 段落；段内空白折叠，段落以空行分隔。
type MainContent struct{}

func (MainContent) Name() string { return TransformerMainContent }

func (MainContent) Transform(page []byte) (string, string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	var title string
	var paragraphs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			case atom.Title:
				if title == "" {
					title = collapse(textOf(n))
				}
				return
			case atom.P:
				if p := collapse(textOf(n)); p != "" {
					paragraphs = append(paragraphs, p)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	parts := paragraphs
	if title != "" {
		parts = append([]string{title}, paragraphs...)
	}
	return title, strings.Join(parts, "\n\n"), nil
}

// BodyText 输出 <body> 中 script/style/noscript 以外的全部文本，
// 块级元素前后换行；逐行去空白并丢弃空行。
type BodyText struct{}

func (BodyText) Name() string { return TransformerBodyText }

var blockElements = map[atom.Atom]bool{
	atom.Article: true, atom.Aside: true, atom.Blockquote: true, atom.Br: true,
	atom.Div: true, atom.Footer: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Tr: true, atom.Ul: true, atom.Ol: true,
}

func (BodyText) Transform(page []byte) (string, string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	var title string
	var b strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inBody bool) {
		switch n.Type {
		case html.TextNode:
			if inBody {
				b.WriteString(spaceRun.ReplaceAllString(n.Data, " "))
			}
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Title:
				if title == "" {
					title = collapse(textOf(n))
				}
				return
			case atom.Body:
				inBody = true
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block && inBody {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inBody)
		}
		if block && inBody {
			b.WriteByte('\n')
		}
	}
	walk(doc, false)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = collapse(line); line != "" {
			lines = append(lines, line)
		}
	}
	return title, strings.Join(lines, "\n"), nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

var spaceRun = regexp.MustCompile(`\s+`)

// collapse 折叠连续空白
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
