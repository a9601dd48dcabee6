package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"pdfchat/pkg/domain"
)

// Result is the extracted text plus whatever metadata the file yields.
// The RAG core only ever sees this, never the binary upload.
type Result struct {
	Text     string
	Metadata domain.Metadata
}

// File extracts text from a stored upload based on its filename
// extension. PDF and HTML get dedicated parsers; anything else is read
// as plain text.
func File(filename, path string) (Result, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return fromPDF(path)
	case ".html", ".htm", ".xhtml":
		return fromHTML(path)
	default:
		return fromText(path)
	}
}

func fromPDF(path string) (Result, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	totalPages := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely.
			continue
		}
		sb.WriteString(text)
		sb.WriteString(" ")
	}
	text := NormalizeText(sb.String())
	if text == "" {
		return Result{}, fmt.Errorf("no text extracted from pdf")
	}
	return Result{
		Text:     text,
		Metadata: domain.Metadata{Pages: totalPages},
	}, nil
}

func fromHTML(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}
	text := NormalizeText(nodeText(doc))
	if text == "" {
		return Result{}, fmt.Errorf("no text extracted from html")
	}
	return Result{Text: text}, nil
}

func fromText(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}
	text := NormalizeText(string(data))
	if text == "" {
		return Result{}, fmt.Errorf("no text content")
	}
	return Result{Text: text}, nil
}

// NormalizeText strips NUL bytes, invalid UTF-8, and collapses all
// whitespace runs to single spaces.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

func nodeText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			buf.WriteString(" ")
		}
	}
	walk(n)
	return buf.String()
}
