package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	got := NormalizeText("  hello\x00world\n\tfoo   bar  ")
	want := "hello world foo bar"
	if got != want {
		t.Fatalf("NormalizeText = %q, want %q", got, want)
	}
}

func TestNormalizeTextEmpty(t *testing.T) {
	if got := NormalizeText("   \n\t "); got != "" {
		t.Fatalf("NormalizeText on whitespace = %q, want empty", got)
	}
}

func TestFileHTML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	content := `<html><head><style>body{color:red}</style><script>var x=1;</script></head>` +
		`<body><p>First paragraph.</p><div>Second block.</div></body></html>`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	res, err := File("page.html", path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if !strings.Contains(res.Text, "First paragraph.") || !strings.Contains(res.Text, "Second block.") {
		t.Fatalf("text missing body content: %q", res.Text)
	}
	if strings.Contains(res.Text, "color:red") || strings.Contains(res.Text, "var x") {
		t.Fatalf("text leaked style/script content: %q", res.Text)
	}
}

func TestFilePlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("Plain   text\ncontent."), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	res, err := File("notes.txt", path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if res.Text != "Plain text content." {
		t.Fatalf("text = %q", res.Text)
	}
}

func TestFileEmptyPlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(path, []byte("   "), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := File("empty.txt", path); err == nil {
		t.Fatal("expected error for empty file")
	}
}
