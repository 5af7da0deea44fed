package parser

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSplit_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n---\n# Hello\nBody text.\n")
	d, err := Split(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.HasFrontmatter() {
		t.Fatal("expected frontmatter")
	}
	if d.Header != "---\ntitle: Hello\ntags:\n  - go\n---\n" {
		t.Errorf("header = %q", d.Header)
	}
	if d.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", d.Body)
	}
	if d.Meta.Kind != yaml.MappingNode || len(d.Meta.Content) != 4 {
		t.Errorf("meta = %+v", d.Meta)
	}
	if d.Header+d.Body != string(input) {
		t.Error("header+body must reproduce the input")
	}
}

func TestSplit_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	d, err := Split(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.HasFrontmatter() || d.Meta != nil {
		t.Errorf("expected no frontmatter, got %+v", d)
	}
	if d.Body != string(input) {
		t.Errorf("body = %q", d.Body)
	}
}

func TestSplit_Unterminated(t *testing.T) {
	input := []byte("---\nnot closed\n")
	d, err := Split(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.HasFrontmatter() {
		t.Error("unterminated block must be body")
	}
}

func TestSplit_EmptyBlock(t *testing.T) {
	d, err := Split([]byte("---\n---\nbody"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Meta == nil || d.Meta.Kind != yaml.MappingNode || len(d.Meta.Content) != 0 {
		t.Errorf("expected empty mapping, got %+v", d.Meta)
	}
	if d.Body != "body" {
		t.Errorf("body = %q", d.Body)
	}
}

func TestSplit_CRLF(t *testing.T) {
	d, err := Split([]byte("---\r\ntitle: x\r\n---\r\nbody\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Newline != "\r\n" || d.Body != "body\r\n" {
		t.Errorf("newline = %q body = %q", d.Newline, d.Body)
	}
}

func TestSplit_ByteOrderMark(t *testing.T) {
	input := "\ufeff---\ntitle: t\n---\nbody\n"
	d, err := Split([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.HasFrontmatter() {
		t.Fatal("frontmatter after a byte order mark must be recognised")
	}
	if d.BOM != "\ufeff" || d.Header != "---\ntitle: t\n---\n" || d.Body != "body\n" {
		t.Errorf("bom = %q header = %q body = %q", d.BOM, d.Header, d.Body)
	}
	if d.BOM+d.Header+d.Body != input {
		t.Error("bom+header+body must reproduce the input")
	}

	d, err = Split([]byte("\ufeffplain\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.HasFrontmatter() || d.BOM != "\ufeff" || d.Body != "plain\n" {
		t.Errorf("body-only: bom = %q body = %q", d.BOM, d.Body)
	}
}

func TestSplit_Malformed(t *testing.T) {
	cases := []string{
		"---\n: invalid: yaml: {{{\n---\nBody\n",
		"---\n- a\n- b\n---\nBody\n",
		"---\njust text\n---\nBody\n",
	}
	for _, in := range cases {
		_, err := Split([]byte(in))
		if !errors.Is(err, ErrMalformedFrontmatter) {
			t.Errorf("Split(%q) err = %v, want ErrMalformedFrontmatter", in, err)
		}
	}
}

func TestRender(t *testing.T) {
	d, err := Split([]byte("---\ntitle: Hello\n---\n"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := Render(d.Meta, "\n")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "---\ntitle: Hello\n---\n" {
		t.Errorf("Render = %q", out)
	}
	crlf, _ := Render(d.Meta, "\r\n")
	if !strings.HasSuffix(crlf, "---\r\n") || strings.Contains(strings.ReplaceAll(crlf, "\r\n", ""), "\n") {
		t.Errorf("Render crlf = %q", crlf)
	}
}
