// Package parser splits Markdown documents into frontmatter and body and
// scans bodies for inline links and wiki references.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	delim = "---"
	bom   = "\ufeff"
)

// ErrMalformedFrontmatter is returned when a metadata block exists but is not
// a YAML mapping.
var ErrMalformedFrontmatter = errors.New("malformed frontmatter")

// Document is a parsed Markdown file.
type Document struct {
	// BOM is a leading UTF-8 byte order mark, kept out of Header and Body so
	// it stays in front of whatever header the document ends up with.
	BOM string
	// Header is the raw metadata block including both delimiter lines, or
	// empty when the document has none.
	Header string
	// Meta is the decoded metadata mapping; nil when Header is empty.
	Meta *yaml.Node
	// Newline is the line ending used by the delimiter lines.
	Newline string
	Body    string
}

// HasFrontmatter reports whether the document carried a metadata block.
func (d *Document) HasFrontmatter() bool {
	return d.Header != ""
}

// Split separates the leading metadata block from the body. A block exists
// only when the first line is exactly "---" and a later line is exactly
// "---"; otherwise the whole input is body. A leading byte order mark is
// split off into BOM before the delimiter check.
func Split(data []byte) (*Document, error) {
	var mark string
	if bytes.HasPrefix(data, []byte(bom)) {
		mark = bom
		data = data[len(bom):]
	}

	first, rest, nl, ok := cutLine(data)
	if !ok || string(first) != delim {
		return &Document{BOM: mark, Body: string(data), Newline: nl}, nil
	}

	offset := len(data) - len(rest)
	blockStart := offset
	for len(rest) > 0 {
		line, next, _, _ := cutLine(rest)
		if string(line) == delim {
			blockEnd := offset
			headerEnd := len(data) - len(next)
			meta, err := decodeMeta(data[blockStart:blockEnd])
			if err != nil {
				return nil, err
			}
			return &Document{
				BOM:     mark,
				Header:  string(data[:headerEnd]),
				Meta:    meta,
				Newline: nl,
				Body:    string(data[headerEnd:]),
			}, nil
		}
		offset += len(rest) - len(next)
		rest = next
	}

	// No closing delimiter: a leading thematic break, not metadata.
	return &Document{BOM: mark, Body: string(data), Newline: nl}, nil
}

// cutLine returns the first line of data without its terminator, the
// remainder after the terminator, the terminator itself, and whether a
// terminator was found.
func cutLine(data []byte) (line, rest []byte, nl string, found bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return data, nil, "\n", false
	}
	line = data[:i]
	nl = "\n"
	if bytes.HasSuffix(line, []byte("\r")) {
		line = line[:len(line)-1]
		nl = "\r\n"
	}
	return line, data[i+1:], nl, true
}

func decodeMeta(block []byte) (*yaml.Node, error) {
	empty := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if len(bytes.TrimSpace(block)) == 0 {
		return empty, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		return nil, fmt.Errorf("parser: %w: %w", ErrMalformedFrontmatter, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return empty, nil
	}
	root := doc.Content[0]
	switch {
	case root.Kind == yaml.MappingNode:
		return root, nil
	case root.Kind == yaml.ScalarNode && root.Tag == "!!null":
		return empty, nil
	default:
		return nil, fmt.Errorf("parser: %w: expected a mapping, got %s", ErrMalformedFrontmatter, kindName(root.Kind))
	}
}

// Render serialises meta as a metadata block using nl line endings.
func Render(meta *yaml.Node, nl string) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		return "", fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	body := buf.String()
	if nl != "\n" {
		body = strings.ReplaceAll(body, "\n", nl)
	}
	return delim + nl + body + delim + nl, nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
