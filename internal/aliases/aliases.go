// Package aliases loads the curated label → URL table used to override links.
package aliases

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Entry is one label → target pair.
type Entry struct {
	Label  string
	Target string
}

// Index is an immutable label → URL lookup. The zero value is an empty index.
type Index struct {
	m map[string]string
}

// New builds an index from entries. Later entries win on duplicate labels.
func New(entries ...Entry) *Index {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Label] = e.Target
	}
	return &Index{m: m}
}

// Lookup returns the canonical URL for label.
func (x *Index) Lookup(label string) (string, bool) {
	if x == nil {
		return "", false
	}
	u, ok := x.m[label]
	return u, ok
}

// Len returns the number of labels.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.m)
}

// Entries returns all entries sorted by label.
func (x *Index) Entries() []Entry {
	if x == nil {
		return nil
	}
	out := make([]Entry, 0, len(x.m))
	for k, v := range x.m {
		out = append(out, Entry{Label: k, Target: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Load reads an alias table from path. Files ending in .toml are decoded as a
// TOML table; anything else is decoded as a YAML mapping.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("aliases: read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return parseTOML(data)
	}
	return parseYAML(data)
}

// parseYAML walks the mapping node directly so duplicate keys resolve
// last-write-wins instead of failing the decode.
func parseYAML(data []byte) (*Index, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("aliases: parse yaml: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return New(), nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return New(), nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("aliases: expected a mapping at line %d", root.Line)
	}
	entries := make([]Entry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("aliases: entry at line %d must map a label to a URL", k.Line)
		}
		entries = append(entries, Entry{Label: k.Value, Target: v.Value})
	}
	return New(entries...), nil
}

func parseTOML(data []byte) (*Index, error) {
	raw := make(map[string]any)
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("aliases: parse toml: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("aliases: label %q must map to a string, got %T", k, v)
		}
		entries = append(entries, Entry{Label: k, Target: s})
	}
	return New(entries...), nil
}
