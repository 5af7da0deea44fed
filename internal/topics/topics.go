// Package topics loads the known topic list and detects topics in text.
package topics

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Set is an immutable, ordered set of topic strings.
type Set struct {
	list []string
	seen map[string]struct{}
}

// New builds a set from topics, keeping the first occurrence of duplicates
// and ignoring blank entries.
func New(topics ...string) *Set {
	s := &Set{seen: make(map[string]struct{}, len(topics))}
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := s.seen[t]; dup {
			continue
		}
		s.seen[t] = struct{}{}
		s.list = append(s.list, t)
	}
	return s
}

// Load reads one topic per line. Blank lines and lines starting with '#'
// are ignored; surrounding whitespace is trimmed.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topics: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse reads topics from raw bytes in the same format as Load.
func Parse(data []byte) (*Set, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("topics: scan: %w", err)
	}
	return New(lines...), nil
}

// Contains reports exact membership.
func (s *Set) Contains(topic string) bool {
	if s == nil {
		return false
	}
	_, ok := s.seen[topic]
	return ok
}

// List returns the topics in source order.
func (s *Set) List() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.list...)
}

// Len returns the number of topics.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.list)
}

// Detect returns topics that occur in text as substrings, in source order,
// excluding any already present in existing (exact match).
func (s *Set) Detect(text string, existing []string, ignoreCase bool) []string {
	if s == nil || len(s.list) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		have[e] = struct{}{}
	}
	haystack := text
	if ignoreCase {
		haystack = strings.ToLower(text)
	}
	var found []string
	for _, t := range s.list {
		if _, ok := have[t]; ok {
			continue
		}
		needle := t
		if ignoreCase {
			needle = strings.ToLower(t)
		}
		if strings.Contains(haystack, needle) {
			found = append(found, t)
		}
	}
	return found
}
