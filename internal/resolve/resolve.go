// Package resolve decides what happens to each link and wiki reference
// found in a document. Decisions are pure values; applying them to text is
// the caller's job.
package resolve

import (
	"fmt"
	"net/url"
	"strings"
)

// Action is the outcome of classifying one occurrence.
type Action int

const (
	Keep Action = iota
	Rewrite
	Drop
)

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case Rewrite:
		return "rewrite"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the replacement text for an occurrence and why it was chosen.
type Decision struct {
	Action Action
	Text   string
	Reason string
}

// Checker reports whether a corpus-relative slash path names an existing file.
type Checker interface {
	Exists(path string) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(path string) bool

// Exists calls f(path).
func (f CheckerFunc) Exists(path string) bool { return f(path) }

// targetEscaper encodes the characters that would end or split a link
// target when the output is scanned again.
var targetEscaper = strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29", "<", "%3C", ">", "%3E")

func markdownLink(text, target string) string {
	return "[" + text + "](" + targetEscaper.Replace(target) + ")"
}

// docTarget turns a corpus-relative slash path into a root-relative link
// target with every segment percent-encoded.
func docTarget(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return "./" + strings.Join(segs, "/")
}
