package resolve

import (
	"net/url"
	"path"
	"strings"

	"github.com/starford/mdnorm/internal/aliases"
	"github.com/starford/mdnorm/internal/parser"
)

// DefaultExternalPrefixes are target prefixes that are never dropped.
var DefaultExternalPrefixes = []string{"/", "#", "http://", "https://"}

// LinkClassifier decides keep / rewrite / drop for `[text](target)` links.
type LinkClassifier struct {
	aliases  *aliases.Index
	files    Checker
	prefixes []string
}

// NewLinkClassifier builds a classifier. extra prefixes are appended to
// DefaultExternalPrefixes.
func NewLinkClassifier(a *aliases.Index, files Checker, extra ...string) *LinkClassifier {
	prefixes := append(append([]string(nil), DefaultExternalPrefixes...), extra...)
	return &LinkClassifier{aliases: a, files: files, prefixes: prefixes}
}

// Classify decides the fate of one link occurring in the document at docPath.
// Image links are always kept.
func (c *LinkClassifier) Classify(docPath string, o parser.Occurrence) Decision {
	if o.Kind == parser.KindImage {
		return Decision{Action: Keep, Text: o.Raw, Reason: "image"}
	}
	if u, ok := c.aliases.Lookup(o.Text); ok {
		return Decision{Action: Rewrite, Text: markdownLink(o.Text, u), Reason: "alias"}
	}
	if o.Target == "" {
		return Decision{Action: Drop, Text: o.Text, Reason: "empty target"}
	}
	if c.external(o.Target) || c.resolves(docPath, o.Target) {
		return Decision{Action: Keep, Text: o.Raw}
	}
	return Decision{Action: Drop, Text: o.Text, Reason: "unresolved target"}
}

func (c *LinkClassifier) external(target string) bool {
	for _, p := range c.prefixes {
		if strings.HasPrefix(target, p) {
			return true
		}
	}
	return false
}

// resolves reports whether target names an existing file, relative to the
// document's directory or to the corpus root.
func (c *LinkClassifier) resolves(docPath, target string) bool {
	if c.files == nil {
		return false
	}
	t := target
	if i := strings.IndexAny(t, "#?"); i >= 0 {
		t = t[:i]
	}
	if unescaped, err := url.PathUnescape(t); err == nil {
		t = unescaped
	}
	if t == "" {
		return false
	}
	if c.files.Exists(path.Join(path.Dir(docPath), t)) {
		return true
	}
	return c.files.Exists(path.Clean(t))
}
