package resolve

import (
	"path"
	"strings"

	"github.com/gosimple/slug"

	"github.com/starford/mdnorm/internal/aliases"
	"github.com/starford/mdnorm/internal/docindex"
	"github.com/starford/mdnorm/internal/parser"
)

// WikiResolver turns `[[Name]]` references into Markdown links.
type WikiResolver struct {
	aliases *aliases.Index
	docs    *docindex.Index
}

// NewWikiResolver builds a resolver over the alias and document indices.
func NewWikiResolver(a *aliases.Index, docs *docindex.Index) *WikiResolver {
	return &WikiResolver{aliases: a, docs: docs}
}

// Reference is the parsed inner text of a wiki reference:
// `Name#Heading|Shown`.
type Reference struct {
	Name    string
	Heading string
	Shown   string
	Key     string // final path component of Name without a .md suffix
}

// ParseReference splits the inner text of a wiki reference.
func ParseReference(inner string) Reference {
	var r Reference
	name := inner
	if i := strings.Index(name, "|"); i >= 0 {
		r.Shown = strings.TrimSpace(name[i+1:])
		name = name[:i]
	}
	if i := strings.Index(name, "#"); i >= 0 {
		r.Heading = strings.TrimSpace(name[i+1:])
		name = name[:i]
	}
	r.Name = strings.TrimSpace(name)
	key := strings.ReplaceAll(r.Name, "\\", "/")
	key = strings.TrimSuffix(path.Base(key), ".md")
	if key == "." || key == "/" {
		key = ""
	}
	r.Key = key
	return r
}

// Resolve decides the replacement for one wiki occurrence. Aliases win over
// documents; unknown names are kept byte-identical.
func (w *WikiResolver) Resolve(o parser.Occurrence) Decision {
	ref := ParseReference(o.Name)
	if ref.Key == "" {
		return Decision{Action: Keep, Text: o.Raw, Reason: "empty name"}
	}

	if u, ok := w.aliases.Lookup(ref.Key); ok {
		text := ref.Shown
		if text == "" {
			text = strings.TrimSpace(strings.SplitN(o.Name, "|", 2)[0])
		}
		return Decision{Action: Rewrite, Text: markdownLink(text, u), Reason: "alias"}
	}

	if rec, ok := w.docs.Lookup(ref.Key); ok {
		target := docTarget(rec.Path)
		if ref.Heading != "" {
			target += "#" + slug.Make(ref.Heading)
		}
		text := ref.Shown
		if text == "" {
			text = ref.Key
		}
		return Decision{Action: Rewrite, Text: markdownLink(text, target), Reason: "document"}
	}

	return Decision{Action: Keep, Text: o.Raw, Reason: "unresolved"}
}
