// Package normalizer rewrites a single document: links, wiki references,
// and topic tags.
package normalizer

import (
	"github.com/starford/mdnorm/internal/aliases"
	"github.com/starford/mdnorm/internal/apperr"
	"github.com/starford/mdnorm/internal/docindex"
	"github.com/starford/mdnorm/internal/frontmatter"
	"github.com/starford/mdnorm/internal/parser"
	"github.com/starford/mdnorm/internal/resolve"
	"github.com/starford/mdnorm/internal/topics"
)

// Indices are the read-only lookups shared by every document in a run.
type Indices struct {
	Aliases *aliases.Index
	Topics  *topics.Set
	Docs    *docindex.Index
}

// Options tune processing.
type Options struct {
	// IgnoreCase makes topic detection case-insensitive. Tag deduplication
	// stays exact.
	IgnoreCase bool
	// SkipCode leaves occurrences inside code spans and code blocks alone.
	SkipCode bool
	// ExternalPrefixes are extra link prefixes that are never dropped.
	ExternalPrefixes []string
}

// Applied is a non-keep decision applied to the body.
type Applied struct {
	Kind   parser.Kind
	Raw    string
	Result string
	Action resolve.Action
	Reason string
}

// Result is the outcome of processing one document.
type Result struct {
	Output    []byte
	Changed   bool
	AddedTags []string
	Applied   []Applied
}

// Counts returns the number of rewritten and dropped occurrences.
func (r *Result) Counts() (rewrites, drops int) {
	for _, a := range r.Applied {
		switch a.Action {
		case resolve.Rewrite:
			rewrites++
		case resolve.Drop:
			drops++
		}
	}
	return rewrites, drops
}

// Processor is safe for concurrent use; it holds no per-document state.
type Processor struct {
	links  *resolve.LinkClassifier
	wiki   *resolve.WikiResolver
	topics *topics.Set
	opts   Options
}

// New builds a processor. files answers existence checks for link targets.
func New(ix Indices, files resolve.Checker, opts Options) *Processor {
	return &Processor{
		links:  resolve.NewLinkClassifier(ix.Aliases, files, opts.ExternalPrefixes...),
		wiki:   resolve.NewWikiResolver(ix.Aliases, ix.Docs),
		topics: ix.Topics,
		opts:   opts,
	}
}

// Process normalises data, the content of the document at path. Malformed
// frontmatter yields an apperr.ErrDocumentParse error.
func (p *Processor) Process(path string, data []byte) (*Result, error) {
	doc, err := parser.Split(data)
	if err != nil {
		return nil, apperr.NewDocumentError(apperr.ErrDocumentParse, path, err)
	}

	occs := parser.Scan(doc.Body)
	if p.opts.SkipCode {
		occs = parser.WithoutCode(doc.Body, occs)
	}

	res := &Result{}
	reps := make([]parser.Replacement, 0, len(occs))
	for _, o := range occs {
		var d resolve.Decision
		if o.Kind == parser.KindWiki {
			d = p.wiki.Resolve(o)
		} else {
			d = p.links.Classify(path, o)
		}
		if d.Action == resolve.Keep {
			continue
		}
		reps = append(reps, parser.Replacement{Start: o.Start, End: o.End, Text: d.Text})
		res.Applied = append(res.Applied, Applied{
			Kind:   o.Kind,
			Raw:    o.Raw,
			Result: d.Text,
			Action: d.Action,
			Reason: d.Reason,
		})
	}
	body := parser.Splice(doc.Body, reps)

	found := p.topics.Detect(body, frontmatter.Tags(doc.Meta), p.opts.IgnoreCase)
	meta, added := frontmatter.Merge(doc.Meta, found)
	header := doc.Header
	if len(added) > 0 {
		header, err = parser.Render(meta, doc.Newline)
		if err != nil {
			return nil, apperr.NewDocumentError(apperr.ErrDocumentParse, path, err)
		}
		res.AddedTags = added
	}

	out := doc.BOM + header + body
	res.Output = []byte(out)
	res.Changed = out != string(data)
	return res, nil
}
