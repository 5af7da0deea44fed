package parser

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// Targets may hold one level of balanced parentheses, as in
	// https://en.wikipedia.org/wiki/Go_(programming_language).
	linkRe = regexp.MustCompile(`(!?)\[([^\]]+)\]\(((?:[^()]|\([^()]*\))*)\)`)
	wikiRe = regexp.MustCompile(`\[\[([^\[\]\n]+)\]\]`)
)

// Kind distinguishes occurrence types.
type Kind int

const (
	KindLink Kind = iota
	KindImage
	KindWiki
)

func (k Kind) String() string {
	switch k {
	case KindLink:
		return "link"
	case KindImage:
		return "image"
	case KindWiki:
		return "wiki"
	default:
		return "unknown"
	}
}

// Occurrence is one link or wiki reference found in a body.
// Start and End are byte offsets; Raw is body[Start:End].
type Occurrence struct {
	Kind   Kind
	Start  int
	End    int
	Raw    string
	Text   string // link display text
	Target string // link target, whitespace-trimmed
	Name   string // wiki inner text
}

// ScanLinks returns every `[text](target)` occurrence, left to right.
// Image links (`![alt](src)`) are returned with KindImage.
func ScanLinks(body string) []Occurrence {
	var out []Occurrence
	for _, m := range linkRe.FindAllStringSubmatchIndex(body, -1) {
		kind := KindLink
		if m[3] > m[2] {
			kind = KindImage
		}
		out = append(out, Occurrence{
			Kind:   kind,
			Start:  m[0],
			End:    m[1],
			Raw:    body[m[0]:m[1]],
			Text:   body[m[4]:m[5]],
			Target: strings.TrimSpace(body[m[6]:m[7]]),
		})
	}
	return out
}

// ScanWiki returns every `[[name]]` occurrence, left to right.
func ScanWiki(body string) []Occurrence {
	var out []Occurrence
	for _, m := range wikiRe.FindAllStringSubmatchIndex(body, -1) {
		out = append(out, Occurrence{
			Kind:  KindWiki,
			Start: m[0],
			End:   m[1],
			Raw:   body[m[0]:m[1]],
			Name:  body[m[2]:m[3]],
		})
	}
	return out
}

// Scan merges both scanners into a single non-overlapping, left-to-right
// sequence. On overlap the occurrence starting first wins; at the same
// start a wiki reference wins over a link.
func Scan(body string) []Occurrence {
	all := append(ScanWiki(body), ScanLinks(body)...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].Kind == KindWiki && all[j].Kind != KindWiki
	})
	out := all[:0]
	end := -1
	for _, o := range all {
		if o.Start < end {
			continue
		}
		out = append(out, o)
		end = o.End
	}
	return out
}

// Replacement substitutes body[Start:End] with Text.
type Replacement struct {
	Start int
	End   int
	Text  string
}

// Splice applies non-overlapping replacements sorted by Start.
func Splice(body string, reps []Replacement) string {
	if len(reps) == 0 {
		return body
	}
	var b strings.Builder
	b.Grow(len(body))
	last := 0
	for _, r := range reps {
		b.WriteString(body[last:r.Start])
		b.WriteString(r.Text)
		last = r.End
	}
	b.WriteString(body[last:])
	return b.String()
}
