package runner

import (
	"fmt"

	"github.com/starford/mdnorm/internal/docindex"
	"github.com/starford/mdnorm/internal/normalizer"
	"github.com/starford/mdnorm/internal/parser"
	"github.com/starford/mdnorm/internal/resolve"
)

// Preview normalises content as if it were stored at path, against the
// current corpus, without writing anything.
func (s *Service) Preview(path string, content []byte) (*normalizer.Result, error) {
	docs, err := s.documents()
	if err != nil {
		return nil, err
	}
	proc := normalizer.New(normalizer.Indices{
		Aliases: s.aliases,
		Topics:  s.topics,
		Docs:    docs,
	}, resolve.CheckerFunc(s.store.Exists), s.settings.Options)
	return proc.Process(path, content)
}

// ResolveReference resolves the inner text of a wiki reference (`Name`,
// `Name#Heading`, `Name|Shown`) against the current corpus.
func (s *Service) ResolveReference(name string) (resolve.Decision, error) {
	raw := "[[" + name + "]]"
	occs := parser.ScanWiki(raw)
	if len(occs) != 1 || occs[0].Start != 0 || occs[0].End != len(raw) {
		return resolve.Decision{}, fmt.Errorf("runner: invalid reference %q", name)
	}
	docs, err := s.documents()
	if err != nil {
		return resolve.Decision{}, err
	}
	return resolve.NewWikiResolver(s.aliases, docs).Resolve(occs[0]), nil
}

func (s *Service) documents() (*docindex.Index, error) {
	metas, err := s.store.List("", s.settings.Extension)
	if err != nil {
		return nil, fmt.Errorf("runner: list corpus: %w", err)
	}
	return docindex.FromMetadata(metas), nil
}
