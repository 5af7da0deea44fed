// Package docindex maps document short names to their corpus paths.
package docindex

import (
	"path"
	"sort"
	"strings"

	"github.com/starford/mdnorm/internal/models"
)

// Index is an immutable short name → DocumentRecord lookup.
type Index struct {
	byName     map[string]models.DocumentRecord
	collisions []models.Collision
}

// ShortName returns the filename stem of a slash path.
func ShortName(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Build indexes paths. Paths are processed in sorted order and the first
// path to claim a short name keeps it; later claimants are recorded as
// collisions.
func Build(paths []string) *Index {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	x := &Index{byName: make(map[string]models.DocumentRecord, len(sorted))}
	losers := make(map[string][]string)
	for _, p := range sorted {
		name := ShortName(p)
		if name == "" {
			continue
		}
		if _, taken := x.byName[name]; taken {
			losers[name] = append(losers[name], p)
			continue
		}
		x.byName[name] = models.DocumentRecord{ShortName: name, Path: p}
	}

	names := make([]string, 0, len(losers))
	for n := range losers {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		x.collisions = append(x.collisions, models.Collision{
			ShortName: n,
			Winner:    x.byName[n].Path,
			Losers:    losers[n],
		})
	}
	return x
}

// FromMetadata is a convenience wrapper around Build.
func FromMetadata(metas []models.DocumentMetadata) *Index {
	paths := make([]string, len(metas))
	for i, m := range metas {
		paths[i] = m.Path
	}
	return Build(paths)
}

// Lookup returns the record for a short name.
func (x *Index) Lookup(name string) (models.DocumentRecord, bool) {
	if x == nil {
		return models.DocumentRecord{}, false
	}
	r, ok := x.byName[name]
	return r, ok
}

// Collisions returns every short name claimed by more than one document.
func (x *Index) Collisions() []models.Collision {
	if x == nil {
		return nil
	}
	return x.collisions
}

// Records returns all records sorted by short name.
func (x *Index) Records() []models.DocumentRecord {
	if x == nil {
		return nil
	}
	out := make([]models.DocumentRecord, 0, len(x.byName))
	for _, r := range x.byName {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShortName < out[j].ShortName })
	return out
}

// Len returns the number of indexed short names.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.byName)
}
