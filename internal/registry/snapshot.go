package registry

import (
	"maps"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/gtsreg/internal/gts"
)

// Snapshot is a point-in-time copy of the registry's indexes and of every
// entity's validation result.
type Snapshot struct {
	objs        map[string]*gts.Obj
	schemas     map[string]*gts.Schema
	byFile      map[string][]gts.Entity
	files       *orderedmap.OrderedMap[string, *gts.File]
	invalid     map[string]*gts.File
	pending     map[gts.Entity]struct{}
	defaultPath string
	generation  string
	results     map[gts.Entity]gts.ValidationResult
}

// Snapshot captures the current state. Entities are shared with the live
// registry; only their validation results are copied.
func (r *Registry) Snapshot() *Snapshot {
	s := &Snapshot{
		objs:        maps.Clone(r.objs),
		schemas:     maps.Clone(r.schemas),
		byFile:      make(map[string][]gts.Entity, len(r.byFile)),
		files:       orderedmap.New[string, *gts.File](r.files.Len()),
		invalid:     maps.Clone(r.invalid),
		pending:     maps.Clone(r.pending),
		defaultPath: r.defaultPath,
		generation:  r.generation,
		results:     make(map[gts.Entity]gts.ValidationResult),
	}
	for p, list := range r.byFile {
		s.byFile[p] = slices.Clone(list)
		for _, e := range list {
			v := e.Base().Validation
			v.Errors = slices.Clone(v.Errors)
			s.results[e] = v
		}
	}
	for pair := r.files.Oldest(); pair != nil; pair = pair.Next() {
		s.files.Set(pair.Key, pair.Value)
	}
	return s
}

// Restore puts the registry back in the state captured by s, including
// entities evicted since by later definitions of their identifiers.
func (r *Registry) Restore(s *Snapshot) {
	r.objs = maps.Clone(s.objs)
	r.schemas = maps.Clone(s.schemas)
	r.byFile = make(map[string][]gts.Entity, len(s.byFile))
	for p, list := range s.byFile {
		r.byFile[p] = slices.Clone(list)
	}
	r.files = orderedmap.New[string, *gts.File](s.files.Len())
	for pair := s.files.Oldest(); pair != nil; pair = pair.Next() {
		r.files.Set(pair.Key, pair.Value)
	}
	r.invalid = maps.Clone(s.invalid)
	r.pending = maps.Clone(s.pending)
	r.defaultPath = s.defaultPath
	r.generation = s.generation
	for e, v := range s.results {
		v.Errors = slices.Clone(v.Errors)
		e.Base().Validation = v
	}
}
