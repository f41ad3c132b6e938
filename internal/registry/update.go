package registry

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/gtsreg/internal/gts"
)

// Update applies an incremental change: files are re-ingested, removed paths
// invalidated. Only the entities of the changed paths and the entities that
// depend on an identifier they defined, define now, or lost are revalidated.
// Dependencies are followed transitively through schemas.
func (r *Registry) Update(ctx context.Context, files []FileInput, removed []string) error {
	r.generation = uuid.NewString()

	touched := make(map[string]struct{})
	mark := func(p string) {
		for _, e := range r.byFile[p] {
			touched[e.Base().ID] = struct{}{}
		}
	}

	for _, p := range removed {
		mark(p)
		r.InvalidateFile(p)
	}
	for _, f := range files {
		mark(f.Path)
		if err := r.ingest(f); err != nil {
			r.logger.Warn("registry: ingest failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			continue
		}
		mark(f.Path)
	}

	r.markDependents(touched)
	r.logger.Debug("registry: incremental update",
		slog.String("generation", r.generation),
		slog.Int("changed_files", len(files)),
		slog.Int("removed_files", len(removed)),
		slog.Int("pending", len(r.pending)))
	return r.validatePending(ctx)
}

// markDependents marks pending every entity referring to a touched
// identifier. A pending schema touches its own identifier in turn.
func (r *Registry) markDependents(touched map[string]struct{}) {
	entities := r.ordered()
	for changed := true; changed; {
		changed = false
		for _, e := range entities {
			_, pending := r.pending[e]
			if !pending && dependsOn(e, touched) {
				r.pending[e] = struct{}{}
				pending = true
			}
			if !pending {
				continue
			}
			if s, ok := e.(*gts.Schema); ok {
				if _, seen := touched[s.ID]; !seen {
					touched[s.ID] = struct{}{}
					changed = true
				}
			}
		}
	}
}

func dependsOn(e gts.Entity, ids map[string]struct{}) bool {
	if o, ok := e.(*gts.Obj); ok {
		if _, hit := ids[o.SchemaID]; hit {
			return true
		}
	}
	for _, ref := range e.Base().Refs {
		if _, hit := ids[ref.ID]; hit {
			return true
		}
	}
	return false
}
