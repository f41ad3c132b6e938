package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/gtsreg/internal/gts"
	"github.com/starford/gtsreg/internal/schemaengine"
)

type compiled struct {
	v   schemaengine.Validator
	err error
}

// pass carries the per-pass schema compilation cache.
type pass struct {
	ctx   context.Context
	cache map[string]compiled
}

// validatePending validates every pending entity, schemas before objects,
// in registration order.
func (r *Registry) validatePending(ctx context.Context) error {
	var schemas, objs []gts.Entity
	for _, e := range r.ordered() {
		if _, ok := r.pending[e]; !ok {
			continue
		}
		switch e.(type) {
		case *gts.Schema:
			schemas = append(schemas, e)
		case *gts.Obj:
			objs = append(objs, e)
		}
	}

	p := &pass{ctx: ctx, cache: make(map[string]compiled)}
	invalid := 0
	for _, e := range append(schemas, objs...) {
		if err := ctx.Err(); err != nil {
			r.logger.Info("registry: validation pass abandoned",
				slog.String("generation", r.generation),
				slog.Int("pending", len(r.pending)))
			return fmt.Errorf("registry: validate: %w", err)
		}
		r.validateEntity(p, e)
		delete(r.pending, e)
		if !e.Base().Validation.Valid {
			invalid++
		}
	}
	r.logger.Debug("registry: validation pass complete",
		slog.String("generation", r.generation),
		slog.Int("schemas", len(schemas)),
		slog.Int("objects", len(objs)),
		slog.Int("invalid", invalid))
	return nil
}

// ValidateEntity re-runs validation for a single entity and returns its result.
func (r *Registry) ValidateEntity(ctx context.Context, e gts.Entity) gts.ValidationResult {
	r.validateEntity(&pass{ctx: ctx, cache: make(map[string]compiled)}, e)
	delete(r.pending, e)
	return e.Base().Validation
}

func (r *Registry) validateEntity(p *pass, e gts.Entity) {
	b := e.Base()
	b.ResetValidation()

	for _, ref := range b.Refs {
		if _, ok := r.Entity(ref.ID); ok {
			continue
		}
		b.AddError(gts.ValidationError{
			InstancePath: gts.SourcePathToPointer(ref.SourcePath),
			Message:      "GTS reference not found: " + ref.ID,
			Params:       map[string]any{"gtsId": ref.ID},
		})
	}

	if !r.structural {
		return
	}

	switch e := e.(type) {
	case *gts.Schema:
		if _, err := r.compile(p, e); err != nil {
			b.AddError(gts.ValidationError{
				SchemaPath: "#",
				Keyword:    "schema",
				Message:    "Invalid schema: " + err.Error(),
				Params:     map[string]any{"schemaId": e.ID},
			})
		}
	case *gts.Obj:
		r.validateObject(p, e)
	}
}

func (r *Registry) validateObject(p *pass, o *gts.Obj) {
	if o.SchemaID == "" {
		return
	}
	s, ok := r.ResolveSchema(o.SchemaID)
	if !ok {
		o.AddError(gts.ValidationError{
			SchemaPath: "#",
			Keyword:    "schema",
			Message:    "Schema not found: " + o.SchemaID,
			Params:     map[string]any{"schemaId": o.SchemaID},
		})
		return
	}
	v, err := r.compile(p, s)
	if err != nil {
		o.AddError(gts.ValidationError{
			SchemaPath: "#",
			Keyword:    "schema",
			Message:    fmt.Sprintf("Failed to compile schema %s: %v", s.ID, err),
			Params:     map[string]any{"schemaId": s.ID},
		})
		return
	}
	res := v.Run(o.Content)
	if res.Valid {
		return
	}
	for _, ve := range FormatValidationErrors(res.Errors) {
		o.AddError(ve)
	}
}

// compile compiles a schema once per pass.
func (r *Registry) compile(p *pass, s *gts.Schema) (schemaengine.Validator, error) {
	if c, ok := p.cache[s.ID]; ok {
		return c.v, c.err
	}
	v, err := r.engine.Compile(gts.EncodeID(s.ID), schemaDocument(s), r.loader(p.ctx))
	p.cache[s.ID] = compiled{v: v, err: err}
	return v, err
}

// loader resolves $ref targets the engine cannot find in the document itself.
func (r *Registry) loader(ctx context.Context) schemaengine.LoadFunc {
	return func(ref string) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := gts.DecodeID(ref)
		if gts.IsMetaSchemaURI(id) {
			return map[string]any{}, nil
		}
		s, ok := r.ResolveSchema(id)
		if !ok {
			return nil, fmt.Errorf("Schema not found for $ref: %s", id)
		}
		return schemaDocument(s), nil
	}
}

// schemaDocument returns the schema content with its $id rewritten to the
// encoded identifier, so that relative references resolve against it.
func schemaDocument(s *gts.Schema) map[string]any {
	doc := make(map[string]any, len(s.Content)+1)
	for k, v := range s.Content {
		doc[k] = v
	}
	doc["$id"] = gts.EncodeID(s.ID)
	return doc
}
