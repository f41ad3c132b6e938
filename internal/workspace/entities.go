package workspace

import (
	"context"

	"github.com/starford/gtsreg/internal/apperr"
	"github.com/starford/gtsreg/internal/index"
	"github.com/starford/gtsreg/internal/models"
)

// Entities returns a page of indexed entities and the total match count.
func (s *Service) Entities(_ context.Context, f index.EntityFilter) ([]EntitySummary, int, error) {
	rows, total, err := s.db.ListEntities(f)
	if err != nil {
		return nil, 0, err
	}
	items := make([]EntitySummary, len(rows))
	for i, r := range rows {
		items[i] = summaryOf(r)
	}
	return items, total, nil
}

// Entity returns the registry's view of id together with its referrers.
func (s *Service) Entity(ctx context.Context, id string) (*EntityDetail, error) {
	s.mu.Lock()
	e, ok := s.reg.Entity(id)
	var d *EntityDetail
	if ok {
		b := e.Base()
		d = &EntityDetail{
			EntitySummary: summaryOf(entityRow(e)),
			Content:       b.Content,
			Refs:          nonNilSlice(b.Refs),
			Validation:    b.Validation,
		}
	}
	s.mu.Unlock()
	if !ok {
		return nil, apperr.ErrNotFound
	}
	refs, err := s.Referrers(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Referrers = refs
	return d, nil
}

// Referrers returns the references pointing at id, including objects that
// declare it as their schema.
func (s *Service) Referrers(_ context.Context, id string) ([]models.Reference, error) {
	rows, err := s.db.Referrers(id)
	if err != nil {
		return nil, err
	}
	out := make([]models.Reference, len(rows))
	for i, r := range rows {
		out[i] = models.Reference{SourceID: r.SourceID, FilePath: r.FilePath, TargetID: r.TargetID, Pointer: r.Pointer}
	}
	return out, nil
}

// DefaultFile returns the path of the file presented by default.
func (s *Service) DefaultFile(_ context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.reg.DefaultFilePath()
	return p, p != ""
}

// SetDefaultFile selects the default file. An empty path restores the
// first registered file.
func (s *Service) SetDefaultFile(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reg.SetDefaultFile(p); err != nil {
		return apperr.ErrNotFound
	}
	return nil
}

// FetchJSON returns the decoded document at p through the registry's
// single-flight cache.
func (s *Service) FetchJSON(ctx context.Context, p string, force bool) (any, error) {
	return s.reg.FetchJSON(ctx, p, force)
}

// Stats summarises the registry.
type Stats struct {
	Generation   string `json:"generation"`
	Files        int    `json:"files"`
	InvalidFiles int    `json:"invalid_files"`
	Objects      int    `json:"objects"`
	Schemas      int    `json:"schemas"`
	Invalid      int    `json:"invalid_entities"`
	Pending      int    `json:"pending"`
}

// Stats returns counts over the current registry state.
func (s *Service) Stats(_ context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Generation:   s.reg.Generation(),
		Files:        len(s.reg.JSONFiles()),
		InvalidFiles: len(s.reg.InvalidFiles()),
		Pending:      s.reg.Pending(),
	}
	objs, schemas := s.reg.Objects(), s.reg.Schemas()
	st.Objects, st.Schemas = len(objs), len(schemas)
	for _, o := range objs {
		if !o.Validation.Valid {
			st.Invalid++
		}
	}
	for _, sc := range schemas {
		if !sc.Validation.Valid {
			st.Invalid++
		}
	}
	return st
}
