package workspace

import (
	"context"

	"github.com/starford/gtsreg/internal/apperr"
	"github.com/starford/gtsreg/internal/locator"
	"github.com/starford/gtsreg/internal/models"
	"github.com/starford/gtsreg/internal/registry"
)

// Diagnostics returns the located validation errors of every entity of p.
func (s *Service) Diagnostics(_ context.Context, p string) ([]models.Diagnostic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.texts[p]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s.diagnostics(p, text), nil
}

// AllDiagnostics returns the diagnostics of every ingested file, keyed by path.
// Files without diagnostics are omitted.
func (s *Service) AllDiagnostics(_ context.Context) map[string][]models.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]models.Diagnostic)
	for p, text := range s.texts {
		if d := s.diagnostics(p, text); len(d) > 0 {
			out[p] = d
		}
	}
	return out
}

// ValidateDocument validates content as if it were saved at p, without
// touching the disk or the index, and returns its diagnostics. The
// registry is restored afterwards, including entities of other files whose
// identifiers content redefined.
func (s *Service) ValidateDocument(ctx context.Context, p string, content []byte) ([]models.Diagnostic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.reg.Snapshot()
	defer s.reg.Restore(snap)

	if err := s.reg.Update(ctx, []registry.FileInput{input(p, content)}, nil); err != nil {
		return nil, err
	}
	return s.diagnostics(p, string(content)), nil
}

// diagnostics places every error of p's entities on text. Errors that
// cannot be located are reported at the start of the document. A file that
// failed to parse yields one diagnostic carrying the parse error.
func (s *Service) diagnostics(p, text string) []models.Diagnostic {
	out := []models.Diagnostic{}
	if f, ok := s.reg.File(p); ok && !f.Valid {
		return append(out, models.Diagnostic{
			Path:     p,
			Severity: models.SeverityError,
			Message:  f.Error,
		})
	}
	for _, e := range s.reg.FileEntities(p) {
		b := e.Base()
		for _, ve := range b.Validation.Errors {
			d := models.Diagnostic{
				Path:         p,
				Severity:     models.SeverityError,
				Message:      ve.Message,
				Keyword:      ve.Keyword,
				InstancePath: ve.InstancePath,
				EntityID:     b.ID,
			}
			if r, ok := locator.Locate(text, ve); ok {
				start, end := r.Positions(text)
				d.Range = models.Range{Start: models.Position(start), End: models.Position(end)}
				d.Located = true
			}
			out = append(out, d)
		}
	}
	return out
}
