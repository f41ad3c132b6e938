// Package workspace ties the document store, the entity registry and the
// persisted index together. Every mutation of the registry goes through a
// Service, which serialises them.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/starford/gtsreg/internal/apperr"
	"github.com/starford/gtsreg/internal/checksum"
	"github.com/starford/gtsreg/internal/gts"
	"github.com/starford/gtsreg/internal/index"
	"github.com/starford/gtsreg/internal/models"
	"github.com/starford/gtsreg/internal/parser"
	"github.com/starford/gtsreg/internal/registry"
	"github.com/starford/gtsreg/internal/storage"
)

// Event kinds passed to an EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a change to the workspace has been
// ingested and validated. generation identifies the validation pass.
type EventCallback func(kind, path, generation string)

// FileDetail is the full representation of a workspace file.
type FileDetail struct {
	Path        string              `json:"path"`
	Content     string              `json:"content"`
	Checksum    string              `json:"checksum"`
	Valid       bool                `json:"valid"`
	Error       string              `json:"error,omitempty"`
	Entities    []EntitySummary     `json:"entities"`
	Diagnostics []models.Diagnostic `json:"diagnostics"`
}

// EntitySummary is a lightweight entity item.
type EntitySummary struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Path         string `json:"path"`
	ListSequence *int   `json:"list_sequence,omitempty"`
	SchemaID     string `json:"schema_id,omitempty"`
	Valid        bool   `json:"valid"`
	ErrorCount   int    `json:"error_count"`
}

// EntityDetail is an entity with its content, validation result and the
// entities referring to it.
type EntityDetail struct {
	EntitySummary
	Content    map[string]any       `json:"content"`
	Refs       []gts.Ref            `json:"refs"`
	Validation gts.ValidationResult `json:"validation"`
	Referrers  []models.Reference   `json:"referrers"`
}

// Service coordinates storage, registry and index operations.
type Service struct {
	mu     sync.Mutex
	store  storage.Provider
	db     index.EntityIndex
	reg    *registry.Registry
	logger *slog.Logger
	notify EventCallback

	// texts holds the raw text last ingested per path, for diagnostics.
	texts map[string]string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithEventCallback registers fn to be called after each change.
func WithEventCallback(fn EventCallback) Option {
	return func(s *Service) { s.notify = fn }
}

// NewService creates a workspace service.
func NewService(store storage.Provider, db index.EntityIndex, reg *registry.Registry, opts ...Option) *Service {
	s := &Service{
		store:  store,
		db:     db,
		reg:    reg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		texts:  make(map[string]string),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StoreFetcher serves FetchJSON requests from workspace files.
func StoreFetcher(store storage.Provider) registry.Fetcher {
	return registry.FetcherFunc(func(ctx context.Context, p string) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := store.Read(strings.TrimPrefix(p, "/"))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("fetch %s: %w", p, apperr.ErrNotFound)
			}
			return nil, err
		}
		res, err := parser.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w: %v", p, apperr.ErrInvalidDocument, err)
		}
		return res.Value, nil
	})
}

// input parses data into a registry file input. Parse failures are carried
// on the input so the registry records the file as invalid.
func input(p string, data []byte) registry.FileInput {
	in := registry.FileInput{Path: p, Name: path.Base(p)}
	res, err := parser.Parse(data)
	if err != nil {
		in.Content = string(data)
		in.Err = err
		return in
	}
	in.Content = res.Value
	return in
}

// Load reads every candidate document, ingests the whole set and brings the
// index up to date, removing rows for files no longer on disk.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas, err := s.store.List("")
	if err != nil {
		return err
	}
	inputs := make([]registry.FileInput, 0, len(metas))
	disk := make(map[string]models.FileMetadata, len(metas))
	for _, m := range metas {
		data, err := s.store.Read(m.Path)
		if err != nil {
			s.logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		disk[m.Path] = m
		s.texts[m.Path] = string(data)
		inputs = append(inputs, input(m.Path, data))
	}

	if err := s.reg.IngestFiles(ctx, inputs); err != nil {
		return err
	}

	for _, m := range metas {
		if _, ok := disk[m.Path]; !ok {
			continue
		}
		if err := s.persistFile(m.Path, m.Checksum, m.UpdatedAt); err != nil {
			s.logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		}
	}

	checksums, err := s.db.AllChecksums()
	if err != nil {
		return err
	}
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := s.db.DeleteFile(p); err != nil {
			s.logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			s.logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}
	if err := s.persistValidation(); err != nil {
		return err
	}

	s.logger.Info("sync: workspace loaded",
		slog.Int("files", len(disk)),
		slog.Int("objects", len(s.reg.Objects())),
		slog.Int("schemas", len(s.reg.Schemas())),
		slog.Int("invalid_files", len(s.reg.InvalidFiles())),
		slog.String("generation", s.reg.Generation()))
	return nil
}

// Sync applies the file at p from disk if its content differs from the
// indexed copy, or removes it if it no longer exists. It reports whether
// anything changed.
func (s *Service) Sync(ctx context.Context, p string) (bool, error) {
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			_, known := s.texts[p]
			s.mu.Unlock()
			if !known {
				return false, nil
			}
			return true, s.Remove(ctx, p)
		}
		return false, err
	}
	cs, err := s.db.GetChecksum(p)
	if err != nil {
		return false, err
	}
	if cs == checksum.Sum(data) {
		return false, nil
	}
	kind := EventUpdated
	if cs == "" {
		kind = EventCreated
	}
	return true, s.apply(ctx, kind, p, data)
}

// Apply ingests new content for p without writing it to disk.
func (s *Service) Apply(ctx context.Context, p string, data []byte) error {
	return s.apply(ctx, EventUpdated, p, data)
}

func (s *Service) apply(ctx context.Context, kind, p string, data []byte) error {
	s.mu.Lock()
	err := s.applyLocked(ctx, p, data)
	gen := s.reg.Generation()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit(kind, p, gen)
	return nil
}

func (s *Service) applyLocked(ctx context.Context, p string, data []byte) error {
	s.texts[p] = string(data)
	updateErr := s.reg.Update(ctx, []registry.FileInput{input(p, data)}, nil)
	if err := s.persistFile(p, checksum.Sum(data), time.Now().UTC()); err != nil {
		return err
	}
	if err := s.persistValidation(); err != nil {
		return err
	}
	return updateErr
}

// Remove forgets p and revalidates the entities that referred to it.
func (s *Service) Remove(ctx context.Context, p string) error {
	s.mu.Lock()
	delete(s.texts, p)
	updateErr := s.reg.Update(ctx, nil, []string{p})
	err := s.db.DeleteFile(p)
	if err == nil {
		err = s.persistValidation()
	}
	gen := s.reg.Generation()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if updateErr != nil {
		return updateErr
	}
	s.emit(EventDeleted, p, gen)
	return nil
}

func (s *Service) emit(kind, p, gen string) {
	s.logger.Debug("workspace: changed", slog.String("path", p), slog.String("op", kind))
	if s.notify != nil {
		s.notify(kind, p, gen)
	}
}

// persistFile writes the registry's view of p to the index.
func (s *Service) persistFile(p, sum string, updated time.Time) error {
	row := index.FileRow{Path: p, Name: path.Base(p), Checksum: sum, Valid: true, UpdatedAt: updated}
	if f, ok := s.reg.File(p); ok {
		row.Name = f.Name
		row.Valid = f.Valid
		row.Error = f.Error
	}
	ents := s.reg.FileEntities(p)
	row.EntityCount = len(ents)

	rows := make([]index.EntityRow, 0, len(ents))
	var refs []index.RefRow
	for _, e := range ents {
		rows = append(rows, entityRow(e))
		b := e.Base()
		for _, r := range b.Refs {
			refs = append(refs, index.RefRow{
				SourceID: b.ID,
				TargetID: r.ID,
				Pointer:  gts.SourcePathToPointer(r.SourcePath),
			})
		}
	}
	return s.db.UpsertFile(row, rows, refs)
}

// persistValidation stores the current validation state of every entity.
func (s *Service) persistValidation() error {
	var rows []index.EntityRow
	for _, sc := range s.reg.Schemas() {
		rows = append(rows, entityRow(sc))
	}
	for _, o := range s.reg.Objects() {
		rows = append(rows, entityRow(o))
	}
	return s.db.UpdateValidation(rows)
}

func entityRow(e gts.Entity) index.EntityRow {
	b := e.Base()
	row := index.EntityRow{
		ID:           b.ID,
		Kind:         gts.KindOf(e),
		Path:         b.FilePath,
		ListSequence: b.ListSequence,
		Valid:        b.Validation.Valid,
		ErrorCount:   len(b.Validation.Errors),
	}
	if o, ok := e.(*gts.Obj); ok {
		row.SchemaID = o.SchemaID
	}
	return row
}

func summaryOf(r index.EntityRow) EntitySummary {
	return EntitySummary{
		ID:           r.ID,
		Kind:         r.Kind,
		Path:         r.Path,
		ListSequence: r.ListSequence,
		SchemaID:     r.SchemaID,
		Valid:        r.Valid,
		ErrorCount:   r.ErrorCount,
	}
}
