package workspace

import (
	"context"
	"errors"
	"os"

	"github.com/starford/gtsreg/internal/apperr"
	"github.com/starford/gtsreg/internal/checksum"
	"github.com/starford/gtsreg/internal/index"
)

// GetFile reads a file and enriches it with its entities and diagnostics.
func (s *Service) GetFile(_ context.Context, p string) (*FileDetail, error) {
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildFileDetail(p, data), nil
}

// CreateFile writes a new file and ingests it.
func (s *Service) CreateFile(ctx context.Context, p string, content []byte) (*FileDetail, error) {
	if _, err := s.store.Read(p); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(p, content); err != nil {
		return nil, err
	}
	return s.afterWrite(ctx, EventCreated, p, content)
}

// UpdateFile writes new content with optimistic concurrency: a non-empty
// ifMatch must accept the checksum of the current content.
func (s *Service) UpdateFile(ctx context.Context, p string, content []byte, ifMatch string) (*FileDetail, error) {
	existing, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && !checksum.Matches(ifMatch, existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(p, content); err != nil {
		return nil, err
	}
	return s.afterWrite(ctx, EventUpdated, p, content)
}

func (s *Service) afterWrite(ctx context.Context, kind, p string, content []byte) (*FileDetail, error) {
	if err := s.apply(ctx, kind, p, content); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildFileDetail(p, content), nil
}

// DeleteFile removes a file from storage, registry and index.
func (s *Service) DeleteFile(ctx context.Context, p string) error {
	if err := s.store.Delete(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return s.Remove(ctx, p)
}

// MoveFile renames a file. Entities keep their identifiers; only their
// owning path changes.
func (s *Service) MoveFile(ctx context.Context, from, to string) (*FileDetail, error) {
	if _, err := s.store.Read(to); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	data, err := s.store.Read(from)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if err := s.store.Move(from, to); err != nil {
		return nil, err
	}
	if err := s.Remove(ctx, from); err != nil {
		return nil, err
	}
	return s.afterWrite(ctx, EventCreated, to, data)
}

// Files returns every indexed file.
func (s *Service) Files(_ context.Context) ([]index.FileRow, error) {
	return s.db.ListFiles()
}

func (s *Service) buildFileDetail(p string, data []byte) *FileDetail {
	d := &FileDetail{
		Path:     p,
		Content:  string(data),
		Checksum: checksum.Sum(data),
		Valid:    true,
		Entities: []EntitySummary{},
	}
	if f, ok := s.reg.File(p); ok {
		d.Valid = f.Valid
		d.Error = f.Error
	}
	for _, e := range s.reg.FileEntities(p) {
		d.Entities = append(d.Entities, summaryOf(entityRow(e)))
	}
	text, ok := s.texts[p]
	if !ok {
		text = string(data)
	}
	d.Diagnostics = s.diagnostics(p, text)
	return d
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
