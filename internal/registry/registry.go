// Package registry holds the in-memory graph of GTS entities ingested from a
// set of documents and validates it: references by identifier, schemas
// against the meta-schema and objects against the schemas they declare.
//
// A Registry is not safe for concurrent mutation. Callers serialise
// IngestFiles, Update and InvalidateFile; FetchJSON may be called from any
// goroutine.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/gtsreg/internal/gts"
	"github.com/starford/gtsreg/internal/schemaengine"
)

// DefaultToolingDir is the workspace subdirectory whose files are never ingested.
const DefaultToolingDir = ".gts"

// ErrShape is recorded on files whose content is neither an object nor an
// array of objects.
var ErrShape = errors.New("content must be a JSON object or an array of objects")

// FileInput is one document handed to IngestFiles. Content is the decoded
// JSON value; when decoding failed upstream it holds the raw text and Err the
// decode failure.
type FileInput struct {
	Path    string
	Name    string
	Content any
	Err     error
}

// Engine compiles schema documents for structural validation.
type Engine interface {
	Compile(uri string, doc any, load schemaengine.LoadFunc) (schemaengine.Validator, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithConfig sets the entity recognition rules.
func WithConfig(cfg gts.Config) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// WithEngine replaces the schema engine.
func WithEngine(e Engine) Option {
	return func(r *Registry) { r.engine = e }
}

// WithStructural toggles schema compilation and instance validation.
// Reference existence is checked either way.
func WithStructural(enabled bool) Option {
	return func(r *Registry) { r.structural = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithToolingDir sets the directory name skipped during ingestion.
func WithToolingDir(dir string) Option {
	return func(r *Registry) { r.toolingDir = dir }
}

// WithFetcher sets the retrieval backend used by FetchJSON.
func WithFetcher(f Fetcher) Option {
	return func(r *Registry) { r.fetch.fetcher = f }
}

// Registry is the entity graph.
type Registry struct {
	cfg        gts.Config
	engine     Engine
	structural bool
	toolingDir string
	logger     *slog.Logger

	objs    map[string]*gts.Obj
	schemas map[string]*gts.Schema
	byFile  map[string][]gts.Entity
	files   *orderedmap.OrderedMap[string, *gts.File]
	invalid map[string]*gts.File

	// pending holds entities whose validation result is stale.
	pending map[gts.Entity]struct{}

	defaultPath string
	generation  string

	fetch *fetchCache
}

// New returns an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		cfg:        gts.DefaultConfig(),
		engine:     schemaengine.New(),
		structural: true,
		toolingDir: DefaultToolingDir,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		objs:       make(map[string]*gts.Obj),
		schemas:    make(map[string]*gts.Schema),
		byFile:     make(map[string][]gts.Entity),
		files:      orderedmap.New[string, *gts.File](),
		invalid:    make(map[string]*gts.File),
		pending:    make(map[gts.Entity]struct{}),
		fetch:      newFetchCache(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IngestFiles (re)ingests files in order and then validates the whole
// registry, schemas first. A file that cannot be processed is logged and
// skipped. The returned error is non-nil only when ctx ends before the
// validation pass completes; entities not reached stay pending and are
// validated by the next pass.
func (r *Registry) IngestFiles(ctx context.Context, files []FileInput) error {
	r.generation = uuid.NewString()
	for _, f := range files {
		if err := r.ingest(f); err != nil {
			r.logger.Warn("registry: ingest failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
		}
	}
	for _, e := range r.ordered() {
		r.pending[e] = struct{}{}
	}
	return r.validatePending(ctx)
}

// InvalidateFile forgets everything known about path: its valid or invalid
// file record and every entity it contributed. An empty entity list is kept
// for the path.
func (r *Registry) InvalidateFile(p string) {
	for _, e := range r.byFile[p] {
		r.dropEntity(e)
	}
	r.byFile[p] = []gts.Entity{}
	r.files.Delete(p)
	delete(r.invalid, p)
	if r.defaultPath == p {
		r.defaultPath = ""
	}
}

func (r *Registry) skipped(p string) bool {
	if r.toolingDir == "" {
		return false
	}
	for _, seg := range strings.Split(path.Clean(strings.TrimPrefix(p, "/")), "/") {
		if seg == r.toolingDir {
			return true
		}
	}
	return false
}

func (r *Registry) ingest(f FileInput) error {
	if f.Path == "" {
		return fmt.Errorf("registry: empty path")
	}
	if r.skipped(f.Path) {
		r.logger.Debug("registry: skipping tooling file", slog.String("path", f.Path))
		return nil
	}
	r.InvalidateFile(f.Path)

	name := f.Name
	if name == "" {
		name = path.Base(f.Path)
	}
	file := &gts.File{Path: f.Path, Name: name, Content: f.Content, Valid: true}

	items, isList, err := elements(f)
	if err != nil {
		file.Valid = false
		file.Error = err.Error()
		r.invalid[f.Path] = file
		r.logger.Debug("registry: invalid file",
			slog.String("path", f.Path),
			slog.String("error", file.Error))
		return nil
	}

	found := 0
	for i, item := range items {
		info, ok := r.cfg.Analyze(item)
		if !ok {
			continue
		}
		base := gts.EntityBase{
			ID:       info.ID,
			FilePath: f.Path,
			Content:  item,
			Refs:     info.Refs,
		}
		if isList {
			seq := i
			base.ListSequence = &seq
		}
		base.ResetValidation()

		var e gts.Entity
		if info.IsSchema {
			e = &gts.Schema{EntityBase: base}
		} else {
			e = &gts.Obj{EntityBase: base, SchemaID: info.SchemaID}
		}
		r.putEntity(e)
		r.byFile[f.Path] = append(r.byFile[f.Path], e)
		found++
	}
	if found > 0 {
		r.files.Set(f.Path, file)
	}
	return nil
}

// elements normalises file content to a list of objects.
func elements(f FileInput) ([]map[string]any, bool, error) {
	if f.Err != nil {
		return nil, false, f.Err
	}
	switch c := f.Content.(type) {
	case map[string]any:
		return []map[string]any{c}, false, nil
	case []any:
		items := make([]map[string]any, len(c))
		for i, v := range c {
			m, ok := v.(map[string]any)
			if !ok {
				return nil, true, ErrShape
			}
			items[i] = m
		}
		return items, true, nil
	}
	return nil, false, ErrShape
}

// putEntity indexes e, evicting any entity that already holds its identifier.
// A file left without entities by the eviction is unregistered.
func (r *Registry) putEntity(e gts.Entity) {
	id := e.Base().ID
	if old, ok := r.Entity(id); ok {
		r.dropEntity(old)
		owner := old.Base().FilePath
		list := r.byFile[owner]
		for i, x := range list {
			if x == old {
				r.byFile[owner] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if owner != e.Base().FilePath && len(r.byFile[owner]) == 0 {
			r.files.Delete(owner)
			if r.defaultPath == owner {
				r.defaultPath = ""
			}
		}
		r.logger.Debug("registry: identifier replaced",
			slog.String("id", id),
			slog.String("old_path", old.Base().FilePath),
			slog.String("new_path", e.Base().FilePath))
	}
	switch e := e.(type) {
	case *gts.Schema:
		r.schemas[id] = e
	case *gts.Obj:
		r.objs[id] = e
	}
	r.pending[e] = struct{}{}
}

// dropEntity removes e from the identifier maps if it still owns its id.
func (r *Registry) dropEntity(e gts.Entity) {
	id := e.Base().ID
	switch e := e.(type) {
	case *gts.Schema:
		if r.schemas[id] == e {
			delete(r.schemas, id)
		}
	case *gts.Obj:
		if r.objs[id] == e {
			delete(r.objs, id)
		}
	}
	delete(r.pending, e)
}

// ordered returns the entities of every registered file in file insertion
// order, each file's entities in content order.
func (r *Registry) ordered() []gts.Entity {
	var out []gts.Entity
	for pair := r.files.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, r.byFile[pair.Key]...)
	}
	return out
}

// ResolveSchema looks a schema up by identifier. There is no fallback by
// file path.
func (r *Registry) ResolveSchema(id string) (*gts.Schema, bool) {
	s, ok := r.schemas[id]
	return s, ok
}

// Object returns the object with the given identifier.
func (r *Registry) Object(id string) (*gts.Obj, bool) {
	o, ok := r.objs[id]
	return o, ok
}

// Entity returns the object or schema with the given identifier.
func (r *Registry) Entity(id string) (gts.Entity, bool) {
	if s, ok := r.schemas[id]; ok {
		return s, true
	}
	if o, ok := r.objs[id]; ok {
		return o, true
	}
	return nil, false
}

// Objects returns every object sorted by identifier.
func (r *Registry) Objects() []*gts.Obj {
	out := make([]*gts.Obj, 0, len(r.objs))
	for _, o := range r.objs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Schemas returns every schema sorted by identifier.
func (r *Registry) Schemas() []*gts.Schema {
	out := make([]*gts.Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FileEntities returns the entities contributed by a path, in content order.
func (r *Registry) FileEntities(p string) []gts.Entity {
	return append([]gts.Entity(nil), r.byFile[p]...)
}

// JSONFiles returns the files holding at least one entity, in insertion order.
func (r *Registry) JSONFiles() []*gts.File {
	out := make([]*gts.File, 0, r.files.Len())
	for pair := r.files.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// InvalidFiles returns the files that failed the syntax or shape check,
// sorted by path.
func (r *Registry) InvalidFiles() []*gts.File {
	out := make([]*gts.File, 0, len(r.invalid))
	for _, f := range r.invalid {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// File returns the valid or invalid record for a path.
func (r *Registry) File(p string) (*gts.File, bool) {
	if f, ok := r.files.Get(p); ok {
		return f, true
	}
	f, ok := r.invalid[p]
	return f, ok
}

// SetDefaultFile selects the file presented by default. An empty path
// restores the insertion-order fallback.
func (r *Registry) SetDefaultFile(p string) error {
	if p == "" {
		r.defaultPath = ""
		return nil
	}
	if _, ok := r.files.Get(p); !ok {
		return fmt.Errorf("registry: default file %s: not registered", p)
	}
	r.defaultPath = p
	return nil
}

// DefaultFilePath returns the explicit default, else the first registered
// file, else "".
func (r *Registry) DefaultFilePath() string {
	if r.defaultPath != "" {
		return r.defaultPath
	}
	if pair := r.files.Oldest(); pair != nil {
		return pair.Key
	}
	return ""
}

// DefaultFile returns the record behind DefaultFilePath.
func (r *Registry) DefaultFile() (*gts.File, bool) {
	p := r.DefaultFilePath()
	if p == "" {
		return nil, false
	}
	return r.files.Get(p)
}

// Generation identifies the most recent ingestion.
func (r *Registry) Generation() string {
	return r.generation
}

// Pending reports how many entities await validation.
func (r *Registry) Pending() int {
	return len(r.pending)
}
