package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gtsreg/internal/index"
	"github.com/starford/gtsreg/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	svc *workspace.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *workspace.Service) *Handler {
	return &Handler{svc: svc}
}

// wildcardPath extracts the file path from the URL (everything after the
// route prefix). Supports encoded slashes (e.g. types%2Forder.json).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func entityID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if decoded, err := url.PathUnescape(id); err == nil {
		return decoded
	}
	return id
}

// ListFiles handles GET /api/files.
//
//	@Summary		List indexed files
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	FileListResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Files(r.Context())
	if err != nil {
		writeServiceError(w, "list files", "", err)
		return
	}
	items := make([]FileListItem, len(rows))
	for i, f := range rows {
		items[i] = FileListItem{
			Path:        f.Path,
			Name:        f.Name,
			Checksum:    f.Checksum,
			Valid:       f.Valid,
			Error:       f.Error,
			EntityCount: f.EntityCount,
		}
	}
	writeJSON(w, http.StatusOK, FileListResponse{Files: items})
}

// GetFile handles GET /api/files/*.
//
//	@Summary		Get a file with its entities and diagnostics
//	@Tags			files
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Success		200		{object}	FileDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [get]
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	f, err := h.svc.GetFile(r.Context(), path)
	if err != nil {
		writeServiceError(w, "get file", path, err)
		return
	}
	w.Header().Set("ETag", `"`+f.Checksum+`"`)
	writeJSON(w, http.StatusOK, f)
}

// CreateFile handles POST /api/files.
//
//	@Summary		Create a new file
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFileRequest	true	"File to create"
//	@Success		201		{object}	FileDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [post]
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	var req CreateFileRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	f, err := h.svc.CreateFile(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeServiceError(w, "create file", req.Path, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// UpdateFile handles PUT /api/files/*.
//
//	@Summary		Update a file with optimistic concurrency
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"File path"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	UpdateFileRequest	true	"Updated content"
//	@Success		200		{object}	FileDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [put]
func (h *Handler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req UpdateFileRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	f, err := h.svc.UpdateFile(r.Context(), path, []byte(req.Content), r.Header.Get("If-Match"))
	if err != nil {
		writeServiceError(w, "update file", path, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// MoveFile handles PATCH /api/files/*.
//
//	@Summary		Rename a file
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Current file path"
//	@Param			body	body		MoveFileRequest	true	"Target path"
//	@Success		200		{object}	FileDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [patch]
func (h *Handler) MoveFile(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	var req MoveFileRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if path == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and target are required"))
		return
	}
	f, err := h.svc.MoveFile(r.Context(), path, req.To)
	if err != nil {
		writeServiceError(w, "move file", path, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteFile handles DELETE /api/files/*.
//
//	@Summary		Delete a file
//	@Tags			files
//	@Param			path	path	string	true	"File path"
//	@Success		204		"File deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [delete]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteFile(r.Context(), path); err != nil {
		writeServiceError(w, "delete file", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Diagnostics handles GET /api/diagnostics/*.
//
//	@Summary		Located validation errors of a file
//	@Tags			validation
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Success		200		{object}	DiagnosticsResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/diagnostics/{path} [get]
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusOK, h.svc.AllDiagnostics(r.Context()))
		return
	}
	diags, err := h.svc.Diagnostics(r.Context(), path)
	if err != nil {
		writeServiceError(w, "diagnostics", path, err)
		return
	}
	writeJSON(w, http.StatusOK, DiagnosticsResponse{Path: path, Diagnostics: diags})
}

// Validate handles POST /api/validate.
//
//	@Summary		Validate an unsaved document
//	@Tags			validation
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ValidateRequest	true	"Document to validate"
//	@Success		200		{object}	DiagnosticsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/validate [post]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	diags, err := h.svc.ValidateDocument(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeServiceError(w, "validate", req.Path, err)
		return
	}
	writeJSON(w, http.StatusOK, DiagnosticsResponse{Path: req.Path, Diagnostics: diags})
}

// ListEntities handles GET /api/entities.
//
//	@Summary		List entities with optional filtering
//	@Tags			entities
//	@Produce		json
//	@Param			kind	query		string	false	"Entity kind"	Enums(object, schema)
//	@Param			q		query		string	false	"Identifier substring"
//	@Param			invalid	query		bool	false	"Only entities with errors"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	EntityListResponse
//	@Security		BearerAuth
//	@Router			/entities [get]
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	invalid, _ := strconv.ParseBool(q.Get("invalid"))

	items, total, err := h.svc.Entities(r.Context(), index.EntityFilter{
		Kind:    q.Get("kind"),
		Query:   q.Get("q"),
		Invalid: invalid,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		writeServiceError(w, "list entities", "", err)
		return
	}
	writeJSON(w, http.StatusOK, EntityListResponse{Entities: items, Total: total})
}

// GetEntity handles GET /api/entities/{id}.
//
//	@Summary		Get an entity with its validation result and referrers
//	@Tags			entities
//	@Produce		json
//	@Param			id	path		string	true	"GTS identifier"
//	@Success		200	{object}	EntityDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{id} [get]
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := entityID(r)
	e, err := h.svc.Entity(r.Context(), id)
	if err != nil {
		writeServiceError(w, "get entity", id, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Referrers handles GET /api/entities/{id}/referrers.
//
//	@Summary		Entities referring to an identifier
//	@Tags			entities
//	@Produce		json
//	@Param			id	path		string	true	"GTS identifier"
//	@Success		200	{object}	ReferrersResponse
//	@Security		BearerAuth
//	@Router			/entities/{id}/referrers [get]
func (h *Handler) Referrers(w http.ResponseWriter, r *http.Request) {
	id := entityID(r)
	refs, err := h.svc.Referrers(r.Context(), id)
	if err != nil {
		writeServiceError(w, "referrers", id, err)
		return
	}
	writeJSON(w, http.StatusOK, ReferrersResponse{ID: id, Referrers: refs})
}

// GetDefault handles GET /api/default.
//
//	@Summary		The file presented by default
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	DefaultFileResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/default [get]
func (h *Handler) GetDefault(w http.ResponseWriter, r *http.Request) {
	p, ok := h.svc.DefaultFile(r.Context())
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no files registered"))
		return
	}
	writeJSON(w, http.StatusOK, DefaultFileResponse{Path: p})
}

// SetDefault handles PUT /api/default.
//
//	@Summary		Select the default file
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DefaultFileRequest	true	"File path, empty to reset"
//	@Success		200		{object}	DefaultFileResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/default [put]
func (h *Handler) SetDefault(w http.ResponseWriter, r *http.Request) {
	var req DefaultFileRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.SetDefaultFile(r.Context(), req.Path); err != nil {
		writeServiceError(w, "set default", req.Path, err)
		return
	}
	p, _ := h.svc.DefaultFile(r.Context())
	writeJSON(w, http.StatusOK, DefaultFileResponse{Path: p})
}

// FetchJSON handles GET /api/json/*.
//
//	@Summary		Decoded document through the shared fetch cache
//	@Tags			files
//	@Produce		json
//	@Param			path	path	string	true	"File path"
//	@Param			force	query	bool	false	"Bypass the cache"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/json/{path} [get]
func (h *Handler) FetchJSON(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	v, err := h.svc.FetchJSON(r.Context(), path, force)
	if err != nil {
		writeServiceError(w, "fetch json", path, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Stats handles GET /api/stats.
//
//	@Summary		Registry counters
//	@Tags			validation
//	@Produce		json
//	@Success		200	{object}	workspace.Stats
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats(r.Context()))
}
