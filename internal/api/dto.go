package api

import (
	"github.com/starford/gtsreg/internal/models"
	"github.com/starford/gtsreg/internal/workspace"
)

// CreateFileRequest is the request body for creating a file.
type CreateFileRequest struct {
	Path    string `json:"path" example:"types/order.json" validate:"required"`
	Content string `json:"content" example:"{\"$id\": \"gts://gts.acme.shop.orders.order.v1~\"}" validate:"required"`
}

// UpdateFileRequest is the request body for updating a file.
type UpdateFileRequest struct {
	Content string `json:"content" validate:"required"`
}

// MoveFileRequest is the request body for renaming a file.
type MoveFileRequest struct {
	To string `json:"to" example:"archive/order.json" validate:"required"`
}

// ValidateRequest carries an unsaved document to validate.
type ValidateRequest struct {
	Path    string `json:"path" example:"types/order.json" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// DefaultFileRequest selects the default file. An empty path resets it.
type DefaultFileRequest struct {
	Path string `json:"path" example:"types/order.json"`
}

// FileDetail is the full file response type (aliased from the domain layer).
type FileDetail = workspace.FileDetail

// EntitySummary is a lightweight entity item (aliased from the domain layer).
type EntitySummary = workspace.EntitySummary

// EntityDetail is the full entity response type (aliased from the domain layer).
type EntityDetail = workspace.EntityDetail

// FileListItem is one indexed file.
type FileListItem struct {
	Path        string `json:"path" example:"types/order.json"`
	Name        string `json:"name" example:"order.json"`
	Checksum    string `json:"checksum" example:"abc123..."`
	Valid       bool   `json:"valid"`
	Error       string `json:"error,omitempty"`
	EntityCount int    `json:"entity_count" example:"3"`
}

// FileListResponse wraps file listings.
type FileListResponse struct {
	Files []FileListItem `json:"files" validate:"required"`
}

// EntityListResponse wraps paginated entity listings.
type EntityListResponse struct {
	Entities []EntitySummary `json:"entities" validate:"required"`
	Total    int             `json:"total" example:"42" validate:"required"`
}

// DiagnosticsResponse wraps the diagnostics of one file.
type DiagnosticsResponse struct {
	Path        string              `json:"path" validate:"required"`
	Diagnostics []models.Diagnostic `json:"diagnostics" validate:"required"`
}

// ReferrersResponse wraps the references to an entity.
type ReferrersResponse struct {
	ID        string             `json:"id" validate:"required"`
	Referrers []models.Reference `json:"referrers" validate:"required"`
}

// DefaultFileResponse names the default file.
type DefaultFileResponse struct {
	Path string `json:"path"`
}
