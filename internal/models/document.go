// Package models defines the workspace-facing types for gtsreg.
package models

import "time"

// FileMetadata is a lightweight representation returned by list operations.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Position is a zero-based line and UTF-16 character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range spans two positions, end exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a validation error placed on the source text of a file.
type Diagnostic struct {
	Path         string   `json:"path"`
	Range        Range    `json:"range"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	Keyword      string   `json:"keyword,omitempty"`
	InstancePath string   `json:"instance_path,omitempty"`
	EntityID     string   `json:"entity_id,omitempty"`
	// Located is false when no anchor was found and the range defaults to
	// the start of the document.
	Located bool `json:"located"`
}

// Reference is an edge from one entity to the identifier it names.
type Reference struct {
	SourceID string `json:"source_id"`
	FilePath string `json:"file_path"`
	TargetID string `json:"target_id"`
	Pointer  string `json:"pointer"`
}
