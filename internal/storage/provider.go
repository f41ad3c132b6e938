// Package storage defines the workspace file-system abstraction.
package storage

import "github.com/starford/gtsreg/internal/models"

// Provider is the interface for workspace file operations.
type Provider interface {
	// List returns metadata for every candidate document under dir (relative to the workspace root).
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// IsCandidate reports whether path would be listed.
	IsCandidate(path string) bool
	// Ignored reports whether path lies in a directory List skips.
	Ignored(path string) bool
	// Root returns the absolute workspace directory.
	Root() string
}
