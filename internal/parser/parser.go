// Package parser decodes JSON and JSON-with-comments documents.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tailscale/hujson"
)

// DefaultExtensions lists the file suffixes treated as candidate documents.
var DefaultExtensions = []string{".json", ".jsonc", ".gts"}

// Result holds the output of parsing a document.
type Result struct {
	// Value is the decoded JSON value.
	Value any
	// Standard is the document with comments and trailing commas blanked
	// out. Byte offsets are identical to the input.
	Standard []byte
}

// Parse standardizes data (comments, trailing commas) and decodes it.
func Parse(data []byte) (*Result, error) {
	std, err := Standardize(data)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(std, &v); err != nil {
		return nil, fmt.Errorf("parser: decode: %w", err)
	}
	return &Result{Value: v, Standard: std}, nil
}

// Standardize returns a copy of data with JSONC-only syntax replaced by
// whitespace, keeping every byte offset of the original.
func Standardize(data []byte) ([]byte, error) {
	buf := make([]byte, len(data))
	copy(buf, data)
	std, err := hujson.Standardize(buf)
	if err != nil {
		return nil, fmt.Errorf("parser: %w", err)
	}
	return std, nil
}

// IsCandidate reports whether path has one of the given extensions.
// An empty list falls back to DefaultExtensions.
func IsCandidate(path string, exts []string) bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
