package gts

import (
	"strconv"
	"strings"
)

// File is an ingested document.
type File struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content any    `json:"content"` // parsed JSON value, or raw text when parsing failed
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
}

// Ref is an outbound reference from an entity to another identifier.
// SourcePath is a dot/bracket path into the entity content, "" for the root.
type Ref struct {
	ID         string `json:"id"`
	SourcePath string `json:"sourcePath"`
}

// ValidationError is one structured validation failure. InstancePath is a
// slash-delimited path into the instance; "" or "/" denote the root.
type ValidationError struct {
	InstancePath string         `json:"instancePath"`
	SchemaPath   string         `json:"schemaPath"`
	Keyword      string         `json:"keyword"`
	Message      string         `json:"message"`
	Params       map[string]any `json:"params,omitempty"`
	Data         any            `json:"data,omitempty"`
}

// StringParam returns params[key] if it is a string.
func (e ValidationError) StringParam(key string) (string, bool) {
	v, ok := e.Params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// ValidationResult is the outcome of validating one entity.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors"`
}

// Entity is implemented only by *Obj and *Schema.
type Entity interface {
	Base() *EntityBase
	isEntity()
}

// EntityBase holds the attributes shared by objects and schemas.
type EntityBase struct {
	ID           string           `json:"id"`
	FilePath     string           `json:"filePath"`
	ListSequence *int             `json:"listSequence,omitempty"`
	Content      map[string]any   `json:"content"`
	Refs         []Ref            `json:"gtsRefs"`
	Validation   ValidationResult `json:"validation"`
}

// Base returns the shared attributes.
func (b *EntityBase) Base() *EntityBase { return b }

// ResetValidation marks the entity valid with no errors.
func (b *EntityBase) ResetValidation() {
	b.Validation = ValidationResult{Valid: true, Errors: []ValidationError{}}
}

// AddError records a validation error, prefixing its instance path with the
// entity's list sequence when the owning file holds an array of entities.
func (b *EntityBase) AddError(e ValidationError) {
	if b.ListSequence != nil {
		e.InstancePath = PrefixPath(*b.ListSequence, e.InstancePath)
	}
	b.Validation.Valid = false
	b.Validation.Errors = append(b.Validation.Errors, e)
}

// Obj is a GTS-tagged data instance.
type Obj struct {
	EntityBase
	SchemaID string `json:"schemaId,omitempty"`
}

func (*Obj) isEntity() {}

// Schema is a GTS-tagged JSON Schema document.
type Schema struct {
	EntityBase
}

func (*Schema) isEntity() {}

// KindOf names the entity kind for logs and persistence.
func KindOf(e Entity) string {
	switch e.(type) {
	case *Schema:
		return "schema"
	case *Obj:
		return "object"
	}
	return ""
}

// PrefixPath prepends "/seq" to an instance path.
func PrefixPath(seq int, path string) string {
	p := "/" + strconv.Itoa(seq)
	if path == "" || path == "/" {
		return p
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return p + path
}

// SourcePathToPointer converts a dot/bracket source path ("a.b[2][\"x.y\"]")
// to slash notation ("/a/b/2/x.y"). Quoted bracket keys are unquoted with Go
// string literal rules. The root path maps to "/".
func SourcePathToPointer(sourcePath string) string {
	if sourcePath == "" {
		return "/"
	}
	var (
		b   strings.Builder
		cur strings.Builder
	)
	token := func(s string) {
		b.WriteByte('/')
		b.WriteString(EscapePointerToken(s))
	}
	flush := func() {
		if cur.Len() > 0 {
			token(cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(sourcePath); i++ {
		c := sourcePath[i]
		switch c {
		case '.':
			flush()
		case '[':
			flush()
			key, n := bracketKey(sourcePath[i:])
			token(key)
			i += n - 1
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// bracketKey reads the bracket segment at the start of s and returns its key
// and the number of bytes consumed, closing bracket included.
func bracketKey(s string) (string, int) {
	if len(s) > 1 && (s[1] == '"' || s[1] == '\'') {
		q := s[1]
		for j := 2; j < len(s); j++ {
			switch s[j] {
			case '\\':
				j++
			case q:
				lit := s[1 : j+1]
				n := j + 1
				if n < len(s) && s[n] == ']' {
					n++
				}
				if q == '"' {
					if key, err := strconv.Unquote(lit); err == nil {
						return key, n
					}
				}
				return lit[1 : len(lit)-1], n
			}
		}
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return s[1:], len(s)
	}
	return s[1:end], end + 1
}

var (
	pointerEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// EscapePointerToken escapes one JSON Pointer reference token.
func EscapePointerToken(tok string) string { return pointerEscaper.Replace(tok) }

// UnescapePointerToken reverses EscapePointerToken.
func UnescapePointerToken(tok string) string { return pointerUnescaper.Replace(tok) }
