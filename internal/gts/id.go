// Package gts defines the GTS entity model: identifiers, the reference codec,
// the File / Obj / Schema entities and configuration-driven entity extraction.
package gts

import (
	"net/url"
	"regexp"
	"strings"
)

// Scheme is the URI scheme used to embed identifiers in $ref-like strings.
const Scheme = "gts://"

const idPrefix = "gts."

// segmentRe matches one vendor.package.namespace.type.vMAJOR[.MINOR] segment.
var segmentRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*\.[a-z_][a-z0-9_]*\.[a-z_][a-z0-9_]*\.[a-z_][a-z0-9_]*\.v(0|[1-9][0-9]*)(\.(0|[1-9][0-9]*))?$`)

// IsValidID reports whether s is a well-formed GTS identifier.
//
// An identifier is "gts." followed by one or more segments separated by "~".
// A trailing "~" marks a type (schema) identifier; an identifier with an
// inner "~" is a chained instance identifier whose prefix names its type.
func IsValidID(s string) bool {
	if !strings.HasPrefix(s, idPrefix) {
		return false
	}
	body := strings.TrimSuffix(s[len(idPrefix):], "~")
	if body == "" {
		return false
	}
	for _, seg := range strings.Split(body, "~") {
		if !segmentRe.MatchString(seg) {
			return false
		}
	}
	return true
}

// IsTypeID reports whether s is a valid identifier naming a type (schema).
func IsTypeID(s string) bool {
	return strings.HasSuffix(s, "~") && IsValidID(s)
}

// TypeOf returns the type identifier a chained instance identifier belongs to,
// i.e. everything up to and including its last "~". It returns "" when id is
// not a chained instance identifier.
func TypeOf(id string) string {
	if !IsValidID(id) || strings.HasSuffix(id, "~") {
		return ""
	}
	i := strings.LastIndex(id, "~")
	if i < 0 {
		return ""
	}
	return id[:i+1]
}

// EncodeID embeds an identifier into a $ref-compatible URI.
func EncodeID(id string) string {
	return Scheme + url.PathEscape(id)
}

// DecodeID extracts the identifier from a $ref-like string. It is total:
// strings that do not carry the gts scheme are returned unchanged apart from
// fragment removal, and meta-schema URIs pass through untouched.
func DecodeID(ref string) string {
	if IsMetaSchemaURI(ref) {
		return ref
	}
	s := ref
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	if !strings.HasPrefix(s, Scheme) {
		return s
	}
	s = strings.TrimPrefix(s, Scheme)
	// Relative refs resolved against a gts:// base end up as gts://<base>/<id>.
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}

// IsMetaSchemaURI reports whether ref points at a public JSON Schema
// meta-schema. Such references always resolve.
func IsMetaSchemaURI(ref string) bool {
	for _, p := range []string{"http://json-schema.org/", "https://json-schema.org/"} {
		if strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}
