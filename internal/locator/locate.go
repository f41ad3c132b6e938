// Package locator maps validation errors back onto the source text of the
// document they were reported against. Positions are recovered by scanning
// the text on demand; nothing is recorded while parsing.
package locator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/gtsreg/internal/gts"
	"github.com/starford/gtsreg/internal/parser"
)

// Range is a half-open byte range [Start, End) of the original text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// elementKeys are the keys highlighted for a top-level array element, in
// order of preference.
var elementKeys = []string{"id", "$id", "type"}

// Locate returns the range of text an error should be reported at. It
// returns false when no anchor is found; callers then fall back to the
// start of the document.
func Locate(text string, e gts.ValidationError) (Range, bool) {
	s := scanner{src: prepare(text)}
	segs := splitPath(e.InstancePath)

	switch e.Keyword {
	case "schema":
		if id, ok := e.StringParam("schemaId"); ok {
			if len(segs) == 0 {
				return s.typeKey(id)
			}
			if n, ok := s.resolve(segs); ok {
				if m, ok := s.findKey(n.start, "type"); ok {
					if v, _ := s.stringAt(m.value); v == id {
						return m.key, true
					}
				}
			}
		}
	case "additionalProperties":
		if prop, ok := e.StringParam("additionalProperty"); ok {
			if n, ok := s.resolve(segs); ok {
				if m, ok := s.findKey(n.start, prop); ok {
					return m.key, true
				}
			}
			if r, ok := s.searchKey(prop); ok {
				return r, true
			}
		}
	case "required":
		if _, ok := e.StringParam("missingProperty"); ok {
			if len(segs) == 0 {
				if i := strings.IndexByte(s.src, '{'); i >= 0 {
					return Range{Start: i, End: i + 1}, true
				}
				return Range{}, false
			}
			if n, ok := s.resolve(segs); ok && s.src[n.start] == '{' {
				return Range{Start: n.start, End: n.start + 1}, true
			}
		}
	}

	if len(segs) == 0 {
		return Range{}, false
	}
	return s.fallback(segs)
}

// prepare blanks out comments and trailing commas. Text that cannot be
// standardized is scanned as is.
func prepare(text string) string {
	std, err := parser.Standardize([]byte(text))
	if err != nil || len(std) != len(text) {
		return text
	}
	return string(std)
}

// splitPath splits an instance path into unescaped reference tokens.
// "" and "/" yield no segments.
func splitPath(p string) []string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = gts.UnescapePointerToken(part)
	}
	return parts
}

// node is the result of path navigation.
type node struct {
	start      int   // start of the addressed value
	key        Range // key of the last object member traversed
	hasKey     bool
	topElement bool // the value is an element of the root array
}

// resolve navigates segs from the document root. Array scopes take numeric
// segments as element indexes; object scopes look every segment up as a
// key, ignoring numeric segments that name no member.
func (s scanner) resolve(segs []string) (node, bool) {
	start, ok := s.root()
	if !ok {
		return node{}, false
	}
	n := node{start: start}
	for depth, seg := range segs {
		switch s.src[n.start] {
		case '[':
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return node{}, false
			}
			el, ok := s.nthElement(n.start, idx)
			if !ok {
				return node{}, false
			}
			n = node{start: el, topElement: depth == 0}
		case '{':
			m, ok := s.findKey(n.start, seg)
			if !ok {
				if _, err := strconv.Atoi(seg); err == nil {
					continue
				}
				return node{}, false
			}
			n = node{start: m.value, key: m.key, hasKey: true}
		default:
			return node{}, false
		}
		if n.start >= len(s.src) {
			return node{}, false
		}
	}
	return n, true
}

// fallback highlights the last key on the path, a top-level element's
// identifying key, or the addressed value.
func (s scanner) fallback(segs []string) (Range, bool) {
	n, ok := s.resolve(segs)
	if !ok {
		return Range{}, false
	}
	switch {
	case n.hasKey:
		return n.key, true
	case n.topElement:
		return s.highlightElement(n.start)
	}
	end, ok := s.valueEnd(n.start)
	if !ok {
		return Range{}, false
	}
	return Range{Start: n.start, End: end}, true
}

func (s scanner) highlightElement(start int) (Range, bool) {
	if s.src[start] != '{' {
		end, ok := s.valueEnd(start)
		if !ok {
			return Range{}, false
		}
		return Range{Start: start, End: end}, true
	}
	for _, k := range elementKeys {
		if m, ok := s.findKey(start, k); ok {
			return m.key, true
		}
	}
	return Range{Start: start, End: start + 1}, true
}

// typeKey finds the "type" key whose value is id. The root object is checked
// structurally first; otherwise the whole text is searched.
func (s scanner) typeKey(id string) (Range, bool) {
	if start, ok := s.root(); ok {
		if m, ok := s.findKey(start, "type"); ok {
			if v, _ := s.stringAt(m.value); v == id {
				return m.key, true
			}
		}
	}
	re, err := regexp.Compile(`"(type)"\s*:\s*"` + regexp.QuoteMeta(id) + `"`)
	if err != nil {
		return Range{}, false
	}
	loc := re.FindStringSubmatchIndex(s.src)
	if loc == nil {
		return Range{}, false
	}
	return Range{Start: loc[2], End: loc[3]}, true
}

// searchKey finds the first `"key":` occurrence anywhere in the text.
func (s scanner) searchKey(key string) (Range, bool) {
	re, err := regexp.Compile(`"(` + regexp.QuoteMeta(key) + `)"\s*:`)
	if err != nil {
		return Range{}, false
	}
	loc := re.FindStringSubmatchIndex(s.src)
	if loc == nil {
		return Range{}, false
	}
	return Range{Start: loc[2], End: loc[3]}, true
}
