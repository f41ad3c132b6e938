package locator

import (
	"strings"

	json "github.com/goccy/go-json"
)

// scanner walks standardized JSON text by hand. Every method takes and
// returns absolute byte offsets into src and reports failure instead of
// panicking on malformed input.
type scanner struct {
	src string
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (s scanner) skipSpace(i int) int {
	for i < len(s.src) && isSpace(s.src[i]) {
		i++
	}
	return i
}

// root returns the offset of the top-level object or array.
func (s scanner) root() (int, bool) {
	i := s.skipSpace(0)
	if i < len(s.src) && (s.src[i] == '{' || s.src[i] == '[') {
		return i, true
	}
	return 0, false
}

// balancedEnd returns the offset just past the '{' or '[' opened at i and
// its matching closer, skipping string literals and escapes.
func (s scanner) balancedEnd(i int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for j := i; j < len(s.src); j++ {
		c := s.src[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return j + 1, true
			}
			if depth < 0 {
				return 0, false
			}
		}
	}
	return 0, false
}

// stringEnd returns the offset just past the string literal opened at i.
func (s scanner) stringEnd(i int) (int, bool) {
	escaped := false
	for j := i + 1; j < len(s.src); j++ {
		switch c := s.src[j]; {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			return j + 1, true
		}
	}
	return 0, false
}

// valueEnd returns the offset just past the value starting at i.
func (s scanner) valueEnd(i int) (int, bool) {
	if i >= len(s.src) {
		return 0, false
	}
	switch s.src[i] {
	case '{', '[':
		return s.balancedEnd(i)
	case '"':
		return s.stringEnd(i)
	}
	j := i
	for j < len(s.src) && !isSpace(s.src[j]) && !strings.ContainsRune(",}]", rune(s.src[j])) {
		j++
	}
	if j == i {
		return 0, false
	}
	return j, true
}

// nthElement returns the start of the n-th value of the array opened at i.
func (s scanner) nthElement(i, n int) (int, bool) {
	if i >= len(s.src) || s.src[i] != '[' || n < 0 {
		return 0, false
	}
	j := s.skipSpace(i + 1)
	for count := 0; j < len(s.src) && s.src[j] != ']'; count++ {
		if count == n {
			return j, true
		}
		end, ok := s.valueEnd(j)
		if !ok {
			return 0, false
		}
		j = s.skipSpace(end)
		if j < len(s.src) && s.src[j] == ',' {
			j = s.skipSpace(j + 1)
		}
	}
	return 0, false
}

// member is one key/value pair of an object.
type member struct {
	key   Range // key characters, quotes excluded
	value int   // start of the value
}

// findKey looks key up among the direct members of the object opened at i.
func (s scanner) findKey(i int, key string) (member, bool) {
	if i >= len(s.src) || s.src[i] != '{' {
		return member{}, false
	}
	j := s.skipSpace(i + 1)
	for j < len(s.src) && s.src[j] == '"' {
		keyEnd, ok := s.stringEnd(j)
		if !ok {
			return member{}, false
		}
		m := member{key: Range{Start: j + 1, End: keyEnd - 1}}
		colon := s.skipSpace(keyEnd)
		if colon >= len(s.src) || s.src[colon] != ':' {
			return member{}, false
		}
		m.value = s.skipSpace(colon + 1)
		if decodeKey(s.src[m.key.Start:m.key.End]) == key {
			return m, true
		}
		end, ok := s.valueEnd(m.value)
		if !ok {
			return member{}, false
		}
		j = s.skipSpace(end)
		if j < len(s.src) && s.src[j] == ',' {
			j = s.skipSpace(j + 1)
		}
	}
	return member{}, false
}

// stringAt decodes the string literal starting at i.
func (s scanner) stringAt(i int) (string, bool) {
	if i >= len(s.src) || s.src[i] != '"' {
		return "", false
	}
	end, ok := s.stringEnd(i)
	if !ok {
		return "", false
	}
	return decodeKey(s.src[i+1 : end-1]), true
}

func decodeKey(raw string) string {
	if !strings.ContainsRune(raw, '\\') {
		return raw
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &out); err != nil {
		return raw
	}
	return out
}
