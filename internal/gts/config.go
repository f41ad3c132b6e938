package gts

import (
	"regexp"
	"sort"
	"strconv"
)

// Config controls how GTS entities are recognised inside document content.
type Config struct {
	// EntityIDFields are the top-level keys that may carry an entity identifier,
	// in priority order.
	EntityIDFields []string `yaml:"entity_id_fields"`
	// SchemaIDFields are the top-level keys that may declare an instance's type.
	SchemaIDFields []string `yaml:"schema_id_fields"`
}

// DefaultConfig returns the stock recognition rules.
func DefaultConfig() Config {
	return Config{
		EntityIDFields: []string{"$id", "gtsId", "id"},
		SchemaIDFields: []string{"type", "gtsType"},
	}
}

// Info is what the configuration reports about one JSON object.
type Info struct {
	ID       string
	IsSchema bool
	SchemaID string
	Refs     []Ref
}

// Analyze inspects content and reports whether it is a GTS entity.
//
// A schema is a document with "$schema" or whose identifier names a type.
// An object qualifies when its identifier is a GTS identifier, or when it has
// any non-empty identifier and declares a GTS type (anonymous instances).
func (c Config) Analyze(content map[string]any) (Info, bool) {
	if content == nil {
		return Info{}, false
	}

	id, idKey := c.firstString(content, c.EntityIDFields)
	schemaID, schemaKey := c.firstString(content, c.SchemaIDFields)
	if !IsTypeID(schemaID) {
		schemaID, schemaKey = "", ""
	}

	_, hasMeta := content["$schema"]
	info := Info{ID: id}

	switch {
	case IsValidID(id) && (hasMeta || IsTypeID(id)):
		info.IsSchema = true
	case IsValidID(id):
		info.SchemaID = schemaID
		if info.SchemaID == "" {
			info.SchemaID = TypeOf(id)
		}
	case id != "" && schemaID != "":
		info.SchemaID = schemaID
	default:
		return Info{}, false
	}

	skip := map[string]struct{}{idKey: {}, "$schema": {}}
	if schemaKey != "" && !info.IsSchema {
		skip[schemaKey] = struct{}{}
	}
	info.Refs = collectRefs(content, skip)
	return info, true
}

// firstString returns the first configured key holding a non-empty string,
// decoded through DecodeID.
func (c Config) firstString(content map[string]any, keys []string) (string, string) {
	for _, k := range keys {
		if s, ok := content[k].(string); ok && s != "" {
			return DecodeID(s), k
		}
	}
	return "", ""
}

// collectRefs walks content in key order and records every string value that
// decodes to a GTS identifier. Root keys in skip are ignored.
func collectRefs(content map[string]any, skip map[string]struct{}) []Ref {
	refs := []Ref{}
	var walk func(v any, path string)
	walk = func(v any, path string) {
		switch t := v.(type) {
		case map[string]any:
			for _, k := range sortedKeys(t) {
				if path == "" {
					if _, ok := skip[k]; ok {
						continue
					}
				}
				walk(t[k], joinKey(path, k))
			}
		case []any:
			for i, item := range t {
				walk(item, path+"["+strconv.Itoa(i)+"]")
			}
		case string:
			if id := DecodeID(t); IsValidID(id) {
				refs = append(refs, Ref{ID: id, SourcePath: path})
			}
		}
	}
	walk(content, "")
	return refs
}

var plainKeyRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

func joinKey(path, key string) string {
	if !plainKeyRe.MatchString(key) {
		return path + "[" + strconv.Quote(key) + "]"
	}
	if path == "" {
		return key
	}
	return path + "." + key
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
