// Package schemaengine adapts santhosh-tekuri/jsonschema to the compile/run
// contract used by the registry: compile a schema document with an external
// reference loader, then run it against instances collecting every leaf error.
package schemaengine

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// LoadFunc resolves a reference URL the compiler could not resolve locally.
type LoadFunc func(url string) (any, error)

// RawError is one unformatted validation failure with Ajv-style keyword and
// parameter names.
type RawError struct {
	InstancePath string
	SchemaPath   string
	Keyword      string
	Params       map[string]any
	Message      string
	Data         any
}

// Result is the outcome of running a compiled schema.
type Result struct {
	Valid  bool
	Errors []RawError
}

// Validator runs a compiled schema.
type Validator interface {
	Run(instance any) Result
}

// Engine compiles schema documents.
type Engine struct {
	printer *message.Printer
}

// New returns an Engine that asserts "format" and reports English messages.
func New() *Engine {
	return &Engine{printer: message.NewPrinter(language.English)}
}

type loaderFunc LoadFunc

func (f loaderFunc) Load(url string) (any, error) { return f(url) }

// Compile registers doc under uri and compiles it. References to resources
// other than doc itself go through load.
func (e *Engine) Compile(uri string, doc any, load LoadFunc) (Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if load != nil {
		c.UseLoader(loaderFunc(load))
	}
	if err := c.AddResource(uri, doc); err != nil {
		return nil, fmt.Errorf("schemaengine: add resource %s: %w", uri, err)
	}
	sch, err := c.Compile(uri)
	if err != nil {
		return nil, fmt.Errorf("schemaengine: compile %s: %w", uri, err)
	}
	return &validator{schema: sch, printer: e.printer}, nil
}

type validator struct {
	schema  *jsonschema.Schema
	printer *message.Printer
}

func (v *validator) Run(instance any) Result {
	err := v.schema.Validate(instance)
	if err == nil {
		return Result{Valid: true, Errors: []RawError{}}
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return Result{Errors: []RawError{{Message: err.Error(), Params: map[string]any{}}}}
	}
	var out []RawError
	v.collect(ve, instance, &out)
	if len(out) == 0 {
		out = append(out, RawError{Message: ve.Error(), Params: map[string]any{}})
	}
	return Result{Errors: out}
}

// collect flattens the cause tree in instance location order, then schema
// location order. Grouping nodes contribute only their causes; composition
// keywords contribute their causes and themselves.
func (v *validator) collect(ve *jsonschema.ValidationError, instance any, out *[]RawError) {
	causes := slices.Clone(ve.Causes)
	slices.SortStableFunc(causes, compareCauses)
	for _, c := range causes {
		v.collect(c, instance, out)
	}
	if len(ve.Causes) > 0 {
		switch ve.ErrorKind.(type) {
		case *kind.AnyOf, *kind.OneOf, *kind.AllOf:
		default:
			return
		}
	}

	base := RawError{
		InstancePath: instancePath(ve.InstanceLocation),
		SchemaPath:   schemaPath(ve.SchemaURL),
		Keyword:      keywordOf(ve.ErrorKind),
		Message:      ve.ErrorKind.LocalizedString(v.printer),
		Data:         valueAt(instance, ve.InstanceLocation),
	}

	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		for _, m := range k.Missing {
			e := base
			e.Params = map[string]any{"missingProperty": m}
			e.Message = fmt.Sprintf("missing property %q", m)
			*out = append(*out, e)
		}
		return
	case *kind.AdditionalProperties:
		for _, p := range slices.Sorted(slices.Values(k.Properties)) {
			e := base
			e.Params = map[string]any{"additionalProperty": p}
			e.Message = fmt.Sprintf("additional property %q not allowed", p)
			*out = append(*out, e)
		}
		return
	}

	base.Params = paramsOf(ve.ErrorKind)
	*out = append(*out, base)
}

func compareCauses(a, b *jsonschema.ValidationError) int {
	if c := compareTokens(a.InstanceLocation, b.InstanceLocation); c != 0 {
		return c
	}
	return compareTokens(strings.Split(schemaPath(a.SchemaURL), "/"), strings.Split(schemaPath(b.SchemaURL), "/"))
}

// compareTokens orders two locations token by token, numerically where both
// tokens are array indexes.
func compareTokens(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		x, errX := strconv.Atoi(a[i])
		y, errY := strconv.Atoi(b[i])
		if errX == nil && errY == nil {
			if x != y {
				return x - y
			}
			continue
		}
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func paramsOf(k jsonschema.ErrorKind) map[string]any {
	switch k := k.(type) {
	case *kind.Type:
		return map[string]any{"type": strings.Join(k.Want, ",")}
	case *kind.Pattern:
		return map[string]any{"pattern": k.Want}
	case *kind.Enum:
		return map[string]any{"allowedValues": k.Want}
	case *kind.Const:
		return map[string]any{"allowedValue": k.Want}
	case *kind.Minimum:
		return map[string]any{"comparison": ">=", "limit": ratFloat(k.Want)}
	case *kind.Maximum:
		return map[string]any{"comparison": "<=", "limit": ratFloat(k.Want)}
	case *kind.ExclusiveMinimum:
		return map[string]any{"comparison": ">", "limit": ratFloat(k.Want)}
	case *kind.ExclusiveMaximum:
		return map[string]any{"comparison": "<", "limit": ratFloat(k.Want)}
	case *kind.MinItems:
		return map[string]any{"limit": k.Want}
	case *kind.MaxItems:
		return map[string]any{"limit": k.Want}
	case *kind.MinLength:
		return map[string]any{"limit": k.Want}
	case *kind.MaxLength:
		return map[string]any{"limit": k.Want}
	case *kind.MinProperties:
		return map[string]any{"limit": k.Want}
	case *kind.MaxProperties:
		return map[string]any{"limit": k.Want}
	case *kind.Format:
		return map[string]any{"format": k.Want}
	case *kind.OneOf:
		return map[string]any{"passingSchemas": k.Subschemas}
	}
	return map[string]any{}
}

func keywordOf(k jsonschema.ErrorKind) string {
	if p := k.KeywordPath(); len(p) > 0 {
		return p[len(p)-1]
	}
	if _, ok := k.(*kind.FalseSchema); ok {
		return "false schema"
	}
	return ""
}

func ratFloat(r *big.Rat) float64 {
	if r == nil {
		return 0
	}
	f, _ := r.Float64()
	return f
}

var tokenEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func instancePath(loc []string) string {
	if len(loc) == 0 {
		return ""
	}
	parts := make([]string, len(loc))
	for i, tok := range loc {
		parts[i] = tokenEscaper.Replace(tok)
	}
	return "/" + strings.Join(parts, "/")
}

func schemaPath(url string) string {
	if i := strings.IndexByte(url, '#'); i >= 0 {
		return "#" + url[i+1:]
	}
	return "#"
}

// valueAt returns the value addressed by loc, or nil.
func valueAt(v any, loc []string) any {
	cur := v
	for _, tok := range loc {
		switch t := cur.(type) {
		case map[string]any:
			cur = t[tok]
		case []any:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(t) {
				return nil
			}
			cur = t[i]
		default:
			return nil
		}
	}
	return cur
}
