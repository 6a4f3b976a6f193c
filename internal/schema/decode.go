package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	quotedNameRe   = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'`)
	typeMismatchRe = regexp.MustCompile(`^expected (.+), but got (\S+)$`)
)

// FromMap builds a record from an untyped field mapping, such as a decoded
// JSON request body. Values are checked against the record's declared types
// without coercion.
func FromMap[T Record](fields map[string]any) (T, error) {
	var zero T
	if fields == nil {
		return zero, newValidationError(zero.RecordName(), FieldError{
			Expected: "object",
			Message:  "expected object, but got null",
		})
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return zero, newValidationError(zero.RecordName(), FieldError{
			Message: fmt.Sprintf("input is not representable as JSON: %v", err),
		})
	}
	return Decode[T](data)
}

// Decode builds a record from raw JSON.
func Decode[T Record](data []byte) (T, error) {
	var zero T
	name := zero.RecordName()

	doc, err := decodeDocument(data)
	if err != nil {
		return zero, newValidationError(name, FieldError{Message: fmt.Sprintf("malformed JSON: %v", err)})
	}
	if err := ValidateDocument(name, doc); err != nil {
		return zero, err
	}

	// Decode only what the schema saw under its exact names; encoding/json
	// would otherwise match keys case-insensitively.
	clean, err := json.Marshal(declaredFields(doc, reflect.TypeOf(zero)))
	if err != nil {
		return zero, newValidationError(name, FieldError{Message: err.Error()})
	}

	var out T
	if err := json.Unmarshal(clean, &out); err != nil {
		if ve, ok := IsValidationError(err); ok {
			return zero, ve
		}
		return zero, newValidationError(name, unmarshalFieldError(err))
	}
	if err := out.Validate(); err != nil {
		return zero, err
	}
	return out, nil
}

// ValidateDocument checks a decoded JSON value against the named record schema.
func ValidateDocument(name string, doc any) error {
	sch, err := compiledSchema(name)
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return newValidationError(name, toFieldErrors(err)...)
	}
	return nil
}

// ValidateJSON checks raw JSON against the named record schema and, for
// records with extra invariants, against those too.
func ValidateJSON(name string, data []byte) error {
	s, err := Get(name)
	if err != nil {
		return err
	}
	switch s.Name {
	case RecordModelOptions:
		_, err = Decode[ModelOption](data)
	case RecordLLMParams:
		_, err = Decode[LLMParams](data)
	case RecordPage:
		_, err = Decode[Page](data)
	case RecordCompletionResponse:
		_, err = Decode[CompletionResponse](data)
	case RecordCompletionArgs:
		_, err = Decode[CompletionArgs](data)
	case RecordDocupieOutput:
		_, err = Decode[DocupieOutput](data)
	default:
		return fmt.Errorf("schema not found: %s", name)
	}
	return err
}

// declaredFields returns doc with every object key that is not a json field
// name of t dropped, recursing into nested records and slices. Undeclared keys
// are ignored rather than rejected.
func declaredFields(doc any, t reflect.Type) any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		m, ok := doc.(map[string]any)
		if !ok {
			return doc
		}
		out := make(map[string]any, len(m))
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			key, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if key == "-" {
				continue
			}
			if key == "" {
				key = f.Name
			}
			if v, ok := m[key]; ok {
				out[key] = declaredFields(v, f.Type)
			}
		}
		return out
	case reflect.Slice, reflect.Array:
		items, ok := doc.([]any)
		if !ok {
			return doc
		}
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = declaredFields(v, t.Elem())
		}
		return out
	}
	return doc
}

// unmarshalFieldError locates a value the schema accepted but Go cannot hold,
// such as an integer beyond the range of int.
func unmarshalFieldError(err error) FieldError {
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) {
		return FieldError{
			Path:     ute.Field,
			Expected: ute.Type.String(),
			Message:  fmt.Sprintf("%s value out of range for %s", ute.Value, ute.Type),
		}
	}
	return FieldError{Message: err.Error()}
}

func decodeDocument(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after top-level value")
	}
	return doc, nil
}

// toFieldErrors flattens a jsonschema error tree into its leaf failures.
func toFieldErrors(err error) []FieldError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []FieldError{{Message: err.Error()}}
	}

	var out []FieldError
	collectLeaves(ve, &out)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return dedupeFieldErrors(out)
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]FieldError) {
	if len(ve.Causes) == 0 {
		*out = append(*out, leafFieldErrors(ve)...)
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(cause, out)
	}
}

func leafFieldErrors(ve *jsonschema.ValidationError) []FieldError {
	base := fieldPath(ve.InstanceLocation)
	keyword := ve.KeywordLocation[strings.LastIndex(ve.KeywordLocation, "/")+1:]

	switch keyword {
	case "required":
		var out []FieldError
		for _, m := range quotedNameRe.FindAllStringSubmatch(ve.Message, -1) {
			out = append(out, FieldError{
				Path:     joinFieldPath(base, m[1]),
				Expected: "required",
				Message:  "field required",
			})
		}
		if len(out) > 0 {
			return out
		}
	case "type":
		fe := FieldError{Path: base, Message: ve.Message}
		if m := typeMismatchRe.FindStringSubmatch(ve.Message); m != nil {
			fe.Expected = m[1]
		}
		return []FieldError{fe}
	case "enum":
		return []FieldError{{
			Path:     base,
			Expected: strings.TrimPrefix(ve.Message, "value must be "),
			Message:  ve.Message,
		}}
	}
	return []FieldError{{Path: base, Message: ve.Message}}
}

// fieldPath converts a JSON pointer ("/pages/0/content") to "pages[0].content".
func fieldPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return ""
	}
	var b strings.Builder
	for _, tok := range strings.Split(pointer, "/") {
		tok = strings.ReplaceAll(tok, "~1", "/")
		tok = strings.ReplaceAll(tok, "~0", "~")
		if _, err := strconv.Atoi(tok); err == nil {
			b.WriteString("[" + tok + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}

func joinFieldPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

func dedupeFieldErrors(in []FieldError) []FieldError {
	seen := make(map[FieldError]struct{}, len(in))
	out := in[:0]
	for _, fe := range in {
		if _, ok := seen[fe]; ok {
			continue
		}
		seen[fe] = struct{}{}
		out = append(out, fe)
	}
	return out
}
