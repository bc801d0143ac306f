package unirio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cmstar/go-conv"

	"github.com/unirio/unirio_sdk_go/internal/unirioapi"
)

// rowConv decodes rows into structs, matching field names without regard to case.
var rowConv = conv.Conv{
	Conf: conv.Config{
		FieldMatcherCreator: &conv.SimpleMatcherCreator{
			Conf: conv.SimpleMatcherConfig{
				CaseInsensitive: true,
			},
		},
	},
}

// Row is a single record returned by the API. Field lookups ignore case, while
// Keys and MarshalJSON keep the casing and order sent by the server.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow builds a Row from a map. Keys are enumerated in sorted order since Go
// maps carry none.
func NewRow(m map[string]any) Row {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var r Row
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

func rowFromFields(fields []unirioapi.Field) Row {
	r := Row{
		keys:   make([]string, 0, len(fields)),
		values: make(map[string]any, len(fields)),
	}
	for _, f := range fields {
		r.Set(f.Key, f.Value)
	}
	return r
}

// Set assigns value to name. Setting an existing name with different casing
// replaces the value and keeps the original spelling.
func (r *Row) Set(name string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	lk := strings.ToLower(name)
	if _, ok := r.values[lk]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[lk] = value
}

func (r Row) clone() Row {
	out := Row{keys: append([]string(nil), r.keys...)}
	if r.values != nil {
		out.values = make(map[string]any, len(r.values))
		for k, v := range r.values {
			out.values[k] = v
		}
	}
	return out
}

// Get returns the value stored under name, ignoring case.
func (r Row) Get(name string) (any, bool) {
	v, ok := r.values[strings.ToLower(name)]
	return v, ok
}

// Value returns the value stored under name, or nil.
func (r Row) Value(name string) any {
	return r.values[strings.ToLower(name)]
}

// Has reports whether name is present.
func (r Row) Has(name string) bool {
	_, ok := r.values[strings.ToLower(name)]
	return ok
}

// Keys returns the field names with their original casing.
func (r Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields.
func (r Row) Len() int {
	return len(r.keys)
}

// Map returns a copy keyed by the original field names.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		m[k] = r.values[strings.ToLower(k)]
	}
	return m
}

// String formats the named value, returning "" for missing or null fields.
func (r Row) String(name string) string {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int64 returns the named value as an integer.
func (r Row) Int64(name string) (int64, error) {
	v, ok := r.Get(name)
	if !ok {
		return 0, fmt.Errorf("unirio: field %q not present", name)
	}
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("unirio: field %q is not an integer: %v", name, x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("unirio: field %q has type %T", name, v)
	}
}

// Decode copies the row into the struct pointed to by out. Struct fields are
// matched to row fields without regard to case.
func (r Row) Decode(out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("unirio: Decode requires a non-nil pointer, got %T", out)
	}
	src := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		v := r.values[strings.ToLower(k)]
		if v == nil {
			continue
		}
		src[k] = plainNumber(v)
	}
	converted, err := rowConv.ConvertType(src, rv.Elem().Type())
	if err != nil {
		return fmt.Errorf("unirio: decode row: %w", err)
	}
	rv.Elem().Set(reflect.ValueOf(converted))
	return nil
}

// MarshalJSON encodes the row as an object in field order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[strings.ToLower(k)])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	fields, err := unirioapi.DecodeObject(data)
	if err != nil {
		return err
	}
	*r = rowFromFields(fields)
	return nil
}

func plainNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
