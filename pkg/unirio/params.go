package unirio

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// Wire parameter names understood by the server.
const (
	ParamAPIKey  = "API_KEY"
	ParamFormat  = "FORMAT"
	ParamFields  = "FIELDS"
	ParamLMin    = "LMIN"
	ParamLMax    = "LMAX"
	ParamOrderBy = "ORDERBY"
	ParamSort    = "SORT"

	// DefaultOperatorField identifies who performs a mutating call.
	DefaultOperatorField = "COD_OPERADOR"

	formatJSON = "JSON"
)

var stringType = reflect.TypeOf("")

// Params maps field names to scalar values or to sequences of scalars. A
// sequence is sent as a comma-joined list, which the server reads as an IN
// filter (e.g. {"PROJNAME_SET": []string{"a", "b"}}).
type Params map[string]any

// Clone returns a shallow copy; nil stays nil.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Lookup finds name ignoring case and returns the key as spelled in p.
func (p Params) Lookup(name string) (key string, value any, ok bool) {
	if v, ok := p[name]; ok {
		return name, v, true
	}
	for k, v := range p {
		if strings.EqualFold(k, name) {
			return k, v, true
		}
	}
	return "", nil, false
}

// Has reports whether name is present, ignoring case.
func (p Params) Has(name string) bool {
	_, _, ok := p.Lookup(name)
	return ok
}

// BuildQuery merges params with the authentication and format markers and
// encodes every value. A nil value, one whose string form is empty, or a
// sequence holding such an element fails with *NullParameterError before
// anything is sent.
func BuildQuery(params Params, apiKey string) (url.Values, error) {
	merged := withoutReserved(params, ParamAPIKey, ParamFormat)
	merged[ParamAPIKey] = apiKey
	merged[ParamFormat] = formatJSON

	q := make(url.Values, len(merged))
	for k, v := range merged {
		s, err := EncodeValue(v)
		if errors.Is(err, ErrNullParameter) {
			return nil, &NullParameterError{Key: k}
		}
		if err != nil {
			return nil, fmt.Errorf("unirio: encode parameter %q: %w", k, err)
		}
		if v == nil || s == "" {
			return nil, &NullParameterError{Key: k}
		}
		q.Set(k, s)
	}
	return q, nil
}

// BuildFieldProjection maps a field list to a FIELDS parameter. An empty list
// yields nil and the server returns all fields.
func BuildFieldProjection(fields []string) url.Values {
	if len(fields) == 0 {
		return nil
	}
	return url.Values{ParamFields: {strings.Join(fields, ",")}}
}

// BuildMutationPayload merges params with the API key for POST/PUT bodies.
// Nil values are left out; empty strings are sent as they are. The API key is
// assigned last so callers cannot override it.
func BuildMutationPayload(params Params, apiKey string) (url.Values, error) {
	merged := withoutReserved(params, ParamAPIKey)
	form := make(url.Values, len(merged)+1)
	for k, v := range merged {
		if v == nil {
			continue
		}
		s, err := EncodeValue(v)
		if errors.Is(err, ErrNullParameter) {
			return nil, &NullParameterError{Key: k}
		}
		if err != nil {
			return nil, fmt.Errorf("unirio: encode parameter %q: %w", k, err)
		}
		form.Set(k, s)
	}
	form.Set(ParamAPIKey, apiKey)
	return form, nil
}

// EncodeValue renders a single parameter value in its wire form. Slices and
// arrays (other than []byte) become comma-joined lists; an element that is nil
// or encodes to "" fails with ErrNullParameter. Booleans are sent as "True"
// and "False".
func EncodeValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case []byte:
		return string(x), nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			s, err := EncodeValue(rv.Index(i).Interface())
			if err != nil {
				return "", err
			}
			if s == "" {
				return "", fmt.Errorf("%w: sequence element %d", ErrNullParameter, i)
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	case reflect.Bool:
		if rv.Bool() {
			return "True", nil
		}
		return "False", nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.Map, reflect.Struct, reflect.Func, reflect.Chan:
		if s, ok := v.(fmt.Stringer); ok {
			return s.String(), nil
		}
		return "", fmt.Errorf("unsupported parameter type %T", v)
	}

	s, err := rowConv.ConvertType(rv.Interface(), stringType)
	if err != nil {
		return "", err
	}
	return s.(string), nil
}

func withoutReserved(params Params, reserved ...string) Params {
	merged := make(Params, len(params)+len(reserved))
	for k, v := range params {
		skip := false
		for _, r := range reserved {
			if strings.EqualFold(k, r) {
				skip = true
				break
			}
		}
		if !skip {
			merged[k] = v
		}
	}
	return merged
}
