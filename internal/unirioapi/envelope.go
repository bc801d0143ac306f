package unirioapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedEnvelope is returned when a body is not a valid result envelope.
var ErrMalformedEnvelope = errors.New("unirioapi: malformed result envelope")

// Field is a single key/value pair of a decoded JSON object, kept in the
// order it appeared on the wire.
type Field struct {
	Key   string
	Value any
}

// Envelope is the success payload of a read:
//
//	{"content": [{...}, ...], "subset": [lmin, lmax]}
type Envelope struct {
	Content [][]Field
	LMin    int
	LMax    int
}

// DecodeEnvelope parses a read response body. Any deviation from the expected
// shape (empty body, invalid JSON, missing content or subset, non-object rows)
// yields ErrMalformedEnvelope.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedEnvelope)
	}

	var raw struct {
		Content []json.RawMessage `json:"content"`
		Subset  []json.Number     `json:"subset"`
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if raw.Content == nil {
		return nil, fmt.Errorf("%w: missing content", ErrMalformedEnvelope)
	}
	if len(raw.Subset) != 2 {
		return nil, fmt.Errorf("%w: subset must hold two bounds", ErrMalformedEnvelope)
	}
	lmin, err := raw.Subset[0].Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: subset lower bound: %v", ErrMalformedEnvelope, err)
	}
	lmax, err := raw.Subset[1].Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: subset upper bound: %v", ErrMalformedEnvelope, err)
	}

	env := &Envelope{
		Content: make([][]Field, 0, len(raw.Content)),
		LMin:    int(lmin),
		LMax:    int(lmax),
	}
	for i, item := range raw.Content {
		fields, err := DecodeObject(item)
		if err != nil {
			return nil, fmt.Errorf("%w: content[%d]: %v", ErrMalformedEnvelope, i, err)
		}
		env.Content = append(env.Content, fields)
	}
	return env, nil
}

// DecodeObject decodes a JSON object preserving key order. Numbers are kept as
// json.Number so integer columns survive without float rounding.
func DecodeObject(data []byte) ([]Field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("expected JSON object")
	}

	var fields []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after object")
	}
	return fields, nil
}

// DecodeFieldList decodes the value of an InvalidParameters/InvalidEncoding
// header. The server sends a JSON array of field names; a bare value that is
// not JSON is returned as a single-element list.
func DecodeFieldList(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if !gjson.Valid(header) {
		return []string{header}
	}
	parsed := gjson.Parse(header)
	if !parsed.IsArray() {
		return []string{parsed.String()}
	}
	items := parsed.Array()
	fields := make([]string, 0, len(items))
	for _, item := range items {
		fields = append(fields, item.String())
	}
	return fields
}
