package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Response is a fully buffered HTTP response. The body has already been read
// and the connection released.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("status=%d body=%s", r.StatusCode, string(r.Body))
}

// Text returns the body as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// HeaderValue returns the first value of the named header, and whether it was
// present at all.
func (r *Response) HeaderValue(name string) (string, bool) {
	if r == nil || r.Header == nil {
		return "", false
	}
	values, ok := r.Header[http.CanonicalHeaderKey(name)]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// DecodeJSON parses the body into a generic JSON payload. Numbers are kept as
// json.Number so large identifiers survive unchanged.
func (r *Response) DecodeJSON() (any, error) {
	if r == nil {
		return nil, errors.New("httpx: response is nil")
	}
	body := bytes.TrimSpace(r.Body)
	if len(body) == 0 {
		return nil, errors.New("httpx: empty response body")
	}
	var payload any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("httpx: decode JSON body: %w", err)
	}
	if dec.More() {
		return nil, errors.New("httpx: trailing data after JSON body")
	}
	return payload, nil
}
