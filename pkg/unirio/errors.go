package unirio

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrForbiddenEndpoint means the API key lacks permission for the path or procedure.
	ErrForbiddenEndpoint = errors.New("unirio: forbidden endpoint")
	// ErrInvalidCredential means the API key was rejected.
	ErrInvalidCredential = errors.New("unirio: invalid API key")
	// ErrInvalidEndpoint means the path does not exist on the server.
	ErrInvalidEndpoint = errors.New("unirio: invalid endpoint")
	// ErrNoContent means a read succeeded but returned nothing decodable.
	ErrNoContent = errors.New("unirio: no content")
	// ErrInvalidParameters means the server rejected one or more parameters.
	ErrInvalidParameters = errors.New("unirio: invalid parameters")
	// ErrInvalidEncoding means the server could not decode one or more parameters.
	ErrInvalidEncoding = errors.New("unirio: invalid encoding")
	// ErrContentNotCreated means an insert was refused.
	ErrContentNotCreated = errors.New("unirio: content not created")
	// ErrContentNotFound means an update or delete targeted a missing resource.
	ErrContentNotFound = errors.New("unirio: content not found")
	// ErrNothingToUpdate means an update or delete matched no row.
	ErrNothingToUpdate = errors.New("unirio: nothing to update")
	// ErrMissingPrimaryKey means an update or delete did not identify a row.
	ErrMissingPrimaryKey = errors.New("unirio: missing primary key")
	// ErrMissingRequiredParameter is raised locally, before any request, when a
	// mutating call lacks the operator field.
	ErrMissingRequiredParameter = errors.New("unirio: missing required parameter")
	// ErrMissingRequiredFields means a procedure was called without fields it requires.
	ErrMissingRequiredFields = errors.New("unirio: missing required fields")
	// ErrUnhandledServer means the server failed with an internal error.
	ErrUnhandledServer = errors.New("unirio: unhandled server error")
	// ErrUnhandledAPI means the client was used in a way the API cannot express.
	ErrUnhandledAPI = errors.New("unirio: unhandled API usage")
	// ErrUnrecognizedResponse means the server answered with a status or shape
	// the client has no mapping for.
	ErrUnrecognizedResponse = errors.New("unirio: unrecognized server response")
	// ErrNullParameter means a filter parameter was nil or empty.
	ErrNullParameter = errors.New("unirio: null parameter")
	// ErrSerialization means procedure data could not be encoded as JSON.
	ErrSerialization = errors.New("unirio: data is not JSON serializable")
	// ErrAsyncProcedureUnsupported is returned for asynchronous procedure calls.
	ErrAsyncProcedureUnsupported = errors.New("unirio: asynchronous procedure calls are not supported")
)

// APIError is the error returned for every failure interpreted from a server
// response, and for local precondition failures. It unwraps to one of the
// sentinel errors above.
type APIError struct {
	Kind       error
	Op         string
	Path       string
	StatusCode int
	Header     http.Header
	Body       []byte
	Fields     []string
	Param      string
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("unirio: error")
	}
	if e.Op != "" || e.Path != "" {
		fmt.Fprintf(&b, " (%s %s)", e.Op, e.Path)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status=%d", e.StatusCode)
	}
	if e.Param != "" {
		fmt.Fprintf(&b, ": param=%s", e.Param)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, ": fields=%s", strings.Join(e.Fields, ","))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

// Text returns the raw response body.
func (e *APIError) Text() string {
	if e == nil {
		return ""
	}
	return string(e.Body)
}

// NullParameterError names the parameter whose value was nil or empty.
type NullParameterError struct {
	Key string
}

func (e *NullParameterError) Error() string {
	return fmt.Sprintf("%s: %q", ErrNullParameter.Error(), e.Key)
}

func (e *NullParameterError) Unwrap() error {
	return ErrNullParameter
}

// SerializationError locates the procedure data value that cannot be sent.
type SerializationError struct {
	Row   int
	Field string
	Type  string
}

func (e *SerializationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: row %d has type %s", ErrSerialization.Error(), e.Row, e.Type)
	}
	return fmt.Sprintf("%s: row %d field %q has type %s", ErrSerialization.Error(), e.Row, e.Field, e.Type)
}

func (e *SerializationError) Unwrap() error {
	return ErrSerialization
}

func responseError(kind error, op, path string, resp *Response) *APIError {
	e := &APIError{Kind: kind, Op: op, Path: path}
	if resp != nil {
		e.StatusCode = resp.StatusCode
		e.Header = resp.Header
		e.Body = resp.Body
	}
	return e
}
