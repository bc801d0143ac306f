package unirio

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/unirio/unirio_sdk_go/internal/unirioapi"
)

// Response headers carrying outcome details.
const (
	HeaderID                = "id"
	HeaderLocation          = "Location"
	HeaderAffected          = "Affected"
	HeaderInvalidParameters = "InvalidParameters"
	HeaderInvalidEncoding   = "InvalidEncoding"
)

// commonError maps the statuses shared by every operation.
func commonError(op string, resp *Response) error {
	switch resp.StatusCode {
	case http.StatusForbidden:
		return responseError(ErrForbiddenEndpoint, op, "", resp)
	case http.StatusUnauthorized:
		return responseError(ErrInvalidCredential, op, "", resp)
	case http.StatusInternalServerError:
		return responseError(ErrUnhandledServer, op, "", resp)
	}
	return nil
}

func unrecognized(op string, resp *Response, msg string) error {
	e := responseError(ErrUnrecognizedResponse, op, "", resp)
	e.Message = msg
	return e
}

// InterpretGet maps a read response to a Result or an error.
func InterpretGet(resp *Response) (*Result, error) {
	const op = http.MethodGet
	if resp == nil {
		return nil, &APIError{Kind: ErrUnrecognizedResponse, Op: op, Message: "nil response"}
	}
	if err := commonError(op, resp); err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		env, err := unirioapi.DecodeEnvelope(resp.Body)
		if err != nil {
			e := responseError(ErrNoContent, op, "", resp)
			e.Message = err.Error()
			return nil, e
		}
		return resultFromEnvelope(env), nil
	case http.StatusNotFound:
		return nil, responseError(ErrInvalidEndpoint, op, "", resp)
	case http.StatusBadRequest:
		if v, ok := resp.HeaderValue(HeaderInvalidParameters); ok {
			e := responseError(ErrInvalidParameters, op, "", resp)
			e.Fields = unirioapi.DecodeFieldList(v)
			return nil, e
		}
		if v, ok := resp.HeaderValue(HeaderInvalidEncoding); ok {
			e := responseError(ErrInvalidEncoding, op, "", resp)
			e.Fields = unirioapi.DecodeFieldList(v)
			return nil, e
		}
		return nil, unrecognized(op, resp, "bad request without a reason header")
	default:
		return nil, unrecognized(op, resp, "unexpected status")
	}
}

// InterpretPost maps an insert response to Created or an error.
func InterpretPost(resp *Response) (*Created, error) {
	const op = http.MethodPost
	if resp == nil {
		return nil, &APIError{Kind: ErrUnrecognizedResponse, Op: op, Message: "nil response"}
	}
	if err := commonError(op, resp); err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		id, ok := resp.HeaderValue(HeaderID)
		if !ok {
			return nil, unrecognized(op, resp, "created without an id header")
		}
		location, _ := resp.HeaderValue(HeaderLocation)
		return &Created{InsertID: id, Location: location}, nil
	case http.StatusNotFound:
		// The server reports a refused insert as 404.
		return nil, responseError(ErrContentNotCreated, op, "", resp)
	case http.StatusBadRequest:
		e := responseError(ErrInvalidParameters, op, "", resp)
		if v, ok := resp.HeaderValue(HeaderInvalidParameters); ok {
			e.Fields = unirioapi.DecodeFieldList(v)
		}
		return nil, e
	default:
		return nil, unrecognized(op, resp, "unexpected status")
	}
}

// InterpretPut maps an update response to Updated or an error.
func InterpretPut(resp *Response) (*Updated, error) {
	const op = http.MethodPut
	if resp == nil {
		return nil, &APIError{Kind: ErrUnrecognizedResponse, Op: op, Message: "nil response"}
	}
	if err := commonError(op, resp); err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		v, ok := resp.HeaderValue(HeaderAffected)
		if !ok {
			return &Updated{}, nil
		}
		n, err := parseAffected(v)
		if err != nil {
			return nil, unrecognized(op, resp, "invalid Affected header: "+err.Error())
		}
		return &Updated{AffectedRows: &n}, nil
	case http.StatusNotFound:
		return nil, responseError(ErrContentNotFound, op, "", resp)
	case http.StatusUnprocessableEntity:
		e := responseError(ErrInvalidParameters, op, "", resp)
		if v, ok := resp.HeaderValue(HeaderInvalidParameters); ok {
			e.Fields = unirioapi.DecodeFieldList(v)
		}
		return nil, e
	case http.StatusNoContent:
		return nil, responseError(ErrNothingToUpdate, op, "", resp)
	case http.StatusBadRequest:
		return nil, responseError(ErrMissingPrimaryKey, op, "", resp)
	default:
		return nil, unrecognized(op, resp, "unexpected status")
	}
}

// InterpretDelete maps a delete response to Deleted or an error.
func InterpretDelete(resp *Response) (*Deleted, error) {
	const op = http.MethodDelete
	if resp == nil {
		return nil, &APIError{Kind: ErrUnrecognizedResponse, Op: op, Message: "nil response"}
	}
	if err := commonError(op, resp); err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		v, ok := resp.HeaderValue(HeaderAffected)
		if !ok {
			return nil, unrecognized(op, resp, "missing Affected header")
		}
		n, err := parseAffected(v)
		if err != nil {
			return nil, unrecognized(op, resp, "invalid Affected header: "+err.Error())
		}
		return &Deleted{AffectedRows: n}, nil
	case http.StatusNotFound:
		return nil, responseError(ErrContentNotFound, op, "", resp)
	case http.StatusUnprocessableEntity:
		e := responseError(ErrInvalidParameters, op, "", resp)
		if v, ok := resp.HeaderValue(HeaderInvalidParameters); ok {
			e.Fields = unirioapi.DecodeFieldList(v)
		}
		return nil, e
	case http.StatusNoContent:
		return nil, responseError(ErrNothingToUpdate, op, "", resp)
	case http.StatusBadRequest:
		return nil, responseError(ErrMissingPrimaryKey, op, "", resp)
	default:
		return nil, unrecognized(op, resp, "unexpected status")
	}
}

// InterpretProcedure maps a stored procedure response to its result or an
// error.
func InterpretProcedure(resp *Response) (*ProcedureResult, error) {
	const op = "PROCEDURE"
	if resp == nil {
		return nil, &APIError{Kind: ErrUnrecognizedResponse, Op: op, Message: "nil response"}
	}
	if err := commonError(op, resp); err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		content, err := resp.DecodeJSON()
		if err != nil {
			return nil, unrecognized(op, resp, "undecodable procedure result: "+err.Error())
		}
		raw := bytes.TrimSpace(resp.Body)
		return &ProcedureResult{Raw: append(json.RawMessage(nil), raw...), Content: content}, nil
	case http.StatusBadRequest:
		e := responseError(ErrMissingRequiredFields, op, "", resp)
		e.Message = resp.Text()
		return nil, e
	default:
		return nil, unrecognized(op, resp, "unknown procedure error")
	}
}

func parseAffected(v string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(v))
}
