package unirio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unirio/unirio_sdk_go/internal/httpx"
	"github.com/unirio/unirio_sdk_go/internal/unirioapi"
)

// Known API deployments.
const (
	ServerProduction            = "https://sistemas.unirio.br/api"
	ServerDevelopment           = "https://teste.sistemas.unirio.br/api"
	ServerLocal                 = "http://localhost:8000/api"
	ServerProductionDevelopment = "https://sistemas.unirio.br/api_teste"
)

// Request and Response are the transport-level messages exchanged with the
// server.
type (
	Request  = httpx.Request
	Response = httpx.Response
)

// Transport performs a single round trip. Implementations report only
// transport failures as errors; every HTTP status is returned as a Response.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Result is the decoded content of a successful read.
type Result struct {
	Content []Row
	LMin    int
	LMax    int
}

// Fields returns the field names of the first row, or nil when the result is
// empty.
func (r *Result) Fields() []string {
	if r == nil || len(r.Content) == 0 {
		return nil
	}
	return r.Content[0].Keys()
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Content)
}

// At returns the i-th row.
func (r *Result) At(i int) Row {
	return r.Content[i]
}

// First returns the first row, if any.
func (r *Result) First() (Row, bool) {
	if r.Len() == 0 {
		return Row{}, false
	}
	return r.Content[0], true
}

func resultFromEnvelope(env *unirioapi.Envelope) *Result {
	rows := make([]Row, 0, len(env.Content))
	for _, fields := range env.Content {
		rows = append(rows, rowFromFields(fields))
	}
	return &Result{Content: rows, LMin: env.LMin, LMax: env.LMax}
}

// Created describes a row inserted by Post.
type Created struct {
	// InsertID is the id header exactly as sent by the server.
	InsertID string
	Location string
}

// Updated describes the outcome of Put. AffectedRows is nil when the server
// did not report a count.
type Updated struct {
	AffectedRows *int
}

// Deleted describes the outcome of Delete.
type Deleted struct {
	AffectedRows int
}

// ProcedureResult holds the JSON body returned by a stored procedure.
type ProcedureResult struct {
	Raw     json.RawMessage
	Content any
}

// Rows interprets the content as a list of objects.
func (p *ProcedureResult) Rows() ([]Row, error) {
	if p == nil {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(p.Raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("unirio: procedure content is not a list: %w", err)
	}
	rows := make([]Row, 0, len(items))
	for i, item := range items {
		fields, err := unirioapi.DecodeObject(item)
		if err != nil {
			return nil, fmt.Errorf("unirio: procedure content[%d]: %w", i, err)
		}
		rows = append(rows, rowFromFields(fields))
	}
	return rows, nil
}

// GetOptions tunes a read.
type GetOptions struct {
	// Fields restricts the returned columns; empty means all.
	Fields []string
	// CacheTime enables caching of successful results when a cache is set.
	CacheTime time.Duration
	// BypassNoContent turns ErrNoContent into an empty result.
	BypassNoContent bool
}

// ProcedureOptions tunes a stored procedure call.
type ProcedureOptions struct {
	Fields []string
	// Async requests background execution. The server has no way to report
	// the outcome yet, so calls with Async set fail with
	// ErrAsyncProcedureUnsupported.
	Async       bool
	NotifyGroup string
}

// RequestRecord is an entry of the debug log kept for mutating calls.
type RequestRecord struct {
	Method string
	Path   string
	Params Params
	At     time.Time
}
