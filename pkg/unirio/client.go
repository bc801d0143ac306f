package unirio

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/unirio/unirio_sdk_go/internal/httpx"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserAgent = "User-Agent"
	procedurePrefix = "procedure/"
	opProcedure     = "PROCEDURE"
)

// UserAgent is sent with every request made by the default transport.
const UserAgent = "unirio_sdk_go"

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport, e.g. with a stub in tests.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithHTTPClient sets the http.Client used by the default transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpOpts = append(c.httpOpts, httpx.WithHTTPClient(h))
	}
}

// WithTimeout bounds each round trip of the default transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpOpts = append(c.httpOpts, httpx.WithTimeout(d))
	}
}

// WithCertVerification toggles TLS certificate verification of the default
// transport.
func WithCertVerification(verify bool) Option {
	return func(c *Client) {
		c.httpOpts = append(c.httpOpts, httpx.WithCertVerification(verify))
	}
}

// WithCache enables caching for reads that set GetOptions.CacheTime.
func WithCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithDebug keeps the last read URL and a log of mutating calls, and logs
// each round trip at debug level.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithOperatorField changes the parameter required by Post, Put and Delete.
func WithOperatorField(name string) Option {
	return func(c *Client) {
		if strings.TrimSpace(name) != "" {
			c.operatorField = name
		}
	}
}

// WithClock overrides the time source used for request records.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client issues requests against the tabular API. It is safe for concurrent
// use.
type Client struct {
	server        string
	transport     Transport
	httpOpts      []httpx.Option
	cache         Cache
	logger        zerolog.Logger
	debug         bool
	operatorField string
	now           func() time.Time

	mu          sync.Mutex
	apiKey      string
	lastRequest string
	requests    []RequestRecord
}

// New constructs a Client for server authenticating with apiKey.
func New(server, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		server:        server,
		apiKey:        apiKey,
		logger:        zerolog.Nop(),
		operatorField: DefaultOperatorField,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		defaults := httpx.WithHeaders(http.Header{headerUserAgent: {UserAgent}})
		hc, err := httpx.NewClient(server, append([]httpx.Option{defaults}, c.httpOpts...)...)
		if err != nil {
			return nil, errors.Wrap(err, "unirio: init HTTP transport")
		}
		c.transport = hc
	}
	return c, nil
}

// Server returns the base URL the client was built with.
func (c *Client) Server() string {
	return c.server
}

// SetAPIKey replaces the key sent with subsequent calls.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

// APIKey returns the key currently in use.
func (c *Client) APIKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiKey
}

// LastRequest returns the URL of the last read when debug is enabled.
func (c *Client) LastRequest() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRequest
}

// Requests returns the mutating calls recorded while debug is enabled.
func (c *Client) Requests() []RequestRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RequestRecord(nil), c.requests...)
}

// ContentURI returns the address of a row created by Post, authenticated with
// the current key.
func (c *Client) ContentURI(created *Created) string {
	if created == nil {
		return ""
	}
	return created.Location + "&" + ParamAPIKey + "=" + c.APIKey()
}

// Get reads rows from path filtered by params.
func (c *Client) Get(ctx context.Context, path string, params Params, opts *GetOptions) (*Result, error) {
	if opts == nil {
		opts = &GetOptions{}
	}
	query, err := BuildQuery(params, c.APIKey())
	if err != nil {
		return nil, err
	}
	for k, v := range BuildFieldProjection(opts.Fields) {
		query[k] = v
	}

	var res *Result
	if opts.CacheTime > 0 && c.cache != nil {
		res, err = c.cachedGet(ctx, path, query, opts.CacheTime)
	} else {
		res, err = c.get(ctx, path, query)
	}
	if err != nil {
		if opts.BypassNoContent && errors.Is(err, ErrNoContent) {
			return &Result{Content: []Row{}}, nil
		}
		return nil, err
	}
	return res, nil
}

func (c *Client) cachedGet(ctx context.Context, path string, query url.Values, ttl time.Duration) (*Result, error) {
	key, err := CacheKey(path, query)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("path", path).Str("cache_key", key).Msg("cached read")
	v, err := c.cache.Fetch(key, func() (any, error) {
		return c.get(ctx, path, query)
	}, ttl)
	if err != nil {
		return nil, err
	}
	res, ok := v.(*Result)
	if !ok || res == nil {
		return nil, errors.Errorf("unirio: cache returned %T for %s", v, key)
	}
	return res.clone(), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*Result, error) {
	resp, err := c.roundTrip(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return nil, err
	}
	if c.debug {
		c.mu.Lock()
		c.lastRequest = resp.URL
		c.mu.Unlock()
	}
	res, err := InterpretGet(resp)
	return res, withPath(err, path)
}

// GetSingleResult reads at most one row. When nothing matches it returns
// ErrNoContent, unless opts.BypassNoContent is set: then both the row and the
// error are nil, so callers must check the row before using it.
func (c *Client) GetSingleResult(ctx context.Context, path string, params Params, opts *GetOptions) (*Row, error) {
	single := make(Params, len(params)+2)
	for k, v := range params {
		if strings.EqualFold(k, ParamLMin) || strings.EqualFold(k, ParamLMax) {
			continue
		}
		single[k] = v
	}
	single[ParamLMin] = 0
	single[ParamLMax] = 1

	var getOpts GetOptions
	if opts != nil {
		getOpts = *opts
	}
	bypass := getOpts.BypassNoContent
	getOpts.BypassNoContent = false

	res, err := c.Get(ctx, path, single, &getOpts)
	if err != nil {
		if bypass && errors.Is(err, ErrNoContent) {
			return nil, nil
		}
		return nil, err
	}
	row, ok := res.First()
	if !ok {
		if bypass {
			return nil, nil
		}
		return nil, &APIError{Kind: ErrNoContent, Op: http.MethodGet, Path: path, Message: "empty result"}
	}
	return &row, nil
}

// Post inserts a row built from params.
func (c *Client) Post(ctx context.Context, path string, params Params) (*Created, error) {
	if err := c.requireOperator(http.MethodPost, path, params); err != nil {
		return nil, err
	}
	form, err := BuildMutationPayload(params, c.APIKey())
	if err != nil {
		return nil, err
	}
	c.record(http.MethodPost, path, params)
	resp, err := c.roundTrip(ctx, &Request{Method: http.MethodPost, Path: path, Form: form})
	if err != nil {
		return nil, err
	}
	created, err := InterpretPost(resp)
	return created, withPath(err, path)
}

// Put updates the row identified by the primary key in params.
func (c *Client) Put(ctx context.Context, path string, params Params) (*Updated, error) {
	if err := c.requireOperator(http.MethodPut, path, params); err != nil {
		return nil, err
	}
	form, err := BuildMutationPayload(params, c.APIKey())
	if err != nil {
		return nil, err
	}
	c.record(http.MethodPut, path, params)
	resp, err := c.roundTrip(ctx, &Request{Method: http.MethodPut, Path: path, Form: form})
	if err != nil {
		return nil, err
	}
	updated, err := InterpretPut(resp)
	return updated, withPath(err, path)
}

// Delete removes the row identified by the primary key in params.
func (c *Client) Delete(ctx context.Context, path string, params Params) (*Deleted, error) {
	if err := c.requireOperator(http.MethodDelete, path, params); err != nil {
		return nil, err
	}
	form, err := BuildQuery(params, c.APIKey())
	if err != nil {
		return nil, err
	}
	c.record(http.MethodDelete, path, params)
	resp, err := c.roundTrip(ctx, &Request{Method: http.MethodDelete, Path: path, Form: form})
	if err != nil {
		return nil, err
	}
	deleted, err := InterpretDelete(resp)
	return deleted, withPath(err, path)
}

type procedureBody struct {
	Data   []any    `json:"data"`
	Async  bool     `json:"async"`
	Fields []string `json:"fields"`
	APIKey string   `json:"API_KEY"`
}

// CallProcedure runs the stored procedure name over data, which must be a
// slice or array of rows (Row, Params or string-keyed maps).
func (c *Client) CallProcedure(ctx context.Context, name string, data any, opts *ProcedureOptions) (*ProcedureResult, error) {
	path := procedurePrefix + name
	if opts == nil {
		opts = &ProcedureOptions{}
	}
	if opts.Async {
		return nil, &APIError{Kind: ErrAsyncProcedureUnsupported, Op: opProcedure, Path: path, Param: opts.NotifyGroup}
	}
	rows, err := procedureRows(path, data)
	if err != nil {
		return nil, err
	}

	fields := opts.Fields
	if fields == nil {
		fields = []string{}
	}
	body, err := json.Marshal(procedureBody{Data: rows, Async: opts.Async, Fields: fields, APIKey: c.APIKey()})
	if err != nil {
		return nil, errors.Wrap(err, "unirio: encode procedure data")
	}
	c.record(opProcedure, path, nil)
	resp, err := c.roundTrip(ctx, &Request{Method: http.MethodPost, Path: path, JSON: body})
	if err != nil {
		return nil, err
	}
	result, err := InterpretProcedure(resp)
	return result, withPath(err, path)
}

func (c *Client) requireOperator(op, path string, params Params) error {
	if params.Has(c.operatorField) {
		return nil
	}
	return &APIError{
		Kind:    ErrMissingRequiredParameter,
		Op:      op,
		Path:    path,
		Param:   c.operatorField,
		Message: "operator field is required",
	}
}

func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID := uuid.NewString()
	req.Header = http.Header{headerRequestID: {requestID}}

	start := time.Now()
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		c.logger.Debug().Err(err).Str("request_id", requestID).Str("method", req.Method).Str("path", req.Path).Msg("request failed")
		return nil, errors.Wrapf(err, "unirio: %s %s", req.Method, req.Path)
	}
	if c.debug {
		c.logger.Debug().
			Str("request_id", requestID).
			Str("method", req.Method).
			Str("path", req.Path).
			Str("url", resp.URL).
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(start)).
			Msg("request completed")
	}
	return resp, nil
}

func (c *Client) record(method, path string, params Params) {
	if !c.debug {
		return
	}
	rec := RequestRecord{Method: method, Path: path, Params: withoutReserved(params, ParamAPIKey), At: c.now()}
	c.mu.Lock()
	c.requests = append(c.requests, rec)
	c.mu.Unlock()
}

func withPath(err error, path string) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Path == "" {
		apiErr.Path = path
	}
	return err
}

// clone copies every row so callers cannot reach the cached entry.
func (r *Result) clone() *Result {
	content := make([]Row, len(r.Content))
	for i, row := range r.Content {
		content[i] = row.clone()
	}
	return &Result{Content: content, LMin: r.LMin, LMax: r.LMax}
}

func procedureRows(path string, data any) ([]any, error) {
	rv := reflect.ValueOf(data)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, &APIError{Kind: ErrUnhandledAPI, Op: opProcedure, Path: path, Message: "procedure data must be a list of rows"}
	}
	rows := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()
		var m map[string]any
		switch x := item.(type) {
		case Row:
			m = x.Map()
		case *Row:
			if x != nil {
				m = x.Map()
			}
		case Params:
			m = map[string]any(x)
		case map[string]any:
			m = x
		default:
			iv := reflect.ValueOf(item)
			if iv.Kind() == reflect.Map && iv.Type().Key().Kind() == reflect.String {
				m = make(map[string]any, iv.Len())
				iter := iv.MapRange()
				for iter.Next() {
					m[iter.Key().String()] = iter.Value().Interface()
				}
			}
		}
		if m == nil {
			return nil, &APIError{Kind: ErrUnhandledAPI, Op: opProcedure, Path: path, Message: "procedure data must be a list of rows"}
		}
		for k, v := range m {
			if !jsonValue(v) {
				return nil, &SerializationError{Row: i, Field: k, Type: reflect.TypeOf(v).String()}
			}
		}
		rows = append(rows, m)
	}
	return rows, nil
}

// jsonValue reports whether v encodes as plain JSON: null, booleans, numbers,
// strings, sequences and string-keyed maps of those.
func jsonValue(v any) bool {
	switch x := v.(type) {
	case nil, bool, string, json.Number:
		return true
	case Row:
		for _, k := range x.Keys() {
			if !jsonValue(x.Value(k)) {
				return false
			}
		}
		return true
	case float32:
		return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0)
	case float64:
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if !jsonValue(rv.Index(i).Interface()) {
				return false
			}
		}
		return true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return false
		}
		iter := rv.MapRange()
		for iter.Next() {
			if !jsonValue(iter.Value().Interface()) {
				return false
			}
		}
		return true
	case reflect.Pointer:
		if rv.IsNil() {
			return true
		}
		return jsonValue(rv.Elem().Interface())
	}
	return false
}
