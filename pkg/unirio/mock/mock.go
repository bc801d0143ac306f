// Package mock implements the UNIRIO tabular API in memory. Its Handler speaks
// the same wire protocol as the real service (status codes, headers and JSON
// envelopes), so a unirio.Client pointed at an httptest server exercises the
// full request path without network access to the university systems.
package mock

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/unirio/unirio_sdk_go/internal/devseed"
)

// ProcedureFunc computes the result of a stored procedure from its rows.
type ProcedureFunc func(data []map[string]any) (any, error)

// Table describes a table served by the mock.
type Table struct {
	Name       string
	PrimaryKey []string
	Required   []string
	// Columns lists the known columns. When empty they are inferred from the
	// primary key, the required fields and the seeded rows.
	Columns []string
	Rows    []map[string]any
}

// Procedure describes a stored procedure served by the mock. A nil Handler
// echoes the submitted rows.
type Procedure struct {
	Name     string
	Required []string
	Handler  ProcedureFunc
}

type table struct {
	name     string
	pk       []string
	required []string
	// columns maps the lower-cased column name to its declared spelling.
	columns map[string]string
	rows    []map[string]any
	nextID  int64
}

type grant struct {
	all       bool
	endpoints map[string]bool
}

// Service is an in-memory implementation of the API.
type Service struct {
	mu         sync.RWMutex
	keys       map[string]*grant
	tables     map[string]*table
	procedures map[string]*Procedure
	mutations  []Mutation
	now        func() time.Time
}

// Option configures the mock instance.
type Option func(*Service)

// WithClock overrides the clock (useful in tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New creates an empty service.
func New(opts ...Option) *Service {
	s := &Service{
		keys:       make(map[string]*grant),
		tables:     make(map[string]*table),
		procedures: make(map[string]*Procedure),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddKey registers an API key. Without endpoints the key may access every
// table and procedure; otherwise only the named ones (procedures are named
// "procedure/<name>").
func (s *Service) AddKey(key string, endpoints ...string) {
	g := &grant{all: len(endpoints) == 0, endpoints: make(map[string]bool, len(endpoints))}
	for _, e := range endpoints {
		g.endpoints[strings.ToUpper(e)] = true
	}
	s.mu.Lock()
	s.keys[key] = g
	s.mu.Unlock()
}

// AddTable registers or replaces a table.
func (s *Service) AddTable(t Table) error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return fmt.Errorf("mock unirio: table name is required")
	}
	tbl := &table{
		name:     name,
		pk:       append([]string(nil), t.PrimaryKey...),
		required: append([]string(nil), t.Required...),
		columns:  make(map[string]string),
		nextID:   1,
	}
	for _, group := range [][]string{t.Columns, t.PrimaryKey, t.Required} {
		for _, c := range group {
			tbl.addColumn(c)
		}
	}
	inferColumns := len(t.Columns) == 0
	for i, row := range t.Rows {
		stored := make(map[string]any, len(row))
		for k, v := range row {
			col, ok := tbl.column(k)
			if !ok {
				if !inferColumns {
					return fmt.Errorf("mock unirio: table %s row %d: unknown column %q", name, i, k)
				}
				col = tbl.addColumn(k)
			}
			stored[col] = v
		}
		tbl.rows = append(tbl.rows, stored)
		tbl.observeID(stored)
	}

	s.mu.Lock()
	s.tables[strings.ToUpper(name)] = tbl
	s.mu.Unlock()
	return nil
}

// AddProcedure registers or replaces a stored procedure.
func (s *Service) AddProcedure(p Procedure) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("mock unirio: procedure name is required")
	}
	cp := p
	cp.Required = append([]string(nil), p.Required...)
	s.mu.Lock()
	s.procedures[strings.ToUpper(p.Name)] = &cp
	s.mu.Unlock()
	return nil
}

// Seed loads keys, tables and procedures decoded by devseed.
func (s *Service) Seed(seed *devseed.Seed) error {
	if seed == nil {
		return nil
	}
	for _, k := range seed.Keys {
		s.AddKey(k.Key, k.Endpoints...)
	}
	for _, t := range seed.Tables {
		if err := s.AddTable(Table{
			Name:       t.Name,
			PrimaryKey: t.PrimaryKey,
			Required:   t.Required,
			Columns:    t.Columns,
			Rows:       t.Rows,
		}); err != nil {
			return err
		}
	}
	for _, p := range seed.Procedures {
		result := p.Result
		var handler ProcedureFunc
		if result != nil {
			handler = func([]map[string]any) (any, error) { return result, nil }
		}
		if err := s.AddProcedure(Procedure{Name: p.Name, Required: p.Required, Handler: handler}); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns a snapshot of the rows stored in a table, or nil when the
// table does not exist.
func (s *Service) Rows(name string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tbl, ok := s.tables[strings.ToUpper(name)]
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(tbl.rows))
	for _, row := range tbl.rows {
		out = append(out, copyRow(row))
	}
	return out
}

// Tables returns the names of the registered tables in sorted order.
func (s *Service) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for _, t := range s.tables {
		names = append(names, t.name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) authorize(key, endpoint string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.keys[key]
	if !ok || key == "" {
		return 401
	}
	if !g.all && !g.endpoints[strings.ToUpper(endpoint)] {
		return 403
	}
	return 0
}

func (t *table) addColumn(name string) string {
	lk := strings.ToLower(name)
	if existing, ok := t.columns[lk]; ok {
		return existing
	}
	t.columns[lk] = name
	return name
}

func (t *table) column(name string) (string, bool) {
	c, ok := t.columns[strings.ToLower(name)]
	return c, ok
}

// observeID keeps nextID above every integer primary key seen.
func (t *table) observeID(row map[string]any) {
	if len(t.pk) != 1 {
		return
	}
	col, _ := t.column(t.pk[0])
	if n, ok := toInt64(row[col]); ok && n >= t.nextID {
		t.nextID = n + 1
	}
}

func (t *table) matchesPK(row map[string]any, values map[string]string) bool {
	for _, pk := range t.pk {
		col, _ := t.column(pk)
		if valueString(row[col]) != values[col] {
			return false
		}
	}
	return true
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func valueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// parseScalar stores numeric form values as numbers so reads return them
// unquoted.
func parseScalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "eEnN") {
		return f
	}
	return s
}
