package mock

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/unirio/unirio_sdk_go/pkg/unirio"
)

// Mutation records a write accepted by the service.
type Mutation struct {
	Method   string
	Table    string
	Operator string
	At       time.Time
}

var reservedParams = map[string]bool{
	unirio.ParamAPIKey:  true,
	unirio.ParamFormat:  true,
	unirio.ParamFields:  true,
	unirio.ParamLMin:    true,
	unirio.ParamLMax:    true,
	unirio.ParamOrderBy: true,
	unirio.ParamSort:    true,
}

// Handler returns the HTTP handler serving the API. Paths are relative to the
// API root, e.g. /PROJETOS and /procedure/matricula.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Post("/procedure/{name}", s.handleProcedure)
	r.Get("/{table}", s.handleGet)
	r.Post("/{table}", s.handlePost)
	r.Put("/{table}", s.handlePut)
	r.Delete("/{table}", s.handleDelete)
	return r
}

// Mutations returns the writes accepted so far, oldest first.
func (s *Service) Mutations() []Mutation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Mutation(nil), s.mutations...)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	q := r.URL.Query()
	if status := s.authorize(q.Get(unirio.ParamAPIKey), name); status != 0 {
		w.WriteHeader(status)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	tbl, ok := s.tables[strings.ToUpper(name)]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var invalid, badEncoding []string
	type filter struct {
		col    string
		values []string
	}
	var filters []filter
	for key, values := range q {
		if reservedParams[strings.ToUpper(key)] || len(values) == 0 {
			continue
		}
		colName, set := key, false
		if strings.HasSuffix(strings.ToUpper(key), "_SET") {
			colName, set = key[:len(key)-len("_SET")], true
		}
		col, ok := tbl.column(colName)
		if !ok {
			invalid = append(invalid, key)
			continue
		}
		vals := []string{values[0]}
		if set {
			vals = strings.Split(values[0], ",")
		}
		filters = append(filters, filter{col: col, values: vals})
	}

	var fields []string
	if raw := q.Get(unirio.ParamFields); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			col, ok := tbl.column(strings.TrimSpace(f))
			if !ok {
				invalid = append(invalid, strings.TrimSpace(f))
				continue
			}
			fields = append(fields, col)
		}
	}

	var orderBy string
	if raw := q.Get(unirio.ParamOrderBy); raw != "" {
		col, ok := tbl.column(raw)
		if !ok {
			invalid = append(invalid, unirio.ParamOrderBy)
		}
		orderBy = col
	}
	desc := false
	switch strings.ToUpper(q.Get(unirio.ParamSort)) {
	case "", "ASC":
	case "DESC":
		desc = true
	default:
		invalid = append(invalid, unirio.ParamSort)
	}

	lmin, okMin := intParam(q, unirio.ParamLMin, 0)
	lmax, okMax := intParam(q, unirio.ParamLMax, -1)
	if !okMin {
		badEncoding = append(badEncoding, unirio.ParamLMin)
	}
	if !okMax {
		badEncoding = append(badEncoding, unirio.ParamLMax)
	}

	if len(invalid) > 0 {
		sort.Strings(invalid)
		writeFieldList(w, unirio.HeaderInvalidParameters, invalid, http.StatusBadRequest)
		return
	}
	if len(badEncoding) > 0 {
		writeFieldList(w, unirio.HeaderInvalidEncoding, badEncoding, http.StatusBadRequest)
		return
	}

	var matched []map[string]any
	for _, row := range tbl.rows {
		keep := true
		for _, f := range filters {
			if !containsString(f.values, valueString(row[f.col])) {
				keep = false
				break
			}
		}
		if keep {
			matched = append(matched, row)
		}
	}
	if orderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(matched[i][orderBy], matched[j][orderBy])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if lmin < 0 {
		lmin = 0
	}
	end := len(matched)
	if lmax >= 0 && lmax < end {
		end = lmax
	}
	if lmin >= end {
		// The service answers an empty read with an empty body.
		w.WriteHeader(http.StatusOK)
		return
	}

	body := []byte(`{"content":[],"subset":[0,0]}`)
	var err error
	for _, row := range matched[lmin:end] {
		out := row
		if len(fields) > 0 {
			out = make(map[string]any, len(fields))
			for _, f := range fields {
				out[f] = row[f]
			}
		}
		if body, err = sjson.SetBytes(body, "content.-1", out); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	if body, err = sjson.SetBytes(body, "subset", []int{lmin, end}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSONBytes(w, http.StatusOK, body)
}

func (s *Service) handlePost(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	form, err := formValues(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if status := s.authorize(form.Get(unirio.ParamAPIKey), name); status != 0 {
		w.WriteHeader(status)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tbl, ok := s.tables[strings.ToUpper(name)]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	row, invalid := tbl.rowFromForm(form)
	for _, req := range tbl.required {
		col, _ := tbl.column(req)
		if _, ok := row[col]; !ok {
			invalid = append(invalid, req)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		writeFieldList(w, unirio.HeaderInvalidParameters, invalid, http.StatusBadRequest)
		return
	}

	id := ""
	switch len(tbl.pk) {
	case 0:
		id = uuid.NewString()
	case 1:
		col, _ := tbl.column(tbl.pk[0])
		if v, ok := row[col]; ok {
			id = valueString(v)
		} else {
			row[col] = tbl.nextID
			id = strconv.FormatInt(tbl.nextID, 10)
		}
	default:
		parts := make([]string, 0, len(tbl.pk))
		for _, pk := range tbl.pk {
			col, _ := tbl.column(pk)
			v, ok := row[col]
			if !ok {
				writeFieldList(w, unirio.HeaderInvalidParameters, []string{pk}, http.StatusBadRequest)
				return
			}
			parts = append(parts, valueString(v))
		}
		id = strings.Join(parts, ",")
	}

	if len(tbl.pk) > 0 {
		key := make(map[string]string, len(tbl.pk))
		for _, pk := range tbl.pk {
			col, _ := tbl.column(pk)
			key[col] = valueString(row[col])
		}
		for _, existing := range tbl.rows {
			if tbl.matchesPK(existing, key) {
				// The service reports a refused insert as 404.
				w.WriteHeader(http.StatusNotFound)
				return
			}
		}
	}

	tbl.rows = append(tbl.rows, row)
	tbl.observeID(row)
	s.recordMutation(http.MethodPost, tbl.name, form)

	w.Header().Set(unirio.HeaderID, id)
	w.Header().Set(unirio.HeaderLocation, location(r, tbl, row))
	w.WriteHeader(http.StatusCreated)
}

func (s *Service) handlePut(w http.ResponseWriter, r *http.Request) {
	s.handleKeyed(w, r, http.MethodPut)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.handleKeyed(w, r, http.MethodDelete)
}

// handleKeyed serves PUT and DELETE, which both address rows by primary key.
func (s *Service) handleKeyed(w http.ResponseWriter, r *http.Request, method string) {
	name := chi.URLParam(r, "table")
	form, err := formValues(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if status := s.authorize(form.Get(unirio.ParamAPIKey), name); status != 0 {
		w.WriteHeader(status)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tbl, ok := s.tables[strings.ToUpper(name)]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	values, invalid := tbl.rowFromForm(form)
	if len(invalid) > 0 {
		sort.Strings(invalid)
		writeFieldList(w, unirio.HeaderInvalidParameters, invalid, http.StatusUnprocessableEntity)
		return
	}
	if len(tbl.pk) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	key := make(map[string]string, len(tbl.pk))
	for _, pk := range tbl.pk {
		col, _ := tbl.column(pk)
		v, ok := values[col]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		key[col] = valueString(v)
	}

	affected := 0
	kept := tbl.rows[:0]
	for _, row := range tbl.rows {
		if !tbl.matchesPK(row, key) {
			kept = append(kept, row)
			continue
		}
		affected++
		if method == http.MethodPut {
			for k, v := range values {
				row[k] = v
			}
			kept = append(kept, row)
		}
	}
	tbl.rows = kept
	if affected == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.recordMutation(method, tbl.name, form)
	w.Header().Set(unirio.HeaderAffected, strconv.Itoa(affected))
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleProcedure(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var payload struct {
		Data   []map[string]any `json:"data"`
		Async  bool             `json:"async"`
		Fields []string         `json:"fields"`
		APIKey string           `json:"API_KEY"`
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if status := s.authorize(payload.APIKey, "procedure/"+name); status != 0 {
		w.WriteHeader(status)
		return
	}

	s.mu.RLock()
	proc, ok := s.procedures[strings.ToUpper(name)]
	s.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var missing []string
	for i, row := range payload.Data {
		for _, req := range proc.Required {
			if !hasKeyFold(row, req) {
				missing = append(missing, strconv.Itoa(i)+"."+req)
			}
		}
	}
	if len(missing) > 0 {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "missing required fields: "+strings.Join(missing, ", "))
		return
	}

	var result any = payload.Data
	if proc.Handler != nil {
		out, err := proc.Handler(payload.Data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		result = out
	}
	result = project(result, payload.Fields)

	body, err := json.Marshal(result)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSONBytes(w, http.StatusCreated, body)
}

// rowFromForm converts form values into table columns, reporting unknown
// ones. Reserved parameters and the operator field are skipped.
func (t *table) rowFromForm(form url.Values) (map[string]any, []string) {
	row := make(map[string]any, len(form))
	var invalid []string
	for key, values := range form {
		upper := strings.ToUpper(key)
		if reservedParams[upper] || upper == unirio.DefaultOperatorField || len(values) == 0 {
			continue
		}
		col, ok := t.column(key)
		if !ok {
			invalid = append(invalid, key)
			continue
		}
		row[col] = parseScalar(values[0])
	}
	return row, invalid
}

func (s *Service) recordMutation(method, table string, form url.Values) {
	operator := ""
	for k, v := range form {
		if strings.EqualFold(k, unirio.DefaultOperatorField) && len(v) > 0 {
			operator = v[0]
		}
	}
	s.mutations = append(s.mutations, Mutation{Method: method, Table: table, Operator: operator, At: s.now()})
}

// formValues merges the query string with a form-encoded body for every
// method, DELETE included.
func formValues(r *http.Request) (url.Values, error) {
	values := r.URL.Query()
	if r.Body == nil {
		return values, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return values, nil
	}
	body, err := url.ParseQuery(string(data))
	if err != nil {
		return nil, err
	}
	for k, v := range body {
		values[k] = v
	}
	return values, nil
}

func location(r *http.Request, tbl *table, row map[string]any) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	q := make([]string, 0, len(tbl.pk))
	for _, pk := range tbl.pk {
		col, _ := tbl.column(pk)
		q = append(q, url.QueryEscape(col)+"="+url.QueryEscape(valueString(row[col])))
	}
	return scheme + "://" + r.Host + r.URL.Path + "?" + strings.Join(q, "&")
}

func writeFieldList(w http.ResponseWriter, header string, fields []string, status int) {
	raw, _ := json.Marshal(fields)
	w.Header().Set(header, string(raw))
	w.WriteHeader(status)
}

func writeJSONBytes(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func intParam(q url.Values, name string, def int) (int, bool) {
	raw := q.Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, false
	}
	return n, true
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func hasKeyFold(row map[string]any, key string) bool {
	for k, v := range row {
		if strings.EqualFold(k, key) && v != nil {
			return true
		}
	}
	return false
}

func compareValues(a, b any) int {
	na, okA := toFloat(a)
	nb, okB := toFloat(b)
	if okA && okB {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	return strings.Compare(valueString(a), valueString(b))
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// project keeps only fields in each object of a list result.
func project(result any, fields []string) any {
	if len(fields) == 0 {
		return result
	}
	var items []map[string]any
	switch x := result.(type) {
	case []map[string]any:
		items = x
	case []any:
		items = make([]map[string]any, 0, len(x))
		for _, item := range x {
			m, ok := item.(map[string]any)
			if !ok {
				return result
			}
			items = append(items, m)
		}
	default:
		return result
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		p := make(map[string]any, len(fields))
		for _, f := range fields {
			for k, v := range item {
				if strings.EqualFold(k, f) {
					p[k] = v
				}
			}
		}
		out = append(out, p)
	}
	return out
}
