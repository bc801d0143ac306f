package unirio_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unirio/unirio_sdk_go/pkg/cache/memory"
	"github.com/unirio/unirio_sdk_go/pkg/unirio"
)

func TestGetNullParameterSkipsTransport(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{respond(http.StatusOK, twoRows)}}
	client := newStubClient(t, stub)

	_, err := client.Get(context.Background(), "PROJETOS", unirio.Params{"ID": 1, "NOME": ""}, nil)
	var nullErr *unirio.NullParameterError
	require.ErrorAs(t, err, &nullErr)
	assert.Equal(t, "NOME", nullErr.Key)
	assert.Equal(t, 0, stub.calls())
}

func TestGetBuildsQuery(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{respond(http.StatusOK, twoRows)}}
	client := newStubClient(t, stub)

	res, err := client.Get(context.Background(), "PROJETOS", unirio.Params{
		"ID_SET":  []int{1, 2},
		"API_KEY": "override",
	}, &unirio.GetOptions{Fields: []string{"ID_PROJETO", "NAME"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())

	req := stub.last()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "PROJETOS", req.Path)
	assert.Equal(t, "secret", req.Query.Get("API_KEY"))
	assert.Equal(t, "JSON", req.Query.Get("FORMAT"))
	assert.Equal(t, "1,2", req.Query.Get("ID_SET"))
	assert.Equal(t, "ID_PROJETO,NAME", req.Query.Get("FIELDS"))
	assert.NotEmpty(t, req.Header.Get("X-Request-ID"))
	assert.Nil(t, req.Form)
}

func TestGetIsRepeatable(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{respond(http.StatusOK, twoRows)}}
	client := newStubClient(t, stub)
	ctx := context.Background()

	first, err := client.Get(ctx, "PROJETOS", nil, nil)
	require.NoError(t, err)
	second, err := client.Get(ctx, "PROJETOS", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, stub.calls())
	if len(first.Content) > 0 && len(second.Content) > 0 {
		assert.NotSame(t, &first.Content[0], &second.Content[0], "results must not share storage")
	}
}

func TestGetBypassNoContent(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{respond(http.StatusOK, "")}}
	client := newStubClient(t, stub)
	ctx := context.Background()

	_, err := client.Get(ctx, "PROJETOS", nil, nil)
	require.ErrorIs(t, err, unirio.ErrNoContent)
	var apiErr *unirio.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "PROJETOS", apiErr.Path)

	res, err := client.Get(ctx, "PROJETOS", nil, &unirio.GetOptions{BypassNoContent: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())
}

func TestGetCacheServesWithinTTL(t *testing.T) {
	stub := &stubTransport{
		responses: []*unirio.Response{respond(http.StatusOK, twoRows)},
		fail: func(call int) error {
			if call > 0 {
				return errors.New("connection refused")
			}
			return nil
		},
	}
	cache := memory.New()
	client := newStubClient(t, stub, unirio.WithCache(cache))
	ctx := context.Background()
	opts := &unirio.GetOptions{CacheTime: time.Minute}

	first, err := client.Get(ctx, "PROJETOS", unirio.Params{"ID": 1}, opts)
	require.NoError(t, err)
	second, err := client.Get(ctx, "PROJETOS", unirio.Params{"ID": 1}, opts)
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, stub.calls())

	_, err = client.Get(ctx, "PROJETOS", unirio.Params{"ID": 2}, opts)
	require.Error(t, err, "different params must miss the cache")
	assert.Equal(t, 2, stub.calls())

	_, err = client.Get(ctx, "PROJETOS", unirio.Params{"ID": 1}, nil)
	require.Error(t, err, "reads without CacheTime bypass the cache")
}

func TestGetCacheHitsAreIsolatedFromCallerEdits(t *testing.T) {
	stub := &stubTransport{
		responses: []*unirio.Response{respond(http.StatusOK, twoRows)},
		fail: func(call int) error {
			if call > 0 {
				return errors.New("connection refused")
			}
			return nil
		},
	}
	client := newStubClient(t, stub, unirio.WithCache(memory.New()))
	ctx := context.Background()
	opts := &unirio.GetOptions{CacheTime: time.Minute}

	first, err := client.Get(ctx, "PROJETOS", nil, opts)
	require.NoError(t, err)
	first.Content[0].Set("name", "MUTATED")
	first.Content[0].Set("EXTRA", 1)
	first.Content = first.Content[:1]

	cached, err := client.Get(ctx, "PROJETOS", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls())
	require.Equal(t, 2, cached.Len())
	row := cached.At(0)
	assert.Equal(t, "alpha", row.String("name"))
	assert.False(t, row.Has("EXTRA"))
	assert.Equal(t, []string{"ID_PROJETO", "Name"}, row.Keys())

	cached.Content[1].Set("Name", "changed again")
	again, err := client.Get(ctx, "PROJETOS", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "beta", again.At(1).String("Name"))
}

func TestGetCacheDoesNotStoreErrors(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{
		respond(http.StatusInternalServerError, ""),
		respond(http.StatusOK, twoRows),
	}}
	client := newStubClient(t, stub, unirio.WithCache(memory.New()))
	ctx := context.Background()
	opts := &unirio.GetOptions{CacheTime: time.Minute}

	_, err := client.Get(ctx, "PROJETOS", nil, opts)
	require.ErrorIs(t, err, unirio.ErrUnhandledServer)

	res, err := client.Get(ctx, "PROJETOS", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())
}

func TestCacheKeyIgnoresCredentials(t *testing.T) {
	a, err := unirio.BuildQuery(unirio.Params{"ID": 1, "NOME": "x"}, "key-a")
	require.NoError(t, err)
	b, err := unirio.BuildQuery(unirio.Params{"NOME": "x", "ID": 1}, "key-b")
	require.NoError(t, err)

	ka, err := unirio.CacheKey("PROJETOS", a)
	require.NoError(t, err)
	kb, err := unirio.CacheKey("PROJETOS", b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	other, err := unirio.CacheKey("ALUNOS", a)
	require.NoError(t, err)
	assert.NotEqual(t, ka, other)
}

func TestGetSingleResultForcesWindow(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{respond(http.StatusOK, twoRows)}}
	client := newStubClient(t, stub)
	params := unirio.Params{"NOME": "alpha", "lmax": 50}

	row, err := client.GetSingleResult(context.Background(), "PROJETOS", params, nil)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "alpha", row.String("NAME"))

	req := stub.last()
	assert.Equal(t, "0", req.Query.Get("LMIN"))
	assert.Equal(t, "1", req.Query.Get("LMAX"))
	assert.NotContains(t, req.Query, "lmax")
	assert.Equal(t, 50, params["lmax"], "caller params must not be mutated")
}

func TestGetSingleResultNoContent(t *testing.T) {
	tests := []struct {
		name string
		resp *unirio.Response
	}{
		{name: "empty body", resp: respond(http.StatusOK, "")},
		{name: "empty content", resp: respond(http.StatusOK, `{"content":[],"subset":[0,0]}`)},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubTransport{responses: []*unirio.Response{tc.resp}}
			client := newStubClient(t, stub)
			ctx := context.Background()

			_, err := client.GetSingleResult(ctx, "PROJETOS", nil, nil)
			assert.ErrorIs(t, err, unirio.ErrNoContent)

			row, err := client.GetSingleResult(ctx, "PROJETOS", nil, &unirio.GetOptions{BypassNoContent: true})
			require.NoError(t, err)
			assert.Nil(t, row)
		})
	}
}

func TestMutationsRequireOperator(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{respond(http.StatusCreated, "", "id", "1")}}
	client := newStubClient(t, stub)
	ctx := context.Background()
	params := unirio.Params{"NOME": "x"}

	_, err := client.Post(ctx, "PROJETOS", params)
	assertMissingOperator(t, err, "COD_OPERADOR")
	_, err = client.Put(ctx, "PROJETOS", params)
	assertMissingOperator(t, err, "COD_OPERADOR")
	_, err = client.Delete(ctx, "PROJETOS", params)
	assertMissingOperator(t, err, "COD_OPERADOR")
	assert.Equal(t, 0, stub.calls())

	custom := newStubClient(t, stub, unirio.WithOperatorField("ID_USUARIO"))
	_, err = custom.Post(ctx, "PROJETOS", unirio.Params{"COD_OPERADOR": 1})
	assertMissingOperator(t, err, "ID_USUARIO")
	assert.Equal(t, 0, stub.calls())

	_, err = client.Post(ctx, "PROJETOS", unirio.Params{"cod_operador": 1})
	require.NoError(t, err, "operator field is matched without regard to case")
	assert.Equal(t, 1, stub.calls())
}

func assertMissingOperator(t *testing.T, err error, param string) {
	t.Helper()
	require.ErrorIs(t, err, unirio.ErrMissingRequiredParameter)
	var apiErr *unirio.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, param, apiErr.Param)
}

func TestPost(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{
		respond(http.StatusCreated, "", "id", "981", "Location", "https://h/api/PROJETOS?ID_PROJETO=981"),
	}}
	client := newStubClient(t, stub)

	created, err := client.Post(context.Background(), "PROJETOS", unirio.Params{
		"COD_OPERADOR": 7,
		"NOME":         "alpha",
		"API_KEY":      "stolen",
		"OBS":          nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "981", created.InsertID)
	assert.Equal(t, "https://h/api/PROJETOS?ID_PROJETO=981&API_KEY=secret", client.ContentURI(created))

	req := stub.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Nil(t, req.Query)
	assert.Equal(t, "secret", req.Form.Get("API_KEY"))
	assert.Equal(t, "alpha", req.Form.Get("NOME"))
	assert.NotContains(t, req.Form, "OBS")
}

func TestPostNotFoundMeansNotCreated(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{respond(http.StatusNotFound, "duplicate")}}
	client := newStubClient(t, stub)

	_, err := client.Post(context.Background(), "PROJETOS", unirio.Params{"COD_OPERADOR": 7})
	require.ErrorIs(t, err, unirio.ErrContentNotCreated)
	var apiErr *unirio.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "duplicate", apiErr.Text())
	assert.Equal(t, "PROJETOS", apiErr.Path)
}

func TestPutOutcomes(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{
		respond(http.StatusOK, "", "Affected", "2"),
		respond(http.StatusNoContent, ""),
		respond(http.StatusBadRequest, ""),
	}}
	client := newStubClient(t, stub)
	ctx := context.Background()
	params := unirio.Params{"COD_OPERADOR": 7, "ID_PROJETO": 1, "NOME": "beta"}

	updated, err := client.Put(ctx, "PROJETOS", params)
	require.NoError(t, err)
	require.NotNil(t, updated.AffectedRows)
	assert.Equal(t, 2, *updated.AffectedRows)
	assert.Equal(t, http.MethodPut, stub.last().Method)

	_, err = client.Put(ctx, "PROJETOS", params)
	assert.ErrorIs(t, err, unirio.ErrNothingToUpdate)
	_, err = client.Put(ctx, "PROJETOS", params)
	assert.ErrorIs(t, err, unirio.ErrMissingPrimaryKey)
}

func TestDeleteSendsFilterForm(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{respond(http.StatusOK, "", "Affected", "1")}}
	client := newStubClient(t, stub)
	ctx := context.Background()

	deleted, err := client.Delete(ctx, "PROJETOS", unirio.Params{"COD_OPERADOR": 7, "ID_PROJETO": 3})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted.AffectedRows)

	req := stub.last()
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "3", req.Form.Get("ID_PROJETO"))
	assert.Equal(t, "secret", req.Form.Get("API_KEY"))
	assert.Equal(t, "JSON", req.Form.Get("FORMAT"))

	_, err = client.Delete(ctx, "PROJETOS", unirio.Params{"COD_OPERADOR": 7, "ID_PROJETO": nil})
	assert.ErrorIs(t, err, unirio.ErrNullParameter)
	assert.Equal(t, 1, stub.calls())
}

func TestCallProcedure(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{respond(http.StatusCreated, `[{"ID":10}]`)}}
	client := newStubClient(t, stub)

	data := []unirio.Params{{"NOME": "a", "NOTAS": []float64{7.5, 8}}, {"NOME": "b", "EXTRA": map[string]any{"k": true}}}
	result, err := client.CallProcedure(context.Background(), "matricula", data, &unirio.ProcedureOptions{Fields: []string{"ID"}})
	require.NoError(t, err)
	rows, err := result.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	req := stub.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "procedure/matricula", req.Path)

	var body struct {
		Data   []map[string]any `json:"data"`
		Async  bool             `json:"async"`
		Fields []string         `json:"fields"`
		APIKey string           `json:"API_KEY"`
	}
	require.NoError(t, json.Unmarshal(req.JSON, &body))
	assert.Len(t, body.Data, 2)
	assert.False(t, body.Async)
	assert.Equal(t, []string{"ID"}, body.Fields)
	assert.Equal(t, "secret", body.APIKey)
}

func TestCallProcedureRejectsBadData(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{respond(http.StatusCreated, `[]`)}}
	client := newStubClient(t, stub)
	ctx := context.Background()

	_, err := client.CallProcedure(ctx, "p", map[string]any{"NOME": "a"}, nil)
	assert.ErrorIs(t, err, unirio.ErrUnhandledAPI)

	_, err = client.CallProcedure(ctx, "p", []string{"a"}, nil)
	assert.ErrorIs(t, err, unirio.ErrUnhandledAPI)

	_, err = client.CallProcedure(ctx, "p", []map[string]any{{"QUANDO": time.Now()}}, nil)
	require.ErrorIs(t, err, unirio.ErrSerialization)
	var serErr *unirio.SerializationError
	require.ErrorAs(t, err, &serErr)
	assert.Equal(t, 0, serErr.Row)
	assert.Equal(t, "QUANDO", serErr.Field)

	_, err = client.CallProcedure(ctx, "p", []map[string]any{{"N": 1}}, &unirio.ProcedureOptions{Async: true, NotifyGroup: "g"})
	assert.ErrorIs(t, err, unirio.ErrAsyncProcedureUnsupported)

	assert.Equal(t, 0, stub.calls())
}

func TestTransportErrorIsWrapped(t *testing.T) {
	refused := errors.New("connection refused")
	stub := &stubTransport{fail: func(int) error { return refused }}
	client := newStubClient(t, stub)

	_, err := client.Get(context.Background(), "PROJETOS", nil, nil)
	require.ErrorIs(t, err, refused)
	assert.Contains(t, err.Error(), "GET PROJETOS")
	assert.Equal(t, 1, stub.calls(), "transport failures are not retried")
}

func TestDebugRecordsRequests(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var logs bytes.Buffer
	stub := &stubTransport{responses: []*unirio.Response{
		{StatusCode: http.StatusOK, URL: "http://localhost:8000/api/PROJETOS?FORMAT=JSON", Body: []byte(twoRows)},
		respond(http.StatusCreated, "", "id", "5"),
	}}
	client := newStubClient(t, stub,
		unirio.WithDebug(true),
		unirio.WithClock(func() time.Time { return now }),
		unirio.WithLogger(zerolog.New(&logs).Level(zerolog.DebugLevel)),
	)
	ctx := context.Background()

	_, err := client.Get(ctx, "PROJETOS", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api/PROJETOS?FORMAT=JSON", client.LastRequest())

	_, err = client.Post(ctx, "PROJETOS", unirio.Params{"COD_OPERADOR": 1, "API_KEY": "x"})
	require.NoError(t, err)

	records := client.Requests()
	require.Len(t, records, 1)
	assert.Equal(t, http.MethodPost, records[0].Method)
	assert.Equal(t, now, records[0].At)
	assert.NotContains(t, records[0].Params, "API_KEY")
	assert.Contains(t, logs.String(), `"request_id"`)
	assert.Contains(t, logs.String(), `"status":201`)
}

func TestSetAPIKey(t *testing.T) {
	stub := &stubTransport{responses: []*unirio.Response{respond(http.StatusOK, twoRows)}}
	client := newStubClient(t, stub)

	client.SetAPIKey("rotated")
	assert.Equal(t, "rotated", client.APIKey())
	_, err := client.Get(context.Background(), "PROJETOS", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "rotated", stub.last().Query.Get("API_KEY"))
}

func TestDefaultTransportSendsUserAgent(t *testing.T) {
	var agent, requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		requestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(twoRows))
	}))
	defer srv.Close()

	client, err := unirio.New(srv.URL, "secret")
	require.NoError(t, err)
	res, err := client.Get(context.Background(), "PROJETOS", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())
	assert.Equal(t, unirio.UserAgent, agent)
	assert.NotEmpty(t, requestID)
}

func TestNewRejectsInvalidServer(t *testing.T) {
	_, err := unirio.New("not a url", "k")
	assert.Error(t, err)

	client, err := unirio.New(unirio.ServerDevelopment, "k", unirio.WithTimeout(time.Second), unirio.WithCertVerification(false))
	require.NoError(t, err)
	assert.Equal(t, unirio.ServerDevelopment, client.Server())
}
