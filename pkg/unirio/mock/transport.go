package mock

import (
	"net/http"
	"net/http/httptest"
)

// ServerURL is the base URL to pair with HTTPClient. Requests never leave the
// process, so the host is never resolved.
const ServerURL = "http://unirio.mock/api"

type handlerTransport struct {
	handler http.Handler
}

func (t handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	t.handler.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

// HTTPClient returns an *http.Client that serves every request from the
// Service in process. Paths are resolved relative to ServerURL.
func (s *Service) HTTPClient() *http.Client {
	h := http.StripPrefix("/api", s.Handler())
	return &http.Client{Transport: handlerTransport{handler: h}}
}
