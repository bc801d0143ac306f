package unirio_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unirio/unirio_sdk_go/pkg/unirio"
)

// stubTransport replays canned responses and records every request.
type stubTransport struct {
	mu        sync.Mutex
	requests  []*unirio.Request
	responses []*unirio.Response
	fail      func(call int) error
}

func (s *stubTransport) Do(_ context.Context, req *unirio.Request) (*unirio.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := len(s.requests)
	s.requests = append(s.requests, req)
	if s.fail != nil {
		if err := s.fail(call); err != nil {
			return nil, err
		}
	}
	if len(s.responses) == 0 {
		return nil, errors.New("stub: no response queued")
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func (s *stubTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubTransport) last() *unirio.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

func respond(status int, body string, header ...string) *unirio.Response {
	h := make(http.Header)
	for i := 0; i+1 < len(header); i += 2 {
		h.Set(header[i], header[i+1])
	}
	return &unirio.Response{StatusCode: status, Header: h, Body: []byte(body)}
}

func newStubClient(t *testing.T, stub *stubTransport, opts ...unirio.Option) *unirio.Client {
	t.Helper()
	opts = append([]unirio.Option{unirio.WithTransport(stub)}, opts...)
	client, err := unirio.New(unirio.ServerLocal, "secret", opts...)
	require.NoError(t, err)
	return client
}

const twoRows = `{"content":[{"ID_PROJETO":1,"Name":"alpha"},{"ID_PROJETO":2,"Name":"beta"}],"subset":[0,2]}`
