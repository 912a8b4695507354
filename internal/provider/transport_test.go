package provider_test

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// fakeTransport answers every request with a canned response and keeps the
// request bodies it saw.
type fakeTransport struct {
	respStatus int
	respBody   []byte

	mu     sync.Mutex
	bodies [][]byte
	paths  []string
	auth   []string
	header []http.Header
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	f.mu.Lock()
	f.bodies = append(f.bodies, b)
	f.paths = append(f.paths, req.URL.Path)
	f.auth = append(f.auth, req.Header.Get("Authorization"))
	f.header = append(f.header, req.Header.Clone())
	f.mu.Unlock()

	resp := &http.Response{
		StatusCode: f.respStatus,
		Status:     http.StatusText(f.respStatus),
		Body:       io.NopCloser(bytes.NewReader(f.respBody)),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func (f *fakeTransport) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return nil
	}
	return f.bodies[len(f.bodies)-1]
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}
