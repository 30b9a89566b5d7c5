package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llamad/internal/registry"
	"llamad/internal/supervisor"
	"llamad/pkg/types"
)

type fakeRegistry struct {
	aliases map[string]types.Alias
}

func (f *fakeRegistry) Resolve(name string) (types.Alias, error) {
	a, ok := f.aliases[name]
	if !ok {
		return types.Alias{}, registry.ErrAliasNotFound(name)
	}
	return a, nil
}

func (f *fakeRegistry) List() []types.Alias {
	out := make([]types.Alias, 0, len(f.aliases))
	for _, a := range f.aliases {
		out = append(out, a)
	}
	return out
}

func (f *fakeRegistry) UpdatedAt(string) time.Time { return time.Unix(1700000000, 0) }
func (f *fakeRegistry) Len() int                   { return len(f.aliases) }

type fakeLease struct {
	base string

	mu       sync.Mutex
	released bool
}

func (l *fakeLease) BaseURL() string { return l.base }
func (l *fakeLease) Release() {
	l.mu.Lock()
	l.released = true
	l.mu.Unlock()
}

func (l *fakeLease) wasReleased() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

type fakePool struct {
	base       string
	acquireErr error

	mu        sync.Mutex
	leases    []*fakeLease
	lastAlias types.Alias
	stopped   []string
	resets    []string
	stopErr   error
}

func (p *fakePool) Acquire(ctx context.Context, a types.Alias) (Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.lastAlias = a
	l := &fakeLease{base: p.base}
	p.leases = append(p.leases, l)
	return l, nil
}

func (p *fakePool) Handles() []types.HandleStatus {
	return []types.HandleStatus{{Alias: "llama3", State: "ready", PID: 42, Port: 32801, Inflight: 1}}
}
func (p *fakePool) MaxReady() int         { return 2 }
func (p *fakePool) Uptime() time.Duration { return 90 * time.Second }

func (p *fakePool) StopAlias(ctx context.Context, alias string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopErr != nil {
		return p.stopErr
	}
	p.stopped = append(p.stopped, alias)
	return nil
}

func (p *fakePool) Reset(alias string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets = append(p.resets, alias)
	return nil
}

func testAliases() map[string]types.Alias {
	return map[string]types.Alias{
		"llama3": {
			Alias:         "llama3",
			Repo:          "meta/llama3",
			Filename:      "model.gguf",
			RequestParams: map[string]any{"temperature": 0.2, "top_p": 0.9},
		},
		"tiny": {Alias: "tiny", Repo: "org/tiny", Filename: "tiny.gguf"},
	}
}

func newTestServer(t *testing.T, backend string, cfg Config) (*Server, *fakePool) {
	t.Helper()
	pool := &fakePool{base: backend}
	reg := &fakeRegistry{aliases: testAliases()}
	srv := New(reg, pool, cfg, supervisor.NewMemoryPublisher(16), zerolog.Nop())
	srv.MarkReady()
	return srv, pool
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var er types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error payload: %v (%s)", err, rec.Body.String())
	}
	return er
}

func TestChatCompletionsProxyMergesDefaults(t *testing.T) {
	var got map[string]any
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("backend decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","choices":[]}`)
	}))
	defer backend.Close()

	srv, pool := newTestServer(t, backend.URL, Config{})
	h := srv.Router()

	rec := postJSON(t, h, "/v1/chat/completions", map[string]any{
		"model":       "llama3",
		"messages":    []map[string]string{{"role": "user", "content": "hi"}},
		"temperature": 0.7,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("backend path = %s", gotPath)
	}
	if got["temperature"] != 0.7 {
		t.Fatalf("caller temperature overridden: %v", got["temperature"])
	}
	if got["top_p"] != 0.9 {
		t.Fatalf("alias default top_p not merged: %v", got["top_p"])
	}
	if got["model"] != "llama3" {
		t.Fatalf("model = %v", got["model"])
	}
	pool.mu.Lock()
	lease := pool.leases[0]
	pool.mu.Unlock()
	if !lease.wasReleased() {
		t.Fatal("lease not released after request")
	}
}

func TestTokenizePassthroughPath(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"tokens":[1,2,3]}`)
	}))
	defer backend.Close()

	srv, _ := newTestServer(t, backend.URL, Config{})
	rec := postJSON(t, srv.Router(), "/v1/tokenize", map[string]any{"model": "tiny", "content": "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotPath != "/tokenize" {
		t.Fatalf("backend path = %s, want /tokenize", gotPath)
	}
}

func TestDefaultModelFallback(t *testing.T) {
	var got map[string]any
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{}`)
	}))
	defer backend.Close()

	srv, _ := newTestServer(t, backend.URL, Config{DefaultModel: "tiny"})
	rec := postJSON(t, srv.Router(), "/v1/completions", map[string]any{"prompt": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got["model"] != "tiny" {
		t.Fatalf("model = %v, want tiny", got["model"])
	}
}

func TestMissingModelRejected(t *testing.T) {
	srv, _ := newTestServer(t, "http://127.0.0.1:0", Config{})
	rec := postJSON(t, srv.Router(), "/v1/completions", map[string]any{"prompt": "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if er := decodeError(t, rec); er.Error.Type != "invalid_request_error" {
		t.Fatalf("type = %s", er.Error.Type)
	}
}

func TestUnknownModelIs404(t *testing.T) {
	srv, _ := newTestServer(t, "http://127.0.0.1:0", Config{})
	rec := postJSON(t, srv.Router(), "/v1/chat/completions", map[string]any{"model": "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if er := decodeError(t, rec); er.Error.Type != "model_not_found" {
		t.Fatalf("type = %s", er.Error.Type)
	}
}

func TestQueueTimeoutIs429(t *testing.T) {
	srv, pool := newTestServer(t, "http://127.0.0.1:0", Config{})
	pool.acquireErr = context.DeadlineExceeded
	rec := postJSON(t, srv.Router(), "/v1/chat/completions", map[string]any{"model": "tiny"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if er := decodeError(t, rec); er.Error.Type != "queue_timeout" {
		t.Fatalf("type = %s", er.Error.Type)
	}
}

func TestShutdownIs503(t *testing.T) {
	srv, pool := newTestServer(t, "http://127.0.0.1:0", Config{})
	pool.acquireErr = supervisor.ErrClosed
	rec := postJSON(t, srv.Router(), "/v1/chat/completions", map[string]any{"model": "tiny"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestEngineDownIs502(t *testing.T) {
	// Backend that is immediately closed: connection refused.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := backend.URL
	backend.Close()

	srv, _ := newTestServer(t, base, Config{})
	rec := postJSON(t, srv.Router(), "/v1/chat/completions", map[string]any{"model": "tiny"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if er := decodeError(t, rec); er.Error.Type != "engine_error" {
		t.Fatalf("type = %s", er.Error.Type)
	}
}

func TestStreamingRelay(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: {\"token\":%d}\n\n", i)
			f.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		f.Flush()
	}))
	defer backend.Close()

	srv, _ := newTestServer(t, backend.URL, Config{})
	front := httptest.NewServer(srv.Router())
	defer front.Close()

	body := bytes.NewReader([]byte(`{"model":"tiny","stream":true}`))
	resp, err := http.Post(front.URL+"/v1/chat/completions", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %s", ct)
	}
	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if l := sc.Text(); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) != 4 || lines[3] != "data: [DONE]" {
		t.Fatalf("unexpected stream: %v", lines)
	}
}

func TestStreamingClientDisconnectStopsRelay(t *testing.T) {
	sent := make(chan struct{})
	ctxDone := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"token\":0}\n\n")
		f.Flush()
		close(sent)
		select {
		case <-r.Context().Done():
			close(ctxDone)
		case <-time.After(5 * time.Second):
		}
	}))
	defer backend.Close()

	srv, pool := newTestServer(t, backend.URL, Config{})
	front := httptest.NewServer(srv.Router())
	defer front.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, front.URL+"/v1/chat/completions",
		strings.NewReader(`{"model":"tiny","stream":true}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 64)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	<-sent
	cancel()

	// The disconnect must propagate to the engine request so the relay
	// loop stops instead of draining the rest of the stream.
	select {
	case <-ctxDone:
	case <-time.After(5 * time.Second):
		t.Fatal("engine request not canceled after client disconnect")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		pool.mu.Lock()
		released := len(pool.leases) == 1 && pool.leases[0].wasReleased()
		pool.mu.Unlock()
		if released {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("lease not released after client disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamingEngineFailureSendsErrorEvent(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"token\":0}\n\n")
		f.Flush()
		// Drop the connection mid-stream, as a crashing engine would.
		panic(http.ErrAbortHandler)
	}))
	defer backend.Close()

	srv, _ := newTestServer(t, backend.URL, Config{})
	front := httptest.NewServer(srv.Router())
	defer front.Close()

	resp, err := http.Post(front.URL+"/v1/chat/completions", "application/json",
		strings.NewReader(`{"model":"tiny","stream":true}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if l := sc.Text(); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		t.Fatalf("stream = %v, want data chunk plus final error event", lines)
	}
	if lines[0] != `data: {"token":0}` {
		t.Fatalf("first event = %q", lines[0])
	}
	last := strings.TrimPrefix(lines[len(lines)-1], "data: ")
	var er types.ErrorResponse
	if err := json.Unmarshal([]byte(last), &er); err != nil {
		t.Fatalf("decode final event %q: %v", last, err)
	}
	if er.Error.Type != "engine_error" {
		t.Fatalf("final event type = %s, want engine_error", er.Error.Type)
	}
}

func TestListModels(t *testing.T) {
	srv, _ := newTestServer(t, "http://127.0.0.1:0", Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list types.OpenAIModelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}
	for _, m := range list.Data {
		if m.Object != "model" || m.Created == 0 {
			t.Fatalf("bad model entry: %+v", m)
		}
	}
}

func TestGetModel(t *testing.T) {
	srv, _ := newTestServer(t, "http://127.0.0.1:0", Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/models/llama3", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/models/ghost", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "http://127.0.0.1:0", Config{Variant: "cuda"})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Variant != "cuda" || st.MaxReady != 2 || st.Aliases != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if len(st.Handles) != 1 || st.Handles[0].Alias != "llama3" {
		t.Fatalf("unexpected handles: %+v", st.Handles)
	}
}

func TestHealthAndReady(t *testing.T) {
	pool := &fakePool{}
	reg := &fakeRegistry{aliases: testAliases()}
	srv := New(reg, pool, Config{}, nil, zerolog.Nop())
	h := srv.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before MarkReady = %d, want 503", rec.Code)
	}

	srv.MarkReady()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz after MarkReady = %d", rec.Code)
	}
}

func TestAdminStopAndReset(t *testing.T) {
	srv, pool := newTestServer(t, "http://127.0.0.1:0", Config{})
	h := srv.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/aliases/llama3/stop", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stop = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/aliases/llama3/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset = %d", rec.Code)
	}
	pool.mu.Lock()
	defer pool.mu.Unlock()
	if len(pool.stopped) != 1 || pool.stopped[0] != "llama3" {
		t.Fatalf("stopped = %v", pool.stopped)
	}
	if len(pool.resets) != 1 || pool.resets[0] != "llama3" {
		t.Fatalf("resets = %v", pool.resets)
	}

	// Unknown alias is rejected before touching the pool.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/aliases/ghost/stop", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("stop unknown = %d, want 404", rec.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	srv, _ := newTestServer(t, "http://127.0.0.1:0", Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("no request id assigned")
	}
}
