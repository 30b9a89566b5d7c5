package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"llamad/pkg/types"
)

// handleInference returns the proxy handler for one OpenAI endpoint.
// upstreamPath is the path on the engine the body is forwarded to.
//
// The body is decoded just far enough to resolve the alias and merge its
// request defaults; everything else passes through untouched so new engine
// fields never need gateway changes.
func (s *Server) handleInference(upstreamPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeError(w, http.StatusUnsupportedMediaType, "invalid_request_error", "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body")
			return
		}

		name, _ := body["model"].(string)
		if name == "" {
			name = s.cfg.DefaultModel
		}
		if name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "model is required")
			return
		}
		alias, err := s.registry.Resolve(name)
		if err != nil {
			s.writeAcquireError(w, r, err)
			return
		}
		// Alias defaults fill gaps only; the caller's values always win.
		for k, v := range alias.RequestParams {
			if _, ok := body[k]; !ok {
				body[k] = v
			}
		}
		body["model"] = alias.Alias
		stream, _ := body["stream"].(bool)

		ctx := r.Context()
		if s.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
			defer cancel()
		}

		lease, err := s.pool.Acquire(ctx, alias)
		if err != nil {
			s.writeAcquireError(w, r, err)
			return
		}
		defer lease.Release()

		payload, err := json.Marshal(body)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, lease.BaseURL()+upstreamPath, bytes.NewReader(payload))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if stream {
			req.Header.Set("Accept", "text/event-stream")
		}

		resp, err := s.client.Do(req)
		if err != nil {
			s.writeProxyError(w, r, err)
			return
		}
		defer resp.Body.Close()
		s.relay(w, r, resp)
	}
}

// writeProxyError maps transport failures between gateway and engine.
func (s *Server) writeProxyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case r.Context().Err() != nil:
		// Client disconnected mid-request; nothing to send.
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "engine did not respond in time")
	default:
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("engine request failed")
		writeError(w, http.StatusBadGateway, "engine_error", "engine request failed: "+err.Error())
	}
}

// relay copies the engine response to the client. Event streams are flushed
// chunk by chunk so tokens reach the client as they are produced; buffered
// responses are copied in one go.
func (s *Server) relay(w http.ResponseWriter, r *http.Request, resp *http.Response) {
	for _, h := range []string{"Content-Type", "Cache-Control"} {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	streaming := strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
	if streaming {
		w.Header().Set("X-Accel-Buffering", "no")
		if w.Header().Get("Cache-Control") == "" {
			w.Header().Set("Cache-Control", "no-cache")
		}
	}
	w.WriteHeader(resp.StatusCode)

	if !streaming {
		if _, err := io.Copy(w, resp.Body); err != nil && r.Context().Err() == nil {
			s.log.Warn().Err(err).Msg("response copy interrupted")
		}
		return
	}

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// Client gone; the deferred lease release and the request
				// context cancel the engine call.
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF && r.Context().Err() == nil {
				s.log.Warn().Err(err).Msg("event stream interrupted")
				writeStreamError(w, flusher, "engine stream interrupted")
			}
			return
		}
	}
}

// writeStreamError terminates a broken event stream with a final error event
// so clients can tell an engine failure from a normal end of stream.
func writeStreamError(w io.Writer, flusher http.Flusher, msg string) {
	payload, err := json.Marshal(types.ErrorResponse{Error: types.APIError{
		Message: msg,
		Type:    "engine_error",
	}})
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return
	}
	if flusher != nil {
		flusher.Flush()
	}
}
