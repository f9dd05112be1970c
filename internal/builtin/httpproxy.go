package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/resilience"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// blockedHosts are loopback/unspecified addresses the proxy refuses to dial.
// This is a minimal SSRF guard, checked before any network activity.
var blockedHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"0.0.0.0":   true,
	"::1":       true,
}

// maxProxyRead caps how much of a proxied response is read into memory.
const maxProxyRead = 4 << 20 // 4 MiB

// HTTPRequest proxies a single outbound HTTP call on behalf of the caller.
//
// Requires "url"; accepts "method" (default GET), "headers", and "body".
// For POST/PUT/PATCH a non-string body is serialized as JSON and
// Content-Type defaults to application/json when unset. The call is bounded
// by the configured HTTP timeout (15 s by default).
//
// Success mirrors the response's own 2xx flag, not transport success: a
// 4xx/5xx response is still a completed execution whose status is carried in
// the data payload, while a transport failure produces Success:false with
// only an error string.
func (t *Tools) HTTPRequest(ctx context.Context, params map[string]any) tool.Result {
	start := time.Now()

	rawURL, ok := stringParam(params, "url")
	if !ok {
		return tool.Errf(start, "HTTP request requires a 'url' parameter")
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return tool.Errf(start, "Invalid URL: %v", err)
	}
	if blockedHosts[strings.ToLower(target.Hostname())] {
		return tool.Errf(start, "Requests to internal addresses are not allowed")
	}

	method := strings.ToUpper(stringOr(params, "method", http.MethodGet))

	body, contentType, err := encodeBody(method, params["body"])
	if err != nil {
		return tool.Errf(start, "Failed to encode request body: %v", err)
	}

	var breaker *resilience.Breaker
	if t.breakers != nil {
		breaker = t.breakers.For(target.Hostname())
		if err := breaker.Allow(); err != nil {
			return tool.Errf(start, "Requests to %s are temporarily suspended after repeated failures", target.Hostname())
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, t.httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, target.String(), body)
	if err != nil {
		return tool.Errf(start, "Invalid request: %v", err)
	}
	applyHeaders(req, params["headers"])
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := t.client.Do(req)
	if breaker != nil {
		breaker.Report(target.Hostname(), err)
	}
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return tool.Errf(start, "Request timed out after %s", t.httpTimeout)
		}
		return tool.Errf(start, "Request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyRead))
	if err != nil {
		return tool.Errf(start, "Failed to read response body: %v", err)
	}

	respOK := resp.StatusCode >= 200 && resp.StatusCode <= 299
	data := map[string]any{
		"status":      resp.StatusCode,
		"status_text": http.StatusText(resp.StatusCode),
		"ok":          respOK,
		"headers":     flattenHeaders(resp.Header),
		"body":        t.decodeBody(resp.Header.Get("Content-Type"), raw),
	}

	result := tool.Result{
		Success:         respOK,
		Data:            data,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
	if !respOK {
		result.Error = fmt.Sprintf("Request failed with status %d", resp.StatusCode)
	}
	return result
}

// encodeBody prepares the outbound request body. Only POST/PUT/PATCH carry
// one; string bodies pass through verbatim, everything else is JSON.
func encodeBody(method string, body any) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, "", nil
	}
	if s, ok := body.(string); ok {
		return strings.NewReader(s), "", nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(raw), "application/json", nil
}

// applyHeaders copies a caller-supplied headers object onto the request.
func applyHeaders(req *http.Request, headers any) {
	m, ok := headers.(map[string]any)
	if !ok {
		return
	}
	for k, v := range m {
		if s, ok := v.(string); ok {
			req.Header.Set(k, s)
		} else {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}
}

// flattenHeaders reduces response headers to their first values.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// decodeBody parses JSON responses and truncates oversized text ones.
func (t *Tools) decodeBody(contentType string, raw []byte) any {
	if strings.Contains(contentType, "application/json") {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
		// Declared JSON but unparseable: fall through to text handling.
	}
	// The limit is in characters, not bytes; cutting mid-rune would leave
	// invalid UTF-8 in the payload.
	text := string(raw)
	if runes := []rune(text); len(runes) > t.maxBodyChars {
		text = string(runes[:t.maxBodyChars]) + "... (truncated)"
	}
	return text
}
