package workload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/lastrix/perftester/internal/httpclient"
	"github.com/lastrix/perftester/internal/tracing"
)

const (
	maxLoggedBodyBytes = 1024
	maxExpectBodyBytes = 4 << 20
)

// HTTPError represents a response with a failing status code.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ErrorKind groups failures by status code.
func (e *HTTPError) ErrorKind() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// ExpectationError reports a response body that did not satisfy the
// configured JSON-path expectation.
type ExpectationError struct {
	Expect string
	Actual string
	Reason string
}

func (e *ExpectationError) Error() string {
	if e.Actual != "" {
		return fmt.Sprintf("expect %q: %s (got %q)", e.Expect, e.Reason, e.Actual)
	}
	return fmt.Sprintf("expect %q: %s", e.Expect, e.Reason)
}

func (e *ExpectationError) ErrorKind() string { return "Expectation failed" }

// expectation is a gjson path optionally followed by "==value".
type expectation struct {
	raw   string
	path  string
	value string
	exact bool
}

func parseExpectation(raw string) *expectation {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	e := &expectation{raw: raw, path: raw}
	if idx := strings.Index(raw, "=="); idx != -1 {
		e.path = strings.TrimSpace(raw[:idx])
		e.value = strings.TrimSpace(raw[idx+2:])
		e.exact = true
	}
	e.path = normalizeJSONPath(e.path)
	return e
}

// normalizeJSONPath accepts "$.field" and bare "$" in addition to gjson syntax.
func normalizeJSONPath(path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			return path[2:]
		}
		if len(path) == 1 {
			return "@this"
		}
	}
	return path
}

func (e *expectation) check(body []byte) error {
	if !gjson.ValidBytes(body) {
		return &ExpectationError{Expect: e.raw, Reason: "response is not valid JSON"}
	}
	result := gjson.GetBytes(body, e.path)
	if !result.Exists() {
		return &ExpectationError{Expect: e.raw, Reason: "path not found"}
	}
	if e.exact && result.String() != e.value {
		return &ExpectationError{Expect: e.raw, Reason: "value mismatch", Actual: result.String()}
	}
	return nil
}

type httpWorkload struct {
	client    *http.Client
	builder   *httpclient.RequestBuilder
	expect    *expectation
	propagate bool
	log       logrus.FieldLogger
}

func newHTTP(s Settings) (Workload, error) {
	builder, err := httpclient.NewRequestBuilder(httpclient.RequestSpec{
		Method:   s.Method,
		Target:   s.Target,
		Headers:  s.Headers,
		Body:     s.Body,
		BodyFile: s.BodyFile,
	})
	if err != nil {
		return nil, err
	}
	return &httpWorkload{
		client:    httpclient.NewClient(s.Timeout, s.MaxWorkers),
		builder:   builder,
		expect:    parseExpectation(s.Expect),
		propagate: s.PropagateTrace,
		log:       s.logger(),
	}, nil
}

func (h *httpWorkload) Init(context.Context) error {
	h.log.WithFields(logrus.Fields{
		"method": h.builder.Method(),
		"target": h.builder.Target(),
	}).Info("http workload ready")
	return nil
}

func (h *httpWorkload) Next(ctx context.Context) error {
	req, err := h.builder.Build(ctx)
	if err != nil {
		return err
	}
	if h.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, readErr := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBodyBytes))
		_, _ = io.Copy(io.Discard, resp.Body)
		if readErr != nil {
			return readErr
		}
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if h.expect == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExpectBodyBytes))
	_, _ = io.Copy(io.Discard, resp.Body)
	if err != nil {
		return err
	}
	return h.expect.check(body)
}

func (h *httpWorkload) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
