package httpclient

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewRequestBuilderDefaults(t *testing.T) {
	b, err := NewRequestBuilder(RequestSpec{Target: " http://example.com/ping "})
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	if b.Method() != http.MethodGet {
		t.Errorf("Method() = %q, want GET", b.Method())
	}
	if b.Target() != "http://example.com/ping" {
		t.Errorf("Target() = %q", b.Target())
	}
}

func TestNewRequestBuilderValidation(t *testing.T) {
	tests := []struct {
		name string
		spec RequestSpec
	}{
		{"missing target", RequestSpec{}},
		{"bad header key", RequestSpec{Target: "http://x", Headers: map[string]string{"Bad\nKey": "v"}}},
		{"bad header value", RequestSpec{Target: "http://x", Headers: map[string]string{"K": "a\r\nb"}}},
		{"body and file", RequestSpec{Target: "http://x", Body: "a", BodyFile: "b"}},
		{"missing body file", RequestSpec{Target: "http://x", BodyFile: "/does/not/exist"}},
		{"body file is a directory", RequestSpec{Target: "http://x", BodyFile: os.TempDir()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRequestBuilder(tt.spec); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildInlineBody(t *testing.T) {
	b, err := NewRequestBuilder(RequestSpec{
		Method:  "post",
		Target:  "http://example.com",
		Headers: map[string]string{"content-type": "application/json"},
		Body:    `{"a":1}`,
	})
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		req, err := b.Build(context.Background())
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if req.Method != http.MethodPost {
			t.Errorf("method = %q", req.Method)
		}
		if req.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", req.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(req.Body)
		if string(body) != `{"a":1}` {
			t.Errorf("body = %q", body)
		}
		if req.ContentLength != 7 {
			t.Errorf("ContentLength = %d", req.ContentLength)
		}
	}
}

func TestBuildFileBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.txt")
	if err := os.WriteFile(path, []byte("payload"), 0o600); err != nil {
		t.Fatal(err)
	}
	b, err := NewRequestBuilder(RequestSpec{Target: "http://example.com", BodyFile: path})
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	req, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer req.Body.Close()
	body, _ := io.ReadAll(req.Body)
	if string(body) != "payload" {
		t.Errorf("body = %q", body)
	}
}

func TestBuildWithoutBody(t *testing.T) {
	b, err := NewRequestBuilder(RequestSpec{Target: "http://example.com"})
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	req, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if req.Body != http.NoBody || req.ContentLength != 0 {
		t.Errorf("expected an empty body, got %v with length %d", req.Body, req.ContentLength)
	}
	body, err := req.GetBody()
	if err != nil || body != http.NoBody {
		t.Errorf("GetBody() = %v, %v", body, err)
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient(-time.Second, 0)
	if c.Timeout != 0 {
		t.Errorf("expected negative timeout to clamp to 0, got %s", c.Timeout)
	}
	tr := c.Transport.(*http.Transport)
	if tr.MaxIdleConnsPerHost != 32 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 32", tr.MaxIdleConnsPerHost)
	}

	c = NewClient(5*time.Second, 512)
	tr = c.Transport.(*http.Transport)
	if tr.MaxIdleConns != 512 || tr.MaxIdleConnsPerHost != 512 {
		t.Errorf("idle conns = %d/%d, want 512/512", tr.MaxIdleConns, tr.MaxIdleConnsPerHost)
	}
}
