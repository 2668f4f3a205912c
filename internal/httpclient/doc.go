// Package httpclient provides the HTTP client and request construction used by
// the http workload.
//
// # Request Building
//
// Use [NewRequestBuilder] to validate a request once and build a fresh
// *http.Request per call:
//
//	builder, err := httpclient.NewRequestBuilder(httpclient.RequestSpec{
//		Method: "POST",
//		Target: "http://localhost:8080/orders",
//		Body:   `{"sku":"A1"}`,
//	})
//	req, err := builder.Build(ctx)
//
// Bodies come from inline content or a file; file bodies are re-opened per
// request so no payload is held in memory.
//
// # HTTP Client
//
// [NewClient] creates a client with keep-alive connection reuse sized to the
// highest worker count of the session:
//
//	client := httpclient.NewClient(30*time.Second, maxWorkers)
package httpclient
