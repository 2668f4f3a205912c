package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// payload is the body sent with every request: inline bytes, a file that is
// reopened per request, or nothing.
type payload struct {
	data []byte
	path string
	size int64
}

func newPayload(body, bodyFile string) (payload, error) {
	bodyFile = strings.TrimSpace(bodyFile)
	switch {
	case body != "" && bodyFile != "":
		return payload{}, errors.New("body and body file cannot both be provided")
	case body != "":
		return payload{data: []byte(body), size: int64(len(body))}, nil
	case bodyFile == "":
		return payload{}, nil
	}

	info, err := os.Stat(bodyFile)
	if err != nil {
		return payload{}, fmt.Errorf("body file: %w", err)
	}
	if info.IsDir() {
		return payload{}, fmt.Errorf("body file %q is a directory", bodyFile)
	}
	return payload{path: bodyFile, size: info.Size()}, nil
}

func (p payload) open() (io.ReadCloser, error) {
	switch {
	case p.path != "":
		return os.Open(p.path)
	case len(p.data) > 0:
		return io.NopCloser(bytes.NewReader(p.data)), nil
	default:
		return http.NoBody, nil
	}
}
