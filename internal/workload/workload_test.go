package workload_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lastrix/perftester/internal/workload"
)

func TestDefaultRegistryNames(t *testing.T) {
	got := strings.Join(workload.DefaultRegistry().Names(), ",")
	if got != "dummy,http,sleep" {
		t.Fatalf("Names() = %q, want dummy,http,sleep", got)
	}
}

func TestRegistryUnknownWorkload(t *testing.T) {
	_, err := workload.DefaultRegistry().New("org.example.Missing", workload.Settings{})
	if !errors.Is(err, workload.ErrUnknownWorkload) {
		t.Fatalf("expected ErrUnknownWorkload, got %v", err)
	}
	if !strings.Contains(err.Error(), "dummy") {
		t.Errorf("expected error to list available workloads, got %q", err)
	}
}

type nopWorkload struct{}

func (nopWorkload) Init(context.Context) error { return nil }
func (nopWorkload) Next(context.Context) error { return nil }
func (nopWorkload) Close() error               { return nil }

func TestRegistryRegister(t *testing.T) {
	r := workload.NewRegistry()
	factory := func(workload.Settings) (workload.Workload, error) { return nopWorkload{}, nil }

	if err := r.Register("Custom", factory); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("custom", factory); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := r.Register(" ", factory); err == nil {
		t.Fatal("expected empty name to fail")
	}
	if err := r.Register("nil", nil); err == nil {
		t.Fatal("expected nil factory to fail")
	}

	w, err := r.New("CUSTOM", workload.Settings{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := w.(nopWorkload); !ok {
		t.Fatalf("unexpected workload type %T", w)
	}
}

func TestRegistryFactoryError(t *testing.T) {
	r := workload.NewRegistry()
	_ = r.Register("broken", func(workload.Settings) (workload.Workload, error) {
		return nil, errors.New("bad settings")
	})
	_, err := r.New("broken", workload.Settings{})
	if err == nil || !strings.Contains(err.Error(), "bad settings") {
		t.Fatalf("expected factory error, got %v", err)
	}
}

func TestDummyWorkloadDelay(t *testing.T) {
	var logs bytes.Buffer
	log := logrus.New()
	log.SetOutput(&logs)
	log.SetLevel(logrus.TraceLevel)

	w, err := workload.DefaultRegistry().New("dummy", workload.Settings{Logger: log})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := w.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer w.Close()

	start := time.Now()
	if err := w.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond || elapsed > 400*time.Millisecond {
		t.Fatalf("expected delay within 50-150ms (plus slack), got %s", elapsed)
	}
	if !strings.Contains(logs.String(), "Test!") {
		t.Errorf("expected a per-call debug entry, got %q", logs.String())
	}
}

func TestSleepWorkload(t *testing.T) {
	r := workload.DefaultRegistry()
	if _, err := r.New("sleep", workload.Settings{Delay: -time.Second}); err == nil {
		t.Fatal("expected negative delay to fail")
	}
	if _, err := r.New("sleep", workload.Settings{Delay: time.Millisecond, Jitter: time.Second}); err == nil {
		t.Fatal("expected jitter larger than delay to fail")
	}

	w, err := r.New("sleep", workload.Settings{Delay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	start := time.Now()
	if err := w.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("expected at least 10ms, got %s", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	long, _ := r.New("sleep", workload.Settings{Delay: time.Hour})
	if err := long.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestHTTPWorkload(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		if r.Header.Get("X-Test") != "yes" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"status":"up","items":[1,2]}`))
		case "/fail":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("maintenance"))
		default:
			_, _ = w.Write([]byte("plain text"))
		}
	}))
	defer srv.Close()

	headers := map[string]string{"X-Test": "yes"}
	newWorkload := func(path, expect string) workload.Workload {
		t.Helper()
		w, err := workload.DefaultRegistry().New("http", workload.Settings{
			Target:  srv.URL + path,
			Headers: headers,
			Timeout: time.Second,
			Expect:  expect,
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if err := w.Init(context.Background()); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		t.Cleanup(func() { _ = w.Close() })
		return w
	}

	tests := []struct {
		name    string
		path    string
		expect  string
		wantErr interface{}
	}{
		{"success", "/ok", "", nil},
		{"expect path", "/ok", "$.status", nil},
		{"expect value", "/ok", "status==up", nil},
		{"expect array length", "/ok", "items.#==2", nil},
		{"expect missing path", "/ok", "missing", &workload.ExpectationError{}},
		{"expect wrong value", "/ok", "status==down", &workload.ExpectationError{}},
		{"expect non json", "/text", "status", &workload.ExpectationError{}},
		{"status error", "/fail", "", &workload.HTTPError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newWorkload(tt.path, tt.expect).Next(context.Background())
			switch want := tt.wantErr.(type) {
			case nil:
				if err != nil {
					t.Fatalf("Next() error = %v", err)
				}
			case *workload.ExpectationError:
				if !errors.As(err, &want) {
					t.Fatalf("expected ExpectationError, got %v", err)
				}
			case *workload.HTTPError:
				if !errors.As(err, &want) {
					t.Fatalf("expected HTTPError, got %v", err)
				}
				if want.StatusCode != http.StatusServiceUnavailable || want.Body != "maintenance" {
					t.Fatalf("unexpected HTTPError %+v", want)
				}
			}
		})
	}

	if atomic.LoadInt64(&hits) != int64(len(tests)) {
		t.Errorf("expected %d hits, got %d", len(tests), hits)
	}
}

func TestHTTPWorkloadRequiresTarget(t *testing.T) {
	if _, err := workload.DefaultRegistry().New("http", workload.Settings{}); err == nil {
		t.Fatal("expected missing target to fail")
	}
}
