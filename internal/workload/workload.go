// Package workload defines the unit of work driven by the harness and the
// registry the CLI resolves workloads from.
package workload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Workload is the unit of work under test.
//
// Init is called once before any Next call and Close once after the last.
// Next is called concurrently from many workers and must be safe for that.
// A Next error stops the calling worker only.
type Workload interface {
	Init(ctx context.Context) error
	Next(ctx context.Context) error
	Close() error
}

// Settings carry the workload options of the session configuration.
type Settings struct {
	Target         string
	Method         string
	Headers        map[string]string
	Body           string
	BodyFile       string
	Timeout        time.Duration
	Expect         string
	Delay          time.Duration
	Jitter         time.Duration
	MaxWorkers     int
	PropagateTrace bool // inject W3C trace context into outgoing requests
	Logger         logrus.FieldLogger
}

func (s Settings) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return discardLogger()
	}
	return s.Logger
}

// Factory builds a workload from settings.
type Factory func(Settings) (Workload, error)

// ErrUnknownWorkload is returned when a name has no registered factory.
var ErrUnknownWorkload = errors.New("unknown workload")

// Registry maps workload names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the builtin workloads.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("dummy", newDummy)
	_ = r.Register("sleep", newSleep)
	_ = r.Register("http", newHTTP)
	return r
}

// Register adds a factory under name. Names are case-insensitive.
func (r *Registry) Register(name string, factory Factory) error {
	key := normalizeName(name)
	if key == "" {
		return errors.New("workload name is required")
	}
	if factory == nil {
		return fmt.Errorf("workload %q: factory is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("workload %q already registered", key)
	}
	r.factories[key] = factory
	return nil
}

// New resolves name and builds the workload.
func (r *Registry) New(name string, settings Settings) (Workload, error) {
	key := normalizeName(name)
	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownWorkload, name, strings.Join(r.Names(), ", "))
	}
	w, err := factory(settings)
	if err != nil {
		return nil, fmt.Errorf("workload %q: %w", key, err)
	}
	return w, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
