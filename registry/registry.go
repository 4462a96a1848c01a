package registry

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/ethereum-optimism/infra/op-testexec/execution"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrClosed      = errors.New("registry is closed")
	ErrUnknownFunc = errors.New("unknown function")
)

// Factory builds a body from the arguments given in a plan
type Factory func(args Args) (types.Func, error)

// Registry holds the body factories and listeners for a single run. It is
// created per run and closed when the run ends; nothing is shared globally.
type Registry struct {
	config    Config
	factories map[string]Factory
	listeners []execution.Listener
	closed    bool
	mu        sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log log.Logger
	// NoBuiltins leaves the registry empty instead of registering the builtin bodies
	NoBuiltins bool
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) *Registry {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	r := &Registry{
		config:    cfg,
		factories: make(map[string]Factory),
	}
	if !cfg.NoBuiltins {
		for name, f := range builtins {
			r.factories[name] = f
		}
	}
	return r
}

// Register adds a named body factory. Names must be unique.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("invalid registration for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("function %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Lookup builds the body registered under name
func (r *Registry) Lookup(name string, args Args) (types.Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunc, name)
	}
	body, err := f(args)
	if err != nil {
		return nil, fmt.Errorf("function %q: %w", name, err)
	}
	return body, nil
}

// Names returns the registered function names in sorted order
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

// AddListener registers a listener for the run
func (r *Registry) AddListener(l execution.Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.listeners = append(r.listeners, l)
	return nil
}

// Listener returns all registered listeners as one
func (r *Registry) Listener() execution.Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch len(r.listeners) {
	case 0:
		return execution.NoopListener{}
	case 1:
		return r.listeners[0]
	}
	return append(execution.MultiListener(nil), r.listeners...)
}

type closer interface {
	Close()
}

// Close releases the registry. Listeners that can be closed are closed in
// reverse registration order.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	listeners := r.listeners
	r.listeners = nil
	r.factories = nil
	r.mu.Unlock()

	var errs []error
	for i := len(listeners) - 1; i >= 0; i-- {
		switch l := listeners[i].(type) {
		case io.Closer:
			if err := l.Close(); err != nil {
				errs = append(errs, err)
			}
		case closer:
			l.Close()
		}
	}
	r.config.Log.Debug("Registry closed", "listeners", len(listeners))
	return errors.Join(errs...)
}
