package gateway

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds named gateway adapters and dispatches by gateway name.
type Registry struct {
	logger   *slog.Logger
	gateways map[string]Gateway
	mu       sync.RWMutex
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		gateways: make(map[string]Gateway),
	}
}

// Register adds an adapter under its own name. Re-registering a name
// replaces the previous adapter.
func (r *Registry) Register(gw Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gateways[gw.Name()] = gw
	r.logger.Info("Registered payment gateway", "gateway", gw.Name())
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gw, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("gateway %q: %w", name, ErrGatewayNotFound)
	}

	return gw, nil
}

// Names returns the registered gateway names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
