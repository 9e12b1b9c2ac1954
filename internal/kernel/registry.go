package kernel

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/roach88/spanos/internal/manifest"
)

// Batch bounds keep every kernel invocation's latency bounded under the
// run-to-completion model.
const (
	ObserverBatchSize = 16
	WorkerBatchSize   = 8
	PolicyBatchSize   = 500
)

// Kernel is a built-in unit of behavior, dispatched by well-known span id
// when a function span with runtime "go" is booted.
type Kernel interface {
	ID() string
	Name() string
	Run(ctx context.Context, kc *Context) error
}

// Registry maps well-known span ids to compiled-in kernels.
//
// Thread-safety: safe for concurrent lookup after construction.
type Registry struct {
	mu      sync.RWMutex
	kernels map[string]Kernel
}

func NewRegistry() *Registry {
	return &Registry{kernels: map[string]Kernel{}}
}

// Register adds a kernel. Registering the same id twice is a wiring bug.
func (r *Registry) Register(k Kernel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kernels[k.ID()]; exists {
		return fmt.Errorf("kernel %s already registered", k.ID())
	}
	r.kernels[k.ID()] = k
	return nil
}

// Lookup resolves a kernel by span id.
func (r *Registry) Lookup(id string) (Kernel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kernels[id]
	return k, ok
}

// BuiltIn returns a registry holding the five well-known kernels. The
// HTTP client is used only by provider exec; nil means http.DefaultClient.
func BuiltIn(manifests *manifest.Resolver, client *http.Client) *Registry {
	r := NewRegistry()
	for _, k := range []Kernel{
		&RunCode{Manifests: manifests},
		&Observer{},
		&Worker{},
		&PolicyAgent{},
		&ProviderExec{Client: client},
	} {
		if err := r.Register(k); err != nil {
			panic(err)
		}
	}
	return r
}
