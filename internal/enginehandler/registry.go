// Package enginehandler maintains the coordinator's registry of engine
// adapter clients and drives the goroutines that provision, tear down, and
// restart workstation VMs against them. It is the Go counterpart of the
// reference coordinator's EngineHandler: same responsibilities (client
// registry, placement arithmetic, setup/cleanup worker lifecycle, orphan
// sweep), rebuilt around goroutines and the rpcclient.Caller interface
// instead of threads and a generic HTTP client.
package enginehandler

import (
	"context"
	"fmt"
	"sync"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/rpcclient"
	"github.com/wsfleet/coordinator/internal/store"
)

// NewCaller constructs the JSON-RPC client for an engine, given the host it
// runs on. Overridable in tests so a fake can be registered instead of a
// real HTTP client.
type NewCaller func(endpoint string) rpcclient.Caller

// Handler owns the live client registry and the setup/cleanup/restart
// workers for in-flight workstation operations. All exported methods are
// safe for concurrent use.
type Handler struct {
	store     store.Store
	newCaller NewCaller

	mu      sync.Mutex
	clients map[string]rpcclient.Caller // engine ID -> client
	engines map[string]models.Engine    // engine ID -> record, refreshed with clients
	hosts   map[string]models.Host      // host ID -> record

	setupMu sync.Mutex
	setup   map[string]*setupWorker // reservation ID -> worker

	cleanupMu sync.Mutex
	cleanup   map[string]*cleanupWorker // reservation ID -> worker

	deps Deps
}

// Deps bundles the handler's optional collaborators so New can stay small.
// Logger and Metrics default to no-ops when left nil.
type Deps struct {
	Logger  Logger
	Metrics MetricsSink
}

// New constructs a Handler backed by st, using newCaller to build a client
// for each engine's host:port endpoint.
func New(st store.Store, newCaller NewCaller, deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = discardLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	return &Handler{
		store:     st,
		newCaller: newCaller,
		clients:   make(map[string]rpcclient.Caller),
		engines:   make(map[string]models.Engine),
		hosts:     make(map[string]models.Host),
		setup:     make(map[string]*setupWorker),
		cleanup:   make(map[string]*cleanupWorker),
		deps:      deps,
	}
}

// InitializeClients (re)builds the client registry from the store's current
// host/engine inventory. Safe to call periodically to pick up inventory
// changes; existing clients for engines that still exist are left in place.
func (h *Handler) InitializeClients(ctx context.Context) error {
	hosts, err := h.store.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("list hosts: %w", err)
	}
	engines, err := h.store.ListEngines(ctx)
	if err != nil {
		return fmt.Errorf("list engines: %w", err)
	}
	hostByID := make(map[string]models.Host, len(hosts))
	hostByEngine := make(map[string]models.Host, len(engines))
	for _, hst := range hosts {
		hostByID[hst.ID] = hst
		for _, eid := range hst.EngineIDs {
			hostByEngine[eid] = hst
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.hosts = hostByID
	h.engines = make(map[string]models.Engine, len(engines))
	for _, e := range engines {
		h.engines[e.ID] = e
		if _, ok := h.clients[e.ID]; ok {
			continue
		}
		hst, ok := hostByEngine[e.ID]
		if !ok {
			continue
		}
		h.clients[e.ID] = h.newCaller(hst.Endpoint(e))
	}
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.deps.Logger.Logf("initialized clients for engines: %v", ids)
	return nil
}

// clientForEngine returns the cached client for engineID, spawning a fresh
// one from the store if it is not yet registered.
func (h *Handler) clientForEngine(ctx context.Context, engineID string) (rpcclient.Caller, error) {
	h.mu.Lock()
	c, ok := h.clients[engineID]
	h.mu.Unlock()
	if ok {
		return c, nil
	}

	engine, err := h.store.GetEngine(ctx, engineID)
	if err != nil {
		return nil, fmt.Errorf("lookup engine %s: %w", engineID, err)
	}
	hosts, err := h.store.ListHosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	var host models.Host
	found := false
	for _, hst := range hosts {
		for _, eid := range hst.EngineIDs {
			if eid == engineID {
				host, found = hst, true
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("no host hosts engine %s", engineID)
	}

	client := h.newCaller(host.Endpoint(engine))
	h.mu.Lock()
	h.clients[engineID] = client
	h.engines[engineID] = engine
	h.hosts[host.ID] = host
	h.mu.Unlock()
	return client, nil
}

// AllEngines returns the engines currently registered, in store order.
func (h *Handler) AllEngines(ctx context.Context) ([]models.Engine, error) {
	return h.store.ListEngines(ctx)
}
