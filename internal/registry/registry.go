package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"secret-reflector/internal/backend"
	"secret-reflector/internal/models"
	"secret-reflector/pkg/converter"
	"secret-reflector/pkg/log"
)

var ErrUnknownStore = errors.New("store is not registered")

//nolint:gochecknoglobals
var defaultValidationTTL = 30 * time.Second

// Status is the cached result of a store reachability probe.
type Status struct {
	Ready     bool
	Reason    string
	CheckedAt time.Time
}

// ClientFactory builds a backend client from a store descriptor.
// Injectable for tests.
type ClientFactory func(ctx context.Context, descriptor *models.StoreDescriptor) (backend.Client, error)

// StoreRegistry holds the configured backend connection descriptors, builds
// their clients, and caches reachability probes so controller startup storms
// do not hammer the backends.
type StoreRegistry struct {
	mu            sync.RWMutex
	stores        map[string]*storeEntry
	factory       ClientFactory
	validationTTL time.Duration
	fetchSlots    int
	logger        zerolog.Logger
}

type storeEntry struct {
	descriptor models.StoreDescriptor
	client     backend.Client
	slots      chan struct{}
	lastProbe  *Status
}

type Option func(*StoreRegistry)

func WithClientFactory(factory ClientFactory) Option {
	return func(r *StoreRegistry) {
		r.factory = factory
	}
}

func WithValidationTTL(ttl time.Duration) Option {
	return func(r *StoreRegistry) {
		r.validationTTL = ttl
	}
}

func NewStoreRegistry(fetchSlotsPerStore int, opts ...Option) *StoreRegistry {
	r := &StoreRegistry{
		stores:        make(map[string]*storeEntry),
		factory:       defaultClientFactory,
		validationTTL: defaultValidationTTL,
		fetchSlots:    fetchSlotsPerStore,
		logger:        log.Logger.With().Str("component", "store_registry").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register builds a client for the descriptor and stores it under the
// descriptor's name. Descriptors are immutable: registering the same name
// again replaces the whole entry, including its probe cache and fetch slots.
func (r *StoreRegistry) Register(ctx context.Context, descriptor models.StoreDescriptor) error {
	logger := r.logger.With().Str("event", "register").
		Str("store", descriptor.Name).
		Str("kind", descriptor.Kind.String()).
		Logger()

	client, err := r.factory(ctx, &descriptor)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build backend client")
		return fmt.Errorf("failed to register store %s: %w", descriptor.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[descriptor.Name] = &storeEntry{
		descriptor: descriptor,
		client:     client,
		slots:      make(chan struct{}, r.fetchSlots),
	}

	logger.Info().Msg("Registered secret store")
	return nil
}

func (r *StoreRegistry) Client(name string) (backend.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, name)
	}
	return entry.client, nil
}

func (r *StoreRegistry) StoreNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return converter.MapKeysToSlice(r.stores)
}

// Validate probes the store for reachability. Results are cached for the
// registry's validation TTL; concurrent callers within the TTL window share
// the cached answer.
func (r *StoreRegistry) Validate(ctx context.Context, name string) Status {
	r.mu.RLock()
	entry, ok := r.stores[name]
	r.mu.RUnlock()

	if !ok {
		return Status{Ready: false, Reason: fmt.Sprintf("store %s is not registered", name), CheckedAt: time.Now()}
	}

	r.mu.RLock()
	cached := entry.lastProbe
	r.mu.RUnlock()
	if cached != nil && time.Since(cached.CheckedAt) < r.validationTTL {
		return *cached
	}

	status := Status{Ready: true, CheckedAt: time.Now()}
	if err := entry.client.Probe(ctx); err != nil {
		status.Ready = false
		status.Reason = err.Error()
		r.logger.Warn().Str("event", "validate").Str("store", name).Err(err).Msg("Store probe failed")
	} else {
		r.logger.Debug().Str("event", "validate").Str("store", name).Msg("Store probe succeeded")
	}

	r.mu.Lock()
	entry.lastProbe = &status
	r.mu.Unlock()

	return status
}

// AcquireFetchSlot takes one of the store's shared fetch slots, bounding the
// concurrent backend load across every mapping targeting that store. The
// returned release function must be called when the fetch completes.
func (r *StoreRegistry) AcquireFetchSlot(ctx context.Context, name string) (func(), error) {
	r.mu.RLock()
	entry, ok := r.stores[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, name)
	}

	select {
	case entry.slots <- struct{}{}:
		return func() { <-entry.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func defaultClientFactory(ctx context.Context, descriptor *models.StoreDescriptor) (backend.Client, error) {
	var (
		client backend.Client
		err    error
	)

	switch descriptor.Kind {
	case models.StoreKindAWSSecretsManager:
		client, err = backend.NewAWSSecretsManagerClient(ctx, descriptor)
	case models.StoreKindVaultKV:
		client, err = backend.NewVaultKVClient(descriptor)
	default:
		return nil, fmt.Errorf("unsupported store kind %q", descriptor.Kind)
	}
	if err != nil {
		return nil, err
	}

	return backend.NewResilientClient(descriptor.Name, client), nil
}
