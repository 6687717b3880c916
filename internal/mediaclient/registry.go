package mediaclient

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/invitarr/invitarr-server/internal/domain"
)

var (
	// ErrRegistrySealed is returned by Register once the registry has been read.
	ErrRegistrySealed = errors.New("mediaclient: registry is sealed")
	// ErrDuplicateVendor is returned when a vendor type is registered twice.
	ErrDuplicateVendor = errors.New("mediaclient: vendor already registered")
)

type registration struct {
	ctor Constructor
	caps CapabilitySet
}

// Registry maps vendor types to client constructors and declared capabilities.
// Registration happens during startup; the first lookup seals the registry and
// lookups after that take no locks.
type Registry struct {
	mu      sync.Mutex // guards entries while unsealed
	entries map[domain.VendorType]registration
	sealed  atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[domain.VendorType]registration)}
}

// Register adds a vendor. Registering the same vendor twice is an error.
func (r *Registry) Register(vendor domain.VendorType, ctor Constructor, caps CapabilitySet) error {
	if ctor == nil {
		return fmt.Errorf("mediaclient: nil constructor for %s", vendor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return ErrRegistrySealed
	}
	if _, exists := r.entries[vendor]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateVendor, vendor)
	}
	r.entries[vendor] = registration{ctor: ctor, caps: caps}
	return nil
}

// MustRegister is Register that panics on error, for use in init paths.
func (r *Registry) MustRegister(vendor domain.VendorType, ctor Constructor, caps CapabilitySet) {
	if err := r.Register(vendor, ctor, caps); err != nil {
		panic(err)
	}
}

// Seal stops further registration. Lookups seal implicitly.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

func (r *Registry) lookup(vendor domain.VendorType) (registration, bool) {
	if !r.sealed.Load() {
		r.Seal()
	}
	reg, ok := r.entries[vendor]
	return reg, ok
}

// CreateClient constructs a client for the given vendor. The returned client
// only ever fails with normalized errors and refuses calls for capabilities
// the vendor did not declare.
func (r *Registry) CreateClient(vendor domain.VendorType, cfg Config) (Client, error) {
	reg, ok := r.lookup(vendor)
	if !ok {
		return nil, &UnknownVendorTypeError{Vendor: vendor}
	}
	inner, err := reg.ctor(cfg)
	if err != nil {
		return nil, Normalize(vendor, "construct", err)
	}
	return &normalizingClient{vendor: vendor, caps: reg.caps, inner: inner}, nil
}

// GetCapabilities answers from registration data without constructing a client.
func (r *Registry) GetCapabilities(vendor domain.VendorType) (CapabilitySet, error) {
	reg, ok := r.lookup(vendor)
	if !ok {
		return CapabilitySet{}, &UnknownVendorTypeError{Vendor: vendor}
	}
	return reg.caps, nil
}

// Vendors returns the registered vendor types in sorted order.
func (r *Registry) Vendors() []domain.VendorType {
	if !r.sealed.Load() {
		r.Seal()
	}
	out := make([]domain.VendorType, 0, len(r.entries))
	for v := range r.entries {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
