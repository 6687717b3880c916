// Package mediaclienttest provides an in-memory vendor client for tests.
package mediaclienttest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
)

// Account is the fake vendor's stored account.
type Account struct {
	ID          string
	Username    string
	Email       string
	LibraryIDs  []string
	Permissions domain.Permissions
	Disabled    bool
}

// Fake is a programmable vendor. Errors queued with FailNext are returned by
// the named operation in order before it starts succeeding.
type Fake struct {
	Vendor    domain.VendorType
	Caps      mediaclient.CapabilitySet
	Libraries []mediaclient.LibraryInfo

	// BeforeCreate runs at the start of CreateAccount; tests use it to block
	// or cancel.
	BeforeCreate func(ctx context.Context) error

	mu       sync.Mutex
	accounts map[string]*Account
	byToken  map[string]string
	failures map[string][]error
	calls    map[string]int
	nextID   int
}

// New returns a fake with every capability.
func New(vendor domain.VendorType) *Fake {
	return &Fake{
		Vendor:   vendor,
		Caps:     mediaclient.NewCapabilitySet(mediaclient.AllCapabilities...),
		accounts: make(map[string]*Account),
		byToken:  make(map[string]string),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// Constructor returns a registry constructor that always hands out f.
func (f *Fake) Constructor() mediaclient.Constructor {
	return func(mediaclient.Config) (mediaclient.Client, error) {
		return f, nil
	}
}

// FailNext queues errors for op ("create_account", "set_permissions", ...).
func (f *Fake) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Accounts returns a snapshot of stored accounts.
func (f *Fake) Accounts() []Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b Account) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Account returns a stored account by ID.
func (f *Fake) Account(id string) (Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

func (f *Fake) begin(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if q := f.failures[op]; len(q) > 0 {
		err := q[0]
		f.failures[op] = q[1:]
		return err
	}
	return nil
}

func (f *Fake) Capabilities() mediaclient.CapabilitySet {
	return f.Caps
}

func (f *Fake) CreateAccount(ctx context.Context, req mediaclient.ProvisionRequest) (*mediaclient.ExternalAccount, error) {
	if f.BeforeCreate != nil {
		if err := f.BeforeCreate(ctx); err != nil {
			return nil, err
		}
	}
	if err := f.begin("create_account"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.byToken[req.IdempotencyToken]; ok && req.IdempotencyToken != "" {
		a := f.accounts[id]
		return &mediaclient.ExternalAccount{ID: a.ID, Username: a.Username, Email: a.Email}, nil
	}
	for _, a := range f.accounts {
		if a.Username == req.Username {
			return nil, mediaclient.HTTPError(f.Vendor, "create_account", 409, "username taken")
		}
	}

	f.nextID++
	a := &Account{
		ID:          fmt.Sprintf("%s-%d", f.Vendor, f.nextID),
		Username:    req.Username,
		Email:       req.Email,
		LibraryIDs:  slices.Clone(req.LibraryIDs),
		Permissions: req.Permissions,
	}
	f.accounts[a.ID] = a
	if req.IdempotencyToken != "" {
		f.byToken[req.IdempotencyToken] = a.ID
	}
	return &mediaclient.ExternalAccount{ID: a.ID, Username: a.Username, Email: a.Email}, nil
}

func (f *Fake) update(op, externalID string, fn func(a *Account)) error {
	if err := f.begin(op); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[externalID]
	if !ok {
		return mediaclient.HTTPError(f.Vendor, op, 404, "no such account")
	}
	fn(a)
	return nil
}

func (f *Fake) SetLibraryAccess(_ context.Context, externalID string, libraryIDs []string) error {
	return f.update("set_library_access", externalID, func(a *Account) {
		a.LibraryIDs = slices.Clone(libraryIDs)
	})
}

func (f *Fake) SetPermissions(_ context.Context, externalID string, perms domain.Permissions) error {
	return f.update("set_permissions", externalID, func(a *Account) {
		a.Permissions = perms
	})
}

func (f *Fake) DisableAccount(_ context.Context, externalID string) error {
	return f.update("disable_account", externalID, func(a *Account) {
		a.Disabled = true
	})
}

func (f *Fake) EnableAccount(_ context.Context, externalID string) error {
	return f.update("enable_account", externalID, func(a *Account) {
		a.Disabled = false
	})
}

func (f *Fake) DeleteAccount(_ context.Context, externalID string) error {
	if err := f.begin("delete_account"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[externalID]; !ok {
		return mediaclient.HTTPError(f.Vendor, "delete_account", 404, "no such account")
	}
	delete(f.accounts, externalID)
	return nil
}

func (f *Fake) ListLibraries(context.Context) ([]mediaclient.LibraryInfo, error) {
	if err := f.begin("list_libraries"); err != nil {
		return nil, err
	}
	return slices.Clone(f.Libraries), nil
}
