package mediaclient

import (
	"slices"
	"strings"
)

// Capability is an operation a vendor integration may support.
type Capability string

// The closed set of capabilities.
const (
	CapCreateAccount    Capability = "create_account"
	CapDeleteAccount    Capability = "delete_account"
	CapDisableAccount   Capability = "disable_account"
	CapEnableAccount    Capability = "enable_account"
	CapSetLibraryAccess Capability = "set_library_access"
	CapSetPermissions   Capability = "set_permissions"
)

// AllCapabilities lists every known capability in a stable order.
var AllCapabilities = []Capability{
	CapCreateAccount,
	CapDeleteAccount,
	CapDisableAccount,
	CapEnableAccount,
	CapSetLibraryAccess,
	CapSetPermissions,
}

// CapabilitySet is an immutable set of capabilities declared for a vendor.
// The zero value is the empty set.
type CapabilitySet struct {
	caps []Capability // sorted, unique
}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	out := slices.Clone(caps)
	slices.Sort(out)
	return CapabilitySet{caps: slices.Compact(out)}
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, found := slices.BinarySearch(s.caps, c)
	return found
}

// List returns the capabilities in sorted order. The slice is a copy.
func (s CapabilitySet) List() []Capability {
	return slices.Clone(s.caps)
}

// Len returns the number of capabilities in the set.
func (s CapabilitySet) Len() int {
	return len(s.caps)
}

// String implements fmt.Stringer.
func (s CapabilitySet) String() string {
	parts := make([]string, len(s.caps))
	for i, c := range s.caps {
		parts[i] = string(c)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
