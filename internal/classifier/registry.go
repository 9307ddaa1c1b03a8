package classifier

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
)

// Registry errors
var (
	ErrInvalidEntry   = errors.New("invalid watched address entry")
	ErrDuplicateEntry = errors.New("watched address already registered")
	ErrRegistryOrder  = errors.New("capital flow sources must be registered before AI agents")
)

// WatchedAddress is one registry entry.
type WatchedAddress struct {
	Address string
	Name    string
	Role    domain.Role
}

// Registry is the ordered set of watched addresses.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	entries []WatchedAddress
	index   map[string]struct{}
}

// NewRegistry builds a registry from entries in the given order.
// All CAPITAL_FLOW_SOURCE entries must precede every AI_AGENT entry, so the
// first-match rule always resolves a mixed event to CAPITAL_FLOW.
func NewRegistry(entries ...WatchedAddress) (*Registry, error) {
	r := &Registry{
		entries: make([]WatchedAddress, 0, len(entries)),
		index:   make(map[string]struct{}, len(entries)),
	}
	for _, e := range entries {
		if err := r.add(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(e WatchedAddress) error {
	if e.Address == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidEntry)
	}
	if !e.Role.IsValid() {
		return fmt.Errorf("%w: %s has role %q", ErrInvalidEntry, e.Address, e.Role)
	}
	if _, ok := r.index[e.Address]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Address)
	}
	if e.Role == domain.RoleCapitalFlowSource && r.hasRole(domain.RoleAIAgent) {
		return fmt.Errorf("%w: %s (%s)", ErrRegistryOrder, e.Address, e.Name)
	}
	r.entries = append(r.entries, e)
	r.index[e.Address] = struct{}{}
	return nil
}

func (r *Registry) hasRole(role domain.Role) bool {
	for _, e := range r.entries {
		if e.Role == role {
			return true
		}
	}
	return false
}

// Entries returns a copy of the registry in insertion order.
func (r *Registry) Entries() []WatchedAddress {
	out := make([]WatchedAddress, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Match returns the first entry present in the event's involved accounts
// or anywhere in its raw payload text.
func (r *Registry) Match(ev *domain.TransactionEvent) (WatchedAddress, bool) {
	for _, e := range r.entries {
		if ev.Involves(e.Address) || bytes.Contains(ev.RawPayload, []byte(e.Address)) {
			return e, true
		}
	}
	return WatchedAddress{}, false
}

// Default watched addresses.
const (
	JupiterAddress          = "JUP6Lkbuej7is598XDn7Bms6p71J9r7onq9s48SUnAn"
	RaydiumAuthorityAddress = "675kPX9MHTjS2zt1q61utZskL8HPY944S5utE7NmoZ3e"
	ZerebroAddress          = "2S6mPGm8kHtbhiqa44e8yYAU5nYMLoqxUQa9T2w3UGrN"
	PippinAddress           = "Dfhv69v86X874UicFayS9uPAGf9hXisP59N6pX9vpump"
)

// DefaultEntries returns the built-in watch list.
func DefaultEntries() []WatchedAddress {
	return []WatchedAddress{
		{Address: JupiterAddress, Name: "Jupiter", Role: domain.RoleCapitalFlowSource},
		{Address: RaydiumAuthorityAddress, Name: "Raydium Authority", Role: domain.RoleCapitalFlowSource},
		{Address: ZerebroAddress, Name: "Zerebro", Role: domain.RoleAIAgent},
		{Address: PippinAddress, Name: "Pippin", Role: domain.RoleAIAgent},
	}
}

// DefaultRegistry returns a registry of DefaultEntries.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultEntries()...)
	if err != nil {
		panic(err) // static list
	}
	return r
}
