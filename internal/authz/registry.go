package authz

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrInvalidKeyFormat rejects capability keys that do not match the
	// "resource:action" shape.
	ErrInvalidKeyFormat = errors.New("authz: invalid capability key format")
	// ErrDuplicateKey rejects registering the same capability twice.
	ErrDuplicateKey = errors.New("authz: duplicate capability key")
)

var capabilityKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*:[a-z][a-z0-9_]*$`)

// Registry holds the canonical set of capability keys. It is populated at
// provisioning time and read-only afterwards; lookups of unknown keys are
// not errors, callers treat them as "access denied".
type Registry struct {
	capabilities map[string]Capability
	ordered      []string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[string]Capability)}
}

// Register adds a capability. The key must match "resource:action" with
// lowercase underscore-delimited segments.
func (r *Registry) Register(key, description string, system bool) error {
	if !capabilityKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKeyFormat, key)
	}
	if _, exists := r.capabilities[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}
	resource, action, _ := strings.Cut(key, ":")
	r.capabilities[key] = Capability{
		Key:         key,
		Resource:    resource,
		Action:      action,
		Description: description,
		System:      system,
	}
	r.ordered = append(r.ordered, key)
	sort.Strings(r.ordered)
	return nil
}

// MustRegister is Register for seed data.
func (r *Registry) MustRegister(key, description string, system bool) {
	if err := r.Register(key, description, system); err != nil {
		panic(err)
	}
}

// Lookup returns the capability for key, or false for unknown keys.
func (r *Registry) Lookup(key string) (Capability, bool) {
	cap, ok := r.capabilities[key]
	return cap, ok
}

// Capabilities returns every registered capability ordered by key.
func (r *Registry) Capabilities() []Capability {
	out := make([]Capability, 0, len(r.ordered))
	for _, key := range r.ordered {
		out = append(out, r.capabilities[key])
	}
	return out
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	return len(r.capabilities)
}
