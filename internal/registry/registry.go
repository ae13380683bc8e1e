// Package registry owns the protected-resource configuration consulted by the
// authorization gateway. Resources are keyed by canonical origin and persist
// behind a pluggable store; writes follow last-completed-write-wins at the
// storage layer.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Resource is the configuration of one protected origin.
type Resource struct {
	WalletAddress string    `json:"walletAddress"`
	Price         string    `json:"price"`
	Network       string    `json:"network"`
	Description   string    `json:"description"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Update carries a partial-field mutation. Nil fields are left untouched;
// UpdatedAt refreshes unconditionally.
type Update struct {
	WalletAddress *string
	Price         *string
	Network       *string
	Description   *string
	Enabled       *bool
}

func (u Update) apply(r *Resource) {
	if u.WalletAddress != nil {
		r.WalletAddress = *u.WalletAddress
	}
	if u.Price != nil {
		r.Price = *u.Price
	}
	if u.Network != nil {
		r.Network = *u.Network
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Enabled != nil {
		r.Enabled = *u.Enabled
	}
	r.UpdatedAt = time.Now().UTC()
}

// ErrNotFound reports a lookup against an unregistered origin.
var ErrNotFound = errors.New("protected resource not found")

// ErrExists reports a create against an already-registered origin.
var ErrExists = errors.New("protected resource already exists")

// ValidationError reports malformed registration input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid resource: " + e.Reason }

// Registry is the store consulted by the gateway. The gateway only reads;
// mutations happen exclusively through the management routes. Implementations
// are read-through: every call observes the backing store, with no process
// cache that could diverge after out-of-process edits.
type Registry interface {
	Get(ctx context.Context, origin string) (Resource, error)
	List(ctx context.Context) (map[string]Resource, error)
	Create(ctx context.Context, origin string, res Resource) (Resource, error)
	Update(ctx context.Context, origin string, upd Update) (Resource, error)
	Delete(ctx context.Context, origin string) error
}

// CanonicalOrigin parses raw into its scheme://host[:port] form. Anything that
// is not an absolute URL with a host is rejected.
func CanonicalOrigin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse origin %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin %q is not an absolute URL", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

func validateCreate(origin string, res Resource) (string, error) {
	canonical, err := CanonicalOrigin(origin)
	if err != nil {
		return "", &ValidationError{Reason: err.Error()}
	}
	switch {
	case res.WalletAddress == "":
		return "", &ValidationError{Reason: "walletAddress is required"}
	case res.Price == "":
		return "", &ValidationError{Reason: "price is required"}
	case res.Network == "":
		return "", &ValidationError{Reason: "network is required"}
	case res.Description == "":
		return "", &ValidationError{Reason: "description is required"}
	}
	return canonical, nil
}

func stampNew(res *Resource) {
	now := time.Now().UTC()
	res.Enabled = true
	res.CreatedAt = now
	res.UpdatedAt = now
}
