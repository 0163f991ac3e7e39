// Package tenantcontext carries the authenticated tenant through a unit of
// work. A unit of work is opened with Begin and owns a private slot that is
// reachable only through contexts derived from it, so concurrent requests
// never share state and no global lock is involved.
package tenantcontext

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrNoTenant is returned to consumers that require a bound tenant.
	ErrNoTenant = errors.New("no_tenant_context")
	// ErrTenantRebind reports an attempt to bind a second tenant to a unit of work.
	ErrTenantRebind = errors.New("tenant_rebind")
	// ErrZeroTenant reports an attempt to bind the unset identity.
	ErrZeroTenant = errors.New("zero_tenant")
	// ErrNoScope reports Bind on a context that was never opened with Begin.
	ErrNoScope = errors.New("no_tenant_scope")
	// ErrScopeEnded reports Bind on a unit of work that already finished.
	ErrScopeEnded = errors.New("tenant_scope_ended")
)

// Identity is the tenant bound to a unit of work. The zero value means unset.
type Identity struct {
	ID                uuid.UUID
	DisplayName       string
	PaymentAccountRef string
}

func (i Identity) IsZero() bool {
	return i.ID == uuid.Nil
}

// HasPaymentAccount reports whether the tenant completed payment onboarding.
func (i Identity) HasPaymentAccount() bool {
	return i.PaymentAccountRef != ""
}

type scopeKey struct{}

// Scope is the per-unit-of-work slot. owner keeps the first tenant ever bound
// and survives Clear, so a unit of work belongs to at most one tenant.
type Scope struct {
	bound atomic.Pointer[Identity]
	owner atomic.Pointer[uuid.UUID]
	ended atomic.Bool
}

// Begin opens a new unit of work with an empty slot.
func Begin(ctx context.Context) (context.Context, *Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Scope{}
	return context.WithValue(ctx, scopeKey{}, s), s
}

// End clears the slot. Contexts derived from the unit of work observe unset
// afterwards, including goroutines that captured it without Detach.
func (s *Scope) End() {
	if s == nil {
		return
	}
	s.ended.Store(true)
	s.bound.Store(nil)
}

// Identity returns the identity bound to the scope.
func (s *Scope) Identity() (Identity, bool) {
	if s == nil {
		return Identity{}, false
	}
	p := s.bound.Load()
	if p == nil {
		return Identity{}, false
	}
	return *p, true
}

func (s *Scope) bind(id Identity) {
	if s.ended.Load() {
		panic(ErrScopeEnded)
	}
	owner := id.ID
	if !s.owner.CompareAndSwap(nil, &owner) {
		if prev := s.owner.Load(); *prev != id.ID {
			panic(fmt.Errorf("%w: %s owns this unit of work, refusing %s", ErrTenantRebind, *prev, id.ID))
		}
	}
	s.bound.Store(&id)
}

func scopeFrom(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// Bind associates id with the unit of work carried by ctx. Binding the same
// tenant again replaces the stored identity. Binding a different tenant is a
// programming error and panics.
func Bind(ctx context.Context, id Identity) {
	if id.IsZero() {
		panic(ErrZeroTenant)
	}
	s := scopeFrom(ctx)
	if s == nil {
		panic(ErrNoScope)
	}
	s.bind(id)
}

// Current returns the tenant bound to ctx. Unset is not an error.
func Current(ctx context.Context) (Identity, bool) {
	return scopeFrom(ctx).Identity()
}

// Clear drops the binding of the unit of work carried by ctx. Only the tenant
// that was cleared may be bound again; another tenant needs Begin or Isolate.
func Clear(ctx context.Context) {
	if s := scopeFrom(ctx); s != nil {
		s.bound.Store(nil)
	}
}

// Require returns the bound tenant or ErrNoTenant.
func Require(ctx context.Context) (Identity, error) {
	id, ok := Current(ctx)
	if !ok {
		return Identity{}, ErrNoTenant
	}
	return id, nil
}

// IDString returns the bound tenant id or an empty string.
func IDString(ctx context.Context) string {
	id, ok := Current(ctx)
	if !ok {
		return ""
	}
	return id.ID.String()
}

// Detach derives the context for background work spawned from ctx. The child
// inherits a snapshot of the current tenant in its own slot and is not
// cancelled with the parent.
func Detach(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	child := &Scope{}
	if id, ok := Current(ctx); ok {
		child.bind(id)
	}
	return context.WithValue(context.WithoutCancel(ctx), scopeKey{}, child)
}

// Isolate derives a context that keeps ctx values and cancellation but starts
// with an empty slot, for work that must not inherit the caller's tenant.
func Isolate(ctx context.Context) context.Context {
	ctx, _ = Begin(ctx)
	return ctx
}

// WithIdentity opens a new unit of work already bound to id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx, s := Begin(ctx)
	if id.IsZero() {
		return ctx
	}
	s.bind(id)
	return ctx
}
