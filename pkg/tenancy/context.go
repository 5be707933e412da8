package tenancy

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// frame is one immutable entry of the tenant stack.
type frame struct {
	tenant string
	prev   *frame
}

// TenantContext holds the current tenant of a single execution context.
// Reads are lock-free and always observe a fully written value. A
// TenantContext must be owned by one goroutine; use Fork to hand a copy to
// another goroutine.
type TenantContext struct {
	id            uuid.UUID
	defaultTenant string
	top           atomic.Pointer[frame]
}

func newTenantContext(defaultTenant string) *TenantContext {
	return &TenantContext{
		id:            uuid.New(),
		defaultTenant: defaultTenant,
	}
}

// ID identifies the execution context in logs and diagnostics.
func (c *TenantContext) ID() uuid.UUID {
	return c.id
}

// Default returns the tenant reported when nothing was set.
func (c *TenantContext) Default() string {
	return c.defaultTenant
}

// Get returns the current tenant, or the default tenant if none was set.
func (c *TenantContext) Get() string {
	if f := c.top.Load(); f != nil && f.tenant != "" {
		return f.tenant
	}
	return c.defaultTenant
}

// Explicit reports whether a tenant was set on this context.
func (c *TenantContext) Explicit() bool {
	return c.top.Load() != nil
}

// Set replaces the current tenant without growing the stack.
func (c *TenantContext) Set(tenant string) {
	c.update(func(old *frame) *frame {
		var prev *frame
		if old != nil {
			prev = old.prev
		}
		return &frame{tenant: tenant, prev: prev}
	})
}

// Push makes tenant current and returns the tenant that was current before.
func (c *TenantContext) Push(tenant string) (previous string) {
	c.update(func(old *frame) *frame {
		previous = c.defaultTenant
		if old != nil && old.tenant != "" {
			previous = old.tenant
		}
		return &frame{tenant: tenant, prev: old}
	})
	return previous
}

// Restore pops the frame added by the matching Push and makes previous current.
func (c *TenantContext) Restore(previous string) {
	c.update(func(old *frame) *frame {
		var below *frame
		if old != nil {
			below = old.prev
		}
		if below == nil {
			if previous == "" || previous == c.defaultTenant {
				return nil
			}
			return &frame{tenant: previous}
		}
		if below.tenant == previous {
			return below
		}
		return &frame{tenant: previous, prev: below.prev}
	})
}

// Reset drops every frame, returning the context to the default tenant.
func (c *TenantContext) Reset() {
	c.top.Store(nil)
}

// Depth returns the number of frames on the stack.
func (c *TenantContext) Depth() int {
	n := 0
	for f := c.top.Load(); f != nil; f = f.prev {
		n++
	}
	return n
}

func (c *TenantContext) update(fn func(old *frame) *frame) {
	for {
		old := c.top.Load()
		if c.top.CompareAndSwap(old, fn(old)) {
			return
		}
	}
}

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// NewContext attaches a fresh TenantContext to parent. Call it at every
// unit-of-work boundary (request, job, task) so no state leaks between units.
func NewContext(parent context.Context, defaultTenant string) context.Context {
	return context.WithValue(parent, contextKey{}, newTenantContext(defaultTenant))
}

// FromContext retrieves the TenantContext attached to ctx.
func FromContext(ctx context.Context) (*TenantContext, bool) {
	if ctx == nil {
		return nil, false
	}
	tc, ok := ctx.Value(contextKey{}).(*TenantContext)
	return tc, ok && tc != nil
}

// Fork attaches a new TenantContext seeded with the current tenant of ctx.
// Use it before handing ctx to another goroutine so that switches made by the
// goroutine stay invisible to the parent. A ctx without a TenantContext is
// returned unchanged.
func Fork(ctx context.Context) context.Context {
	parent, ok := FromContext(ctx)
	if !ok {
		return ctx
	}
	child := newTenantContext(parent.defaultTenant)
	if parent.Explicit() {
		child.top.Store(&frame{tenant: parent.Get()})
	}
	return context.WithValue(ctx, contextKey{}, child)
}

// CurrentTenant returns the current tenant of ctx.
// Returns "", false if ctx carries no TenantContext.
func CurrentTenant(ctx context.Context) (string, bool) {
	tc, ok := FromContext(ctx)
	if !ok {
		return "", false
	}
	return tc.Get(), true
}

// LoggerExtractor returns a ContextExtractor for the logger that adds the
// current tenant to every record.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if tenant, ok := CurrentTenant(ctx); ok {
			return slog.String("tenant", tenant), true
		}
		return slog.Attr{}, false
	}
}
