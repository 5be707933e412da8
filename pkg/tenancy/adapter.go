package tenancy

import "context"

// Adapter performs the primitive operations of one database family. P is the
// pool type the adapter builds (for example *pgxpool.Pool).
type Adapter[P any] interface {
	// CreateTenant creates the tenant's isolation unit. Returns
	// ErrTenantAlreadyExists if it already exists.
	CreateTenant(ctx context.Context, tenant string) error

	// DropTenant removes the tenant's isolation unit. Returns
	// ErrTenantNotFound if it does not exist.
	DropTenant(ctx context.Context, tenant string) error

	// BuildPool establishes the connections the descriptor implies. Returns
	// ErrTenantNotFound if the descriptor targets a missing isolation unit.
	BuildPool(ctx context.Context, d Descriptor) (P, error)

	// ClosePool drains and closes a pool built by BuildPool.
	ClosePool(ctx context.Context, pool P) error

	// CurrentMarker reports which tenant the pool believes it is bound to.
	CurrentMarker(ctx context.Context, pool P) (string, error)

	// RescuableErrors lists the errors the adapter may raise that callers
	// translate into the tenancy taxonomy. Matching uses errors.Is.
	RescuableErrors() []error
}

// QueryCacheClearer is implemented by pools that cache query results. The
// switcher clears the cache whenever it switches onto such a pool.
type QueryCacheClearer interface {
	ClearQueryCache()
}
