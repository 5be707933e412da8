package tenancy

import (
	"errors"
	"fmt"
	"slices"
)

// Request names the connection to resolve. Empty fields take the configured
// defaults. TenantConfig is the tenant's entry from the tenants provider, if
// any.
type Request struct {
	Owner        string
	Tenant       string
	Role         string
	Shard        string
	TenantConfig ConnConfig
}

// Resolver maps a request to a Descriptor using the configured strategy.
// Resolution does no I/O and is deterministic for a given request and
// configuration.
type Resolver struct {
	cfg *Config
}

// NewResolver creates a resolver bound to cfg.
func NewResolver(cfg *Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve returns the descriptor for req.
func (r *Resolver) Resolve(req Request) (Descriptor, error) {
	if r.cfg == nil {
		return Descriptor{}, errors.Join(ErrConfiguration, ErrNotConfigured)
	}
	if !r.cfg.strategy.Valid() {
		return Descriptor{}, errors.Join(ErrConfiguration, ErrNoStrategy)
	}

	owner := req.Owner
	if owner == "" {
		owner = r.cfg.defaultOwner
	}
	base, ok := r.cfg.owners[owner]
	if !ok {
		return Descriptor{}, errors.Join(ErrConfiguration, ErrUnknownOwner, fmt.Errorf("owner %q", owner))
	}

	tenant := req.Tenant
	mapped := req.TenantConfig
	if tenant == "" || r.cfg.IsExcluded(owner) {
		tenant = r.cfg.defaultTenant
		mapped = nil
	}

	role := req.Role
	if role == "" {
		role = RoleWriting
	}
	shard := req.Shard
	if shard == "" {
		shard = DefaultShard
	}

	var resolved ConnConfig
	switch r.cfg.strategy {
	case StrategySchema:
		resolved = base.Clone()
		resolved[KeySearchPath] = r.searchPath(tenant)
	case StrategyDatabaseName:
		resolved = base.Clone()
		resolved[KeyDatabase] = r.databaseName(base, tenant, mapped)
	case StrategyShard:
		resolved = base.Clone()
		if s := mapped.String(KeyShard); s != "" {
			shard = s
		}
	case StrategyConfigMap:
		resolved = base.Merge(mapped)
	}

	return newDescriptor(owner, tenant, role, shard, resolved)
}

// searchPath puts the tenant schema first, followed by the persistent namespaces.
func (r *Resolver) searchPath(tenant string) []string {
	path := make([]string, 0, len(r.cfg.persistent)+1)
	path = append(path, tenant)
	for _, ns := range r.cfg.persistent {
		if !slices.Contains(path, ns) {
			path = append(path, ns)
		}
	}
	return path
}

func (r *Resolver) databaseName(base ConnConfig, tenant string, mapped ConnConfig) string {
	if name := mapped.String(KeyDatabase); name != "" {
		return name
	}
	if tenant == r.cfg.defaultTenant {
		if name := base.String(KeyDatabase); name != "" {
			return name
		}
	}
	return fmt.Sprintf(r.cfg.databaseNameFormat, tenant)
}
