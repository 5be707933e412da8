package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

// DefaultTenantsKey is the hash used when no key is given.
const DefaultTenantsKey = "tenancy:tenants"

// Provider is a tenancy.TenantsProvider backed by a Redis hash. Each field is
// a tenant name; the value is the tenant's connection config as a JSON
// object, or empty when the tenant uses the shared base config.
type Provider struct {
	client redis.UniversalClient
	key    string
}

// NewProvider returns a provider reading the hash at key.
func NewProvider(client redis.UniversalClient, key string) *Provider {
	if key == "" {
		key = DefaultTenantsKey
	}
	return &Provider{client: client, key: key}
}

// Tenants implements tenancy.TenantsProvider. A missing hash is an empty
// tenant universe.
func (p *Provider) Tenants(ctx context.Context) (tenancy.Tenants, error) {
	raw, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, errors.Join(ErrLoadTenants, err)
	}

	out := make(tenancy.Tenants, len(raw))
	for name, value := range raw {
		if value == "" {
			out[name] = nil
			continue
		}
		var cfg tenancy.ConnConfig
		if err := json.Unmarshal([]byte(value), &cfg); err != nil {
			return nil, errors.Join(ErrInvalidTenantConfig, fmt.Errorf("tenant %q: %w", name, err))
		}
		out[name] = cfg
	}
	return out, nil
}

// Register adds tenant with its connection config. A nil cfg registers the
// tenant on the shared base config. Registering again replaces the config.
func (p *Provider) Register(ctx context.Context, tenant string, cfg tenancy.ConnConfig) error {
	value := ""
	if cfg != nil {
		b, err := json.Marshal(cfg)
		if err != nil {
			return errors.Join(ErrInvalidTenantConfig, err)
		}
		value = string(b)
	}
	return p.client.HSet(ctx, p.key, tenant, value).Err()
}

// Unregister removes tenant. Unknown tenants are ignored.
func (p *Provider) Unregister(ctx context.Context, tenant string) error {
	return p.client.HDel(ctx, p.key, tenant).Err()
}

// RegisterOnCreate returns a create hook that registers every newly created
// tenant on the shared base config.
func RegisterOnCreate[P any](p *Provider) tenancy.CreateHook[P] {
	return func(ctx context.Context, tenant string, _ P) error {
		return p.Register(ctx, tenant, nil)
	}
}
