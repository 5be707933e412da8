package tenancy

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Tenants maps every known tenant to its own connection configuration. A nil
// entry means the tenant resolves to the shared base configuration.
type Tenants map[string]ConnConfig

// Names returns the tenant names in sorted order.
func (t Tenants) Names() []string {
	return slices.Sorted(maps.Keys(t))
}

// TenantsProvider supplies the tenant universe. It is called on every lookup;
// callers that need a stable view must keep the returned value.
type TenantsProvider interface {
	Tenants(ctx context.Context) (Tenants, error)
}

// ProviderFunc is an adapter to allow the use of ordinary functions as TenantsProvider.
type ProviderFunc func(ctx context.Context) (Tenants, error)

// Tenants calls the function.
func (f ProviderFunc) Tenants(ctx context.Context) (Tenants, error) {
	return f(ctx)
}

// ListProvider returns a provider for a flat list of tenant names. Every
// tenant resolves to the shared base configuration.
func ListProvider(names ...string) TenantsProvider {
	names = slices.Clone(names)
	return ProviderFunc(func(ctx context.Context) (Tenants, error) {
		out := make(Tenants, len(names))
		for _, name := range names {
			out[name] = nil
		}
		return out, nil
	})
}

// MapProvider returns a provider for a fixed tenant → configuration mapping.
func MapProvider(tenants map[string]ConnConfig) TenantsProvider {
	snapshot := cloneTenants(tenants)
	return ProviderFunc(func(ctx context.Context) (Tenants, error) {
		return cloneTenants(snapshot), nil
	})
}

// FileProvider reads tenants from a YAML file on every call. The document is
// either a sequence of names or a mapping of name → configuration.
func FileProvider(path string) TenantsProvider {
	return ProviderFunc(func(ctx context.Context) (Tenants, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, newError("load tenants file", "", ErrFileNotFound, err)
			}
			return nil, fmt.Errorf("read tenants file %s: %w", path, err)
		}

		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.Join(ErrInvalidTenantsData, err)
		}
		return NormalizeTenants(doc)
	})
}

// NormalizeTenants converts a decoded document into Tenants. It accepts a
// list of names or a mapping of name → configuration (nil for the base).
func NormalizeTenants(doc any) (Tenants, error) {
	switch v := doc.(type) {
	case nil:
		return Tenants{}, nil
	case []string:
		out := make(Tenants, len(v))
		for _, name := range v {
			out[name] = nil
		}
		return out, nil
	case []any:
		out := make(Tenants, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok || name == "" {
				return nil, errors.Join(ErrInvalidTenantsData, fmt.Errorf("tenant name %v is not a string", item))
			}
			out[name] = nil
		}
		return out, nil
	case map[string]any:
		out := make(Tenants, len(v))
		for name, raw := range v {
			if raw == nil {
				out[name] = nil
				continue
			}
			cfg, ok := asMap(raw)
			if !ok {
				return nil, errors.Join(ErrInvalidTenantsData, fmt.Errorf("tenant %q config is not a mapping", name))
			}
			out[name] = cfg.Clone()
		}
		return out, nil
	}
	return nil, errors.Join(ErrInvalidTenantsData, fmt.Errorf("unsupported document type %T", doc))
}

func cloneTenants(in map[string]ConnConfig) Tenants {
	out := make(Tenants, len(in))
	for name, cfg := range in {
		out[name] = cfg.Clone()
	}
	return out
}
