package tenancy

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

const (
	// DefaultOwner is the owner used when a request names none.
	DefaultOwner = "primary"
	// DefaultTenant is the tenant reported when nothing was switched.
	DefaultTenant = "public"
	// DefaultShard is the shard used when a request names none.
	DefaultShard = "default"
	// RoleWriting is the default connection role.
	RoleWriting = "writing"
	// RoleReading is the role for read replicas.
	RoleReading = "reading"
	// DefaultRestoreAttempts bounds fallback attempts when restoring a scoped switch.
	DefaultRestoreAttempts = 3
	// DefaultDatabaseNameFormat maps a tenant to a database name of the same name.
	DefaultDatabaseNameFormat = "%s"
)

// EnvConfig holds tenancy settings read from the environment.
type EnvConfig struct {
	Strategy           Strategy `env:"TENANCY_STRATEGY" envDefault:"schema"`         // Strategy is one of schema, database_name, shard, config_map.
	DefaultTenant      string   `env:"TENANCY_DEFAULT_TENANT" envDefault:"public"`   // DefaultTenant is reported when nothing is switched.
	PersistentSchemas  []string `env:"TENANCY_PERSISTENT_SCHEMAS" envSeparator:","`  // PersistentSchemas stay on the search path of every tenant.
	ExcludedOwners     []string `env:"TENANCY_EXCLUDED_OWNERS" envSeparator:","`     // ExcludedOwners always use the default tenant.
	Tenants            []string `env:"TENANCY_TENANTS" envSeparator:","`             // Tenants is a static tenant list, used when TenantsFile is empty.
	TenantsFile        string   `env:"TENANCY_TENANTS_FILE"`                         // TenantsFile is a YAML list or mapping of tenants.
	DatabaseURL        string   `env:"TENANCY_DATABASE_URL"`                         // DatabaseURL is the base connection URL of the primary owner.
	DatabaseNameFormat string   `env:"TENANCY_DATABASE_NAME_FORMAT" envDefault:"%s"` // DatabaseNameFormat maps a tenant name to a database name.
	RestoreAttempts    int      `env:"TENANCY_RESTORE_ATTEMPTS" envDefault:"3"`      // RestoreAttempts bounds fallbacks to the default tenant.
}

// Config is the frozen tenancy configuration. It has no setters; build it
// with NewConfig or Store.Configure.
type Config struct {
	strategy           Strategy
	tenants            TenantsProvider
	defaultTenant      string
	defaultOwner       string
	persistent         []string
	excluded           map[string]struct{}
	owners             map[string]ConnConfig
	databaseNameFormat string
	restoreAttempts    int
}

// Option configures the builder consumed by NewConfig.
type Option func(*builder)

type builder struct {
	strategy           Strategy
	tenants            TenantsProvider
	defaultTenant      string
	defaultOwner       string
	persistent         []string
	excluded           []string
	owners             map[string]ConnConfig
	databaseNameFormat string
	restoreAttempts    int
}

// WithStrategy sets the isolation strategy.
func WithStrategy(s Strategy) Option {
	return func(b *builder) {
		b.strategy = s
	}
}

// WithTenants sets the tenants provider.
func WithTenants(p TenantsProvider) Option {
	return func(b *builder) {
		b.tenants = p
	}
}

// WithTenantNames sets a static list of tenants that share the base configuration.
func WithTenantNames(names ...string) Option {
	return WithTenants(ListProvider(names...))
}

// WithDefaultTenant sets the tenant reported when nothing is switched.
func WithDefaultTenant(tenant string) Option {
	return func(b *builder) {
		b.defaultTenant = tenant
	}
}

// WithPersistentSchemas sets namespaces that stay on every tenant's search path.
func WithPersistentSchemas(schemas ...string) Option {
	return func(b *builder) {
		b.persistent = append(b.persistent, schemas...)
	}
}

// WithExcludedOwners marks owners whose connections always use the default tenant.
func WithExcludedOwners(owners ...string) Option {
	return func(b *builder) {
		b.excluded = append(b.excluded, owners...)
	}
}

// WithBaseConfig sets the base connection configuration of the default owner.
func WithBaseConfig(cfg ConnConfig) Option {
	return func(b *builder) {
		b.owners[b.defaultOwner] = cfg.Clone()
	}
}

// WithOwner registers an additional connection owner with its base configuration.
func WithOwner(owner string, cfg ConnConfig) Option {
	return func(b *builder) {
		b.owners[owner] = cfg.Clone()
	}
}

// WithDefaultOwner changes the owner used when a request names none.
// Apply it before WithBaseConfig.
func WithDefaultOwner(owner string) Option {
	return func(b *builder) {
		if base, ok := b.owners[b.defaultOwner]; ok && len(base) == 0 {
			delete(b.owners, b.defaultOwner)
		}
		b.defaultOwner = owner
		if _, ok := b.owners[owner]; !ok {
			b.owners[owner] = ConnConfig{}
		}
	}
}

// WithDatabaseNameFormat sets the fmt pattern that maps a tenant to its database
// name under the database-name strategy, e.g. "app_%s".
func WithDatabaseNameFormat(format string) Option {
	return func(b *builder) {
		b.databaseNameFormat = format
	}
}

// WithRestoreAttempts bounds how many times a failed restoration retries the default tenant.
func WithRestoreAttempts(n int) Option {
	return func(b *builder) {
		b.restoreAttempts = n
	}
}

// FromEnv applies settings loaded from the environment.
func FromEnv(env EnvConfig) Option {
	return func(b *builder) {
		b.strategy = env.Strategy
		if env.DefaultTenant != "" {
			b.defaultTenant = env.DefaultTenant
		}
		b.persistent = append(b.persistent, env.PersistentSchemas...)
		b.excluded = append(b.excluded, env.ExcludedOwners...)
		switch {
		case env.TenantsFile != "":
			b.tenants = FileProvider(env.TenantsFile)
		case len(env.Tenants) > 0:
			b.tenants = ListProvider(env.Tenants...)
		}
		if env.DatabaseURL != "" {
			base := b.owners[b.defaultOwner].Clone()
			if base == nil {
				base = ConnConfig{}
			}
			base[KeyURL] = env.DatabaseURL
			b.owners[b.defaultOwner] = base
		}
		if env.DatabaseNameFormat != "" {
			b.databaseNameFormat = env.DatabaseNameFormat
		}
		if env.RestoreAttempts != 0 {
			b.restoreAttempts = env.RestoreAttempts
		}
	}
}

// NewConfig runs opts over a fresh builder, validates the result and returns
// the frozen configuration.
func NewConfig(opts ...Option) (*Config, error) {
	b := &builder{
		defaultTenant:      DefaultTenant,
		defaultOwner:       DefaultOwner,
		owners:             map[string]ConnConfig{DefaultOwner: {}},
		databaseNameFormat: DefaultDatabaseNameFormat,
		restoreAttempts:    DefaultRestoreAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	if err := b.validate(); err != nil {
		return nil, errors.Join(ErrConfiguration, err)
	}

	excluded := make(map[string]struct{}, len(b.excluded))
	for _, owner := range b.excluded {
		excluded[owner] = struct{}{}
	}
	owners := make(map[string]ConnConfig, len(b.owners))
	for owner, base := range b.owners {
		if base == nil {
			base = ConnConfig{}
		}
		owners[owner] = base.Clone()
	}

	return &Config{
		strategy:           b.strategy,
		tenants:            b.tenants,
		defaultTenant:      b.defaultTenant,
		defaultOwner:       b.defaultOwner,
		persistent:         compact(b.persistent),
		excluded:           excluded,
		owners:             owners,
		databaseNameFormat: b.databaseNameFormat,
		restoreAttempts:    b.restoreAttempts,
	}, nil
}

func (b *builder) validate() error {
	var errs []error
	switch {
	case b.strategy == StrategyUnknown:
		errs = append(errs, ErrNoStrategy)
	case !b.strategy.Valid():
		errs = append(errs, ErrUnknownStrategy)
	}
	if b.tenants == nil {
		errs = append(errs, ErrNoTenantsProvider)
	}
	if strings.TrimSpace(b.defaultTenant) == "" {
		errs = append(errs, fmt.Errorf("default %w", ErrEmptyTenant))
	}
	if b.defaultOwner == "" {
		errs = append(errs, fmt.Errorf("%w: default owner is empty", ErrUnknownOwner))
	}
	if _, ok := b.owners[b.defaultOwner]; !ok {
		errs = append(errs, fmt.Errorf("%w: default owner %q has no base config", ErrUnknownOwner, b.defaultOwner))
	}
	if strings.Count(b.databaseNameFormat, "%s") != 1 || strings.Count(b.databaseNameFormat, "%") != 1 {
		errs = append(errs, ErrInvalidDatabaseName)
	}
	if b.restoreAttempts < 1 {
		errs = append(errs, fmt.Errorf("restore attempts must be at least 1, got %d", b.restoreAttempts))
	}
	return errors.Join(errs...)
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) Strategy() Strategy               { return c.strategy }
func (c *Config) DefaultTenant() string            { return c.defaultTenant }
func (c *Config) DefaultOwner() string             { return c.defaultOwner }
func (c *Config) DatabaseNameFormat() string       { return c.databaseNameFormat }
func (c *Config) RestoreAttempts() int             { return c.restoreAttempts }
func (c *Config) TenantsProvider() TenantsProvider { return c.tenants }

// PersistentSchemas returns a copy of the namespaces kept on every search path.
func (c *Config) PersistentSchemas() []string {
	return slices.Clone(c.persistent)
}

// ExcludedOwners returns the excluded owners in sorted order.
func (c *Config) ExcludedOwners() []string {
	return slices.Sorted(maps.Keys(c.excluded))
}

// IsExcluded reports whether owner always uses the default tenant.
func (c *Config) IsExcluded(owner string) bool {
	_, ok := c.excluded[owner]
	return ok
}

// Owners returns the configured owners in sorted order.
func (c *Config) Owners() []string {
	return slices.Sorted(maps.Keys(c.owners))
}

// BaseConfig returns a copy of owner's base connection configuration.
func (c *Config) BaseConfig(owner string) (ConnConfig, bool) {
	base, ok := c.owners[owner]
	return base.Clone(), ok
}

// TenantsConfig calls the tenants provider and returns its result.
func (c *Config) TenantsConfig(ctx context.Context) (Tenants, error) {
	tenants, err := c.tenants.Tenants(ctx)
	if err != nil {
		return nil, err
	}
	if tenants == nil {
		tenants = Tenants{}
	}
	return tenants, nil
}

// TenantNames returns the sorted names of every known tenant.
func (c *Config) TenantNames(ctx context.Context) ([]string, error) {
	tenants, err := c.TenantsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return tenants.Names(), nil
}

// TenantConfig returns the mapped configuration of tenant, or nil when the
// tenant shares the base configuration or is unknown to the provider.
func (c *Config) TenantConfig(ctx context.Context, tenant string) (ConnConfig, error) {
	tenants, err := c.TenantsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return tenants[tenant].Clone(), nil
}
