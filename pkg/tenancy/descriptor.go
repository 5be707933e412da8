package tenancy

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Descriptor is the immutable resolved identity of a connection: owner,
// tenant, role, shard and the concrete connection configuration. Two
// descriptors are equal iff all fields are equal; equality is pool identity.
type Descriptor struct {
	owner  string
	tenant string
	role   string
	shard  string
	config ConnConfig
	key    string
}

func newDescriptor(owner, tenant, role, shard string, cfg ConnConfig) (Descriptor, error) {
	raw, err := json.Marshal(struct {
		Owner  string     `json:"o"`
		Tenant string     `json:"t"`
		Role   string     `json:"r"`
		Shard  string     `json:"s"`
		Config ConnConfig `json:"c"`
	}{owner, tenant, role, shard, cfg})
	if err != nil {
		return Descriptor{}, errors.Join(ErrConfiguration, fmt.Errorf("encode descriptor: %w", err))
	}

	return Descriptor{
		owner:  owner,
		tenant: tenant,
		role:   role,
		shard:  shard,
		config: cfg.Clone(),
		key:    string(raw),
	}, nil
}

// NewDescriptor builds a descriptor directly, bypassing strategy resolution.
// Useful for adapters and tests that need a fixed identity.
func NewDescriptor(owner, tenant, role, shard string, cfg ConnConfig) (Descriptor, error) {
	return newDescriptor(owner, tenant, role, shard, cfg)
}

func (d Descriptor) Owner() string  { return d.owner }
func (d Descriptor) Tenant() string { return d.tenant }
func (d Descriptor) Role() string   { return d.role }
func (d Descriptor) Shard() string  { return d.shard }

// Config returns a copy of the resolved connection configuration.
func (d Descriptor) Config() ConnConfig {
	return d.config.Clone()
}

// Key is the canonical encoding of every field. It is the pool cache key.
func (d Descriptor) Key() string {
	return d.key
}

// Equal reports whether d and other describe the same connection.
func (d Descriptor) Equal(other Descriptor) bool {
	return d.key == other.key
}

// IsZero reports whether d was never resolved.
func (d Descriptor) IsZero() bool {
	return d.key == ""
}

// String renders the descriptor without connection secrets.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", d.owner, d.tenant, d.role, d.shard)
}

// ShardConfig returns the descriptor's configuration with the entry of
// shards[<shard>] merged over it. Adapters call it to place shard-routed
// tenants.
func ShardConfig(d Descriptor) ConnConfig {
	cfg := d.Config()
	shards := cfg.Sub(KeyShards)
	delete(cfg, KeyShards)
	if shard := shards.Sub(d.shard); shard != nil {
		return cfg.Merge(shard)
	}
	return cfg
}
