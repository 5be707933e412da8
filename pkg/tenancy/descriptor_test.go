package tenancy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

func mustDescriptor(t *testing.T, owner, tenant, role, shard string, cfg tenancy.ConnConfig) tenancy.Descriptor {
	t.Helper()
	d, err := tenancy.NewDescriptor(owner, tenant, role, shard, cfg)
	require.NoError(t, err)
	return d
}

func TestDescriptor_Equality(t *testing.T) {
	t.Parallel()

	cfg := tenancy.ConnConfig{"host": "db", "search_path": []string{"acme", "shared"}}
	a := mustDescriptor(t, "primary", "acme", "writing", "default", cfg)
	b := mustDescriptor(t, "primary", "acme", "writing", "default", tenancy.ConnConfig{
		"search_path": []string{"acme", "shared"},
		"host":        "db",
	})

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.IsZero())
	assert.True(t, tenancy.Descriptor{}.IsZero())
	assert.Equal(t, "primary/acme/writing/default", a.String())

	others := []tenancy.Descriptor{
		mustDescriptor(t, "analytics", "acme", "writing", "default", cfg),
		mustDescriptor(t, "primary", "globex", "writing", "default", cfg),
		mustDescriptor(t, "primary", "acme", "reading", "default", cfg),
		mustDescriptor(t, "primary", "acme", "writing", "eu", cfg),
		mustDescriptor(t, "primary", "acme", "writing", "default", tenancy.ConnConfig{"host": "db"}),
	}
	for _, o := range others {
		assert.False(t, a.Equal(o), o.String())
	}
}

func TestDescriptor_NoKeyCollisions(t *testing.T) {
	t.Parallel()

	a := mustDescriptor(t, "primary", "a/b", "writing", "default", nil)
	b := mustDescriptor(t, "primary/a", "b", "writing", "default", nil)

	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestDescriptor_ConfigIsCopied(t *testing.T) {
	t.Parallel()

	cfg := tenancy.ConnConfig{"host": "db"}
	d := mustDescriptor(t, "primary", "acme", "writing", "default", cfg)
	cfg["host"] = "changed"
	d.Config()["host"] = "changed"

	assert.Equal(t, "db", d.Config().String("host"))
}

func TestShardConfig(t *testing.T) {
	t.Parallel()

	cfg := tenancy.ConnConfig{
		"host": "db",
		"user": "app",
		"shards": map[string]any{
			"eu": map[string]any{"host": "eu.db"},
		},
	}

	eu := tenancy.ShardConfig(mustDescriptor(t, "primary", "acme", "writing", "eu", cfg))
	assert.Equal(t, "eu.db", eu.String("host"))
	assert.Equal(t, "app", eu.String("user"))
	assert.Nil(t, eu.Sub("shards"))

	def := tenancy.ShardConfig(mustDescriptor(t, "primary", "acme", "writing", "default", cfg))
	assert.Equal(t, "db", def.String("host"))
	assert.Nil(t, def.Sub("shards"))
}
