package tenancy

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Well-known ConnConfig keys understood by the bundled adapters.
const (
	KeyURL        = "url"
	KeyHost       = "host"
	KeyPort       = "port"
	KeyUser       = "user"
	KeyPassword   = "password"
	KeyDatabase   = "database"
	KeySearchPath = "search_path"
	KeyShard      = "shard"
	KeyShards     = "shards"
)

// ConnConfig holds connection parameters. Nested mappings are ConnConfig or
// map[string]any values.
type ConnConfig map[string]any

// Clone returns a deep copy of c.
func (c ConnConfig) Clone() ConnConfig {
	if c == nil {
		return nil
	}
	out := make(ConnConfig, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns a deep merge of c and override. Values from override win;
// nested mappings are merged key by key.
func (c ConnConfig) Merge(override ConnConfig) ConnConfig {
	out := c.Clone()
	if out == nil {
		out = ConnConfig{}
	}
	for k, v := range override {
		if sub, ok := asMap(v); ok {
			if cur, ok := asMap(out[k]); ok {
				out[k] = cur.Merge(sub)
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

// String returns the value at key formatted as a string, or "" if absent.
func (c ConnConfig) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the value at key as an int.
func (c ConnConfig) Int(key string) (int, bool) {
	switch v := c[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint16:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// Strings returns the value at key as a string slice. A comma separated
// string is split.
func (c ConnConfig) Strings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return nil
}

// Sub returns the nested mapping at key.
func (c ConnConfig) Sub(key string) ConnConfig {
	m, _ := asMap(c[key])
	return m
}

func asMap(v any) (ConnConfig, bool) {
	switch m := v.(type) {
	case ConnConfig:
		return m, true
	case map[string]any:
		return ConnConfig(m), true
	}
	return nil, false
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case ConnConfig:
		return t.Clone()
	case map[string]any:
		return map[string]any(ConnConfig(t).Clone())
	case map[string]string:
		return maps.Clone(t)
	case []string:
		return slices.Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
