package tenancy

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy selects how a tenant name maps to a connection descriptor.
type Strategy uint8

const (
	// StrategyUnknown is the zero value and never valid in a configuration.
	StrategyUnknown Strategy = iota
	// StrategySchema isolates tenants in schemas of one database via the search path.
	StrategySchema
	// StrategyDatabaseName isolates tenants in separate databases on one server.
	StrategyDatabaseName
	// StrategyShard routes tenants to shards of the owner's base configuration.
	StrategyShard
	// StrategyConfigMap gives each tenant a full connection configuration, allowing multi-server placement.
	StrategyConfigMap
)

var strategyNames = [...]string{
	StrategyUnknown:      "unknown",
	StrategySchema:       "schema",
	StrategyDatabaseName: "database_name",
	StrategyShard:        "shard",
	StrategyConfigMap:    "config_map",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("strategy(%d)", s)
}

// Valid reports whether s is one of the four isolation strategies.
func (s Strategy) Valid() bool {
	return s >= StrategySchema && s <= StrategyConfigMap
}

// needsTenantConfig reports whether resolution reads the tenant's mapped configuration.
func (s Strategy) needsTenantConfig() bool {
	return s == StrategyDatabaseName || s == StrategyShard || s == StrategyConfigMap
}

// ParseStrategy parses a strategy name. Separators and case are ignored, so
// "database_name", "databaseName" and "database-name" are equivalent.
func ParseStrategy(v string) (Strategy, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(v))
	switch norm {
	case "schema":
		return StrategySchema, nil
	case "databasename", "database":
		return StrategyDatabaseName, nil
	case "shard":
		return StrategyShard, nil
	case "configmap", "config":
		return StrategyConfigMap, nil
	}
	return StrategyUnknown, errors.Join(ErrUnknownStrategy, fmt.Errorf("%q", v))
}

// UnmarshalText implements encoding.TextUnmarshaler so the strategy can be read from env.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Join(ErrUnknownStrategy, fmt.Errorf("%d", s))
	}
	return []byte(s.String()), nil
}
