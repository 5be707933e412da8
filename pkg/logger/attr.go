package logger

import (
	"fmt"
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Tenant records the tenant name under the key "tenant".
// If tenant is empty, it returns an empty Attr.
func Tenant(tenant string) slog.Attr {
	if tenant == "" {
		return slog.Attr{}
	}
	return slog.String("tenant", tenant)
}

// PreviousTenant records the tenant a scoped switch restores under the key
// "previous_tenant".
func PreviousTenant(tenant string) slog.Attr {
	if tenant == "" {
		return slog.Attr{}
	}
	return slog.String("previous_tenant", tenant)
}

// Owner records the connection owner under the key "owner".
func Owner(owner string) slog.Attr {
	return slog.String("owner", owner)
}

// Strategy records the isolation strategy under the key "strategy".
func Strategy(s fmt.Stringer) slog.Attr {
	if s == nil {
		return slog.Attr{}
	}
	return slog.String("strategy", s.String())
}

// Descriptor records a connection descriptor under the key "descriptor".
// Only the String form is logged so connection secrets stay out of records.
func Descriptor(d fmt.Stringer) slog.Attr {
	if d == nil {
		return slog.Attr{}
	}
	return slog.String("descriptor", d.String())
}

// Database records a database or schema name under the key "database".
func Database(name string) slog.Attr {
	return slog.String("database", name)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
