package pg_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/tenantdb/pkg/pg"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	pgErr := func(code string) error {
		return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code})
	}

	tests := []struct {
		name    string
		err     error
		exists  bool
		missing bool
	}{
		{name: "duplicate schema", err: pgErr(pgerrcode.DuplicateSchema), exists: true},
		{name: "duplicate database", err: pgErr(pgerrcode.DuplicateDatabase), exists: true},
		{name: "concurrent create", err: pgErr(pgerrcode.UniqueViolation), exists: true},
		{name: "invalid schema", err: pgErr(pgerrcode.InvalidSchemaName), missing: true},
		{name: "invalid catalog", err: pgErr(pgerrcode.InvalidCatalogName), missing: true},
		{name: "syntax error", err: pgErr(pgerrcode.SyntaxError)},
		{name: "plain error", err: errors.New("boom")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.exists, pg.IsUnitExistsError(tt.err))
			assert.Equal(t, tt.missing, pg.IsUnitMissingError(tt.err))
		})
	}
}

func TestQueryErrorHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, pg.IsNotFoundError(fmt.Errorf("query: %w", pgx.ErrNoRows)))
	assert.False(t, pg.IsNotFoundError(nil))
	assert.True(t, pg.IsDuplicateKeyError(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.True(t, pg.IsForeignKeyViolationError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}))
	assert.False(t, pg.IsForeignKeyViolationError(errors.New("fk")))
}
