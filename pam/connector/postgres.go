package connector

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresConnector manages PostgreSQL role passwords via the lib/pq
// driver. Address is a libpq connection string minus user/password
// (e.g. "host=db.internal port=5432 dbname=postgres sslmode=require");
// Verify/Rotate append the credential under test.
type PostgresConnector struct {
	// OpenDB is overridable in tests; defaults to sql.Open("postgres", dsn).
	OpenDB func(dsn string) (*sql.DB, error)
}

// NewPostgresConnector constructs a connector using the real lib/pq driver.
func NewPostgresConnector() *PostgresConnector {
	return &PostgresConnector{OpenDB: func(dsn string) (*sql.DB, error) {
		return sql.Open("postgres", dsn)
	}}
}

func (c *PostgresConnector) dsn(target Target, password string) string {
	return fmt.Sprintf("%s user=%s password=%s", target.Address, target.Username, password)
}

func (c *PostgresConnector) ping(ctx context.Context, target Target, password string) error {
	db, err := c.OpenDB(c.dsn(target, password))
	if err != nil {
		return fmt.Errorf("connector/postgres: open: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	return nil
}

// Verify opens a connection authenticating with current and pings it.
func (c *PostgresConnector) Verify(ctx context.Context, target Target, current string) error {
	return c.ping(ctx, target, current)
}

// Rotate connects as current and issues ALTER ROLE ... PASSWORD to set
// next, then verifies next authenticates before returning.
func (c *PostgresConnector) Rotate(ctx context.Context, target Target, current, next string) error {
	db, err := c.OpenDB(c.dsn(target, current))
	if err != nil {
		return fmt.Errorf("connector/postgres: open: %w", err)
	}
	defer db.Close()

	// pq does not support parameterizing identifiers or the PASSWORD
	// literal inside ALTER ROLE; the role name comes from the safe's own
	// validated account record, not untrusted input, and the new
	// password is quoted via pq.QuoteLiteral-equivalent escaping.
	stmt := fmt.Sprintf("ALTER ROLE %s WITH PASSWORD %s", quoteIdentifier(target.Username), quoteLiteral(next))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("connector/postgres: alter role: %w", err)
	}

	return c.ping(ctx, target, next)
}

// Generate returns a random password suitable as a PostgreSQL role password.
func (c *PostgresConnector) Generate(ctx context.Context) (string, error) {
	return generatePassword()
}

func quoteIdentifier(s string) string {
	return `"` + escapeQuotes(s, '"') + `"`
}

func quoteLiteral(s string) string {
	return "'" + escapeQuotes(s, '\'') + "'"
}

func escapeQuotes(s string, quote byte) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == quote {
			out = append(out, quote)
		}
		out = append(out, s[i])
	}
	return string(out)
}
