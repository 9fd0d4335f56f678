package connector

import (
	"context"
	"database/sql"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// MySQLConnector manages MySQL/MariaDB user passwords via the
// go-sql-driver/mysql driver. Address is "host:port/dbname".
type MySQLConnector struct {
	OpenDB func(dsn string) (*sql.DB, error)
}

// NewMySQLConnector constructs a connector using the real mysql driver.
func NewMySQLConnector() *MySQLConnector {
	return &MySQLConnector{OpenDB: func(dsn string) (*sql.DB, error) {
		return sql.Open("mysql", dsn)
	}}
}

func (c *MySQLConnector) dsn(target Target, password string) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = target.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = target.Address
	return cfg.FormatDSN()
}

func (c *MySQLConnector) ping(ctx context.Context, target Target, password string) error {
	db, err := c.OpenDB(c.dsn(target, password))
	if err != nil {
		return fmt.Errorf("connector/mysql: open: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	return nil
}

// Verify opens a connection authenticating with current and pings it.
func (c *MySQLConnector) Verify(ctx context.Context, target Target, current string) error {
	return c.ping(ctx, target, current)
}

// Rotate connects as current and issues ALTER USER ... IDENTIFIED BY to
// set next, then verifies next authenticates before returning.
func (c *MySQLConnector) Rotate(ctx context.Context, target Target, current, next string) error {
	db, err := c.OpenDB(c.dsn(target, current))
	if err != nil {
		return fmt.Errorf("connector/mysql: open: %w", err)
	}
	defer db.Close()

	stmt := fmt.Sprintf("ALTER USER %s IDENTIFIED BY '%s'", quoteIdentifier(target.Username), escapeQuotes(next, '\''))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("connector/mysql: alter user: %w", err)
	}

	return c.ping(ctx, target, next)
}

// Generate returns a random password suitable as a MySQL user password.
func (c *MySQLConnector) Generate(ctx context.Context) (string, error) {
	return generatePassword()
}
