package connector

import "context"

// stubConnector satisfies Connector for platforms whose wire protocol
// this module doesn't implement (mssql, oracle, windows, and a
// non-SSH-transport linux account). The interface and target addressing
// are real; every operation returns ErrNotImplemented so a caller that
// mistakenly routes a rotation to one of these fails loudly rather than
// silently no-opping.
type stubConnector struct {
	platform string
}

// NewMSSQLConnector returns a Connector for SQL Server. Wiring a real
// TDS driver is out of scope (pam's Non-goal on bit-specific OS/wire
// protocol integration); the Connector shape is real so pam/rotation
// and pam/safe treat it identically to the implemented platforms.
func NewMSSQLConnector() Connector { return &stubConnector{platform: "mssql"} }

// NewOracleConnector returns a Connector for Oracle Database, scoped
// out for the same reason as NewMSSQLConnector.
func NewOracleConnector() Connector { return &stubConnector{platform: "oracle"} }

// NewWindowsConnector returns a Connector for Windows local/AD accounts,
// scoped out for the same reason as NewMSSQLConnector (no WinRM/RPC
// transport is implemented).
func NewWindowsConnector() Connector { return &stubConnector{platform: "windows"} }

// NewLinuxConnector returns a Connector for Linux accounts reached by a
// transport other than SSH (e.g. a local agent); SSH-reachable Linux
// accounts should use NewSSHConnector instead.
func NewLinuxConnector() Connector { return &stubConnector{platform: "linux"} }

func (c *stubConnector) Verify(ctx context.Context, target Target, current string) error {
	return ErrNotImplemented
}

func (c *stubConnector) Rotate(ctx context.Context, target Target, current, next string) error {
	return ErrNotImplemented
}

func (c *stubConnector) Generate(ctx context.Context) (string, error) {
	return generatePassword()
}
