// Package safe defines Sentinel's privileged-account vault: safes grant
// groups of users ACL-scoped access to the privileged accounts stored
// inside them (database superusers, server root/administrator accounts,
// service accounts). Every credential operation elsewhere in pam/
// (checkout, rotation, JIT) resolves back to a PrivilegedAccount owned
// by exactly one Safe.
package safe

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"time"
)

const (
	// IDLength is the exact length for safe and account IDs (16 hex chars).
	IDLength = 16

	// MaxNameLength bounds a Safe or PrivilegedAccount display name.
	MaxNameLength = 128
)

// Platform identifies the kind of system a PrivilegedAccount lives on,
// and selects which pam/connector implementation manages it.
type Platform string

const (
	PlatformPostgres Platform = "postgres"
	PlatformMySQL    Platform = "mysql"
	PlatformMSSQL    Platform = "mssql"
	PlatformOracle   Platform = "oracle"
	PlatformLinux    Platform = "linux"
	PlatformWindows  Platform = "windows"
	PlatformAWSIAM   Platform = "aws-iam"
	PlatformSSH      Platform = "ssh"
)

// IsValid returns true if the Platform is a known value.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformPostgres, PlatformMySQL, PlatformMSSQL, PlatformOracle,
		PlatformLinux, PlatformWindows, PlatformAWSIAM, PlatformSSH:
		return true
	}
	return false
}

// String returns the string representation of the Platform.
func (p Platform) String() string {
	return string(p)
}

// AccessLevel scopes what a safe member may do with the accounts inside
// a Safe.
type AccessLevel string

const (
	// AccessLevelViewer can list accounts and request checkout.
	AccessLevelViewer AccessLevel = "viewer"
	// AccessLevelManager can additionally add/remove accounts and edit the ACL.
	AccessLevelManager AccessLevel = "manager"
	// AccessLevelOwner has full control, including deleting the safe.
	AccessLevelOwner AccessLevel = "owner"
)

// IsValid returns true if the AccessLevel is a known value.
func (l AccessLevel) IsValid() bool {
	switch l {
	case AccessLevelViewer, AccessLevelManager, AccessLevelOwner:
		return true
	}
	return false
}

// Rank orders access levels for "at least" comparisons (owner > manager > viewer).
func (l AccessLevel) Rank() int {
	switch l {
	case AccessLevelOwner:
		return 3
	case AccessLevelManager:
		return 2
	case AccessLevelViewer:
		return 1
	}
	return 0
}

// ACLEntry grants one user or group a level of access to a Safe.
type ACLEntry struct {
	Principal string      `yaml:"principal" json:"principal"` // username or "group:<name>"
	Level     AccessLevel `yaml:"level" json:"level"`
}

// Safe is a named container of PrivilegedAccounts, access-controlled by
// an ACL of principal/level entries.
type Safe struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	ACL         []ACLEntry `yaml:"acl" json:"acl"`
	CreatedAt   time.Time  `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `yaml:"updated_at" json:"updated_at"`
}

// AccessLevelFor returns the highest access level principal or any of
// principalGroups holds in the safe, or "" if none match.
func (s *Safe) AccessLevelFor(principal string, principalGroups []string) AccessLevel {
	best := AccessLevel("")
	for _, entry := range s.ACL {
		matches := entry.Principal == principal
		if !matches {
			for _, g := range principalGroups {
				if entry.Principal == "group:"+g {
					matches = true
					break
				}
			}
		}
		if matches && entry.Level.Rank() > best.Rank() {
			best = entry.Level
		}
	}
	return best
}

// AccountStatus tracks the lifecycle of a managed credential.
type AccountStatus string

const (
	// AccountStatusActive means the account's credential is current and usable.
	AccountStatusActive AccountStatus = "active"
	// AccountStatusRotating means a rotation is in progress.
	AccountStatusRotating AccountStatus = "rotating"
	// AccountStatusRotationFailed means the last rotation attempt failed and
	// was reverted; the account still holds its prior credential.
	AccountStatusRotationFailed AccountStatus = "rotation_failed"
	// AccountStatusDisabled means the account is retired from checkout/rotation.
	AccountStatusDisabled AccountStatus = "disabled"
)

// IsValid returns true if the AccountStatus is a known value.
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusActive, AccountStatusRotating, AccountStatusRotationFailed, AccountStatusDisabled:
		return true
	}
	return false
}

// PrivilegedAccount is a managed credential on some target system,
// owned by exactly one Safe.
type PrivilegedAccount struct {
	ID       string   `yaml:"id" json:"id"`
	SafeID   string   `yaml:"safe_id" json:"safe_id"`
	Name     string   `yaml:"name" json:"name"`
	Platform Platform `yaml:"platform" json:"platform"`

	// Address is the connection target (host:port, instance ARN, etc.);
	// interpreted by the pam/connector implementation selected by Platform.
	Address string `yaml:"address" json:"address"`

	// Username is the account name on the target system.
	Username string `yaml:"username" json:"username"`

	// TransitKeyName names the transit key used to encrypt the current
	// credential before it's stored at rest (the account's secret
	// material is never held here in plaintext).
	TransitKeyName string `yaml:"transit_key_name" json:"transit_key_name"`

	Status AccountStatus `yaml:"status" json:"status"`

	// RotationInterval is how often this account's credential should be
	// rotated automatically; zero means rotation is manual/on-checkin only.
	RotationInterval time.Duration `yaml:"rotation_interval,omitempty" json:"rotation_interval,omitempty"`

	LastRotatedAt time.Time `yaml:"last_rotated_at,omitempty" json:"last_rotated_at,omitempty"`
	CreatedAt     time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt     time.Time `yaml:"updated_at" json:"updated_at"`
}

// DueForRotation reports whether the account's RotationInterval has
// elapsed since LastRotatedAt, as of now.
func (a *PrivilegedAccount) DueForRotation(now time.Time) bool {
	if a.RotationInterval <= 0 {
		return false
	}
	if a.LastRotatedAt.IsZero() {
		return true
	}
	return now.After(a.LastRotatedAt.Add(a.RotationInterval))
}

var idRegex = regexp.MustCompile(`^[0-9a-f]{16}$`)

// NewID generates a new 16-character lowercase hex identifier, shared
// by Safe and PrivilegedAccount IDs.
func NewID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}

// ValidateID checks if the given string is a valid safe/account ID.
func ValidateID(id string) bool {
	return idRegex.MatchString(id)
}
