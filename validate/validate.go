// Package validate provides centralized input validation utilities for
// preventing injection attacks across the platform's storage-path and
// logging boundaries: KV/transit key paths, RBAC/ABAC names, and any
// free-form string bound for a structured audit log entry.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	usperrors "github.com/vaultcore/usp/errors"
)

// Validation constants for input limits.
const (
	// MaxPathLength is the maximum length for a KV/transit-style
	// slash-delimited resource path.
	MaxPathLength = 256

	// MaxQueryParamLength is the maximum length for general query parameters.
	MaxQueryParamLength = 1024
)

// Validation errors for input validation failures. All carry
// usperrors.CodeValidationError so callers across packages classify them
// uniformly regardless of which check tripped.
var (
	ErrPathEmpty         = usperrors.New(usperrors.CodeValidationError, "path cannot be empty", nil)
	ErrPathTooLong       = usperrors.New(usperrors.CodeValidationError, "path exceeds maximum length of 256 characters", nil)
	ErrPathInvalidChars  = usperrors.New(usperrors.CodeValidationError, "path contains invalid characters; allowed: alphanumeric, hyphen, underscore, forward slash, colon", nil)
	ErrPathTraversal     = usperrors.New(usperrors.CodeValidationError, "path contains a path traversal sequence", nil)
	ErrPathControlChars  = usperrors.New(usperrors.CodeValidationError, "path contains control characters", nil)
	ErrPathNullByte      = usperrors.New(usperrors.CodeValidationError, "path contains a null byte", nil)
	ErrPathNonASCII      = usperrors.New(usperrors.CodeValidationError, "path contains non-ASCII characters", nil)
	ErrStringTooLong     = usperrors.New(usperrors.CodeValidationError, "string exceeds maximum length", nil)
	ErrStringNullByte    = usperrors.New(usperrors.CodeValidationError, "string contains a null byte", nil)
	ErrStringControlChars = usperrors.New(usperrors.CodeValidationError, "string contains control characters", nil)
)

// pathRegex matches valid resource-path characters: alphanumeric, hyphen,
// underscore, forward slash, colon - enough for KV paths like
// "prod/db/primary" and transit key names like "payments:v1".
var pathRegex = regexp.MustCompile(`^[a-zA-Z0-9_/:-]+$`)

// pathTraversalPatterns are dangerous path sequences to reject outright,
// checked before the regex so the error message is specific.
var pathTraversalPatterns = []string{
	"..",   // parent directory traversal
	"//",   // double slash
	"./",   // current directory marker
	"/.",   // hidden-segment attempt
	"\\",   // backslash, never valid in a forward-slash path
	"\x00", // null byte
}

// ValidatePath validates a slash-delimited resource path (a KV secret
// path, a transit key name, an RBAC/ABAC resource identifier) before it
// reaches a Store implementation. It checks:
//   - non-empty, at most MaxPathLength bytes
//   - only alphanumeric, hyphen, underscore, forward slash, colon
//   - no path traversal sequences (../, //, ./, /.)
//   - no null bytes, control characters, or non-ASCII (homoglyph) characters
func ValidatePath(path string) error {
	if path == "" {
		return ErrPathEmpty
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.ContainsRune(path, '\x00') {
		return ErrPathNullByte
	}
	for _, r := range path {
		if r > 127 {
			return ErrPathNonASCII
		}
		if r < 32 || r == 127 {
			return ErrPathControlChars
		}
	}
	for _, pattern := range pathTraversalPatterns {
		if strings.Contains(path, pattern) {
			return ErrPathTraversal
		}
	}
	if !pathRegex.MatchString(path) {
		return ErrPathInvalidChars
	}
	return nil
}

// ValidateSafeString validates a general string for safe use (e.g. an
// RBAC role name or policy name), rejecting null bytes, control
// characters, and anything over maxLen.
func ValidateSafeString(s string, maxLen int) error {
	if len(s) > maxLen {
		return fmt.Errorf("%w: %d > %d", ErrStringTooLong, len(s), maxLen)
	}
	if strings.ContainsRune(s, '\x00') {
		return ErrStringNullByte
	}
	for _, r := range s {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return ErrStringControlChars
		}
	}
	return nil
}

// SanitizeForLog sanitizes a string for safe inclusion in an audit.Record
// or structured log line. It replaces control characters and backslashes/
// quotes with escapes and truncates to maxLen, preventing log injection
// (newline-splitting), JSON injection, and ANSI escape injection from
// user-controlled fields like audit.Record.Details or EventType.
func SanitizeForLog(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	var result strings.Builder
	result.Grow(min(len(s), maxLen))

	runeCount := 0
	for _, r := range s {
		if runeCount >= maxLen {
			break
		}
		switch {
		case r < 32 || r == 127:
			escape := fmt.Sprintf("\\u%04x", r)
			if runeCount+len(escape) > maxLen {
				return result.String()
			}
			result.WriteString(escape)
			runeCount += len(escape)
		case r == '\\':
			if runeCount+2 > maxLen {
				return result.String()
			}
			result.WriteString("\\\\")
			runeCount += 2
		case r == '"':
			if runeCount+2 > maxLen {
				return result.String()
			}
			result.WriteString("\\\"")
			runeCount += 2
		case r > 127 && !unicode.IsPrint(r):
			escape := fmt.Sprintf("\\u%04x", r)
			if runeCount+len(escape) > maxLen {
				return result.String()
			}
			result.WriteString(escape)
			runeCount += len(escape)
		default:
			result.WriteRune(r)
			runeCount++
		}
	}
	return result.String()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
