package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ServiceConfig is uspd's full runtime configuration surface, enumerated
// by spec §6 "Configuration surface": every option the core consumes,
// collected into one struct and checked once at process start by
// ValidateServiceConfig, following the same fail-fast,
// collect-every-issue pattern as Validate's policy-bundle checks above
// rather than stopping at the first problem found.
type ServiceConfig struct {
	Seal    SealOptions
	KV      KVOptions
	Transit TransitOptions
	Auth    AuthOptions
	PAM     PAMOptions
	Audit   AuditOptions

	// Production gates the startup checks spec §4.6 only requires "if
	// configured for production deployment" (the WebAuthn loopback
	// check) - a local/dev deployment is allowed a loopback RP origin.
	Production bool
}

// SealOptions is spec §6's "Seal: KEK (required, 32 bytes base64),
// default {shares=5, threshold=3}".
type SealOptions struct {
	// KMSKeyID and LocalKEKHex are mutually exclusive KEK sources; uspd
	// takes a hex-encoded local KEK rather than spec §6's literal
	// base64 encoding (see ValidateServiceConfig), matching how
	// cmd/uspd/kek.go already decodes USPD_LOCAL_KEK_HEX.
	KMSKeyID    string
	LocalKEKHex string

	Shares    int
	Threshold int
}

// KVOptions is spec §6's "KV: defaultMaxVersions (10), casRequired
// default false".
type KVOptions struct {
	DefaultMaxVersions int
	CASRequired        bool
}

// TransitOptions is spec §6's "Transit: allowedTypes allowlist;
// deletionAllowed default false".
type TransitOptions struct {
	AllowedTypes    []string
	DeletionAllowed bool
}

// AuthOptions is spec §6's "Auth: jwt.algorithm (HS256|RS256),
// jwt.accessTtl, jwt.refreshTtl, lockout.threshold, lockout.cooldown,
// maxConcurrentSessions (5)", plus the three §4.6 startup checks this
// module is responsible for (JWT key, WebAuthn origin, biometric key).
type AuthOptions struct {
	JWTAlgorithm string // "HS256" or "RS256"
	JWTSecret    []byte // HS256 shared secret; ignored for RS256
	JWTKeyPEM    []byte // RS256 private key; ignored for HS256
	AccessTTL    time.Duration
	RefreshTTL   time.Duration

	LockoutThreshold      int
	LockoutCooldown       time.Duration
	MaxConcurrentSessions int

	// WebAuthnRPID/WebAuthnOrigin are only validated (must not be
	// loopback/localhost) when Production is true and WebAuthn is
	// configured at all (WebAuthnRPID != "").
	WebAuthnRPID   string
	WebAuthnOrigin string

	// BiometricEnabled gates the "biometric key must be configured, no
	// runtime generation" startup check; BiometricKey is meaningless
	// when BiometricEnabled is false.
	BiometricEnabled bool
	BiometricKey     []byte
}

// PAMOptions is spec §6's "PAM: per-safe caps; rotation minComplexity;
// connector timeouts".
type PAMOptions struct {
	RotationMinComplexity int
	ConnectorTimeout      time.Duration
	DefaultCheckoutCapMin int
}

// AuditOptions is spec §6's "Audit: retention days".
type AuditOptions struct {
	RetentionDays int
}

// minHMACKeyBytes is the minimum HS256 shared-secret length this module
// accepts: RFC 2104 recommends a MAC key at least as long as the hash
// output (32 bytes for SHA-256), and spec §4.6 item 1's "JWT signing
// key ... of correct length for algorithm" check is this bound applied
// at startup instead of being discovered at the first Issue call.
const minHMACKeyBytes = 32

const loopbackHost = "localhost"

// ValidateServiceConfig applies every startup check spec §4.6 and §3's
// SealConfig invariant name, returning every violation found rather
// than the first. An empty Issues slice (check result.Valid) means
// cfg is safe to build the rest of the application from.
func ValidateServiceConfig(cfg ServiceConfig) ValidationResult {
	result := ValidationResult{
		ConfigType: "service",
		Source:     "environment",
		Valid:      true,
		Issues:     []ValidationIssue{},
	}

	validateSeal(cfg.Seal, &result)
	validateAuth(cfg.Auth, cfg.Production, &result)
	validateKV(cfg.KV, &result)
	validateTransit(cfg.Transit, &result)
	validatePAM(cfg.PAM, &result)
	validateAudit(cfg.Audit, &result)

	return result
}

func addServiceError(result *ValidationResult, location, message, suggestion string) {
	result.Valid = false
	result.Issues = append(result.Issues, ValidationIssue{
		Severity:   SeverityError,
		Location:   location,
		Message:    message,
		Suggestion: suggestion,
	})
}

func validateSeal(s SealOptions, result *ValidationResult) {
	switch {
	case s.KMSKeyID == "" && s.LocalKEKHex == "":
		addServiceError(result, "seal.kek",
			"no KEK source configured",
			"set exactly one of USPD_KMS_KEY_ID or USPD_LOCAL_KEK_HEX")
	case s.KMSKeyID != "" && s.LocalKEKHex != "":
		addServiceError(result, "seal.kek",
			"both USPD_KMS_KEY_ID and USPD_LOCAL_KEK_HEX are set",
			"configure only one KEK source")
	case s.LocalKEKHex != "":
		raw, err := hex.DecodeString(s.LocalKEKHex)
		if err != nil {
			addServiceError(result, "seal.kek",
				fmt.Sprintf("USPD_LOCAL_KEK_HEX is not valid hex: %v", err),
				"provide a hex-encoded 32-byte key")
		} else if len(raw) != 32 {
			addServiceError(result, "seal.kek",
				fmt.Sprintf("local KEK must decode to 32 bytes, got %d", len(raw)),
				"regenerate a 32-byte key, e.g. `openssl rand -hex 32`")
		}
	}

	if s.Threshold < 1 || s.Threshold > s.Shares || s.Shares > 255 {
		addServiceError(result, "seal.threshold",
			fmt.Sprintf("invalid shares/threshold: shares=%d threshold=%d (must satisfy 1 <= threshold <= shares <= 255)", s.Shares, s.Threshold),
			"use the default of shares=5, threshold=3 or adjust both together")
	}
}

func validateAuth(a AuthOptions, production bool, result *ValidationResult) {
	switch a.JWTAlgorithm {
	case "HS256":
		if len(a.JWTSecret) == 0 {
			addServiceError(result, "auth.jwt.secret",
				"JWT signing key is not configured",
				"set USPD_JWT_SECRET")
		} else if len(a.JWTSecret) < minHMACKeyBytes {
			addServiceError(result, "auth.jwt.secret",
				fmt.Sprintf("HS256 signing key must be at least %d bytes, got %d", minHMACKeyBytes, len(a.JWTSecret)),
				"generate a longer secret, e.g. `openssl rand -base64 32`")
		}
	case "RS256":
		if len(a.JWTKeyPEM) == 0 {
			addServiceError(result, "auth.jwt.key",
				"RS256 requires a private key but none is configured",
				"set USPD_JWT_RSA_KEY_PEM to a PEM-encoded RSA private key")
		}
	default:
		addServiceError(result, "auth.jwt.algorithm",
			fmt.Sprintf("unknown JWT algorithm %q", a.JWTAlgorithm),
			"use HS256 or RS256")
	}

	if a.MaxConcurrentSessions < 1 {
		addServiceError(result, "auth.maxConcurrentSessions",
			fmt.Sprintf("maxConcurrentSessions must be positive, got %d", a.MaxConcurrentSessions),
			"use the default of 5 or a positive value")
	}

	if a.LockoutThreshold < 1 {
		addServiceError(result, "auth.lockout.threshold",
			fmt.Sprintf("lockout.threshold must be positive, got %d", a.LockoutThreshold),
			"set a positive failed-attempt threshold")
	}

	if production && a.WebAuthnRPID != "" && isLoopback(a.WebAuthnRPID) {
		addServiceError(result, "auth.webauthn.rpId",
			fmt.Sprintf("WebAuthn relying-party id %q is loopback/localhost in a production deployment", a.WebAuthnRPID),
			"set USPD_WEBAUTHN_RP_ID to the deployment's real domain")
	}
	if production && a.WebAuthnOrigin != "" && isLoopback(a.WebAuthnOrigin) {
		addServiceError(result, "auth.webauthn.origin",
			fmt.Sprintf("WebAuthn origin %q is loopback/localhost in a production deployment", a.WebAuthnOrigin),
			"set USPD_WEBAUTHN_ORIGIN to the deployment's real origin")
	}

	if a.BiometricEnabled && len(a.BiometricKey) == 0 {
		addServiceError(result, "auth.biometric.key",
			"biometric module is enabled but no biometric encryption key is configured",
			"set USPD_BIOMETRIC_KEY, or disable the biometric module - it is never generated at runtime")
	}
}

// isLoopback reports whether host names or contains localhost/127.x/::1,
// per spec §4.6's "WebAuthn relying-party id and origin must not be
// loopback/localhost" production check.
func isLoopback(host string) bool {
	h := strings.ToLower(host)
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	if i := strings.IndexByte(h, ':'); i >= 0 && !strings.HasPrefix(h, "[") {
		h = h[:i]
	}
	h = strings.TrimSuffix(h, "/")
	return h == loopbackHost || h == "127.0.0.1" || h == "::1" || h == "[::1]" || strings.HasSuffix(h, ".localhost")
}

func validateKV(kv KVOptions, result *ValidationResult) {
	if kv.DefaultMaxVersions < 1 {
		addServiceError(result, "kv.defaultMaxVersions",
			fmt.Sprintf("defaultMaxVersions must be positive, got %d", kv.DefaultMaxVersions),
			"use the default of 10 or a positive value")
	}
}

func validateTransit(tr TransitOptions, result *ValidationResult) {
	for _, t := range tr.AllowedTypes {
		if strings.TrimSpace(t) == "" {
			addServiceError(result, "transit.allowedTypes",
				"allowedTypes contains an empty entry",
				"remove blank entries from the allowlist")
			break
		}
	}
}

func validatePAM(p PAMOptions, result *ValidationResult) {
	if p.RotationMinComplexity < 0 {
		addServiceError(result, "pam.rotation.minComplexity",
			fmt.Sprintf("rotation.minComplexity must not be negative, got %d", p.RotationMinComplexity),
			"use a non-negative complexity floor")
	}
	if p.ConnectorTimeout <= 0 {
		addServiceError(result, "pam.connector.timeout",
			fmt.Sprintf("connector timeout must be positive, got %s", p.ConnectorTimeout),
			"set a positive timeout, e.g. 30s")
	}
	if p.DefaultCheckoutCapMin <= 0 {
		addServiceError(result, "pam.checkout.defaultCapMinutes",
			fmt.Sprintf("default checkout duration cap must be positive, got %d", p.DefaultCheckoutCapMin),
			"set a positive per-safe duration cap in minutes")
	}
}

func validateAudit(a AuditOptions, result *ValidationResult) {
	if a.RetentionDays < 1 {
		addServiceError(result, "audit.retentionDays",
			fmt.Sprintf("retentionDays must be positive, got %d", a.RetentionDays),
			"set a positive retention period")
	}
}
