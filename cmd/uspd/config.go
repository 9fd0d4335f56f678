package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	uspconfig "github.com/vaultcore/usp/config"
)

// config holds uspd's runtime configuration. Every field is sourced from
// an environment variable rather than a flag or file: unlike the policy
// bundles config.Validate checks, none of this is operator-authored
// data that benefits from versioning or signing, so plain env vars match
// the convention the AWS SDK's own config loading already uses.
//
// service is the same settings re-expressed as a uspconfig.ServiceConfig
// (spec §6's enumerated configuration surface) and is what loadConfig
// runs through uspconfig.ValidateServiceConfig before returning - the
// fail-fast startup check spec §4.6 requires, run once here rather than
// discovered piecemeal the first time each engine touches a bad value.
type config struct {
	awsRegion   string
	tablePrefix string

	kmsKeyID    string
	localKEKHex string
	sealShares  int
	sealThresh  int

	jwtIssuer     string
	jwtSecret     []byte
	jwtAlgorithm  string
	jwtKeyPEM     []byte
	jwtAccessTTL  time.Duration
	jwtRefreshTTL time.Duration

	lockoutThreshold      int
	lockoutCooldown       time.Duration
	maxConcurrentSessions int

	webauthnRPID   string
	webauthnOrigin string

	biometricEnabled bool
	biometricKey     []byte

	kvDefaultMaxVersions int
	kvCASRequired        bool

	transitAllowedTypes    []string
	transitDeletionAllowed bool

	pamRotationMinComplexity int
	pamConnectorTimeout      time.Duration
	pamDefaultCheckoutCapMin int

	auditRetentionDays int

	production bool

	rateLimitRequests int
	rateLimitWindow   time.Duration

	checkoutTopicARN string
	jitTopicARN      string

	// provisionTables, when true, runs infrastructure.TableProvisioner
	// against every table this binary depends on before constructing any
	// store - the fail-fast check that a misconfigured/missing table
	// surfaces at startup instead of on the first request. Off by
	// default: most deployments provision tables out-of-band (CI/CD,
	// Terraform) and run uspd with a read-only DynamoDB IAM policy that
	// CreateTable/UpdateTimeToLive would violate.
	provisionTables bool

	// hardenTables, when true, enables DynamoDB deletion protection and
	// point-in-time recovery on every table this binary depends on after
	// provisioning. Off by default for the same reason provisionTables
	// is: it needs dynamodb:UpdateTable/UpdateContinuousBackups
	// permissions a least-privilege runtime role may not carry.
	hardenTables bool
}

func loadConfig() (*config, error) {
	cfg := &config{
		awsRegion:   os.Getenv("AWS_REGION"),
		tablePrefix: getEnv("USPD_TABLE_PREFIX", "usp"),
		kmsKeyID:    os.Getenv("USPD_KMS_KEY_ID"),
		localKEKHex: os.Getenv("USPD_LOCAL_KEK_HEX"),

		jwtIssuer:    getEnv("USPD_JWT_ISSUER", "usp"),
		jwtAlgorithm: getEnv("USPD_JWT_ALGORITHM", "HS256"),

		webauthnRPID:   os.Getenv("USPD_WEBAUTHN_RP_ID"),
		webauthnOrigin: os.Getenv("USPD_WEBAUTHN_ORIGIN"),

		biometricEnabled: os.Getenv("USPD_BIOMETRIC_ENABLED") == "true",

		transitAllowedTypes:    splitEnvList(os.Getenv("USPD_TRANSIT_ALLOWED_TYPES")),
		transitDeletionAllowed: os.Getenv("USPD_TRANSIT_DELETION_ALLOWED") == "true",

		production: os.Getenv("USPD_PRODUCTION") == "true",

		checkoutTopicARN: os.Getenv("USPD_CHECKOUT_SNS_TOPIC_ARN"),
		jitTopicARN:      os.Getenv("USPD_JIT_SNS_TOPIC_ARN"),

		provisionTables: os.Getenv("USPD_PROVISION_TABLES") == "true",
		hardenTables:    os.Getenv("USPD_HARDEN_TABLES") == "true",
	}

	cfg.jwtSecret = []byte(os.Getenv("USPD_JWT_SECRET"))
	cfg.jwtKeyPEM = []byte(os.Getenv("USPD_JWT_RSA_KEY_PEM"))
	cfg.biometricKey = decodeHexEnv("USPD_BIOMETRIC_KEY")

	var err error
	if cfg.sealShares, err = getEnvInt("USPD_SEAL_SHARES", 5); err != nil {
		return nil, err
	}
	if cfg.sealThresh, err = getEnvInt("USPD_SEAL_THRESHOLD", 3); err != nil {
		return nil, err
	}

	accessTTLSeconds, err := getEnvInt("USPD_JWT_ACCESS_TTL_SECONDS", 900)
	if err != nil {
		return nil, err
	}
	cfg.jwtAccessTTL = time.Duration(accessTTLSeconds) * time.Second

	refreshTTLHours, err := getEnvInt("USPD_JWT_REFRESH_TTL_HOURS", 24*30)
	if err != nil {
		return nil, err
	}
	cfg.jwtRefreshTTL = time.Duration(refreshTTLHours) * time.Hour

	if cfg.lockoutThreshold, err = getEnvInt("USPD_LOCKOUT_THRESHOLD", 5); err != nil {
		return nil, err
	}
	lockoutCooldownMinutes, err := getEnvInt("USPD_LOCKOUT_COOLDOWN_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	cfg.lockoutCooldown = time.Duration(lockoutCooldownMinutes) * time.Minute

	if cfg.maxConcurrentSessions, err = getEnvInt("USPD_MAX_CONCURRENT_SESSIONS", 5); err != nil {
		return nil, err
	}

	if cfg.kvDefaultMaxVersions, err = getEnvInt("USPD_KV_DEFAULT_MAX_VERSIONS", 10); err != nil {
		return nil, err
	}
	cfg.kvCASRequired = os.Getenv("USPD_KV_CAS_REQUIRED") == "true"

	if cfg.pamRotationMinComplexity, err = getEnvInt("USPD_PAM_ROTATION_MIN_COMPLEXITY", 12); err != nil {
		return nil, err
	}
	pamConnectorTimeoutSeconds, err := getEnvInt("USPD_PAM_CONNECTOR_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.pamConnectorTimeout = time.Duration(pamConnectorTimeoutSeconds) * time.Second
	if cfg.pamDefaultCheckoutCapMin, err = getEnvInt("USPD_PAM_DEFAULT_CHECKOUT_CAP_MINUTES", 480); err != nil {
		return nil, err
	}

	if cfg.auditRetentionDays, err = getEnvInt("USPD_AUDIT_RETENTION_DAYS", 365); err != nil {
		return nil, err
	}

	reqs, err := getEnvInt("USPD_RATELIMIT_REQUESTS", 100)
	if err != nil {
		return nil, err
	}
	cfg.rateLimitRequests = reqs

	windowSeconds, err := getEnvInt("USPD_RATELIMIT_WINDOW_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.rateLimitWindow = time.Duration(windowSeconds) * time.Second

	if result := uspconfig.ValidateServiceConfig(cfg.serviceConfig()); !result.Valid {
		return nil, fmt.Errorf("config: invalid service configuration:\n%s", formatValidationIssues(result))
	}

	return cfg, nil
}

// serviceConfig re-expresses cfg as the uspconfig.ServiceConfig spec §6
// surface, for ValidateServiceConfig to check.
func (c *config) serviceConfig() uspconfig.ServiceConfig {
	return uspconfig.ServiceConfig{
		Production: c.production,
		Seal: uspconfig.SealOptions{
			KMSKeyID:    c.kmsKeyID,
			LocalKEKHex: c.localKEKHex,
			Shares:      c.sealShares,
			Threshold:   c.sealThresh,
		},
		KV: uspconfig.KVOptions{
			DefaultMaxVersions: c.kvDefaultMaxVersions,
			CASRequired:        c.kvCASRequired,
		},
		Transit: uspconfig.TransitOptions{
			AllowedTypes:    c.transitAllowedTypes,
			DeletionAllowed: c.transitDeletionAllowed,
		},
		Auth: uspconfig.AuthOptions{
			JWTAlgorithm:          c.jwtAlgorithm,
			JWTSecret:             c.jwtSecret,
			JWTKeyPEM:             c.jwtKeyPEM,
			AccessTTL:             c.jwtAccessTTL,
			RefreshTTL:            c.jwtRefreshTTL,
			LockoutThreshold:      c.lockoutThreshold,
			LockoutCooldown:       c.lockoutCooldown,
			MaxConcurrentSessions: c.maxConcurrentSessions,
			WebAuthnRPID:          c.webauthnRPID,
			WebAuthnOrigin:        c.webauthnOrigin,
			BiometricEnabled:      c.biometricEnabled,
			BiometricKey:          c.biometricKey,
		},
		PAM: uspconfig.PAMOptions{
			RotationMinComplexity: c.pamRotationMinComplexity,
			ConnectorTimeout:      c.pamConnectorTimeout,
			DefaultCheckoutCapMin: c.pamDefaultCheckoutCapMin,
		},
		Audit: uspconfig.AuditOptions{RetentionDays: c.auditRetentionDays},
	}
}

func formatValidationIssues(result uspconfig.ValidationResult) string {
	var b strings.Builder
	for _, issue := range result.Issues {
		fmt.Fprintf(&b, "  - [%s] %s: %s", issue.Severity, issue.Location, issue.Message)
		if issue.Suggestion != "" {
			fmt.Fprintf(&b, " (%s)", issue.Suggestion)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func splitEnvList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decodeHexEnv reads key as hex if it decodes cleanly (the convention
// USPD_LOCAL_KEK_HEX already uses), else falls back to the raw env
// value - the biometric key has no fixed wire format spec.md pins, so
// both a hex-encoded and a raw passphrase-style value are accepted.
func decodeHexEnv(key string) []byte {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if raw, err := hex.DecodeString(v); err == nil {
		return raw
	}
	return []byte(v)
}

// table returns the DynamoDB table name for the given logical table,
// namespaced under tablePrefix so one account can host several
// environments (dev/staging/prod) side by side.
func (c *config) table(name string) string {
	return c.tablePrefix + "-" + name
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}
