package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/vaultcore/usp/audit"
	"github.com/vaultcore/usp/authn"
	"github.com/vaultcore/usp/authn/risk"
	"github.com/vaultcore/usp/encryption"
	"github.com/vaultcore/usp/kv"
	"github.com/vaultcore/usp/mdm"
	"github.com/vaultcore/usp/notification"
	"github.com/vaultcore/usp/pam/checkout"
	"github.com/vaultcore/usp/pam/connector"
	"github.com/vaultcore/usp/pam/jit"
	"github.com/vaultcore/usp/pam/rotation"
	"github.com/vaultcore/usp/pam/safe"
	"github.com/vaultcore/usp/pam/session"
	"github.com/vaultcore/usp/policy"
	"github.com/vaultcore/usp/ratelimit"
	"github.com/vaultcore/usp/seal"
	"github.com/vaultcore/usp/transit"
)

// app holds every long-lived engine this module offers, wired together
// once at process start. uspd itself only drives the background sweeps
// off it (sweeps.go); a caller embedding this module for its own
// request-handling surface would hold the same struct shape to reach
// the engines directly.
type app struct {
	cfg *config

	seal    *seal.Manager
	limiter ratelimit.RateLimiter
	auditLog *audit.Engine

	authn  *authn.Engine
	signer *authn.JWTSigner
	rbac   *policy.RBACAuthorizer

	kv      *kv.Engine
	transit *transit.Engine

	safes      safe.Store
	accounts   safe.AccountStore
	connectors *connector.Registry
	rotator    *rotation.Rotator

	checkouts  *checkout.Manager
	sessionLog session.Store
	recorder   *session.Recorder
	jitGrants  *jit.Manager
}

// buildApp wires every package this binary exposes into one app. It
// mirrors the teacher's cli package's "construct the AWS-backed stores,
// then construct the engines on top of them" ordering, except the
// composition happens once at process start rather than per-invocation.
func buildApp(ctx context.Context, cfg *config) (*app, error) {
	var awsCfg aws.Config
	var err error
	if cfg.awsRegion != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.awsRegion))
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("app: loading aws config: %w", err)
	}

	if err := ensureTables(ctx, awsCfg, cfg); err != nil {
		return nil, err
	}

	limiter, err := ratelimit.NewMemoryRateLimiterWithCleanup(ratelimit.Config{
		RequestsPerWindow: cfg.rateLimitRequests,
		Window:            cfg.rateLimitWindow,
	}, cfg.rateLimitWindow)
	if err != nil {
		return nil, fmt.Errorf("app: building rate limiter: %w", err)
	}

	sealStore := seal.NewDynamoDBConfigStore(awsCfg, cfg.table("seal-config"))
	var kek seal.KEKProvider
	if cfg.kmsKeyID != "" {
		kek = seal.NewKMSKEKProvider(awsCfg, cfg.kmsKeyID)
	} else {
		localKEK, err := localKEKFromHex(cfg.localKEKHex)
		if err != nil {
			return nil, fmt.Errorf("app: building local kek: %w", err)
		}
		kek = localKEK
	}
	sealMgr := seal.NewManager(sealStore, kek, limiter)
	if err := sealMgr.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("app: bootstrapping seal manager: %w", err)
	}

	auditStore := audit.NewDynamoDBStore(awsCfg, cfg.table("audit"))
	encKeyStore := encryption.NewDynamoDBStore(awsCfg, cfg.table("encryption-keys"))
	encSvc := encryption.NewService(sealMgr, encKeyStore)
	auditLog := audit.NewEngine(auditStore, encSvc)

	kvStore := kv.NewDynamoDBStore(awsCfg, cfg.table("kv"))
	kvEngine := kv.NewEngine(kvStore, encSvc)

	transitStore := transit.NewDynamoDBStore(awsCfg, cfg.table("transit"))
	transitEngine := transit.NewEngine(transitStore, sealMgr)

	rbacStore := policy.NewDynamoDBRBACStore(dynamodb.NewFromConfig(awsCfg), cfg.table("rbac"))
	rbac := policy.NewRBACAuthorizer(rbacStore)
	authnPolicy := policy.NewAuthnPolicyEvaluator(rbac)

	userStore := authn.NewDynamoDBUserStore(awsCfg, cfg.table("authn-users"))
	authnSessionStore := authn.NewDynamoDBSessionStore(awsCfg, cfg.table("authn-sessions"))
	hist := newAuditHistory(auditLog)
	// devicePosture defaults to mdm.NoopProvider (no MDM configured); an
	// operator wiring Jamf/Intune/Kandji swaps this for an
	// mdm.NewMultiProvider(...) of real providers.
	var devicePosture risk.DevicePosture = &mdm.NoopProvider{}
	riskAssessor := risk.NewDefaultAssessor(hist, nil, nil, devicePosture)
	signer, err := buildJWTSigner(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: building jwt signer: %w", err)
	}
	engineCfg := authn.EngineConfig{
		AccessTokenTTL:         cfg.jwtAccessTTL,
		RefreshTokenTTL:        cfg.jwtRefreshTTL,
		MaxFailedLoginAttempts: cfg.lockoutThreshold,
		LockoutDuration:        cfg.lockoutCooldown,
		MaxConcurrentSessions:  cfg.maxConcurrentSessions,
	}
	authnEngine := authn.NewEngine(userStore, authnSessionStore, nil, riskAssessor, authnPolicy, nil, signer, auditLog, engineCfg)

	safeStore := safe.NewDynamoDBStore(awsCfg, cfg.table("pam-safes"))
	registry := buildConnectorRegistry(awsCfg)
	secretStore := newTransitSecretStore(transitEngine)
	rotator := rotation.NewRotator(safeStore, secretStore, registry, auditLog)

	var checkoutStore checkout.Store = checkout.NewDynamoDBStore(awsCfg, cfg.table("pam-checkouts"))
	if cfg.checkoutTopicARN != "" {
		checkoutStore = notification.NewNotifyCheckoutStore(checkoutStore, notification.NewSNSNotifier(awsCfg, cfg.checkoutTopicARN))
	}
	checkoutMgr := checkout.NewManager(checkoutStore, safeStore, checkout.NoApprovalRequired{}, rotator, auditLog)

	sessionStore := session.NewDynamoDBStore(awsCfg, cfg.table("pam-sessions"))
	recorder := session.NewRecorder(sessionStore, suspiciousCommandRules()...)

	var jitStore jit.Store = jit.NewDynamoDBStore(awsCfg, cfg.table("pam-jit"))
	if cfg.jitTopicARN != "" {
		jitStore = notification.NewNotifyJitStore(jitStore, notification.NewSNSJitNotifier(awsCfg, cfg.jitTopicARN))
	}
	jitMgr := jit.NewManager(jitStore, auditLog)

	return &app{
		cfg: cfg, seal: sealMgr, limiter: limiter, auditLog: auditLog,
		authn: authnEngine, signer: signer, rbac: rbac,
		kv: kvEngine, transit: transitEngine,
		safes: safeStore, accounts: safeStore, connectors: registry, rotator: rotator,
		checkouts: checkoutMgr, sessionLog: sessionStore, recorder: recorder, jitGrants: jitMgr,
	}, nil
}

func buildConnectorRegistry(awsCfg aws.Config) *connector.Registry {
	reg := connector.NewRegistry()
	reg.Register(safe.PlatformPostgres, connector.NewPostgresConnector())
	reg.Register(safe.PlatformMySQL, connector.NewMySQLConnector())
	reg.Register(safe.PlatformSSH, connector.NewSSHConnector())
	reg.Register(safe.PlatformAWSIAM, connector.NewAWSIAMConnector(awsCfg))
	reg.Register(safe.PlatformMSSQL, connector.NewMSSQLConnector())
	reg.Register(safe.PlatformOracle, connector.NewOracleConnector())
	reg.Register(safe.PlatformWindows, connector.NewWindowsConnector())
	reg.Register(safe.PlatformLinux, connector.NewLinuxConnector())
	return reg
}
