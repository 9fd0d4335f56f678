package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/vaultcore/usp/infrastructure"
)

// ensureTables provisions every DynamoDB table this binary depends on,
// per cfg.provisionTables. Each Create call is idempotent, so running
// this on every startup is safe; it exists to turn a missing or
// misconfigured table into a fail-fast startup error instead of a
// ResourceNotFoundException on the first request that touches it.
func ensureTables(ctx context.Context, awsCfg aws.Config, cfg *config) error {
	if !cfg.provisionTables {
		return nil
	}

	provisioner := infrastructure.NewTableProvisioner(awsCfg)
	schemas := []infrastructure.TableSchema{
		infrastructure.SealConfigTableSchema(cfg.table("seal-config")),
		infrastructure.AuditTableSchema(cfg.table("audit")),
		infrastructure.EncryptionKeysTableSchema(cfg.table("encryption-keys")),
		infrastructure.KVTableSchema(cfg.table("kv")),
		infrastructure.TransitTableSchema(cfg.table("transit")),
		infrastructure.RBACTableSchema(cfg.table("rbac")),
		infrastructure.AuthnUsersTableSchema(cfg.table("authn-users")),
		infrastructure.AuthnSessionsTableSchema(cfg.table("authn-sessions")),
		infrastructure.PAMSafesTableSchema(cfg.table("pam-safes")),
		infrastructure.PAMCheckoutsTableSchema(cfg.table("pam-checkouts")),
		infrastructure.PAMSessionsTableSchema(cfg.table("pam-sessions")),
		infrastructure.PAMJITTableSchema(cfg.table("pam-jit")),
		infrastructure.BreakGlassTableSchema(cfg.table("breakglass")),
	}

	tableNames := make([]string, 0, len(schemas))
	for _, schema := range schemas {
		result, err := provisioner.Create(ctx, schema)
		if err != nil {
			return fmt.Errorf("app: provisioning table %s: %w", schema.TableName, err)
		}
		if result.Status == infrastructure.StatusFailed {
			return fmt.Errorf("app: provisioning table %s: %w", schema.TableName, result.Error)
		}
		tableNames = append(tableNames, schema.TableName)
	}

	if !cfg.hardenTables {
		return nil
	}
	hardener := infrastructure.NewTableHardener(awsCfg)
	for _, result := range hardener.HardenTables(ctx, tableNames, true, true) {
		if result.Error != nil {
			return fmt.Errorf("app: hardening table %s: %w", result.TableName, result.Error)
		}
	}
	return nil
}
