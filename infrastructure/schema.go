// Package infrastructure provisions the DynamoDB tables every USP store
// depends on: idempotent CreateTable/DescribeTable/UpdateTimeToLive plus
// the per-table schema each package's DynamoDBStore actually reads and
// writes against.
package infrastructure

import (
	"errors"
	"fmt"
)

// KeyType represents a DynamoDB attribute type for keys.
type KeyType string

const (
	KeyTypeString KeyType = "S"
	KeyTypeNumber KeyType = "N"
	KeyTypeBinary KeyType = "B"
)

func (kt KeyType) IsValid() bool {
	return kt == KeyTypeString || kt == KeyTypeNumber || kt == KeyTypeBinary
}

func (kt KeyType) String() string { return string(kt) }

// BillingMode represents DynamoDB table billing mode.
type BillingMode string

const (
	BillingModePayPerRequest BillingMode = "PAY_PER_REQUEST"
	BillingModeProvisioned   BillingMode = "PROVISIONED"
)

func (bm BillingMode) IsValid() bool {
	return bm == BillingModePayPerRequest || bm == BillingModeProvisioned
}

func (bm BillingMode) String() string { return string(bm) }

// EncryptionType represents the encryption type for DynamoDB tables.
type EncryptionType string

const (
	EncryptionDefault     EncryptionType = "DEFAULT"
	EncryptionKMS         EncryptionType = "KMS"
	EncryptionCustomerKey EncryptionType = "CUSTOMER_KEY"
)

func (et EncryptionType) IsValid() bool {
	return et == EncryptionDefault || et == EncryptionKMS || et == EncryptionCustomerKey
}

func (et EncryptionType) String() string { return string(et) }

// EncryptionConfig represents the encryption configuration for a DynamoDB table.
type EncryptionConfig struct {
	Type EncryptionType
	// KMSKeyARN is the ARN of the customer-provided CMK (only used when Type is EncryptionCustomerKey).
	KMSKeyARN string
}

func (ec EncryptionConfig) Validate() error {
	if !ec.Type.IsValid() {
		return fmt.Errorf("invalid encryption type %q: must be DEFAULT, KMS, or CUSTOMER_KEY", ec.Type)
	}
	switch ec.Type {
	case EncryptionDefault, EncryptionKMS:
		if ec.KMSKeyARN != "" {
			return fmt.Errorf("KMSKeyARN must be empty for encryption type %s", ec.Type)
		}
	case EncryptionCustomerKey:
		if ec.KMSKeyARN == "" {
			return errors.New("KMSKeyARN is required for encryption type CUSTOMER_KEY")
		}
		if !isValidKMSKeyARN(ec.KMSKeyARN) {
			return fmt.Errorf("invalid KMSKeyARN format: %s", ec.KMSKeyARN)
		}
	}
	return nil
}

func isValidKMSKeyARN(arn string) bool {
	return len(arn) > 20 && (containsSubstr(arn, ":key/") || containsSubstr(arn, ":alias/"))
}

func containsSubstr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// DefaultEncryptionKMS returns an EncryptionConfig with AWS managed KMS encryption.
func DefaultEncryptionKMS() *EncryptionConfig {
	return &EncryptionConfig{Type: EncryptionKMS}
}

// ProjectionType represents a GSI projection type.
type ProjectionType string

const (
	ProjectionAll      ProjectionType = "ALL"
	ProjectionKeysOnly ProjectionType = "KEYS_ONLY"
	ProjectionInclude  ProjectionType = "INCLUDE"
)

func (pt ProjectionType) IsValid() bool {
	return pt == ProjectionAll || pt == ProjectionKeysOnly || pt == ProjectionInclude
}

func (pt ProjectionType) String() string { return string(pt) }

// KeyAttribute represents a key attribute definition for DynamoDB tables.
type KeyAttribute struct {
	Name string
	Type KeyType
}

func (ka KeyAttribute) Validate() error {
	if ka.Name == "" {
		return errors.New("key attribute name is required")
	}
	if !ka.Type.IsValid() {
		return fmt.Errorf("invalid key type %q: must be S, N, or B", ka.Type)
	}
	return nil
}

// GSISchema represents a Global Secondary Index definition.
type GSISchema struct {
	IndexName    string
	PartitionKey KeyAttribute
	SortKey      *KeyAttribute
	Projection   ProjectionType
}

func (gsi GSISchema) Validate() error {
	if gsi.IndexName == "" {
		return errors.New("GSI index name is required")
	}
	if err := gsi.PartitionKey.Validate(); err != nil {
		return fmt.Errorf("GSI %q partition key: %w", gsi.IndexName, err)
	}
	if gsi.SortKey != nil {
		if err := gsi.SortKey.Validate(); err != nil {
			return fmt.Errorf("GSI %q sort key: %w", gsi.IndexName, err)
		}
	}
	if gsi.Projection != "" && !gsi.Projection.IsValid() {
		return fmt.Errorf("GSI %q: invalid projection type %q", gsi.IndexName, gsi.Projection)
	}
	return nil
}

// TableSchema represents a complete DynamoDB table schema definition.
type TableSchema struct {
	TableName              string
	PartitionKey           KeyAttribute
	SortKey                *KeyAttribute
	GlobalSecondaryIndexes []GSISchema
	// TTLAttribute is the name of the attribute used for TTL. Empty means
	// no TTL is enabled.
	TTLAttribute string
	BillingMode  BillingMode
	// Encryption is nil for DynamoDB default (AWS owned) encryption.
	Encryption *EncryptionConfig
}

func (ts TableSchema) Validate() error {
	if ts.TableName == "" {
		return errors.New("table name is required")
	}
	if err := ts.PartitionKey.Validate(); err != nil {
		return fmt.Errorf("partition key: %w", err)
	}
	if ts.SortKey != nil {
		if err := ts.SortKey.Validate(); err != nil {
			return fmt.Errorf("sort key: %w", err)
		}
	}
	for i, gsi := range ts.GlobalSecondaryIndexes {
		if err := gsi.Validate(); err != nil {
			return fmt.Errorf("GSI[%d]: %w", i, err)
		}
	}
	if ts.BillingMode != "" && !ts.BillingMode.IsValid() {
		return fmt.Errorf("invalid billing mode %q", ts.BillingMode)
	}
	if ts.Encryption != nil {
		if err := ts.Encryption.Validate(); err != nil {
			return fmt.Errorf("encryption: %w", err)
		}
	}
	return nil
}

// GSINames returns a list of all GSI names in this schema.
func (ts TableSchema) GSINames() []string {
	names := make([]string, len(ts.GlobalSecondaryIndexes))
	for i, gsi := range ts.GlobalSecondaryIndexes {
		names[i] = gsi.IndexName
	}
	return names
}

// pkSKSchema builds the pk(S)/sk(S) base shape every USP DynamoDBStore
// uses, adding the given GSIs on top.
func pkSKSchema(tableName string, gsis ...GSISchema) TableSchema {
	return TableSchema{
		TableName:              tableName,
		PartitionKey:           KeyAttribute{Name: "pk", Type: KeyTypeString},
		SortKey:                &KeyAttribute{Name: "sk", Type: KeyTypeString},
		GlobalSecondaryIndexes: gsis,
		BillingMode:            BillingModePayPerRequest,
		Encryption:             DefaultEncryptionKMS(),
	}
}

func gsi(name, partitionAttr string, sortAttr string) GSISchema {
	g := GSISchema{
		IndexName:    name,
		PartitionKey: KeyAttribute{Name: partitionAttr, Type: KeyTypeString},
		Projection:   ProjectionAll,
	}
	if sortAttr != "" {
		g.SortKey = &KeyAttribute{Name: sortAttr, Type: KeyTypeString}
	}
	return g
}

// AuditTableSchema is audit/dynamodb.go's table: pk/sk only, a
// day-sharded pk plus Scan-based filtering (see DESIGN.md C6) rather
// than a GSI.
func AuditTableSchema(tableName string) TableSchema {
	return pkSKSchema(tableName)
}

// KVTableSchema is kv/dynamodb.go's table: pk/sk only, same
// sharded-scan trade-off as audit.
func KVTableSchema(tableName string) TableSchema {
	return pkSKSchema(tableName)
}

// TransitTableSchema is transit/dynamodb.go's table: pk/sk, one row
// per key-version under a versionPK(name) partition plus a keyPK(name)
// metadata row.
func TransitTableSchema(tableName string) TableSchema {
	return pkSKSchema(tableName)
}

// EncryptionKeysTableSchema is encryption/dynamodb.go's KeyMeta table,
// added alongside Rotate/SetMinDecryptionVersion (see DESIGN.md C3).
func EncryptionKeysTableSchema(tableName string) TableSchema {
	return pkSKSchema(tableName)
}

// AuthnUsersTableSchema is authn/dynamodb.go's DynamoDBUserStore table.
func AuthnUsersTableSchema(tableName string) TableSchema {
	return pkSKSchema(tableName)
}

// AuthnSessionsTableSchema is authn/dynamodb.go's DynamoDBSessionStore
// table.
func AuthnSessionsTableSchema(tableName string) TableSchema {
	return pkSKSchema(tableName)
}

// RBACTableSchema is policy's RBAC role/binding store table.
func RBACTableSchema(tableName string) TableSchema {
	return pkSKSchema(tableName)
}

// PAMSafesTableSchema is pam/safe/dynamodb.go's table, with its
// gsi-safe secondary index on safe_id.
func PAMSafesTableSchema(tableName string) TableSchema {
	return pkSKSchema(tableName, gsi("gsi-safe", "safe_id", "created_at"))
}

// PAMCheckoutsTableSchema is pam/checkout/dynamodb.go's table, with its
// gsi-account secondary index on account_id.
func PAMCheckoutsTableSchema(tableName string) TableSchema {
	return pkSKSchema(tableName, gsi("gsi-account", "account_id", "created_at"))
}

// PAMSessionsTableSchema is pam/session/dynamodb.go's table, with its
// gsi-checkout secondary index on checkout_id.
func PAMSessionsTableSchema(tableName string) TableSchema {
	return pkSKSchema(tableName, gsi("gsi-checkout", "checkout_id", "created_at"))
}

// BreakGlassTableSchema is breakglass/dynamodb.go's table, with its
// gsi-invoker, gsi-status, and gsi-profile secondary indexes.
func BreakGlassTableSchema(tableName string) TableSchema {
	return pkSKSchema(tableName,
		gsi("gsi-invoker", "invoker", "created_at"),
		gsi("gsi-status", "status", "created_at"),
		gsi("gsi-profile", "profile", "created_at"),
	)
}

// idSchema builds the single "id" partition-key shape pam/jit/dynamodb.go
// and seal/dynamodb.go use (no sort key).
func idSchema(tableName string) TableSchema {
	return TableSchema{
		TableName:    tableName,
		PartitionKey: KeyAttribute{Name: "id", Type: KeyTypeString},
		BillingMode:  BillingModePayPerRequest,
		Encryption:   DefaultEncryptionKMS(),
	}
}

// PAMJITTableSchema is pam/jit/dynamodb.go's table.
func PAMJITTableSchema(tableName string) TableSchema {
	return idSchema(tableName)
}

// SealConfigTableSchema is seal/dynamodb.go's single-row seal
// configuration table.
func SealConfigTableSchema(tableName string) TableSchema {
	return idSchema(tableName)
}
