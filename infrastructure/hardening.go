package infrastructure

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultTablePrefix is the default prefix DiscoverTables matches
// against when no prefix is given.
const DefaultTablePrefix = "usp-"

// hardenerAPI is the subset of the DynamoDB SDK client TableHardener needs.
type hardenerAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DescribeContinuousBackups(ctx context.Context, params *dynamodb.DescribeContinuousBackupsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeContinuousBackupsOutput, error)
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	UpdateTable(ctx context.Context, params *dynamodb.UpdateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTableOutput, error)
	UpdateContinuousBackups(ctx context.Context, params *dynamodb.UpdateContinuousBackupsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateContinuousBackupsOutput, error)
}

// TableHardener enables deletion protection and point-in-time recovery
// on DynamoDB tables - the durability guarantee that sits alongside
// `audit`'s hash chain: a tampered chain is detectable, but an
// accidentally-deleted or unrecoverable table isn't a tampering problem
// at all, it's a backup problem, which is what PITR/deletion protection
// cover.
type TableHardener struct {
	client hardenerAPI
}

// TableProtectionStatus is the current protection state of a table.
type TableProtectionStatus struct {
	TableName          string
	DeletionProtection bool
	PITREnabled        bool
	TableARN           string
}

// HardenResult is the result of a HardenTable/HardenTables call.
type HardenResult struct {
	TableName                 string
	DeletionProtectionChanged bool
	PITRChanged               bool
	Error                     error
}

// NewTableHardener builds a TableHardener using the provided AWS configuration.
func NewTableHardener(cfg aws.Config) *TableHardener {
	return &TableHardener{client: dynamodb.NewFromConfig(cfg)}
}

func newTableHardenerWithClient(client hardenerAPI) *TableHardener {
	return &TableHardener{client: client}
}

// DiscoverTables lists every DynamoDB table matching prefix (default
// DefaultTablePrefix), for an operator who wants to harden a whole
// deployment's tables without naming each one.
func (h *TableHardener) DiscoverTables(ctx context.Context, prefix string) ([]string, error) {
	if prefix == "" {
		prefix = DefaultTablePrefix
	}

	var tables []string
	var lastEvaluatedTableName *string
	for {
		output, err := h.client.ListTables(ctx, &dynamodb.ListTablesInput{ExclusiveStartTableName: lastEvaluatedTableName})
		if err != nil {
			return nil, err
		}
		for _, tableName := range output.TableNames {
			if strings.HasPrefix(tableName, prefix) {
				tables = append(tables, tableName)
			}
		}
		if output.LastEvaluatedTableName == nil {
			break
		}
		lastEvaluatedTableName = output.LastEvaluatedTableName
	}
	return tables, nil
}

// GetTableStatus returns the current protection status for a table.
func (h *TableHardener) GetTableStatus(ctx context.Context, tableName string) (*TableProtectionStatus, error) {
	status := &TableProtectionStatus{TableName: tableName}

	tableOutput, err := h.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		return nil, err
	}
	if tableOutput.Table != nil {
		status.DeletionProtection = tableOutput.Table.DeletionProtectionEnabled
		if tableOutput.Table.TableArn != nil {
			status.TableARN = *tableOutput.Table.TableArn
		}
	}

	backupsOutput, err := h.client.DescribeContinuousBackups(ctx, &dynamodb.DescribeContinuousBackupsInput{TableName: aws.String(tableName)})
	if err != nil {
		if isAccessDenied(err) {
			// Deletion protection info is still useful even if this
			// binary's IAM role can't read backup configuration.
			return status, nil
		}
		return nil, err
	}
	if backupsOutput.ContinuousBackupsDescription != nil &&
		backupsOutput.ContinuousBackupsDescription.PointInTimeRecoveryDescription != nil {
		pitrStatus := backupsOutput.ContinuousBackupsDescription.PointInTimeRecoveryDescription.PointInTimeRecoveryStatus
		status.PITREnabled = pitrStatus == dbtypes.PointInTimeRecoveryStatusEnabled
	}
	return status, nil
}

// HardenTable enables deletion protection and/or PITR on a table. It is
// idempotent: protections already enabled are left alone and reported
// as unchanged.
func (h *TableHardener) HardenTable(ctx context.Context, tableName string, enableDeletionProtection, enablePITR bool) (*HardenResult, error) {
	result := &HardenResult{TableName: tableName}

	status, err := h.GetTableStatus(ctx, tableName)
	if err != nil {
		result.Error = err
		return result, err
	}

	if enableDeletionProtection && !status.DeletionProtection {
		if _, err := h.client.UpdateTable(ctx, &dynamodb.UpdateTableInput{
			TableName:                 aws.String(tableName),
			DeletionProtectionEnabled: aws.Bool(true),
		}); err != nil {
			result.Error = err
			return result, err
		}
		result.DeletionProtectionChanged = true
	}

	if enablePITR && !status.PITREnabled {
		if _, err := h.client.UpdateContinuousBackups(ctx, &dynamodb.UpdateContinuousBackupsInput{
			TableName: aws.String(tableName),
			PointInTimeRecoverySpecification: &dbtypes.PointInTimeRecoverySpecification{
				PointInTimeRecoveryEnabled: aws.Bool(true),
			},
		}); err != nil {
			result.Error = err
			return result, err
		}
		result.PITRChanged = true
	}

	return result, nil
}

// HardenTables applies HardenTable to every name in tableNames,
// continuing past individual failures and collecting a result for each.
func (h *TableHardener) HardenTables(ctx context.Context, tableNames []string, enableDeletionProtection, enablePITR bool) []*HardenResult {
	results := make([]*HardenResult, 0, len(tableNames))
	for _, tableName := range tableNames {
		result, err := h.HardenTable(ctx, tableName, enableDeletionProtection, enablePITR)
		if err != nil {
			result.Error = err
		}
		results = append(results, result)
	}
	return results
}

func isAccessDenied(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "AccessDenied") ||
		strings.Contains(msg, "AccessDeniedException") ||
		strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "UnrecognizedClientException")
}
