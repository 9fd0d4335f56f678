package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	usperrors "github.com/vaultcore/usp/errors"
)

// ProvisionStatus represents the result status of a provision operation.
type ProvisionStatus string

const (
	StatusCreated ProvisionStatus = "CREATED"
	StatusExists  ProvisionStatus = "EXISTS"
	StatusFailed  ProvisionStatus = "FAILED"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	waitTimeout    = 5 * time.Minute
)

// dynamoDBProvisionerAPI defines the DynamoDB operations used by TableProvisioner.
type dynamoDBProvisionerAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// TableProvisioner handles DynamoDB table creation and management,
// idempotently: calling Create against an already-ACTIVE table returns
// StatusExists rather than erroring, so cmd/uspd can run it
// unconditionally on every startup (spec §4.6's fail-fast startup
// checks: a missing table fails fast with a clear error instead of the
// first request hitting ResourceNotFoundException).
type TableProvisioner struct {
	client dynamoDBProvisionerAPI
}

// NewTableProvisioner creates a new TableProvisioner using the provided AWS configuration.
func NewTableProvisioner(cfg aws.Config) *TableProvisioner {
	return &TableProvisioner{client: dynamodb.NewFromConfig(cfg)}
}

func newTableProvisionerWithClient(client dynamoDBProvisionerAPI) *TableProvisioner {
	return &TableProvisioner{client: client}
}

// ProvisionResult contains the result of a table provisioning operation.
type ProvisionResult struct {
	TableName string
	Status    ProvisionStatus
	ARN       string
	Error     error
}

// ProvisionPlan describes what would be created for a table, without
// requiring DescribeTable/CreateTable permissions to produce.
type ProvisionPlan struct {
	TableName    string
	WouldCreate  bool
	GSIs         []string
	TTLAttribute string
	BillingMode  string
	Encryption   string
}

// Create provisions a DynamoDB table from the given schema. It is
// idempotent: if the table already exists and is ACTIVE, it returns
// StatusExists. If the table exists but is not yet ACTIVE, it waits.
// TTL is configured after the table becomes ACTIVE.
func (p *TableProvisioner) Create(ctx context.Context, schema TableSchema) (*ProvisionResult, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	status, arn, err := p.getTableStatus(ctx, schema.TableName)
	if err != nil {
		return nil, err
	}

	switch status {
	case "ACTIVE":
		return &ProvisionResult{TableName: schema.TableName, Status: StatusExists, ARN: arn}, nil

	case "CREATING", "UPDATING":
		arn, err := p.waitForActive(ctx, schema.TableName)
		if err != nil {
			return &ProvisionResult{TableName: schema.TableName, Status: StatusFailed, Error: err}, nil
		}
		return &ProvisionResult{TableName: schema.TableName, Status: StatusExists, ARN: arn}, nil

	case "NOT_FOUND":
		input := schemaToCreateTableInput(schema)
		output, err := p.client.CreateTable(ctx, input)
		if err != nil {
			var riu *types.ResourceInUseException
			if errors.As(err, &riu) {
				arn, waitErr := p.waitForActive(ctx, schema.TableName)
				if waitErr != nil {
					return &ProvisionResult{TableName: schema.TableName, Status: StatusFailed, Error: waitErr}, nil
				}
				return &ProvisionResult{TableName: schema.TableName, Status: StatusExists, ARN: arn}, nil
			}
			wrappedErr := usperrors.WrapDynamoDBError(err, schema.TableName, "CreateTable")
			return &ProvisionResult{TableName: schema.TableName, Status: StatusFailed, Error: wrappedErr}, nil
		}

		arn, err = p.waitForActive(ctx, schema.TableName)
		if err != nil {
			return &ProvisionResult{TableName: schema.TableName, Status: StatusFailed, Error: err}, nil
		}
		if arn == "" && output.TableDescription != nil {
			arn = aws.ToString(output.TableDescription.TableArn)
		}

		if schema.TTLAttribute != "" {
			if err := p.configureTTL(ctx, schema.TableName, schema.TTLAttribute); err != nil {
				return &ProvisionResult{
					TableName: schema.TableName, Status: StatusFailed, ARN: arn,
					Error: fmt.Errorf("table created but TTL configuration failed: %w", err),
				}, nil
			}
		}

		return &ProvisionResult{TableName: schema.TableName, Status: StatusCreated, ARN: arn}, nil

	default:
		return &ProvisionResult{
			TableName: schema.TableName, Status: StatusFailed,
			Error: fmt.Errorf("table exists with unexpected status: %s", status),
		}, nil
	}
}

// Plan returns what would be created for the given schema without
// making changes or requiring DescribeTable permissions.
func (p *TableProvisioner) Plan(schema TableSchema) (*ProvisionPlan, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	plan := &ProvisionPlan{
		TableName:    schema.TableName,
		WouldCreate:  true,
		GSIs:         schema.GSINames(),
		TTLAttribute: schema.TTLAttribute,
	}
	if schema.BillingMode != "" {
		plan.BillingMode = string(schema.BillingMode)
	} else {
		plan.BillingMode = string(BillingModePayPerRequest)
	}
	if schema.Encryption != nil {
		plan.Encryption = string(schema.Encryption.Type)
	}
	return plan, nil
}

// TableStatus returns the current status of a table, or "NOT_FOUND".
func (p *TableProvisioner) TableStatus(ctx context.Context, tableName string) (string, error) {
	status, _, err := p.getTableStatus(ctx, tableName)
	return status, err
}

func (p *TableProvisioner) getTableStatus(ctx context.Context, tableName string) (string, string, error) {
	output, err := p.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return "NOT_FOUND", "", nil
		}
		return "", "", usperrors.WrapDynamoDBError(err, tableName, "DescribeTable")
	}
	if output.Table == nil {
		return "NOT_FOUND", "", nil
	}
	return string(output.Table.TableStatus), aws.ToString(output.Table.TableArn), nil
}

func (p *TableProvisioner) waitForActive(ctx context.Context, tableName string) (string, error) {
	backoff := initialBackoff
	deadline := time.Now().Add(waitTimeout)

	for {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("timeout waiting for table %s to become ACTIVE", tableName)
		}

		status, arn, err := p.getTableStatus(ctx, tableName)
		if err != nil {
			return "", err
		}
		if status == "ACTIVE" {
			return arn, nil
		}
		if status == "NOT_FOUND" || status == "DELETING" {
			return "", fmt.Errorf("table %s is %s", tableName, status)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (p *TableProvisioner) configureTTL(ctx context.Context, tableName, ttlAttribute string) error {
	_, err := p.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttribute),
		},
	})
	if err != nil {
		return usperrors.WrapDynamoDBError(err, tableName, "UpdateTimeToLive")
	}
	return nil
}

func schemaToCreateTableInput(schema TableSchema) *dynamodb.CreateTableInput {
	attrDefs := make(map[string]types.AttributeDefinition)

	attrDefs[schema.PartitionKey.Name] = types.AttributeDefinition{
		AttributeName: aws.String(schema.PartitionKey.Name),
		AttributeType: types.ScalarAttributeType(schema.PartitionKey.Type),
	}
	if schema.SortKey != nil {
		attrDefs[schema.SortKey.Name] = types.AttributeDefinition{
			AttributeName: aws.String(schema.SortKey.Name),
			AttributeType: types.ScalarAttributeType(schema.SortKey.Type),
		}
	}
	for _, gsi := range schema.GlobalSecondaryIndexes {
		attrDefs[gsi.PartitionKey.Name] = types.AttributeDefinition{
			AttributeName: aws.String(gsi.PartitionKey.Name),
			AttributeType: types.ScalarAttributeType(gsi.PartitionKey.Type),
		}
		if gsi.SortKey != nil {
			attrDefs[gsi.SortKey.Name] = types.AttributeDefinition{
				AttributeName: aws.String(gsi.SortKey.Name),
				AttributeType: types.ScalarAttributeType(gsi.SortKey.Type),
			}
		}
	}

	attrDefSlice := make([]types.AttributeDefinition, 0, len(attrDefs))
	for _, ad := range attrDefs {
		attrDefSlice = append(attrDefSlice, ad)
	}

	keySchema := []types.KeySchemaElement{
		{AttributeName: aws.String(schema.PartitionKey.Name), KeyType: types.KeyTypeHash},
	}
	if schema.SortKey != nil {
		keySchema = append(keySchema, types.KeySchemaElement{
			AttributeName: aws.String(schema.SortKey.Name), KeyType: types.KeyTypeRange,
		})
	}

	var gsis []types.GlobalSecondaryIndex
	for _, gsi := range schema.GlobalSecondaryIndexes {
		gsiKeySchema := []types.KeySchemaElement{
			{AttributeName: aws.String(gsi.PartitionKey.Name), KeyType: types.KeyTypeHash},
		}
		if gsi.SortKey != nil {
			gsiKeySchema = append(gsiKeySchema, types.KeySchemaElement{
				AttributeName: aws.String(gsi.SortKey.Name), KeyType: types.KeyTypeRange,
			})
		}
		projectionType := types.ProjectionTypeAll
		if gsi.Projection != "" {
			projectionType = types.ProjectionType(gsi.Projection)
		}
		gsis = append(gsis, types.GlobalSecondaryIndex{
			IndexName:  aws.String(gsi.IndexName),
			KeySchema:  gsiKeySchema,
			Projection: &types.Projection{ProjectionType: projectionType},
		})
	}

	billingMode := types.BillingModePayPerRequest
	if schema.BillingMode != "" {
		billingMode = types.BillingMode(schema.BillingMode)
	}

	input := &dynamodb.CreateTableInput{
		TableName:            aws.String(schema.TableName),
		AttributeDefinitions: attrDefSlice,
		KeySchema:            keySchema,
		BillingMode:          billingMode,
	}
	if len(gsis) > 0 {
		input.GlobalSecondaryIndexes = gsis
	}

	if schema.Encryption != nil {
		switch schema.Encryption.Type {
		case EncryptionDefault:
			// DynamoDB default (AWS owned) encryption - no SSESpecification needed.
		case EncryptionKMS:
			input.SSESpecification = &types.SSESpecification{Enabled: aws.Bool(true), SSEType: types.SSETypeKms}
		case EncryptionCustomerKey:
			input.SSESpecification = &types.SSESpecification{
				Enabled: aws.Bool(true), SSEType: types.SSETypeKms, KMSMasterKeyId: aws.String(schema.Encryption.KMSKeyARN),
			}
		}
	}

	return input
}
