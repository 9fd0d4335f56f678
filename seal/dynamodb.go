package seal

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	sentinelerrors "github.com/vaultcore/usp/errors"
)

// configPartitionKey is the fixed partition key under which the single
// current SealConfig row lives; SealConfig is a singleton per cluster,
// so there is exactly one item in this table at any time.
const configPartitionKey = "seal-config"

type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoDBConfigStore implements ConfigStore using AWS DynamoDB.
//
// Table schema assumptions (created externally via Terraform/CloudFormation):
//   - Partition key: id (String), always configPartitionKey
type DynamoDBConfigStore struct {
	client    dynamoDBAPI
	tableName string
}

// NewDynamoDBConfigStore creates a ConfigStore using the provided AWS configuration.
func NewDynamoDBConfigStore(cfg aws.Config, tableName string) *DynamoDBConfigStore {
	return &DynamoDBConfigStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBConfigStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBConfigStore {
	return &DynamoDBConfigStore{client: client, tableName: tableName}
}

type configItem struct {
	ID                 string `dynamodbav:"id"`
	Version            int    `dynamodbav:"version"`
	SecretShares       int    `dynamodbav:"secret_shares"`
	SecretThreshold    int    `dynamodbav:"secret_threshold"`
	EncryptedMasterKey string `dynamodbav:"encrypted_master_key"` // base64
	InitializedAt       string `dynamodbav:"initialized_at"`       // RFC3339Nano
}

func configToItem(c *SealConfig) *configItem {
	return &configItem{
		ID:                 configPartitionKey,
		Version:            c.Version,
		SecretShares:       c.SecretShares,
		SecretThreshold:    c.SecretThreshold,
		EncryptedMasterKey: base64.StdEncoding.EncodeToString(c.EncryptedMasterKey),
		InitializedAt:      c.InitializedAt.Format(time.RFC3339Nano),
	}
}

func itemToConfig(item *configItem) (*SealConfig, error) {
	wrapped, err := base64.StdEncoding.DecodeString(item.EncryptedMasterKey)
	if err != nil {
		return nil, fmt.Errorf("seal: decoding encrypted master key: %w", err)
	}
	initializedAt, err := time.Parse(time.RFC3339Nano, item.InitializedAt)
	if err != nil {
		return nil, fmt.Errorf("seal: parsing initialized_at: %w", err)
	}
	return &SealConfig{
		Version:            item.Version,
		SecretShares:       item.SecretShares,
		SecretThreshold:    item.SecretThreshold,
		EncryptedMasterKey: wrapped,
		InitializedAt:      initializedAt,
	}, nil
}

// Load retrieves the current SealConfig, or ErrNotInitialized if none exists.
func (s *DynamoDBConfigStore) Load(ctx context.Context) (*SealConfig, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: configPartitionKey},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if output.Item == nil {
		return nil, ErrNotInitialized
	}

	var item configItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, fmt.Errorf("seal: unmarshaling config: %w", err)
	}
	return itemToConfig(&item)
}

// Save writes config. The first Init call relies on the caller (Manager)
// never invoking Save twice for version 1; Rekey always increments
// Version, so each Save overwrites the singleton row with a strictly
// newer generation and there is no conditional-write race to guard here
// the way request.Store guards concurrent creation of distinct IDs.
func (s *DynamoDBConfigStore) Save(ctx context.Context, config *SealConfig) error {
	item := configToItem(config)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("seal: marshaling config: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyInitialized
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}
