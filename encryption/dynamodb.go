package encryption

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	sentinelerrors "github.com/vaultcore/usp/errors"
)

type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoDBStore implements KeyStore using AWS DynamoDB.
//
// Table schema assumptions (created externally, see infrastructure.Provisioner):
//   - Partition key: pk (String) - "key#{name}"
//   - Sort key: sk (String) - the literal "meta"
type DynamoDBStore struct {
	client    dynamoDBAPI
	tableName string
}

// NewDynamoDBStore creates a KeyStore using the provided AWS configuration.
func NewDynamoDBStore(cfg aws.Config, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName}
}

type keyMetaItem struct {
	PK                   string `dynamodbav:"pk"`
	SK                   string `dynamodbav:"sk"`
	Name                 string `dynamodbav:"name"`
	LatestVersion        int    `dynamodbav:"latest_version"`
	MinDecryptionVersion int    `dynamodbav:"min_decryption_version"`
	CreatedAt            string `dynamodbav:"created_at"`
}

func keyMetaPK(name string) string { return "key#" + name }

func metaToItem(m *KeyMeta) *keyMetaItem {
	return &keyMetaItem{
		PK: keyMetaPK(m.Name), SK: "meta", Name: m.Name,
		LatestVersion: m.LatestVersion, MinDecryptionVersion: m.MinDecryptionVersion,
		CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
	}
}

func itemToMeta(item *keyMetaItem) (*KeyMeta, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("encryption: parsing created_at: %w", err)
	}
	return &KeyMeta{
		Name: item.Name, LatestVersion: item.LatestVersion,
		MinDecryptionVersion: item.MinDecryptionVersion, CreatedAt: createdAt,
	}, nil
}

// GetKeyMeta retrieves name's key metadata row. Returns ErrKeyNotFound if absent.
func (s *DynamoDBStore) GetKeyMeta(ctx context.Context, name string) (*KeyMeta, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: keyMetaPK(name)},
			"sk": &types.AttributeValueMemberS{Value: "meta"},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if output.Item == nil {
		return nil, ErrKeyNotFound
	}
	var item keyMetaItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, fmt.Errorf("encryption: unmarshaling key metadata: %w", err)
	}
	return itemToMeta(&item)
}

// CreateKeyMeta persists a brand-new key metadata row, used the first
// time a context name is encrypted under. Concurrent creates race
// safely: the loser's attribute_not_exists condition fails and the
// caller re-fetches via GetKeyMeta.
func (s *DynamoDBStore) CreateKeyMeta(ctx context.Context, meta *KeyMeta) error {
	item := metaToItem(meta)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("encryption: marshaling key metadata: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return sentinelerrors.New(sentinelerrors.CodeAlreadyExists, "encryption: key metadata already exists", err)
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

// SaveKeyMeta updates meta using optimistic locking against
// expectedLatestVersion, so a concurrent Rotate never silently clobbers
// another Rotate or a SetMinDecryptionVersion.
func (s *DynamoDBStore) SaveKeyMeta(ctx context.Context, meta *KeyMeta, expectedLatestVersion int) error {
	item := metaToItem(meta)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("encryption: marshaling key metadata: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("latest_version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(expectedLatestVersion)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConcurrentRotation
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}
