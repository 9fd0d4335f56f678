package transit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vaultcore/usp/crypto"
	sentinelerrors "github.com/vaultcore/usp/errors"
)

type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoDBStore implements Store using AWS DynamoDB.
//
// Table schema assumptions (created externally via Terraform/CloudFormation):
//   - Partition key: pk (String) - "key#{name}" for key rows,
//     "keyver#{name}" for version rows
//   - Sort key: sk (String) - "meta" for key rows, the version number
//     (as a string) for version rows
type DynamoDBStore struct {
	client    dynamoDBAPI
	tableName string
}

// NewDynamoDBStore creates a Store using the provided AWS configuration.
func NewDynamoDBStore(cfg aws.Config, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName}
}

type keyItem struct {
	PK                   string `dynamodbav:"pk"`
	SK                   string `dynamodbav:"sk"`
	Name                 string `dynamodbav:"name"`
	Type                 string `dynamodbav:"type"`
	Derivation           bool   `dynamodbav:"derivation"`
	Exportable           bool   `dynamodbav:"exportable"`
	LatestVersion        int    `dynamodbav:"latest_version"`
	MinDecryptionVersion int    `dynamodbav:"min_decryption_version"`
	CreatedAt            string `dynamodbav:"created_at"`
}

type versionItem struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	Name      string `dynamodbav:"name"`
	Version   int    `dynamodbav:"version"`
	Envelope  string `dynamodbav:"envelope"`
	PublicKey string `dynamodbav:"public_key"` // base64
	CreatedAt string `dynamodbav:"created_at"`
}

func keyPK(name string) string     { return "key#" + name }
func versionPK(name string) string { return "keyver#" + name }

func keyToItem(k *Key) *keyItem {
	return &keyItem{
		PK: keyPK(k.Name), SK: "meta", Name: k.Name, Type: string(k.Type),
		Derivation: k.Derivation, Exportable: k.Exportable,
		LatestVersion: k.LatestVersion, MinDecryptionVersion: k.MinDecryptionVersion,
		CreatedAt: k.CreatedAt.Format(time.RFC3339Nano),
	}
}

func itemToKey(item *keyItem) (*Key, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("transit: parsing created_at: %w", err)
	}
	return &Key{
		Name: item.Name, Type: crypto.KeyType(item.Type), Derivation: item.Derivation,
		Exportable: item.Exportable, LatestVersion: item.LatestVersion,
		MinDecryptionVersion: item.MinDecryptionVersion, CreatedAt: createdAt,
	}, nil
}

func versionToItem(v *KeyVersion) *versionItem {
	return &versionItem{
		PK: versionPK(v.Name), SK: strconv.Itoa(v.Version), Name: v.Name, Version: v.Version,
		Envelope: v.Envelope, PublicKey: base64.StdEncoding.EncodeToString(v.PublicKey),
		CreatedAt: v.CreatedAt.Format(time.RFC3339Nano),
	}
}

func itemToVersion(item *versionItem) (*KeyVersion, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("transit: parsing created_at: %w", err)
	}
	public, err := base64.StdEncoding.DecodeString(item.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("transit: decoding public key: %w", err)
	}
	return &KeyVersion{Name: item.Name, Version: item.Version, Envelope: item.Envelope, PublicKey: public, CreatedAt: createdAt}, nil
}

// GetKey retrieves name's key row. Returns ErrKeyNotFound if absent.
func (s *DynamoDBStore) GetKey(ctx context.Context, name string) (*Key, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: keyPK(name)},
			"sk": &types.AttributeValueMemberS{Value: "meta"},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if output.Item == nil {
		return nil, ErrKeyNotFound
	}
	var item keyItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, fmt.Errorf("transit: unmarshaling key: %w", err)
	}
	return itemToKey(&item)
}

// CreateKey persists a brand-new key row. Returns ErrKeyExists on collision.
func (s *DynamoDBStore) CreateKey(ctx context.Context, key *Key) error {
	item := keyToItem(key)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("transit: marshaling key: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrKeyExists
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

// SaveKey updates key using optimistic locking against expectedLatestVersion.
func (s *DynamoDBStore) SaveKey(ctx context.Context, key *Key, expectedLatestVersion int) error {
	item := keyToItem(key)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("transit: marshaling key: %w", err)
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
			return fmt.Errorf("%s: %w", key.Name, sentinelerrors.New(sentinelerrors.CodeCasMismatch,
				"transit key was modified concurrently", err))
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

// DeleteKey removes name's key row. Callers are responsible for deleting
// its version rows (e.g. via TrimOldVersions or a table TTL sweep).
func (s *DynamoDBStore) DeleteKey(ctx context.Context, name string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: keyPK(name)},
			"sk": &types.AttributeValueMemberS{Value: "meta"},
		},
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "DeleteItem")
	}
	return nil
}

// GetVersion retrieves one version row.
func (s *DynamoDBStore) GetVersion(ctx context.Context, name string, version int) (*KeyVersion, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: versionPK(name)},
			"sk": &types.AttributeValueMemberS{Value: strconv.Itoa(version)},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if output.Item == nil {
		return nil, fmt.Errorf("%s v%d: %w", name, version, ErrKeyNotFound)
	}
	var item versionItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, fmt.Errorf("transit: unmarshaling version: %w", err)
	}
	return itemToVersion(&item)
}

// PutVersion writes one version row.
func (s *DynamoDBStore) PutVersion(ctx context.Context, v *KeyVersion) error {
	item := versionToItem(v)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("transit: marshaling version: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

// DeleteVersion removes one version row, used by TrimOldVersions.
func (s *DynamoDBStore) DeleteVersion(ctx context.Context, name string, version int) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: versionPK(name)},
			"sk": &types.AttributeValueMemberS{Value: strconv.Itoa(version)},
		},
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "DeleteItem")
	}
	return nil
}
