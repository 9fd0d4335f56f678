package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
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
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBStore implements Store using AWS DynamoDB.
//
// Table schema assumptions (created externally via Terraform/CloudFormation):
//   - Partition key: pk (String) - "meta#{path}" for metadata rows,
//     "ver#{path}" for version rows
//   - Sort key: sk (String) - "meta" for metadata, zero-padded version
//     number for version rows, so Query returns versions oldest-first
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

func metaKey(path string) (string, string) { return "meta#" + path, "meta" }
func verKey(path string, version int) (string, string) {
	return "ver#" + path, fmt.Sprintf("%020d", version)
}

type metaItem struct {
	PK             string `dynamodbav:"pk"`
	SK             string `dynamodbav:"sk"`
	Path           string `dynamodbav:"path"`
	CurrentVersion int    `dynamodbav:"current_version"`
	OldestVersion  int    `dynamodbav:"oldest_version"`
	MaxVersions    int    `dynamodbav:"max_versions"`
	CASRequired    bool   `dynamodbav:"cas_required"`
	CreatedAt      string `dynamodbav:"created_at"`
	UpdatedAt      string `dynamodbav:"updated_at"`
}

type verItem struct {
	PK          string `dynamodbav:"pk"`
	SK          string `dynamodbav:"sk"`
	Path        string `dynamodbav:"path"`
	Version     int    `dynamodbav:"version"`
	Envelope    string `dynamodbav:"envelope"`
	CreatedAt   string `dynamodbav:"created_at"`
	DeletedAt   string `dynamodbav:"deleted_at"`
	IsDeleted   bool   `dynamodbav:"is_deleted"`
	IsDestroyed bool   `dynamodbav:"is_destroyed"`
}

func metaToItem(m *Metadata) *metaItem {
	pk, sk := metaKey(m.Path)
	return &metaItem{
		PK: pk, SK: sk, Path: m.Path,
		CurrentVersion: m.CurrentVersion,
		OldestVersion:  m.OldestVersion,
		MaxVersions:    m.MaxVersions,
		CASRequired:    m.CASRequired,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:      m.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func itemToMeta(item *metaItem) (*Metadata, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("kv: parsing created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("kv: parsing updated_at: %w", err)
	}
	return &Metadata{
		Path: item.Path, CurrentVersion: item.CurrentVersion,
		OldestVersion: item.OldestVersion, MaxVersions: item.MaxVersions,
		CASRequired: item.CASRequired, CreatedAt: createdAt, UpdatedAt: updatedAt,
	}, nil
}

func verToItem(v *Version) *verItem {
	pk, sk := verKey(v.Path, v.Version)
	item := &verItem{
		PK: pk, SK: sk, Path: v.Path, Version: v.Version,
		Envelope:    v.Envelope,
		CreatedAt:   v.CreatedAt.Format(time.RFC3339Nano),
		IsDeleted:   v.IsDeleted,
		IsDestroyed: v.IsDestroyed,
	}
	if v.DeletedAt != nil {
		item.DeletedAt = v.DeletedAt.Format(time.RFC3339Nano)
	}
	return item
}

func itemToVer(item *verItem) (*Version, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("kv: parsing created_at: %w", err)
	}
	v := &Version{
		Path: item.Path, Version: item.Version, Envelope: item.Envelope,
		CreatedAt: createdAt, IsDeleted: item.IsDeleted, IsDestroyed: item.IsDestroyed,
	}
	if item.DeletedAt != "" {
		deletedAt, err := time.Parse(time.RFC3339Nano, item.DeletedAt)
		if err != nil {
			return nil, fmt.Errorf("kv: parsing deleted_at: %w", err)
		}
		v.DeletedAt = &deletedAt
	}
	return v, nil
}

// GetMetadata retrieves path's metadata row. Returns ErrNotFound if absent.
func (s *DynamoDBStore) GetMetadata(ctx context.Context, path string) (*Metadata, error) {
	pk, sk := metaKey(path)
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if output.Item == nil {
		return nil, ErrNotFound
	}
	var item metaItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, fmt.Errorf("kv: unmarshaling metadata: %w", err)
	}
	return itemToMeta(&item)
}

// SaveMetadata writes meta using optimistic locking: the write fails
// with ErrConcurrentModification if the stored current_version no
// longer matches expectedVersion (the value read before this write's
// new version was computed).
func (s *DynamoDBStore) SaveMetadata(ctx context.Context, meta *Metadata, expectedVersion int) error {
	item := metaToItem(meta)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("kv: marshaling metadata: %w", err)
	}

	var condition *string
	var values map[string]types.AttributeValue
	if expectedVersion == 0 {
		condition = aws.String("attribute_not_exists(pk) OR current_version = :expected")
		values = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: "0"},
		}
	} else {
		condition = aws.String("current_version = :expected")
		values = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(expectedVersion)},
		}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       condition,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConcurrentModification
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

// GetVersion retrieves one version row.
func (s *DynamoDBStore) GetVersion(ctx context.Context, path string, version int) (*Version, error) {
	pk, sk := verKey(path, version)
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if output.Item == nil {
		return nil, ErrVersionNotFound
	}
	var item verItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, fmt.Errorf("kv: unmarshaling version: %w", err)
	}
	return itemToVer(&item)
}

// PutVersion writes (creates or updates) one version row.
func (s *DynamoDBStore) PutVersion(ctx context.Context, v *Version) error {
	item := verToItem(v)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("kv: marshaling version: %w", err)
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

// ListVersions returns every version row for path, oldest-first (sort
// key is a zero-padded version number, so the DynamoDB Query already
// returns them in that order).
func (s *DynamoDBStore) ListVersions(ctx context.Context, path string) ([]*Version, error) {
	pk, _ := verKey(path, 0)
	output, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Query")
	}

	versions := make([]*Version, 0, len(output.Items))
	for _, rawItem := range output.Items {
		var item verItem
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			return nil, fmt.Errorf("kv: unmarshaling version: %w", err)
		}
		v, err := itemToVer(&item)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions, nil
}

// ListChildren returns the immediate distinct child segments under
// prefix by scanning metadata rows whose path starts with prefix. This
// issues a table Scan filtered by begins_with; deployments with large
// secret counts should instead maintain a dedicated hierarchy index,
// which is outside this package's scope.
func (s *DynamoDBStore) ListChildren(ctx context.Context, prefix string) ([]string, error) {
	output, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("sk = :meta AND begins_with(path, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":meta":   &types.AttributeValueMemberS{Value: "meta"},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}

	seen := make(map[string]bool)
	children := make([]string, 0)
	for _, rawItem := range output.Items {
		var item metaItem
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			continue
		}
		rest := strings.TrimPrefix(item.Path, prefix)
		rest = strings.TrimPrefix(rest, "/")
		if rest == "" {
			continue
		}
		child := strings.SplitN(rest, "/", 2)[0]
		if !seen[child] {
			seen[child] = true
			children = append(children, child)
		}
	}
	sort.Strings(children)
	return children, nil
}
