package safe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	sentinelerrors "github.com/vaultcore/usp/errors"
)

// GSISafe indexes accounts by their owning safe, for ListAccountsBySafe.
const GSISafe = "gsi-safe"

type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBStore implements Store and AccountStore using a single
// DynamoDB table, distinguishing safes from accounts by a "kind"
// attribute ("safe"/"account") the way other pam tables in this module
// share one table across related record types.
type DynamoDBStore struct {
	client    dynamoDBAPI
	tableName string
}

// NewDynamoDBStore constructs a store backed by an AWS DynamoDB client.
func NewDynamoDBStore(cfg aws.Config, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName}
}

type safeItem struct {
	ID          string `dynamodbav:"id"`
	Kind        string `dynamodbav:"kind"`
	Name        string `dynamodbav:"name"`
	Description string `dynamodbav:"description"`
	ACL         string `dynamodbav:"acl"` // JSON-encoded []ACLEntry
	CreatedAt   string `dynamodbav:"created_at"`
	UpdatedAt   string `dynamodbav:"updated_at"`
}

type accountItem struct {
	ID               string `dynamodbav:"id"`
	Kind             string `dynamodbav:"kind"`
	SafeID           string `dynamodbav:"safe_id"`
	Name             string `dynamodbav:"name"`
	Platform         string `dynamodbav:"platform"`
	Address          string `dynamodbav:"address"`
	Username         string `dynamodbav:"username"`
	TransitKeyName   string `dynamodbav:"transit_key_name"`
	Status           string `dynamodbav:"status"`
	RotationInterval int64  `dynamodbav:"rotation_interval"`
	LastRotatedAt    string `dynamodbav:"last_rotated_at"`
	CreatedAt        string `dynamodbav:"created_at"`
	UpdatedAt        string `dynamodbav:"updated_at"`
}

func safeToItem(s *Safe) (*safeItem, error) {
	aclJSON, err := json.Marshal(s.ACL)
	if err != nil {
		return nil, fmt.Errorf("marshal acl: %w", err)
	}
	return &safeItem{
		ID: s.ID, Kind: "safe", Name: s.Name, Description: s.Description,
		ACL:       string(aclJSON),
		CreatedAt: s.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func itemToSafe(item *safeItem) (*Safe, error) {
	var acl []ACLEntry
	if err := json.Unmarshal([]byte(item.ACL), &acl); err != nil {
		return nil, fmt.Errorf("unmarshal acl: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &Safe{
		ID: item.ID, Name: item.Name, Description: item.Description, ACL: acl,
		CreatedAt: createdAt, UpdatedAt: updatedAt,
	}, nil
}

func accountToItem(a *PrivilegedAccount) *accountItem {
	lastRotated := ""
	if !a.LastRotatedAt.IsZero() {
		lastRotated = a.LastRotatedAt.Format(time.RFC3339Nano)
	}
	return &accountItem{
		ID: a.ID, Kind: "account", SafeID: a.SafeID, Name: a.Name,
		Platform: string(a.Platform), Address: a.Address, Username: a.Username,
		TransitKeyName: a.TransitKeyName, Status: string(a.Status),
		RotationInterval: int64(a.RotationInterval), LastRotatedAt: lastRotated,
		CreatedAt: a.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: a.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func itemToAccount(item *accountItem) (*PrivilegedAccount, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	var lastRotated time.Time
	if item.LastRotatedAt != "" {
		lastRotated, err = time.Parse(time.RFC3339Nano, item.LastRotatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse last_rotated_at: %w", err)
		}
	}
	return &PrivilegedAccount{
		ID: item.ID, SafeID: item.SafeID, Name: item.Name,
		Platform: Platform(item.Platform), Address: item.Address, Username: item.Username,
		TransitKeyName: item.TransitKeyName, Status: AccountStatus(item.Status),
		RotationInterval: time.Duration(item.RotationInterval), LastRotatedAt: lastRotated,
		CreatedAt: createdAt, UpdatedAt: updatedAt,
	}, nil
}

func (s *DynamoDBStore) CreateSafe(ctx context.Context, safeVal *Safe) error {
	item, err := safeToItem(safeVal)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal safe: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", safeVal.ID, ErrSafeExists)
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) GetSafe(ctx context.Context, id string) (*Safe, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrSafeNotFound)
	}
	var item safeItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal safe: %w", err)
	}
	return itemToSafe(&item)
}

func (s *DynamoDBStore) UpdateSafe(ctx context.Context, safeVal *Safe) error {
	item, err := safeToItem(safeVal)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal safe: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", safeVal.ID, ErrSafeNotFound)
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) DeleteSafe(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "DeleteItem")
	}
	return nil
}

func (s *DynamoDBStore) ListSafes(ctx context.Context, limit int) ([]*Safe, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName), FilterExpression: aws.String("kind = :k"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": &types.AttributeValueMemberS{Value: "safe"},
		},
		Limit: aws.Int32(int32(clampLimit(limit))),
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}
	result := make([]*Safe, 0, len(out.Items))
	for _, av := range out.Items {
		var item safeItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshal safe: %w", err)
		}
		sf, err := itemToSafe(&item)
		if err != nil {
			return nil, err
		}
		result = append(result, sf)
	}
	return result, nil
}

func (s *DynamoDBStore) CreateAccount(ctx context.Context, a *PrivilegedAccount) error {
	av, err := attributevalue.MarshalMap(accountToItem(a))
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", a.ID, ErrAccountExists)
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) GetAccount(ctx context.Context, id string) (*PrivilegedAccount, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrAccountNotFound)
	}
	var item accountItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return itemToAccount(&item)
}

func (s *DynamoDBStore) UpdateAccount(ctx context.Context, a *PrivilegedAccount) error {
	av, err := attributevalue.MarshalMap(accountToItem(a))
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", a.ID, ErrAccountNotFound)
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) DeleteAccount(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "DeleteItem")
	}
	return nil
}

func (s *DynamoDBStore) ListAccountsBySafe(ctx context.Context, safeID string, limit int) ([]*PrivilegedAccount, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName), IndexName: aws.String(GSISafe),
		KeyConditionExpression: aws.String("safe_id = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: safeID},
		},
		Limit: aws.Int32(int32(clampLimit(limit))),
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Query:"+GSISafe)
	}
	return itemsToAccounts(out.Items)
}

func (s *DynamoDBStore) ListAccountsDueForRotation(ctx context.Context, limit int) ([]*PrivilegedAccount, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
		FilterExpression: aws.String(
			"kind = :k AND #status = :active AND rotation_interval > :zero",
		),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k":      &types.AttributeValueMemberS{Value: "account"},
			":active": &types.AttributeValueMemberS{Value: string(AccountStatusActive)},
			":zero":   &types.AttributeValueMemberN{Value: "0"},
		},
		Limit: aws.Int32(int32(clampLimit(limit))),
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}
	accounts, err := itemsToAccounts(out.Items)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	due := accounts[:0]
	for _, a := range accounts {
		if a.DueForRotation(now) {
			due = append(due, a)
		}
	}
	return due, nil
}

func itemsToAccounts(items []map[string]types.AttributeValue) ([]*PrivilegedAccount, error) {
	out := make([]*PrivilegedAccount, 0, len(items))
	for _, av := range items {
		var item accountItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshal account: %w", err)
		}
		a, err := itemToAccount(&item)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
