package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type userRoleItem struct {
	PK       string `dynamodbav:"pk"`
	SK       string `dynamodbav:"sk"`
	UserID   string `dynamodbav:"user_id"`
	RoleName string `dynamodbav:"role_name"`
}

type rbacDynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBRBACStore persists roles (pk "role#{name}") and user-role
// assignments (pk "userrole#{userID}", sk "{roleName}") in a single
// table, the same single-table-with-prefixed-pk layout the teacher uses
// elsewhere in this module.
type DynamoDBRBACStore struct {
	client rbacDynamoDBAPI
	table  string
}

// NewDynamoDBRBACStore constructs a store backed by an AWS DynamoDB client.
func NewDynamoDBRBACStore(client *dynamodb.Client, table string) *DynamoDBRBACStore {
	return newDynamoDBRBACStoreWithClient(client, table)
}

func newDynamoDBRBACStoreWithClient(client rbacDynamoDBAPI, table string) *DynamoDBRBACStore {
	return &DynamoDBRBACStore{client: client, table: table}
}

func rolePK(name string) string       { return "role#" + name }
func userRolePK(userID string) string { return "userrole#" + userID }

func (s *DynamoDBRBACStore) PutRole(ctx context.Context, role Role) error {
	permsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("policy: marshal permissions: %w", err)
	}
	item := map[string]types.AttributeValue{
		"pk":          &types.AttributeValueMemberS{Value: rolePK(role.Name)},
		"sk":          &types.AttributeValueMemberS{Value: "role"},
		"name":        &types.AttributeValueMemberS{Value: role.Name},
		"permissions": &types.AttributeValueMemberS{Value: string(permsJSON)},
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("policy: put role: %w", err)
	}
	return nil
}

func (s *DynamoDBRBACStore) AssignRole(ctx context.Context, userID, roleName string) error {
	av, err := attributevalue.MarshalMap(userRoleItem{
		PK:       userRolePK(userID),
		SK:       roleName,
		UserID:   userID,
		RoleName: roleName,
	})
	if err != nil {
		return fmt.Errorf("policy: marshal user role: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("policy: assign role: %w", err)
	}
	return nil
}

func (s *DynamoDBRBACStore) RevokeRole(ctx context.Context, userID, roleName string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: userRolePK(userID)},
			"sk": &types.AttributeValueMemberS{Value: roleName},
		},
	})
	if err != nil {
		return fmt.Errorf("policy: revoke role: %w", err)
	}
	return nil
}

func (s *DynamoDBRBACStore) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: userRolePK(userID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("policy: scan user roles: %w", err)
	}

	var names []string
	for _, item := range out.Items {
		var row userRoleItem
		if err := attributevalue.UnmarshalMap(item, &row); err != nil {
			continue
		}
		names = append(names, row.RoleName)
	}
	return names, nil
}

func (s *DynamoDBRBACStore) Permissions(ctx context.Context, roleName string) ([]Permission, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: rolePK(roleName)},
			"sk": &types.AttributeValueMemberS{Value: "role"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("policy: get role: %w", err)
	}
	if out.Item == nil {
		return nil, ErrRoleNotFound
	}

	permsAttr, ok := out.Item["permissions"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("policy: role %q missing permissions attribute", roleName)
	}
	var perms []Permission
	if err := json.Unmarshal([]byte(permsAttr.Value), &perms); err != nil {
		return nil, fmt.Errorf("policy: unmarshal permissions: %w", err)
	}
	return perms, nil
}
