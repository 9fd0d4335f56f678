package jit

import (
	"context"
	"errors"
	"fmt"
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
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBStore implements Store using a single table, distinguishing
// grants/approvals/templates by a "kind" attribute the way the rest of
// pam/'s DynamoDB stores share one table across related record types.
// Templates are expected to be few and read-heavy, so GetTemplate uses
// a direct key lookup rather than a cached loader.
type DynamoDBStore struct {
	client    dynamoDBAPI
	tableName string
}

func NewDynamoDBStore(cfg aws.Config, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName}
}

type grantItem struct {
	ID            string `dynamodbav:"id"`
	Kind          string `dynamodbav:"kind"`
	ResourceType  string `dynamodbav:"resource_type"`
	ResourceID    string `dynamodbav:"resource_id"`
	Requester     string `dynamodbav:"requester"`
	AccessLevel   string `dynamodbav:"access_level"`
	Justification string `dynamodbav:"justification"`
	TemplateID    string `dynamodbav:"template_id"`
	Status        string `dynamodbav:"status"`
	RequestedAt   string `dynamodbav:"requested_at"`
	GrantedAt     string `dynamodbav:"granted_at"`
	ExpiresAt     string `dynamodbav:"expires_at"`
	RevokedAt     string `dynamodbav:"revoked_at"`
	RevokedBy     string `dynamodbav:"revoked_by"`
	RevokeReason  string `dynamodbav:"revoke_reason"`
	UpdatedAt     string `dynamodbav:"updated_at"`
}

type approvalItem struct {
	ID        string   `dynamodbav:"id"`
	Kind      string   `dynamodbav:"kind"`
	GrantID   string   `dynamodbav:"grant_id"`
	Approvers []string `dynamodbav:"approvers"`
	Approver  string   `dynamodbav:"approver"`
	Approved  bool     `dynamodbav:"approved"`
	Decided   bool     `dynamodbav:"decided"`
	Reason    string   `dynamodbav:"reason"`
	CreatedAt string   `dynamodbav:"created_at"`
	UpdatedAt string   `dynamodbav:"updated_at"`
}

type templateItem struct {
	ID                 string `dynamodbav:"id"`
	Kind               string `dynamodbav:"kind"`
	Name               string `dynamodbav:"name"`
	ResourceType       string `dynamodbav:"resource_type"`
	RequiresApproval   bool   `dynamodbav:"requires_approval"`
	Approvers          []string `dynamodbav:"approvers"`
	MaxDurationNanos   int64  `dynamodbav:"max_duration_nanos"`
	DefaultAccessLevel string `dynamodbav:"default_access_level"`
}

func ft(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func pt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func grantToItem(g *Grant) *grantItem {
	return &grantItem{
		ID: g.ID, Kind: "grant", ResourceType: g.ResourceType, ResourceID: g.ResourceID,
		Requester: g.Requester, AccessLevel: g.AccessLevel, Justification: g.Justification,
		TemplateID: g.TemplateID, Status: string(g.Status), RequestedAt: ft(g.RequestedAt),
		GrantedAt: ft(g.GrantedAt), ExpiresAt: ft(g.ExpiresAt), RevokedAt: ft(g.RevokedAt),
		RevokedBy: g.RevokedBy, RevokeReason: g.RevokeReason, UpdatedAt: ft(g.UpdatedAt),
	}
}

func itemToGrant(item *grantItem) (*Grant, error) {
	requestedAt, err := pt(item.RequestedAt)
	if err != nil {
		return nil, err
	}
	grantedAt, err := pt(item.GrantedAt)
	if err != nil {
		return nil, err
	}
	expiresAt, err := pt(item.ExpiresAt)
	if err != nil {
		return nil, err
	}
	revokedAt, err := pt(item.RevokedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := pt(item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &Grant{
		ID: item.ID, ResourceType: item.ResourceType, ResourceID: item.ResourceID,
		Requester: item.Requester, AccessLevel: item.AccessLevel, Justification: item.Justification,
		TemplateID: item.TemplateID, Status: Status(item.Status), RequestedAt: requestedAt,
		GrantedAt: grantedAt, ExpiresAt: expiresAt, RevokedAt: revokedAt,
		RevokedBy: item.RevokedBy, RevokeReason: item.RevokeReason, UpdatedAt: updatedAt,
	}, nil
}

func (s *DynamoDBStore) CreateGrant(ctx context.Context, g *Grant) error {
	av, err := attributevalue.MarshalMap(grantToItem(g))
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", g.ID, ErrGrantExists)
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) GetGrant(ctx context.Context, id string) (*Grant, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrGrantNotFound)
	}
	var item grantItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal grant: %w", err)
	}
	return itemToGrant(&item)
}

func (s *DynamoDBStore) UpdateGrant(ctx context.Context, g *Grant) error {
	av, err := attributevalue.MarshalMap(grantToItem(g))
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", g.ID, ErrGrantNotFound)
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) ListGrantsByStatus(ctx context.Context, status Status, limit int) ([]*Grant, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("kind = :k AND #status = :st"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k":  &types.AttributeValueMemberS{Value: "grant"},
			":st": &types.AttributeValueMemberS{Value: string(status)},
		},
		Limit: aws.Int32(int32(clampLimit(limit))),
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}
	return itemsToGrants(out.Items)
}

func (s *DynamoDBStore) ListGrantsByRequester(ctx context.Context, requester string, limit int) ([]*Grant, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("kind = :k AND requester = :r"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": &types.AttributeValueMemberS{Value: "grant"},
			":r": &types.AttributeValueMemberS{Value: requester},
		},
		Limit: aws.Int32(int32(clampLimit(limit))),
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}
	return itemsToGrants(out.Items)
}

func itemsToGrants(items []map[string]types.AttributeValue) ([]*Grant, error) {
	out := make([]*Grant, 0, len(items))
	for _, av := range items {
		var item grantItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshal grant: %w", err)
		}
		g, err := itemToGrant(&item)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *DynamoDBStore) CreateApproval(ctx context.Context, a *Approval) error {
	item := &approvalItem{
		ID: a.ID, Kind: "approval", GrantID: a.GrantID, Approvers: a.Approvers,
		Approver: a.Approver, Approved: a.Approved, Decided: a.Decided, Reason: a.Reason,
		CreatedAt: ft(a.CreatedAt), UpdatedAt: ft(a.UpdatedAt),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal approval: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) GetApproval(ctx context.Context, id string) (*Approval, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrApprovalNotFound)
	}
	var item approvalItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal approval: %w", err)
	}
	createdAt, err := pt(item.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := pt(item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &Approval{
		ID: item.ID, GrantID: item.GrantID, Approvers: item.Approvers, Approver: item.Approver,
		Approved: item.Approved, Decided: item.Decided, Reason: item.Reason,
		CreatedAt: createdAt, UpdatedAt: updatedAt,
	}, nil
}

func (s *DynamoDBStore) UpdateApproval(ctx context.Context, a *Approval) error {
	item := &approvalItem{
		ID: a.ID, Kind: "approval", GrantID: a.GrantID, Approvers: a.Approvers,
		Approver: a.Approver, Approved: a.Approved, Decided: a.Decided, Reason: a.Reason,
		CreatedAt: ft(a.CreatedAt), UpdatedAt: ft(a.UpdatedAt),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal approval: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) GetTemplate(ctx context.Context, id string) (*Template, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrTemplateNotFound)
	}
	var item templateItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	return &Template{
		ID: item.ID, Name: item.Name, ResourceType: item.ResourceType,
		RequiresApproval: item.RequiresApproval, Approvers: item.Approvers,
		MaxDuration: time.Duration(item.MaxDurationNanos), DefaultAccessLevel: item.DefaultAccessLevel,
	}, nil
}

func (s *DynamoDBStore) PutTemplate(ctx context.Context, t *Template) error {
	item := &templateItem{
		ID: t.ID, Kind: "template", Name: t.Name, ResourceType: t.ResourceType,
		RequiresApproval: t.RequiresApproval, Approvers: t.Approvers,
		MaxDurationNanos: int64(t.MaxDuration), DefaultAccessLevel: t.DefaultAccessLevel,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: av})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}
