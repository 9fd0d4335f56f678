package checkout

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

// GSIAccount indexes checkouts by account, for ActiveForAccount and
// ListByAccount.
const GSIAccount = "gsi-account"

type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBStore implements Store using a single table, distinguishing
// checkouts from approvals by a "kind" attribute the way
// pam/safe.DynamoDBStore shares one table across safes and accounts.
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

type checkoutItem struct {
	ID              string `dynamodbav:"id"`
	Kind            string `dynamodbav:"kind"`
	AccountID       string `dynamodbav:"account_id"`
	SafeID          string `dynamodbav:"safe_id"`
	Requester       string `dynamodbav:"requester"`
	Reason          string `dynamodbav:"reason"`
	Status          string `dynamodbav:"status"`
	ApprovalID      string `dynamodbav:"approval_id"`
	DurationNanos   int64  `dynamodbav:"duration_nanos"`
	RequestedAt     string `dynamodbav:"requested_at"`
	CheckedOutAt    string `dynamodbav:"checked_out_at"`
	ExpiresAt       string `dynamodbav:"expires_at"`
	CheckedInAt     string `dynamodbav:"checked_in_at"`
	CheckinNotes    string `dynamodbav:"checkin_notes"`
	RotateOnCheckin bool   `dynamodbav:"rotate_on_checkin"`
	ForcedBy        string `dynamodbav:"forced_by"`
	SessionID       string `dynamodbav:"session_id"`
	UpdatedAt       string `dynamodbav:"updated_at"`
}

type approvalItem struct {
	ID         string   `dynamodbav:"id"`
	Kind       string   `dynamodbav:"kind"`
	CheckoutID string   `dynamodbav:"checkout_id"`
	Routing    string   `dynamodbav:"routing"`
	Approvers  []string `dynamodbav:"approvers"`
	VotesJSON  string   `dynamodbav:"votes_json"`
	Status     string   `dynamodbav:"status"`
	CreatedAt  string   `dynamodbav:"created_at"`
	UpdatedAt  string   `dynamodbav:"updated_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func checkoutToItem(c *Checkout) *checkoutItem {
	return &checkoutItem{
		ID: c.ID, Kind: "checkout", AccountID: c.AccountID, SafeID: c.SafeID,
		Requester: c.Requester, Reason: c.Reason, Status: string(c.Status),
		ApprovalID: c.ApprovalID, DurationNanos: int64(c.Duration),
		RequestedAt: formatTime(c.RequestedAt), CheckedOutAt: formatTime(c.CheckedOutAt),
		ExpiresAt: formatTime(c.ExpiresAt), CheckedInAt: formatTime(c.CheckedInAt),
		CheckinNotes: c.CheckinNotes, RotateOnCheckin: c.RotateOnCheckin,
		ForcedBy: c.ForcedBy, SessionID: c.SessionID, UpdatedAt: formatTime(c.UpdatedAt),
	}
}

func itemToCheckout(item *checkoutItem) (*Checkout, error) {
	requestedAt, err := parseTime(item.RequestedAt)
	if err != nil {
		return nil, fmt.Errorf("parse requested_at: %w", err)
	}
	checkedOutAt, err := parseTime(item.CheckedOutAt)
	if err != nil {
		return nil, fmt.Errorf("parse checked_out_at: %w", err)
	}
	expiresAt, err := parseTime(item.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	checkedInAt, err := parseTime(item.CheckedInAt)
	if err != nil {
		return nil, fmt.Errorf("parse checked_in_at: %w", err)
	}
	updatedAt, err := parseTime(item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &Checkout{
		ID: item.ID, AccountID: item.AccountID, SafeID: item.SafeID,
		Requester: item.Requester, Reason: item.Reason, Status: Status(item.Status),
		ApprovalID: item.ApprovalID, Duration: time.Duration(item.DurationNanos),
		RequestedAt: requestedAt, CheckedOutAt: checkedOutAt, ExpiresAt: expiresAt,
		CheckedInAt: checkedInAt, CheckinNotes: item.CheckinNotes,
		RotateOnCheckin: item.RotateOnCheckin, ForcedBy: item.ForcedBy,
		SessionID: item.SessionID, UpdatedAt: updatedAt,
	}, nil
}

func (s *DynamoDBStore) Create(ctx context.Context, c *Checkout) error {
	av, err := attributevalue.MarshalMap(checkoutToItem(c))
	if err != nil {
		return fmt.Errorf("marshal checkout: %w", err)
	}
	active, err := s.ActiveForAccount(ctx, c.AccountID)
	if err != nil {
		return err
	}
	if active != nil {
		return ErrAccountAlreadyOut
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", c.ID, ErrCheckoutExists)
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, id string) (*Checkout, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrCheckoutNotFound)
	}
	var item checkoutItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal checkout: %w", err)
	}
	return itemToCheckout(&item)
}

func (s *DynamoDBStore) Update(ctx context.Context, c *Checkout) error {
	av, err := attributevalue.MarshalMap(checkoutToItem(c))
	if err != nil {
		return fmt.Errorf("marshal checkout: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", c.ID, ErrCheckoutNotFound)
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*Checkout, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName), IndexName: aws.String(GSIAccount),
		KeyConditionExpression: aws.String("account_id = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: accountID},
		},
		Limit: aws.Int32(clampLimit(limit)),
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Query:"+GSIAccount)
	}
	return itemsToCheckouts(out.Items)
}

func (s *DynamoDBStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Checkout, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("kind = :k AND #status = :st"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k":  &types.AttributeValueMemberS{Value: "checkout"},
			":st": &types.AttributeValueMemberS{Value: string(status)},
		},
		Limit: aws.Int32(clampLimit(limit)),
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}
	return itemsToCheckouts(out.Items)
}

func (s *DynamoDBStore) ActiveForAccount(ctx context.Context, accountID string) (*Checkout, error) {
	checkouts, err := s.ListByAccount(ctx, accountID, MaxQueryLimit)
	if err != nil {
		return nil, err
	}
	for _, c := range checkouts {
		if !c.Status.IsTerminal() {
			return c, nil
		}
	}
	return nil, nil
}

func itemsToCheckouts(items []map[string]types.AttributeValue) ([]*Checkout, error) {
	out := make([]*Checkout, 0, len(items))
	for _, av := range items {
		var item checkoutItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshal checkout: %w", err)
		}
		c, err := itemToCheckout(&item)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func marshalVotes(votes []Vote) (string, error) {
	b, err := json.Marshal(votes)
	if err != nil {
		return "", fmt.Errorf("marshal votes: %w", err)
	}
	return string(b), nil
}

func unmarshalVotes(s string) ([]Vote, error) {
	if s == "" {
		return nil, nil
	}
	var votes []Vote
	if err := json.Unmarshal([]byte(s), &votes); err != nil {
		return nil, fmt.Errorf("unmarshal votes: %w", err)
	}
	return votes, nil
}

func approvalToItem(a *AccessApproval, votesJSON string) *approvalItem {
	return &approvalItem{
		ID: a.ID, Kind: "approval", CheckoutID: a.CheckoutID, Routing: string(a.Routing),
		Approvers: a.Approvers, VotesJSON: votesJSON, Status: string(a.Status),
		CreatedAt: formatTime(a.CreatedAt), UpdatedAt: formatTime(a.UpdatedAt),
	}
}

func (s *DynamoDBStore) CreateApproval(ctx context.Context, a *AccessApproval) error {
	votesJSON, err := marshalVotes(a.Votes)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(approvalToItem(a, votesJSON))
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

func (s *DynamoDBStore) GetApproval(ctx context.Context, id string) (*AccessApproval, error) {
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
	return itemToApproval(&item)
}

func (s *DynamoDBStore) UpdateApproval(ctx context.Context, a *AccessApproval) error {
	votesJSON, err := marshalVotes(a.Votes)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(approvalToItem(a, votesJSON))
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

func itemToApproval(item *approvalItem) (*AccessApproval, error) {
	votes, err := unmarshalVotes(item.VotesJSON)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := parseTime(item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &AccessApproval{
		ID: item.ID, CheckoutID: item.CheckoutID, Routing: RoutingMode(item.Routing),
		Approvers: item.Approvers, Votes: votes, Status: ApprovalStatus(item.Status),
		CreatedAt: createdAt, UpdatedAt: updatedAt,
	}, nil
}
