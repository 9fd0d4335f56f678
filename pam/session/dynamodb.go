package session

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

// GSICheckout indexes sessions by checkout, for ListByCheckout.
const GSICheckout = "gsi-checkout"

type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBStore implements Store. PrivilegedSession rows use a "pk"/"sk"
// pair of ("session#<id>", "meta"); SessionCommand rows use
// ("session#<id>", "cmd#<zero-padded sequence number>") so ListCommands
// is a single ascending Query (ScanIndexForward true) rather than a
// Scan+sort, unlike the simple-id-keyed tables elsewhere in pam/.
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

func sessionPK(id string) string { return "session#" + id }

const sessionMetaSK = "meta"

func commandSK(seq int64) string { return fmt.Sprintf("cmd#%020d", seq) }

type sessionItem struct {
	PK                         string `dynamodbav:"pk"`
	SK                         string `dynamodbav:"sk"`
	ID                         string `dynamodbav:"id"`
	CheckoutID                 string `dynamodbav:"checkout_id"`
	Protocol                   string `dynamodbav:"protocol"`
	Platform                   string `dynamodbav:"platform"`
	StartedAt                  string `dynamodbav:"started_at"`
	EndedAt                    string `dynamodbav:"ended_at"`
	CommandCount               int    `dynamodbav:"command_count"`
	SuspiciousActivityDetected bool   `dynamodbav:"suspicious_activity_detected"`
	RecordingFormat            string `dynamodbav:"recording_format"`
	UpdatedAt                  string `dynamodbav:"updated_at"`
}

type commandItem struct {
	PK             string `dynamodbav:"pk"`
	SK             string `dynamodbav:"sk"`
	SessionID      string `dynamodbav:"session_id"`
	SequenceNumber int64  `dynamodbav:"sequence_number"`
	ExecutedAt     string `dynamodbav:"executed_at"`
	Command        string `dynamodbav:"command"`
	Response       string `dynamodbav:"response"`
	ExitCode       int    `dynamodbav:"exit_code"`
	Suspicious     bool   `dynamodbav:"suspicious"`
	MatchedRule    string `dynamodbav:"matched_rule"`
}

func sessionToItem(s *PrivilegedSession) *sessionItem {
	ended := ""
	if !s.EndedAt.IsZero() {
		ended = s.EndedAt.Format(time.RFC3339Nano)
	}
	return &sessionItem{
		PK: sessionPK(s.ID), SK: sessionMetaSK, ID: s.ID, CheckoutID: s.CheckoutID,
		Protocol: s.Protocol, Platform: s.Platform, StartedAt: s.StartedAt.Format(time.RFC3339Nano),
		EndedAt: ended, CommandCount: s.CommandCount,
		SuspiciousActivityDetected: s.SuspiciousActivityDetected,
		RecordingFormat:            string(s.RecordingFormat), UpdatedAt: s.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func itemToSession(item *sessionItem) (*PrivilegedSession, error) {
	startedAt, err := time.Parse(time.RFC3339Nano, item.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	var endedAt time.Time
	if item.EndedAt != "" {
		endedAt, err = time.Parse(time.RFC3339Nano, item.EndedAt)
		if err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &PrivilegedSession{
		ID: item.ID, CheckoutID: item.CheckoutID, Protocol: item.Protocol, Platform: item.Platform,
		StartedAt: startedAt, EndedAt: endedAt, CommandCount: item.CommandCount,
		SuspiciousActivityDetected: item.SuspiciousActivityDetected,
		RecordingFormat:            RecordingFormat(item.RecordingFormat), UpdatedAt: updatedAt,
	}, nil
}

func (s *DynamoDBStore) Create(ctx context.Context, sess *PrivilegedSession) error {
	av, err := attributevalue.MarshalMap(sessionToItem(sess))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", sess.ID, ErrSessionExists)
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, id string) (*PrivilegedSession, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: sessionPK(id)},
			"sk": &types.AttributeValueMemberS{Value: sessionMetaSK},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	var item sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return itemToSession(&item)
}

func (s *DynamoDBStore) Update(ctx context.Context, sess *PrivilegedSession) error {
	av, err := attributevalue.MarshalMap(sessionToItem(sess))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", sess.ID, ErrSessionNotFound)
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) ListByCheckout(ctx context.Context, checkoutID string, limit int) ([]*PrivilegedSession, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName), IndexName: aws.String(GSICheckout),
		KeyConditionExpression: aws.String("checkout_id = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: checkoutID},
		},
		Limit: aws.Int32(int32(clampLimit(limit))),
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Query:"+GSICheckout)
	}
	result := make([]*PrivilegedSession, 0, len(out.Items))
	for _, av := range out.Items {
		var item sessionItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sess, err := itemToSession(&item)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, nil
}

func (s *DynamoDBStore) AppendCommand(ctx context.Context, cmd *SessionCommand) error {
	item := &commandItem{
		PK: sessionPK(cmd.SessionID), SK: commandSK(cmd.SequenceNumber),
		SessionID: cmd.SessionID, SequenceNumber: cmd.SequenceNumber,
		ExecutedAt: cmd.ExecutedAt.Format(time.RFC3339Nano), Command: cmd.Command,
		Response: cmd.Response, ExitCode: cmd.ExitCode, Suspicious: cmd.Suspicious,
		MatchedRule: cmd.MatchedRule,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName), Item: av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBStore) ListCommands(ctx context.Context, sessionID string) ([]*SessionCommand, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: "cmd#"},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Query")
	}
	result := make([]*SessionCommand, 0, len(out.Items))
	for _, av := range out.Items {
		var item commandItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshal command: %w", err)
		}
		executedAt, err := time.Parse(time.RFC3339Nano, item.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("parse executed_at: %w", err)
		}
		result = append(result, &SessionCommand{
			SessionID: item.SessionID, SequenceNumber: item.SequenceNumber, ExecutedAt: executedAt,
			Command: item.Command, Response: item.Response, ExitCode: item.ExitCode,
			Suspicious: item.Suspicious, MatchedRule: item.MatchedRule,
		})
	}
	return result, nil
}
