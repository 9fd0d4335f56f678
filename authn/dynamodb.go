package authn

import (
	"context"
	"encoding/hex"
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

const rfc3339Nano = "2006-01-02T15:04:05.000000000Z07:00"

// --- users ----------------------------------------------------------

type userItem struct {
	PK                  string   `dynamodbav:"pk"`
	SK                  string   `dynamodbav:"sk"`
	ID                  string   `dynamodbav:"id"`
	Username            string   `dynamodbav:"username"`
	PasswordHash        string   `dynamodbav:"password_hash"`
	Email               string   `dynamodbav:"email"`
	GivenName           string   `dynamodbav:"given_name"`
	FamilyName          string   `dynamodbav:"family_name"`
	Roles               []string `dynamodbav:"roles"`
	FailedLoginAttempts int      `dynamodbav:"failed_login_attempts"`
	LockedUntil         string   `dynamodbav:"locked_until,omitempty"`
	CreatedAt           string   `dynamodbav:"created_at"`
	UpdatedAt           string   `dynamodbav:"updated_at"`
}

func userPK(id string) string { return "user#" + id }

func userToItem(u *User) (*userItem, error) {
	item := &userItem{
		PK: userPK(u.ID), SK: "profile", ID: u.ID, Username: u.Username,
		PasswordHash: u.PasswordHash, Email: u.Email, GivenName: u.GivenName,
		FamilyName: u.FamilyName, Roles: u.Roles, FailedLoginAttempts: u.FailedLoginAttempts,
		CreatedAt: u.CreatedAt.UTC().Format(rfc3339Nano), UpdatedAt: u.UpdatedAt.UTC().Format(rfc3339Nano),
	}
	if !u.LockedUntil.IsZero() {
		item.LockedUntil = u.LockedUntil.UTC().Format(rfc3339Nano)
	}
	return item, nil
}

func itemToUser(item *userItem) (*User, error) {
	u := &User{
		ID: item.ID, Username: item.Username, PasswordHash: item.PasswordHash,
		Email: item.Email, GivenName: item.GivenName, FamilyName: item.FamilyName,
		Roles: item.Roles, FailedLoginAttempts: item.FailedLoginAttempts,
	}
	var err error
	if u.CreatedAt, err = time.Parse(rfc3339Nano, item.CreatedAt); err != nil {
		return nil, fmt.Errorf("authn: parsing created_at: %w", err)
	}
	if u.UpdatedAt, err = time.Parse(rfc3339Nano, item.UpdatedAt); err != nil {
		return nil, fmt.Errorf("authn: parsing updated_at: %w", err)
	}
	if item.LockedUntil != "" {
		if u.LockedUntil, err = time.Parse(rfc3339Nano, item.LockedUntil); err != nil {
			return nil, fmt.Errorf("authn: parsing locked_until: %w", err)
		}
	}
	return u, nil
}

// DynamoDBUserStore implements UserStore. Users are keyed by ID
// (pk = "user#{id}", sk = "profile"); GetByUsername scans with a
// filter, the same no-GSI trade-off audit.DynamoDBStore and
// kv.DynamoDBStore make for ad hoc lookups on non-key attributes.
type DynamoDBUserStore struct {
	client    dynamoDBAPI
	tableName string
}

// NewDynamoDBUserStore creates a UserStore using the provided AWS configuration.
func NewDynamoDBUserStore(cfg aws.Config, tableName string) *DynamoDBUserStore {
	return &DynamoDBUserStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBUserStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBUserStore {
	return &DynamoDBUserStore{client: client, tableName: tableName}
}

func (s *DynamoDBUserStore) GetByID(ctx context.Context, id string) (*User, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: userPK(id)},
			"sk": &types.AttributeValueMemberS{Value: "profile"},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if output.Item == nil {
		return nil, ErrUserNotFound
	}
	var item userItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, fmt.Errorf("authn: unmarshaling user: %w", err)
	}
	return itemToUser(&item)
}

func (s *DynamoDBUserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	output, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("username = :username AND sk = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":username": &types.AttributeValueMemberS{Value: username},
			":sk":       &types.AttributeValueMemberS{Value: "profile"},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}
	if len(output.Items) == 0 {
		return nil, ErrUserNotFound
	}
	var item userItem
	if err := attributevalue.UnmarshalMap(output.Items[0], &item); err != nil {
		return nil, fmt.Errorf("authn: unmarshaling user: %w", err)
	}
	return itemToUser(&item)
}

// Save writes user with optimistic locking on expectedUpdatedAt: a
// concurrent writer that already advanced updated_at fails the
// condition and ErrConcurrentModification is returned.
func (s *DynamoDBUserStore) Save(ctx context.Context, user *User, expectedUpdatedAt time.Time) error {
	now := time.Now().UTC()
	user.UpdatedAt = now
	item, err := userToItem(user)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("authn: marshaling user: %w", err)
	}

	var condition string
	values := map[string]types.AttributeValue{}
	if expectedUpdatedAt.IsZero() {
		condition = "attribute_not_exists(pk) OR updated_at = :expected"
		values[":expected"] = &types.AttributeValueMemberS{Value: ""}
	} else {
		condition = "updated_at = :expected"
		values[":expected"] = &types.AttributeValueMemberS{Value: expectedUpdatedAt.UTC().Format(rfc3339Nano)}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       aws.String(condition),
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

// --- sessions ---------------------------------------------------------

type sessionItem struct {
	PK               string `dynamodbav:"pk"`
	SK               string `dynamodbav:"sk"`
	ID               string `dynamodbav:"id"`
	UserID           string `dynamodbav:"user_id"`
	TokenHash        string `dynamodbav:"token_hash"`
	RefreshTokenHash string `dynamodbav:"refresh_token_hash"`
	IPAddress        string `dynamodbav:"ip_address"`
	UserAgent        string `dynamodbav:"user_agent"`
	CreatedAt        string `dynamodbav:"created_at"`
	LastActivity     string `dynamodbav:"last_activity"`
	ExpiresAt        string `dynamodbav:"expires_at"`
	Revoked          bool   `dynamodbav:"revoked"`
	RevokedReason    string `dynamodbav:"revoked_reason,omitempty"`
	RevokedBy        string `dynamodbav:"revoked_by,omitempty"`
}

func sessionPK(id string) string { return "session#" + id }

func sessionToItem(s *Session) *sessionItem {
	return &sessionItem{
		PK: sessionPK(s.ID), SK: "meta", ID: s.ID, UserID: s.UserID,
		TokenHash: hex.EncodeToString(s.TokenHash[:]), RefreshTokenHash: hex.EncodeToString(s.RefreshTokenHash[:]),
		IPAddress: s.IPAddress, UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt.UTC().Format(rfc3339Nano), LastActivity: s.LastActivity.UTC().Format(rfc3339Nano),
		ExpiresAt: s.ExpiresAt.UTC().Format(rfc3339Nano), Revoked: s.Revoked, RevokedReason: s.RevokedReason,
		RevokedBy: s.RevokedBy,
	}
}

func itemToSession(item *sessionItem) (*Session, error) {
	sess := &Session{
		ID: item.ID, UserID: item.UserID, IPAddress: item.IPAddress, UserAgent: item.UserAgent,
		Revoked: item.Revoked, RevokedReason: item.RevokedReason, RevokedBy: item.RevokedBy,
	}
	var err error
	if sess.TokenHash, err = decodeHash32(item.TokenHash); err != nil {
		return nil, fmt.Errorf("authn: decoding token_hash: %w", err)
	}
	if sess.RefreshTokenHash, err = decodeHash32(item.RefreshTokenHash); err != nil {
		return nil, fmt.Errorf("authn: decoding refresh_token_hash: %w", err)
	}
	if sess.CreatedAt, err = time.Parse(rfc3339Nano, item.CreatedAt); err != nil {
		return nil, fmt.Errorf("authn: parsing created_at: %w", err)
	}
	if sess.LastActivity, err = time.Parse(rfc3339Nano, item.LastActivity); err != nil {
		return nil, fmt.Errorf("authn: parsing last_activity: %w", err)
	}
	if sess.ExpiresAt, err = time.Parse(rfc3339Nano, item.ExpiresAt); err != nil {
		return nil, fmt.Errorf("authn: parsing expires_at: %w", err)
	}
	return sess, nil
}

func decodeHash32(hexStr string) ([32]byte, error) {
	var out [32]byte
	if hexStr == "" {
		return out, nil
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil || len(b) != 32 {
		return out, fmt.Errorf("malformed hash %q", hexStr)
	}
	copy(out[:], b)
	return out, nil
}

// DynamoDBSessionStore implements SessionStore. Sessions are keyed by
// ID; GetByRefreshHash and ListActiveByUser both scan with a filter,
// since there is no GSI on refresh_token_hash or user_id - acceptable
// for the relatively low write volume of session rows compared to the
// audit log's.
type DynamoDBSessionStore struct {
	client    dynamoDBAPI
	tableName string
}

// NewDynamoDBSessionStore creates a SessionStore using the provided AWS configuration.
func NewDynamoDBSessionStore(cfg aws.Config, tableName string) *DynamoDBSessionStore {
	return &DynamoDBSessionStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func newDynamoDBSessionStoreWithClient(client dynamoDBAPI, tableName string) *DynamoDBSessionStore {
	return &DynamoDBSessionStore{client: client, tableName: tableName}
}

func (s *DynamoDBSessionStore) Create(ctx context.Context, sess *Session) error {
	av, err := attributevalue.MarshalMap(sessionToItem(sess))
	if err != nil {
		return fmt.Errorf("authn: marshaling session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

func (s *DynamoDBSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: sessionPK(id)},
			"sk": &types.AttributeValueMemberS{Value: "meta"},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if output.Item == nil {
		return nil, ErrSessionNotFound
	}
	var item sessionItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, fmt.Errorf("authn: unmarshaling session: %w", err)
	}
	return itemToSession(&item)
}

func (s *DynamoDBSessionStore) GetByRefreshHash(ctx context.Context, hash [32]byte) (*Session, error) {
	output, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("refresh_token_hash = :hash"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hash": &types.AttributeValueMemberS{Value: hex.EncodeToString(hash[:])},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}
	if len(output.Items) == 0 {
		return nil, ErrSessionNotFound
	}
	var item sessionItem
	if err := attributevalue.UnmarshalMap(output.Items[0], &item); err != nil {
		return nil, fmt.Errorf("authn: unmarshaling session: %w", err)
	}
	return itemToSession(&item)
}

func (s *DynamoDBSessionStore) Save(ctx context.Context, sess *Session, expectedLastActivity time.Time) error {
	item := sessionToItem(sess)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("authn: marshaling session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("last_activity = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: expectedLastActivity.UTC().Format(rfc3339Nano)},
		},
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

func (s *DynamoDBSessionStore) ListActiveByUser(ctx context.Context, userID string) ([]*Session, error) {
	output, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("user_id = :uid AND revoked = :revoked"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":     &types.AttributeValueMemberS{Value: userID},
			":revoked": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}
	now := time.Now().UTC()
	sessions := make([]*Session, 0, len(output.Items))
	for _, raw := range output.Items {
		var item sessionItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("authn: unmarshaling session: %w", err)
		}
		sess, err := itemToSession(&item)
		if err != nil {
			return nil, err
		}
		if sess.IsActive(now) {
			sessions = append(sessions, sess)
		}
	}
	sortByLastActivity(sessions)
	return sessions, nil
}

func (s *DynamoDBSessionStore) RevokeAll(ctx context.Context, userID string, reason string) error {
	output, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}
	for _, raw := range output.Items {
		var item sessionItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return fmt.Errorf("authn: unmarshaling session: %w", err)
		}
		sess, err := itemToSession(&item)
		if err != nil {
			return err
		}
		if sess.Revoked {
			continue
		}
		sess.Revoked = true
		sess.RevokedReason = reason
		if err := s.Save(ctx, sess, sess.LastActivity); err != nil && !errors.Is(err, ErrConcurrentModification) {
			return err
		}
	}
	return nil
}

// sortByLastActivity orders sessions oldest-first, for the concurrent
// session cap's "revoke oldest-by-lastActivity first" eviction rule.
func sortByLastActivity(sessions []*Session) {
	for i := 1; i < len(sessions); i++ {
		for j := i; j > 0 && sessions[j].LastActivity.Before(sessions[j-1].LastActivity); j-- {
			sessions[j], sessions[j-1] = sessions[j-1], sessions[j]
		}
	}
}
