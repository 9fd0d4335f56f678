package audit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
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
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// headPK/headSK address the singleton row tracking the chain's latest
// hash, separate from the per-record rows so LatestHash is a single
// GetItem rather than a scan.
const (
	headPK = "audit-head"
	headSK = "head"
)

// DynamoDBStore implements Store using AWS DynamoDB.
//
// Records are sharded daily (pk = "audit#{YYYY-MM-DD}") so a single hot
// partition never absorbs the whole log's write volume; sk is a
// zero-padded nanosecond timestamp followed by the record ID, which
// keeps each day's rows sorted chronologically. The chain head (the
// most recent thisHash) lives in its own singleton row so appending
// doesn't require scanning shards to find the prior record.
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

type recordItem struct {
	PK            string `dynamodbav:"pk"`
	SK            string `dynamodbav:"sk"`
	ID            string `dynamodbav:"id"`
	Timestamp     string `dynamodbav:"timestamp"`
	UserID        string `dynamodbav:"user_id"`
	EventType     string `dynamodbav:"event_type"`
	Resource      string `dynamodbav:"resource"`
	Action        string `dynamodbav:"action"`
	Success       bool   `dynamodbav:"success"`
	IPAddress     string `dynamodbav:"ip_address"`
	CorrelationID string `dynamodbav:"correlation_id"`
	Details       string `dynamodbav:"details"`
	DetailsSealed bool   `dynamodbav:"details_sealed"`
	PreviousHash  string `dynamodbav:"previous_hash"` // hex
	ThisHash      string `dynamodbav:"this_hash"`      // hex
}

type headItem struct {
	PK   string `dynamodbav:"pk"`
	SK   string `dynamodbav:"sk"`
	Hash string `dynamodbav:"hash"` // hex
}

func shardPK(t time.Time) string {
	return "audit#" + t.UTC().Format("2006-01-02")
}

func recordSK(t time.Time, id string) string {
	return fmt.Sprintf("%020d#%s", t.UTC().UnixNano(), id)
}

func recordToItem(rec *Record) *recordItem {
	return &recordItem{
		PK: shardPK(rec.Timestamp), SK: recordSK(rec.Timestamp, rec.ID),
		ID: rec.ID, Timestamp: rec.Timestamp.UTC().Format(rfc3339Nano),
		UserID: rec.UserID, EventType: rec.EventType, Resource: rec.Resource,
		Action: rec.Action, Success: rec.Success, IPAddress: rec.IPAddress,
		CorrelationID: rec.CorrelationID, Details: rec.Details, DetailsSealed: rec.DetailsSealed,
		PreviousHash: fmt.Sprintf("%x", rec.PreviousHash), ThisHash: fmt.Sprintf("%x", rec.ThisHash),
	}
}

func itemToRecord(item *recordItem) (Record, error) {
	ts, err := time.Parse(rfc3339Nano, item.Timestamp)
	if err != nil {
		return Record{}, fmt.Errorf("audit: parsing timestamp: %w", err)
	}
	prev, err := decodeHash(item.PreviousHash)
	if err != nil {
		return Record{}, fmt.Errorf("audit: decoding previous_hash: %w", err)
	}
	this, err := decodeHash(item.ThisHash)
	if err != nil {
		return Record{}, fmt.Errorf("audit: decoding this_hash: %w", err)
	}
	return Record{
		ID: item.ID, Timestamp: ts, UserID: item.UserID, EventType: item.EventType,
		Resource: item.Resource, Action: item.Action, Success: item.Success,
		IPAddress: item.IPAddress, CorrelationID: item.CorrelationID,
		Details: item.Details, DetailsSealed: item.DetailsSealed,
		PreviousHash: prev, ThisHash: this,
	}, nil
}

func decodeHash(hexStr string) ([32]byte, error) {
	var out [32]byte
	if hexStr == "" {
		return out, nil
	}
	n, err := fmt.Sscanf(hexStr, "%x", &out)
	if err != nil || n != 1 {
		return out, fmt.Errorf("malformed hash %q", hexStr)
	}
	return out, nil
}

// LatestHash returns the chain head's hash, or the zero hash if no
// record has ever been appended.
func (s *DynamoDBStore) LatestHash(ctx context.Context) ([32]byte, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: headPK},
			"sk": &types.AttributeValueMemberS{Value: headSK},
		},
	})
	if err != nil {
		return zeroHash, sentinelerrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}
	if output.Item == nil {
		return zeroHash, nil
	}
	var item headItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return zeroHash, fmt.Errorf("audit: unmarshaling head: %w", err)
	}
	return decodeHash(item.Hash)
}

// Append writes rec's row and advances the chain head, conditioned on
// the head still holding rec.PreviousHash - a concurrent racing Append
// fails this condition and returns ErrConcurrentAppend rather than
// silently forking the chain.
func (s *DynamoDBStore) Append(ctx context.Context, rec *Record) error {
	item := recordToItem(rec)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("audit: marshaling record: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	}); err != nil {
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}

	head := headItem{PK: headPK, SK: headSK, Hash: fmt.Sprintf("%x", rec.ThisHash)}
	headAV, err := attributevalue.MarshalMap(head)
	if err != nil {
		return fmt.Errorf("audit: marshaling head: %w", err)
	}
	expectedPrev := fmt.Sprintf("%x", rec.PreviousHash)
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      headAV,
		ConditionExpression: aws.String(
			"(attribute_not_exists(hash) AND :expected = :zero) OR hash = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: expectedPrev},
			":zero":     &types.AttributeValueMemberS{Value: fmt.Sprintf("%x", zeroHash)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConcurrentAppend
		}
		return sentinelerrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}
	return nil
}

// Get scans for a record by ID. The daily-sharded key schema has no
// direct ID lookup path, so this issues a filtered Scan; callers on the
// hot path should prefer Query with a narrow date range.
func (s *DynamoDBStore) Get(ctx context.Context, id string) (*Record, error) {
	output, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}
	if len(output.Items) == 0 {
		return nil, ErrRecordNotFound
	}
	var item recordItem
	if err := attributevalue.UnmarshalMap(output.Items[0], &item); err != nil {
		return nil, fmt.Errorf("audit: unmarshaling record: %w", err)
	}
	rec, err := itemToRecord(&item)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Query scans for records matching filter, ordered oldest-first.
//
// The daily-sharded schema makes a precise range Query awkward without
// knowing which day-shards to touch, so this store scans the whole
// table and applies every predicate (including the date range) as a
// DynamoDB FilterExpression - acceptable for the audit table's expected
// scale and consistent with kv.DynamoDBStore.ListChildren's Scan-based
// prefix search for the same reason (no GSI on the filtered attributes).
func (s *DynamoDBStore) Query(ctx context.Context, filter Filter) (Page, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	if pageSize > MaxPageSize {
		return Page{}, ErrPageSizeTooLarge
	}

	exprNames := map[string]string{}
	exprValues := map[string]types.AttributeValue{}
	var clauses []string

	addEq := func(name, attr, value string) {
		if value == "" {
			return
		}
		placeholder := ":" + name
		exprNames["#"+name] = attr
		exprValues[placeholder] = &types.AttributeValueMemberS{Value: value}
		clauses = append(clauses, fmt.Sprintf("#%s = %s", name, placeholder))
	}
	addEq("user", "user_id", filter.UserID)
	addEq("event", "event_type", filter.EventType)
	addEq("action", "action", filter.Action)
	addEq("ip", "ip_address", filter.IPAddress)
	addEq("corr", "correlation_id", filter.CorrelationID)

	if filter.Resource != "" {
		exprNames["#resource"] = "resource"
		exprValues[":resourcePrefix"] = &types.AttributeValueMemberS{Value: filter.Resource}
		clauses = append(clauses, "begins_with(#resource, :resourcePrefix)")
	}
	if filter.Success != nil {
		exprNames["#success"] = "success"
		exprValues[":success"] = &types.AttributeValueMemberBOOL{Value: *filter.Success}
		clauses = append(clauses, "#success = :success")
	}
	if filter.DetailsSearch != "" {
		exprNames["#details"] = "details"
		exprNames["#detailsSealed"] = "details_sealed"
		exprValues[":detailsSearch"] = &types.AttributeValueMemberS{Value: filter.DetailsSearch}
		exprValues[":unsealed"] = &types.AttributeValueMemberBOOL{Value: false}
		clauses = append(clauses, "contains(#details, :detailsSearch) AND #detailsSealed = :unsealed")
	}
	if !filter.Start.IsZero() {
		exprNames["#timestamp"] = "timestamp"
		exprValues[":start"] = &types.AttributeValueMemberS{Value: filter.Start.UTC().Format(rfc3339Nano)}
		clauses = append(clauses, "#timestamp >= :start")
	}
	if !filter.End.IsZero() {
		exprNames["#timestamp"] = "timestamp"
		exprValues[":end"] = &types.AttributeValueMemberS{Value: filter.End.UTC().Format(rfc3339Nano)}
		clauses = append(clauses, "#timestamp < :end")
	}
	clauses = append(clauses, "sk <> :headSK")

	input := &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
		Limit:     aws.Int32(int32(pageSize)),
	}
	if len(clauses) > 0 {
		input.FilterExpression = aws.String(strings.Join(clauses, " AND "))
		exprValues[":headSK"] = &types.AttributeValueMemberS{Value: headSK}
		input.ExpressionAttributeNames = exprNames
		input.ExpressionAttributeValues = exprValues
	}
	if filter.Cursor != "" {
		key, err := decodeCursor(filter.Cursor)
		if err != nil {
			return Page{}, err
		}
		input.ExclusiveStartKey = key
	}

	output, err := s.client.Scan(ctx, input)
	if err != nil {
		return Page{}, sentinelerrors.WrapDynamoDBError(err, s.tableName, "Scan")
	}

	records := make([]Record, 0, len(output.Items))
	for _, raw := range output.Items {
		var item recordItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return Page{}, fmt.Errorf("audit: unmarshaling record: %w", err)
		}
		rec, err := itemToRecord(&item)
		if err != nil {
			return Page{}, err
		}
		records = append(records, rec)
	}
	sortByTimestamp(records)

	page := Page{Records: records}
	if len(output.LastEvaluatedKey) > 0 {
		cursor, err := encodeCursor(output.LastEvaluatedKey)
		if err != nil {
			return Page{}, err
		}
		page.NextCursor = cursor
	}
	return page, nil
}

// Range returns every record with Timestamp in [start, end), unfiltered
// except for the date bound, paginating internally until exhausted.
func (s *DynamoDBStore) Range(ctx context.Context, start, end time.Time) ([]Record, error) {
	var all []Record
	filter := Filter{Start: start, End: end, PageSize: MaxPageSize}
	for {
		page, err := s.Query(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		if page.NextCursor == "" {
			break
		}
		filter.Cursor = page.NextCursor
	}
	sortByTimestamp(all)
	return all, nil
}

func sortByTimestamp(records []Record) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].Timestamp.Before(records[j-1].Timestamp); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	pk, ok := key["pk"].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("audit: unexpected cursor key shape")
	}
	sk, ok := key["sk"].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("audit: unexpected cursor key shape")
	}
	raw := pk.Value + "\x1f" + sk.Value
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("audit: malformed cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "\x1f", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("audit: malformed cursor")
	}
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: parts[0]},
		"sk": &types.AttributeValueMemberS{Value: parts[1]},
	}, nil
}
