package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"draft-polisher/internal/domain"
)

const (
	skPrefixSession = "SESS#"
	skPrefixDate    = "DATE#"
	counterItemTTL  = 48 * time.Hour

	// tsLayout sorts lexically in time order, unlike RFC3339Nano.
	tsLayout = "2006-01-02T15:04:05.000000000Z"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore keeps sessions and counters in one DynamoDB table.
//
// A session row is written once under each identifier it carries
// (DEV#, PID#, TOK#) so that any one identifier finds it with a Query.
// Counters live under QUOTA#<identity> / DATE#<date>.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore creates a store on tableName.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

// keyPK returns the partition key for one identifier.
func keyPK(k domain.IdentifierKey) (string, error) {
	switch k.Kind {
	case domain.KindDevice:
		return "DEV#" + k.Value, nil
	case domain.KindPersistent:
		return "PID#" + k.Value, nil
	case domain.KindSession:
		return "TOK#" + k.Value, nil
	}
	return "", fmt.Errorf("repository: unknown identifier kind %q", k.Kind)
}

func quotaPK(identity string) string {
	return "QUOTA#" + identity
}

// sessionSK orders a key's rows by last access. The row id breaks ties.
func sessionSK(s domain.SessionIdentity) string {
	return skPrefixSession + s.LastAccessedAt.UTC().Format(tsLayout) + "#" + s.ID
}

// sinceSK sorts after every row accessed at or before t: '~' is above every
// character a row id can hold.
func sinceSK(t time.Time) string {
	return skPrefixSession + t.UTC().Format(tsLayout) + "#~"
}

func (c *DynamoStore) ttlValue(d time.Duration) int64 {
	return c.now().Add(d).Unix()
}

// FindLatestSession queries each key's partition newest first and keeps the
// most recently accessed hit.
func (c *DynamoStore) FindLatestSession(ctx context.Context, keys []domain.IdentifierKey, since time.Time) (domain.SessionIdentity, bool, error) {
	if len(keys) == 0 {
		return domain.SessionIdentity{}, false, errEmptyKeys
	}
	var (
		best  domain.SessionIdentity
		found bool
	)
	for _, k := range keys {
		pk, err := keyPK(k)
		if err != nil {
			return domain.SessionIdentity{}, false, err
		}
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :since AND :end"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":    &types.AttributeValueMemberS{Value: pk},
				":since": &types.AttributeValueMemberS{Value: sinceSK(since)},
				":end":   &types.AttributeValueMemberS{Value: skPrefixSession + "~"},
			},
			ScanIndexForward: aws.Bool(false),
			Limit:            aws.Int32(1),
		})
		if err != nil {
			return domain.SessionIdentity{}, false, fmt.Errorf("repository: FindLatestSession query: %w", err)
		}
		if out == nil || len(out.Items) == 0 {
			continue
		}
		row, err := itemToSession(out.Items[0])
		if err != nil {
			return domain.SessionIdentity{}, false, fmt.Errorf("repository: FindLatestSession unmarshal: %w", err)
		}
		if !found || row.LastAccessedAt.After(best.LastAccessedAt) {
			best, found = row, true
		}
	}
	return best, found, nil
}

// CreateSession writes the row under each of its identifiers in one transaction.
func (c *DynamoStore) CreateSession(ctx context.Context, s domain.SessionIdentity) error {
	if s.ID == "" || s.PersistentID == "" {
		return errors.New("repository: CreateSession: id and persistent id are required")
	}
	ids := domain.Identifiers{DeviceID: s.DeviceID, PersistentID: s.PersistentID, SessionToken: s.SessionToken}

	var items []types.TransactWriteItem
	for _, k := range ids.Keys() {
		pk, err := keyPK(k)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(c.tableName),
				Item:                sessionItem(pk, s),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		})
	}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("repository: CreateSession: %w", err)
	}
	return nil
}

// ListSessions returns every row carrying identifier under any kind,
// newest first.
func (c *DynamoStore) ListSessions(ctx context.Context, identifier string) ([]domain.SessionIdentity, error) {
	seen := make(map[string]bool)
	out := make([]domain.SessionIdentity, 0)
	for _, kind := range []domain.IdentifierKind{domain.KindDevice, domain.KindPersistent, domain.KindSession} {
		pk, _ := keyPK(domain.IdentifierKey{Kind: kind, Value: identifier})
		var startKey map[string]types.AttributeValue
		for {
			res, err := c.api.Query(ctx, &dynamodb.QueryInput{
				TableName:              aws.String(c.tableName),
				KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk":     &types.AttributeValueMemberS{Value: pk},
					":prefix": &types.AttributeValueMemberS{Value: skPrefixSession},
				},
				ExclusiveStartKey: startKey,
			})
			if err != nil {
				return nil, fmt.Errorf("repository: ListSessions query: %w", err)
			}
			if res == nil {
				break
			}
			for _, item := range res.Items {
				row, err := itemToSession(item)
				if err != nil {
					return nil, fmt.Errorf("repository: ListSessions unmarshal: %w", err)
				}
				if seen[row.ID] {
					continue
				}
				seen[row.ID] = true
				out = append(out, row)
			}
			if len(res.LastEvaluatedKey) == 0 {
				break
			}
			startKey = res.LastEvaluatedKey
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// IncrementIfBelow is a conditional ADD: DynamoDB rejects it once the
// counter reaches limit, so concurrent callers can never overshoot.
func (c *DynamoStore) IncrementIfBelow(ctx context.Context, identity, date string, limit int) (int, bool, error) {
	if limit <= 0 {
		return 0, false, nil
	}
	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: quotaPK(identity)},
		"SK": &types.AttributeValueMemberS{Value: skPrefixDate + date},
	}
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 key,
		UpdateExpression:    aws.String("ADD request_count :one SET #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_not_exists(request_count) OR request_count < :limit"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   &types.AttributeValueMemberN{Value: "1"},
			":limit": &types.AttributeValueMemberN{Value: strconv.Itoa(limit)},
			":ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(c.ttlValue(counterItemTTL), 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		n, err := c.readCount(ctx, key)
		if err != nil {
			return 0, false, err
		}
		return n, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("repository: IncrementIfBelow update: %w", err)
	}
	n, err := intAttr(out.Attributes, "request_count")
	if err != nil {
		return 0, false, fmt.Errorf("repository: IncrementIfBelow decode count: %w", err)
	}
	return n, true, nil
}

func (c *DynamoStore) readCount(ctx context.Context, key map[string]types.AttributeValue) (int, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: read request count: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}
	n, err := intAttr(out.Item, "request_count")
	if err != nil {
		return 0, fmt.Errorf("repository: read request count: %w", err)
	}
	return n, nil
}

func (c *DynamoStore) Close() error {
	return nil
}

// sessionItem carries no ttl attribute; session rows are kept indefinitely.
func sessionItem(pk string, s domain.SessionIdentity) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: pk},
		"SK":             &types.AttributeValueMemberS{Value: sessionSK(s)},
		"id":             &types.AttributeValueMemberS{Value: s.ID},
		"deviceId":       &types.AttributeValueMemberS{Value: s.DeviceID},
		"persistentUuid": &types.AttributeValueMemberS{Value: s.PersistentID},
		"sessionId":      &types.AttributeValueMemberS{Value: s.SessionToken},
		"ipAddress":      &types.AttributeValueMemberS{Value: s.IPAddress},
		"lastAccessed":   &types.AttributeValueMemberS{Value: s.LastAccessedAt.UTC().Format(tsLayout)},
		"createdAt":      &types.AttributeValueMemberS{Value: s.CreatedAt.UTC().Format(tsLayout)},
	}
}

// itemToSession converts a DynamoDB attribute map to a session row.
func itemToSession(item map[string]types.AttributeValue) (domain.SessionIdentity, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.SessionIdentity{}, err
	}
	pid, err := strAttr(item, "persistentUuid")
	if err != nil {
		return domain.SessionIdentity{}, err
	}
	last, err := timeAttr(item, "lastAccessed")
	if err != nil {
		return domain.SessionIdentity{}, err
	}
	created, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.SessionIdentity{}, err
	}
	device, _ := strAttr(item, "deviceId") // allow empty
	token, _ := strAttr(item, "sessionId")
	ip, _ := strAttr(item, "ipAddress")

	return domain.SessionIdentity{
		ID:             id,
		DeviceID:       device,
		PersistentID:   pid,
		SessionToken:   token,
		IPAddress:      ip,
		LastAccessedAt: last,
		CreatedAt:      created,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}
