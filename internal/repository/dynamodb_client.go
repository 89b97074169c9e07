package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"sales-copilot/internal/conversation"
	"sales-copilot/internal/domain"
)

const (
	skMeta         = "META"
	skConversation = "CONVERSATION"
	ttlDuration    = 90 * 24 * time.Hour // 90-day TTL on call snapshots
)

var (
	// ErrNotFound is returned when a session record does not exist.
	ErrNotFound = domain.ErrNotFound
	// ErrVersionConflict is returned when a snapshot changed since it was read.
	ErrVersionConflict = conversation.ErrVersionConflict
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Client wraps a DynamoDB table holding sales sessions and call snapshots.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

type conversationRecord struct {
	PK        string             `dynamodbav:"PK"`
	SK        string             `dynamodbav:"SK"`
	State     conversation.State `dynamodbav:"state"`
	Version   int64              `dynamodbav:"version"`
	UpdatedAt string             `dynamodbav:"updatedAt"`
	TTL       int64              `dynamodbav:"ttl"`
}

// sessionPK returns the partition key shared by a session's items.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// GetConversation loads the call snapshot for a session. A missing snapshot
// yields the not-started state with version 0.
func (c *Client) GetConversation(ctx context.Context, sessionID string) (conversation.State, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(sessionPK(sessionID), skConversation),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return conversation.State{}, fmt.Errorf("repository: GetConversation get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return conversation.New(sessionID), nil
	}

	var rec conversationRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return conversation.State{}, fmt.Errorf("repository: GetConversation unmarshal: %w", err)
	}
	st := rec.State
	st.SessionID = sessionID
	st.Version = rec.Version
	return st, nil
}

// SaveConversation writes the snapshot if nobody else wrote since st was
// read, and returns it with the new version.
func (c *Client) SaveConversation(ctx context.Context, st conversation.State) (conversation.State, error) {
	if strings.TrimSpace(st.SessionID) == "" {
		return conversation.State{}, errors.New("repository: SaveConversation: session id is required")
	}
	now := c.now().UTC()
	next := st
	next.Version = st.Version + 1

	item, err := attributevalue.MarshalMap(conversationRecord{
		PK:        sessionPK(st.SessionID),
		SK:        skConversation,
		State:     next,
		Version:   next.Version,
		UpdatedAt: now.Format(time.RFC3339),
		TTL:       now.Add(ttlDuration).Unix(),
	})
	if err != nil {
		return conversation.State{}, fmt.Errorf("repository: SaveConversation marshal: %w", err)
	}

	in := &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}
	if st.Version == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		in.ConditionExpression = aws.String("version = :expected")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", st.Version)},
		}
	}

	if _, err := c.api.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return conversation.State{}, fmt.Errorf("repository: SaveConversation %s: %w", st.SessionID, ErrVersionConflict)
		}
		return conversation.State{}, fmt.Errorf("repository: SaveConversation: %w", err)
	}
	return next, nil
}

// GetSession reads the session's durable fields.
func (c *Client) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       key(sessionPK(sessionID), skMeta),
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, fmt.Errorf("repository: GetSession %s: %w", sessionID, ErrNotFound)
	}
	var s domain.Session
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession unmarshal: %w", err)
	}
	s.ID = sessionID
	return s, nil
}

// UpdateSession applies a partial update and returns the updated record.
// Fields absent from the patch are left as stored.
func (c *Client) UpdateSession(ctx context.Context, sessionID string, patch domain.SessionPatch) (domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Session{}, errors.New("repository: UpdateSession: session id is required")
	}

	fields := map[string]any{
		"sessionId": sessionID,
		"updatedAt": c.now().UTC(),
	}
	if patch.FunnelStage != nil {
		fields["funnelStage"] = *patch.FunnelStage
	}
	if patch.Outcome != nil {
		fields["outcome"] = *patch.Outcome
	}
	if patch.Notes != nil {
		fields["notes"] = *patch.Notes
	}
	if patch.OffersPresented != nil {
		fields["offersPresented"] = patch.OffersPresented
	}
	if patch.Selection != nil {
		fields["selection"] = *patch.Selection
	}
	if patch.ClientContext != nil {
		fields["clientContext"] = *patch.ClientContext
	}

	expr, names, values, err := setExpression(fields)
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: UpdateSession marshal: %w", err)
	}

	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.tableName),
		Key:                       key(sessionPK(sessionID), skMeta),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: UpdateSession: %w", err)
	}

	var s domain.Session
	if out != nil && len(out.Attributes) > 0 {
		if err := attributevalue.UnmarshalMap(out.Attributes, &s); err != nil {
			return domain.Session{}, fmt.Errorf("repository: UpdateSession unmarshal: %w", err)
		}
	}
	s.ID = sessionID
	return s, nil
}

// setExpression builds "SET #a = :a, ..." with placeholders in a stable order.
func setExpression(fields map[string]any) (string, map[string]string, map[string]types.AttributeValue, error) {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	exprNames := make(map[string]string, len(names))
	exprValues := make(map[string]types.AttributeValue, len(names))
	clauses := make([]string, 0, len(names))
	for _, name := range names {
		av, err := attributevalue.Marshal(fields[name])
		if err != nil {
			return "", nil, nil, fmt.Errorf("field %s: %w", name, err)
		}
		exprNames["#"+name] = name
		exprValues[":"+name] = av
		clauses = append(clauses, fmt.Sprintf("#%s = :%s", name, name))
	}
	return "SET " + strings.Join(clauses, ", "), exprNames, exprValues, nil
}
