package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"storybook-agent/internal/domain"
)

const (
	skPrefixStory = "STORY#"
	skMeta        = "META#"
	ttlDuration   = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps a DynamoDB table holding finished stories and per-conversation
// turn counters.
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

// convPK returns the DynamoDB partition key for a conversation.
func convPK(handle string) string {
	return "CONV#" + handle
}

// storySK returns the sort key for a story created at ts.
func storySK(ts time.Time) string {
	return skPrefixStory + ts.UTC().Format(time.RFC3339Nano)
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// GetConversationTurnCount returns the persisted turn count for a conversation.
func (c *Client) GetConversationTurnCount(ctx context.Context, handle string) (int, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(handle)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: GetConversationTurnCount get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}

	turns, err := intAttr(out.Item, "turns")
	if err != nil {
		return 0, fmt.Errorf("repository: GetConversationTurnCount decode turns: %w", err)
	}
	return turns, nil
}

// RecordTurn increments the conversation turn counter and returns the new
// value.
func (c *Client) RecordTurn(ctx context.Context, handle string) (int, error) {
	in := c.metaUpdate(handle)
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 in.TableName,
		Key:                       in.Key,
		UpdateExpression:          in.UpdateExpression,
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: in.ExpressionAttributeValues,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("repository: RecordTurn: %w", err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return 0, nil
	}
	turns, err := intAttr(out.Attributes, "turns")
	if err != nil {
		return 0, fmt.Errorf("repository: RecordTurn decode turns: %w", err)
	}
	return turns, nil
}

// SaveStory archives a finished story and bumps the turn counter in one
// transaction.
func (c *Client) SaveStory(ctx context.Context, story domain.ArchivedStory) error {
	if strings.TrimSpace(story.ConversationHandle) == "" {
		return errors.New("repository: SaveStory: conversation handle is required")
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = c.now()
	}
	item, err := c.storyItem(story)
	if err != nil {
		return fmt.Errorf("repository: SaveStory: %w", err)
	}

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: c.metaUpdate(story.ConversationHandle),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveStory: %w", err)
	}
	return nil
}

// ListStories returns archived stories for a conversation, newest first.
func (c *Client) ListStories(ctx context.Context, handle string, limit int) ([]domain.ArchivedStory, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(handle)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixStory},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: ListStories query: %w", err)
	}

	stories := make([]domain.ArchivedStory, 0, len(out.Items))
	for _, item := range out.Items {
		s, err := itemToStory(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListStories unmarshal: %w", err)
		}
		stories = append(stories, s)
	}
	return stories, nil
}

func (c *Client) metaUpdate(handle string) *types.Update {
	return &types.Update{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(handle)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression: aws.String("ADD turns :one SET conversationId = :id, lastActivity = :now, #ttl = :ttl"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":id":  &types.AttributeValueMemberS{Value: handle},
			":now": &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(c.ttlValue(), 10)},
		},
	}
}

func (c *Client) storyItem(s domain.ArchivedStory) (map[string]types.AttributeValue, error) {
	item := map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(s.ConversationHandle)},
		"SK":             &types.AttributeValueMemberS{Value: storySK(s.CreatedAt)},
		"conversationId": &types.AttributeValueMemberS{Value: s.ConversationHandle},
		"storyText":      &types.AttributeValueMemberS{Value: s.StoryText},
		"createdAt":      &types.AttributeValueMemberS{Value: s.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(c.ttlValue(), 10)},
	}
	if len(s.Profile) > 0 {
		raw, err := json.Marshal(s.Profile)
		if err != nil {
			return nil, fmt.Errorf("marshal profile: %w", err)
		}
		item["profile"] = &types.AttributeValueMemberS{Value: string(raw)}
	}
	return item, nil
}

// itemToStory converts a DynamoDB attribute map to an ArchivedStory.
func itemToStory(item map[string]types.AttributeValue) (domain.ArchivedStory, error) {
	handle, err := strAttr(item, "conversationId")
	if err != nil {
		return domain.ArchivedStory{}, err
	}
	text, err := strAttr(item, "storyText")
	if err != nil {
		return domain.ArchivedStory{}, err
	}
	created, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.ArchivedStory{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return domain.ArchivedStory{}, fmt.Errorf("repository: parse createdAt: %w", err)
	}

	s := domain.ArchivedStory{
		ConversationHandle: handle,
		StoryText:          text,
		CreatedAt:          ts,
	}
	if raw, err := strAttr(item, "profile"); err == nil && raw != "" {
		var profile domain.StoryProfile
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			return domain.ArchivedStory{}, fmt.Errorf("repository: decode profile: %w", err)
		}
		s.Profile = profile
	}
	return s, nil
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
