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
	"github.com/klauspost/compress/zstd"

	"mailgraph/internal/domain"
)

const (
	pkAudit  = "AUDIT"
	pkConfig = "CONFIG"

	// maxPayloadBytes leaves headroom under DynamoDB's 400 KB item limit
	// for the key and summary attributes.
	maxPayloadBytes = 350 * 1024
)

// summaryAttributes lists the attributes RecentRunAudits reads.
var summaryAttributes = []string{
	"SK", "totalEmailsFetched", "totalEmailsProcessed",
	"startTime", "endTime", "mailStartWindow", "mailEndWindow",
}

var (
	payloadEncoder, _ = zstd.NewWriter(nil)
	payloadDecoder, _ = zstd.NewReader(nil)
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps run audits and run-scoped configuration in one table.
// Audits live under PK=AUDIT with the audit id as sort key, so sort order is
// chronological. Configuration items live under PK=CONFIG.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
}

// NewDynamoStore creates a DynamoDB-backed store.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName}, nil
}

// SaveRunAudit creates the audit record. An existing id is never overwritten.
// The full audit is stored zstd-compressed. If it still does not fit in one
// item, per-message concepts and stage audits are dropped from the stored
// copy (they remain in the processed-message artifacts) and the item is
// flagged with payloadTrimmed.
func (s *DynamoStore) SaveRunAudit(ctx context.Context, a domain.RunAudit) error {
	if a.ID == "" {
		return errors.New("repository: SaveRunAudit: id is required")
	}
	payload, trimmed, err := encodeAudit(a)
	if err != nil {
		return fmt.Errorf("repository: SaveRunAudit encode: %w", err)
	}

	item := map[string]types.AttributeValue{
		"PK":                   &types.AttributeValueMemberS{Value: pkAudit},
		"SK":                   &types.AttributeValueMemberS{Value: a.ID},
		"totalEmailsFetched":   numAttr(a.TotalEmailsFetched),
		"totalEmailsProcessed": numAttr(a.TotalEmailsProcessed),
		"startTime":            timeAttr(a.StartTime),
		"endTime":              timeAttr(a.EndTime),
		"payloadZstd":          &types.AttributeValueMemberB{Value: payload},
	}
	if trimmed {
		item["payloadTrimmed"] = &types.AttributeValueMemberBOOL{Value: true}
	}
	if a.MailStartWindow != nil {
		item["mailStartWindow"] = timeAttr(*a.MailStartWindow)
	}
	if a.MailEndWindow != nil {
		item["mailEndWindow"] = timeAttr(*a.MailEndWindow)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveRunAudit: %w", err)
	}
	return nil
}

// encodeAudit compresses the audit, trimming per-message detail when the
// full record exceeds maxPayloadBytes.
func encodeAudit(a domain.RunAudit) ([]byte, bool, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, false, err
	}
	packed := payloadEncoder.EncodeAll(raw, nil)
	if len(packed) <= maxPayloadBytes {
		return packed, false, nil
	}

	slim := a
	slim.ProcessedMails = make([]domain.MessageAudit, len(a.ProcessedMails))
	for i, m := range a.ProcessedMails {
		m.Concepts = nil
		m.Steps = nil
		slim.ProcessedMails[i] = m
	}
	raw, err = json.Marshal(slim)
	if err != nil {
		return nil, false, err
	}
	packed = payloadEncoder.EncodeAll(raw, nil)
	if len(packed) > maxPayloadBytes {
		return nil, false, fmt.Errorf("payload is %d bytes after trimming, limit %d", len(packed), maxPayloadBytes)
	}
	return packed, true, nil
}

// GetRunAudit reads a full audit record by id.
func (s *DynamoStore) GetRunAudit(ctx context.Context, id string) (domain.RunAudit, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(pkAudit, id),
	})
	if err != nil {
		return domain.RunAudit{}, fmt.Errorf("repository: GetRunAudit get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.RunAudit{}, fmt.Errorf("repository: GetRunAudit %q: %w", id, domain.ErrNotFound)
	}
	payload, err := payloadOf(out.Item)
	if err != nil {
		return domain.RunAudit{}, fmt.Errorf("repository: GetRunAudit: %w", err)
	}
	var a domain.RunAudit
	if err := json.Unmarshal(payload, &a); err != nil {
		return domain.RunAudit{}, fmt.Errorf("repository: GetRunAudit decode: %w", err)
	}
	return a, nil
}

// RecentRunAudits returns up to limit audit summaries, newest first. Only
// summary attributes are read, and pages are followed until limit is met.
func (s *DynamoStore) RecentRunAudits(ctx context.Context, limit int) ([]domain.RunAuditSummary, error) {
	if limit <= 0 {
		return nil, nil
	}
	names := make(map[string]string, len(summaryAttributes))
	placeholders := make([]string, 0, len(summaryAttributes))
	for i, attr := range summaryAttributes {
		p := "#a" + strconv.Itoa(i)
		names[p] = attr
		placeholders = append(placeholders, p)
	}

	summaries := make([]domain.RunAuditSummary, 0, limit)
	var startKey map[string]types.AttributeValue
	for len(summaries) < limit {
		out, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pkAudit},
			},
			ProjectionExpression:     aws.String(strings.Join(placeholders, ", ")),
			ExpressionAttributeNames: names,
			ScanIndexForward:         aws.Bool(false),
			Limit:                    aws.Int32(int32(limit - len(summaries))),
			ExclusiveStartKey:        startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: RecentRunAudits query: %w", err)
		}
		for _, item := range out.Items {
			sum, err := itemToSummary(item)
			if err != nil {
				return nil, fmt.Errorf("repository: RecentRunAudits unmarshal: %w", err)
			}
			summaries = append(summaries, sum)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// GetConfigItem reads one run-scoped configuration item.
func (s *DynamoStore) GetConfigItem(ctx context.Context, id string) (domain.ConfigItem, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(pkConfig, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.ConfigItem{}, fmt.Errorf("repository: GetConfigItem get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.ConfigItem{}, fmt.Errorf("repository: GetConfigItem %q: %w", id, domain.ErrNotFound)
	}

	mails, err := strListAttr(out.Item, "mails")
	if err != nil {
		return domain.ConfigItem{}, fmt.Errorf("repository: GetConfigItem: %w", err)
	}
	topic, err := strListAttr(out.Item, "topic")
	if err != nil {
		return domain.ConfigItem{}, fmt.Errorf("repository: GetConfigItem: %w", err)
	}
	prompt, _ := strAttr(out.Item, "prompt") // allow empty
	return domain.ConfigItem{ID: id, Mails: mails, Prompt: prompt, Topic: topic}, nil
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func itemToSummary(item map[string]types.AttributeValue) (domain.RunAuditSummary, error) {
	id, err := strAttr(item, "SK")
	if err != nil {
		return domain.RunAuditSummary{}, err
	}
	fetched, err := intAttr(item, "totalEmailsFetched")
	if err != nil {
		return domain.RunAuditSummary{}, err
	}
	processed, err := intAttr(item, "totalEmailsProcessed")
	if err != nil {
		return domain.RunAuditSummary{}, err
	}
	start, err := timeValue(item, "startTime")
	if err != nil {
		return domain.RunAuditSummary{}, err
	}
	end, err := timeValue(item, "endTime")
	if err != nil {
		return domain.RunAuditSummary{}, err
	}
	sum := domain.RunAuditSummary{
		ID:                   id,
		TotalEmailsFetched:   fetched,
		TotalEmailsProcessed: processed,
		StartTime:            start,
		EndTime:              end,
	}
	if _, ok := item["mailStartWindow"]; ok {
		t, err := timeValue(item, "mailStartWindow")
		if err != nil {
			return domain.RunAuditSummary{}, err
		}
		sum.MailStartWindow = &t
	}
	if _, ok := item["mailEndWindow"]; ok {
		t, err := timeValue(item, "mailEndWindow")
		if err != nil {
			return domain.RunAuditSummary{}, err
		}
		sum.MailEndWindow = &t
	}
	return sum, nil
}

// payloadOf returns the audit JSON, reading the compressed attribute or the
// plain one written by earlier versions.
func payloadOf(item map[string]types.AttributeValue) ([]byte, error) {
	if v, ok := item["payloadZstd"].(*types.AttributeValueMemberB); ok {
		raw, err := payloadDecoder.DecodeAll(v.Value, nil)
		if err != nil {
			return nil, fmt.Errorf("repository: decompress payload: %w", err)
		}
		return raw, nil
	}
	s, err := strAttr(item, "payload")
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func numAttr(n int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
}

func timeAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func timeValue(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
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

// strListAttr accepts a list of strings or a string set. A missing
// attribute is an empty list.
func strListAttr(item map[string]types.AttributeValue, key string) ([]string, error) {
	switch v := item[key].(type) {
	case nil:
		return nil, nil
	case *types.AttributeValueMemberSS:
		return v.Value, nil
	case *types.AttributeValueMemberL:
		out := make([]string, 0, len(v.Value))
		for i, e := range v.Value {
			s, ok := e.(*types.AttributeValueMemberS)
			if !ok {
				return nil, fmt.Errorf("repository: attribute %q[%d] is not a string", key, i)
			}
			out = append(out, s.Value)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("repository: attribute %q is not a string list", key)
	}
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
