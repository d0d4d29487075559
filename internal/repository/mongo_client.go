package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailgraph/internal/domain"
)

// mongoCollection is the subset of *mongo.Collection used by MongoStore.
type mongoCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type auditDoc struct {
	ID                   string     `bson:"_id"`
	TotalEmailsFetched   int        `bson:"total_emails_fetched"`
	TotalEmailsProcessed int        `bson:"total_emails_processed"`
	MailStartWindow      *time.Time `bson:"mail_start_window"`
	MailEndWindow        *time.Time `bson:"mail_end_window"`
	StartTime            time.Time  `bson:"processing_start_time"`
	EndTime              time.Time  `bson:"processing_end_time"`
	Payload              string     `bson:"payload,omitempty"`
}

type configDoc struct {
	ID     string   `bson:"_id"`
	Mails  []string `bson:"mails"`
	Prompt string   `bson:"prompt"`
	Topic  []string `bson:"topic"`
}

// MongoConfig names the database and collections of a MongoStore.
type MongoConfig struct {
	URI              string
	Database         string
	AuditCollection  string
	ConfigCollection string
	Timeout          time.Duration
}

// MongoStore keeps run audits and run-scoped configuration in MongoDB or any
// Mongo-compatible service. Audit ids sort chronologically, so the newest
// audits are read by descending _id.
type MongoStore struct {
	audits mongoCollection
	config mongoCollection
	client *mongo.Client
}

// NewMongoStore wraps existing collections.
func NewMongoStore(audits, config mongoCollection) (*MongoStore, error) {
	if audits == nil {
		return nil, errors.New("repository: audit collection must not be nil")
	}
	if config == nil {
		return nil, errors.New("repository: config collection must not be nil")
	}
	return &MongoStore{audits: audits, config: config}, nil
}

// ConnectMongo dials the server, pings it and returns a store over the
// configured collections.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, errors.New("repository: mongo uri and database are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("repository: mongo connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("repository: mongo ping: %w", err)
	}

	db := client.Database(cfg.Database)
	store, err := NewMongoStore(db.Collection(cfg.AuditCollection), db.Collection(cfg.ConfigCollection))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	store.client = client
	return store, nil
}

// Close disconnects the client opened by ConnectMongo.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// SaveRunAudit inserts the audit. A duplicate id is an error.
func (s *MongoStore) SaveRunAudit(ctx context.Context, a domain.RunAudit) error {
	if a.ID == "" {
		return errors.New("repository: SaveRunAudit: id is required")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("repository: SaveRunAudit encode: %w", err)
	}
	doc := auditDoc{
		ID:                   a.ID,
		TotalEmailsFetched:   a.TotalEmailsFetched,
		TotalEmailsProcessed: a.TotalEmailsProcessed,
		MailStartWindow:      a.MailStartWindow,
		MailEndWindow:        a.MailEndWindow,
		StartTime:            a.StartTime,
		EndTime:              a.EndTime,
		Payload:              string(payload),
	}
	if _, err := s.audits.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("repository: SaveRunAudit: %w", err)
	}
	return nil
}

// GetRunAudit reads a full audit record by id.
func (s *MongoStore) GetRunAudit(ctx context.Context, id string) (domain.RunAudit, error) {
	var doc auditDoc
	err := s.audits.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.RunAudit{}, fmt.Errorf("repository: GetRunAudit %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RunAudit{}, fmt.Errorf("repository: GetRunAudit: %w", err)
	}
	var a domain.RunAudit
	if err := json.Unmarshal([]byte(doc.Payload), &a); err != nil {
		return domain.RunAudit{}, fmt.Errorf("repository: GetRunAudit decode: %w", err)
	}
	return a, nil
}

// RecentRunAudits returns up to limit audit summaries, newest first.
func (s *MongoStore) RecentRunAudits(ctx context.Context, limit int) ([]domain.RunAuditSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"payload": 0})

	cursor, err := s.audits.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentRunAudits find: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.RunAuditSummary
	for cursor.Next(ctx) {
		var doc auditDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("repository: RecentRunAudits decode: %w", err)
		}
		out = append(out, domain.RunAuditSummary{
			ID:                   doc.ID,
			TotalEmailsFetched:   doc.TotalEmailsFetched,
			TotalEmailsProcessed: doc.TotalEmailsProcessed,
			MailStartWindow:      doc.MailStartWindow,
			MailEndWindow:        doc.MailEndWindow,
			StartTime:            doc.StartTime,
			EndTime:              doc.EndTime,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("repository: RecentRunAudits cursor: %w", err)
	}
	return out, nil
}

// GetConfigItem reads one run-scoped configuration item.
func (s *MongoStore) GetConfigItem(ctx context.Context, id string) (domain.ConfigItem, error) {
	var doc configDoc
	err := s.config.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ConfigItem{}, fmt.Errorf("repository: GetConfigItem %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ConfigItem{}, fmt.Errorf("repository: GetConfigItem: %w", err)
	}
	return domain.ConfigItem{ID: doc.ID, Mails: doc.Mails, Prompt: doc.Prompt, Topic: doc.Topic}, nil
}
