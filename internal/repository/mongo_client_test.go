package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailgraph/internal/domain"
)

type fakeCollection struct {
	inserted  []interface{}
	insertErr error
	findOne   map[string]interface{}
	findDocs  []interface{}
	findErr   error
	lastOpts  *options.FindOptions
}

func (f *fakeCollection) InsertOne(_ context.Context, doc interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = append(f.inserted, doc)
	return &mongo.InsertOneResult{}, nil
}

func (f *fakeCollection) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	id, _ := filter.(bson.M)["_id"].(string)
	doc, ok := f.findOne[id]
	if !ok {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(doc, nil, nil)
}

func (f *fakeCollection) Find(_ context.Context, _ interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	if len(opts) > 0 {
		f.lastOpts = opts[0]
	}
	if f.findErr != nil {
		return nil, f.findErr
	}
	return mongo.NewCursorFromDocuments(f.findDocs, nil, nil)
}

func mustNewMongoStore(t *testing.T, audits, config *fakeCollection) *MongoStore {
	t.Helper()
	s, err := NewMongoStore(audits, config)
	require.NoError(t, err)
	return s
}

func TestMongoStore_SaveAndGetRunAudit(t *testing.T) {
	audits := &fakeCollection{}
	s := mustNewMongoStore(t, audits, &fakeCollection{})

	a := sampleAudit()
	require.NoError(t, s.SaveRunAudit(context.Background(), a))
	require.Len(t, audits.inserted, 1)
	doc := audits.inserted[0].(auditDoc)
	require.Equal(t, a.ID, doc.ID)
	require.Equal(t, 1, doc.TotalEmailsProcessed)
	require.NotEmpty(t, doc.Payload)

	audits.findOne = map[string]interface{}{a.ID: doc}
	got, err := s.GetRunAudit(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Failures, got.Failures)
	require.Len(t, got.ProcessedMails, 1)

	_, err = s.GetRunAudit(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMongoStore_SaveRunAuditErrors(t *testing.T) {
	s := mustNewMongoStore(t, &fakeCollection{insertErr: errors.New("E11000 duplicate key")}, &fakeCollection{})
	require.ErrorContains(t, s.SaveRunAudit(context.Background(), sampleAudit()), "SaveRunAudit")
	require.ErrorContains(t, s.SaveRunAudit(context.Background(), domain.RunAudit{}), "id is required")
}

func TestMongoStore_RecentRunAudits(t *testing.T) {
	start := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	audits := &fakeCollection{findDocs: []interface{}{
		auditDoc{ID: "mm-b", TotalEmailsFetched: 5, TotalEmailsProcessed: 4, StartTime: start, EndTime: start.Add(time.Minute), MailStartWindow: &start},
		auditDoc{ID: "mm-a", StartTime: start.Add(-time.Hour), EndTime: start.Add(-time.Hour)},
	}}
	s := mustNewMongoStore(t, audits, &fakeCollection{})

	got, err := s.RecentRunAudits(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "mm-b", got[0].ID)
	require.Equal(t, 4, got[0].TotalEmailsProcessed)
	require.True(t, start.Equal(*got[0].MailStartWindow))
	require.Nil(t, got[1].MailStartWindow)

	require.Equal(t, int64(5), *audits.lastOpts.Limit)
	require.Equal(t, bson.D{{Key: "_id", Value: -1}}, audits.lastOpts.Sort)

	s = mustNewMongoStore(t, &fakeCollection{findErr: errors.New("server selection timeout")}, &fakeCollection{})
	_, err = s.RecentRunAudits(context.Background(), 5)
	require.ErrorContains(t, err, "RecentRunAudits")
}

func TestMongoStore_GetConfigItem(t *testing.T) {
	config := &fakeCollection{findOne: map[string]interface{}{
		domain.ConfigApprovedMails: configDoc{ID: domain.ConfigApprovedMails, Mails: []string{"a@x.com", "b@y.com"}},
	}}
	s := mustNewMongoStore(t, &fakeCollection{}, config)

	item, err := s.GetConfigItem(context.Background(), domain.ConfigApprovedMails)
	require.NoError(t, err)
	require.Equal(t, []string{"a@x.com", "b@y.com"}, item.Mails)

	_, err = s.GetConfigItem(context.Background(), domain.ConfigLLMPrompt)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewMongoStore_NilCollections(t *testing.T) {
	_, err := NewMongoStore(nil, &fakeCollection{})
	require.Error(t, err)
	_, err = NewMongoStore(&fakeCollection{}, nil)
	require.Error(t, err)
}
