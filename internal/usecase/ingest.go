package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"mailgraph/internal/domain"
	"mailgraph/internal/graph"
)

const (
	defaultAuditLimit = 10
	maxAuditLimit     = 100
	auditIDPrefix     = "mm-"
	artifactSuffix    = ".json"
)

type MailSource interface {
	FetchHeaders(ctx context.Context, w domain.Window) ([]domain.MessageHeader, error)
	FetchBody(ctx context.Context, id string) (domain.MessageBody, error)
}

type Normalizer interface {
	Process(text, source string) (string, []domain.StageAudit)
}

type ConceptExtractor interface {
	Extract(ctx context.Context, text, prompt string) (domain.Extraction, error)
}

type KnowledgeGraph interface {
	Open(ctx context.Context) (graph.Session, error)
}

type AuditStore interface {
	SaveRunAudit(ctx context.Context, audit domain.RunAudit) error
	RecentRunAudits(ctx context.Context, limit int) ([]domain.RunAuditSummary, error)
}

type ConfigReader interface {
	GetConfigItem(ctx context.Context, id string) (domain.ConfigItem, error)
}

type BlobUploader interface {
	Upload(ctx context.Context, key string, data []byte) error
}

// IngestDeps are the collaborators of an IngestService.
type IngestDeps struct {
	Source    MailSource
	Pipeline  Normalizer
	Extractor ConceptExtractor
	Graph     KnowledgeGraph
	Audits    AuditStore
	Config    ConfigReader
	Blobs     BlobUploader
	Logger    *slog.Logger
}

// IngestService runs ingestion passes over a mail window. Messages are
// processed one at a time, in fetch order.
type IngestService struct {
	source    MailSource
	pipeline  Normalizer
	extractor ConceptExtractor
	graph     KnowledgeGraph
	audits    AuditStore
	config    ConfigReader
	blobs     BlobUploader
	log       *slog.Logger
	now       func() time.Time
}

func NewIngestService(d IngestDeps) (*IngestService, error) {
	switch {
	case d.Source == nil:
		return nil, errors.New("usecase: mail source must not be nil")
	case d.Pipeline == nil:
		return nil, errors.New("usecase: pipeline must not be nil")
	case d.Extractor == nil:
		return nil, errors.New("usecase: extractor must not be nil")
	case d.Graph == nil:
		return nil, errors.New("usecase: knowledge graph must not be nil")
	case d.Audits == nil:
		return nil, errors.New("usecase: audit store must not be nil")
	case d.Config == nil:
		return nil, errors.New("usecase: config store must not be nil")
	case d.Blobs == nil:
		return nil, errors.New("usecase: blob uploader must not be nil")
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &IngestService{
		source:    d.Source,
		pipeline:  d.Pipeline,
		extractor: d.Extractor,
		graph:     d.Graph,
		audits:    d.Audits,
		config:    d.Config,
		blobs:     d.Blobs,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// ProcessEmails ingests messages from the last days and returns how many
// were processed.
func (s *IngestService) ProcessEmails(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, newError(ErrorInvalidInput, "invalid_days", nil)
	}
	return s.run(ctx, domain.LastDays(s.now(), days))
}

// ProcessEmailsInRange ingests messages dated in [after, before).
func (s *IngestService) ProcessEmailsInRange(ctx context.Context, after, before time.Time) (int, error) {
	if after.IsZero() || before.IsZero() || !before.After(after) {
		return 0, newError(ErrorInvalidInput, "invalid_range", nil)
	}
	return s.run(ctx, domain.Window{After: after, Before: before})
}

// RecentAudits lists run audits, newest first.
func (s *IngestService) RecentAudits(ctx context.Context, limit int) ([]domain.RunAuditSummary, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		return nil, newError(ErrorInvalidInput, "limit_too_large", nil)
	}
	out, err := s.audits.RecentRunAudits(ctx, limit)
	if err != nil {
		return nil, newError(ErrorConnector, "audit_read_error", err)
	}
	return out, nil
}

func (s *IngestService) run(ctx context.Context, w domain.Window) (int, error) {
	start := s.now()
	cfg, err := s.loadRunConfig(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info("run config loaded", "approved_senders", len(cfg.approved), "topics", cfg.topics)

	headers, err := s.source.FetchHeaders(ctx, w)
	if err != nil {
		return 0, newError(ErrorConnector, "mail_source_error", err)
	}
	selected := filterApproved(headers, cfg.approved)
	s.log.Debug("senders filtered", "fetched", len(headers), "approved", len(selected))

	audit := domain.RunAudit{
		ID:                 newAuditID(start),
		TotalEmailsFetched: len(headers),
		StartTime:          start,
		ProcessedMails:     []domain.MessageAudit{},
	}
	audit.MailStartWindow, audit.MailEndWindow = observedWindow(selected)

	if len(selected) > 0 {
		sess, err := s.graph.Open(ctx)
		if err != nil {
			return 0, newError(ErrorConnector, "graph_unavailable", err)
		}
		defer func() {
			if err := sess.Close(ctx); err != nil {
				s.log.Warn("graph session close failed", "err", err)
			}
		}()

		prompt := cfg.extractionPrompt()
		for _, h := range selected {
			ma, stage, err := s.processMessage(ctx, sess, h, prompt)
			if err != nil {
				s.log.Error("message skipped", "message_id", h.ID, "stage", stage, "err", err)
				audit.Failures = append(audit.Failures, domain.MessageFailure{MessageID: h.ID, Stage: stage, Error: err.Error()})
				continue
			}
			audit.ProcessedMails = append(audit.ProcessedMails, ma)
		}
	}

	audit.TotalEmailsProcessed = len(audit.ProcessedMails)
	audit.EndTime = s.now()
	if err := s.audits.SaveRunAudit(ctx, audit); err != nil {
		return 0, newError(ErrorConnector, "audit_write_error", err)
	}
	s.log.Info("run complete",
		"audit_id", audit.ID,
		"fetched", audit.TotalEmailsFetched,
		"processed", audit.TotalEmailsProcessed,
		"failed", len(audit.Failures),
	)
	return audit.TotalEmailsProcessed, nil
}

// processMessage returns the audit for one message, or the failing stage.
func (s *IngestService) processMessage(ctx context.Context, sess graph.Session, h domain.MessageHeader, prompt string) (domain.MessageAudit, string, error) {
	start := s.now()
	body, err := s.source.FetchBody(ctx, h.ID)
	if err != nil {
		return domain.MessageAudit{}, domain.StageFetchBody, err
	}
	msg := domain.NewMessage(h, body)
	source := senderAddress(msg.Sender)

	original := msg.Body
	cleaned, steps := s.pipeline.Process(original, source)
	msg.Body = cleaned

	ext, err := s.extractor.Extract(ctx, cleaned, prompt)
	if err != nil {
		return domain.MessageAudit{}, domain.StageExtract, err
	}

	report := graph.Ingest(ctx, sess, ext.Concepts, domain.Provenance{
		EmailID: msg.Identifier(),
		SentAt:  msg.Date,
		Source:  source,
	})
	for _, f := range report.Failures {
		s.log.Warn("concept not ingested", "message_id", h.ID, "stage", domain.StageGraph, "concept", f.Concept, "err", f.Error)
	}
	if report.Ingested == 0 && len(report.Failures) > 0 {
		return domain.MessageAudit{}, domain.StageGraph, fmt.Errorf("usecase: all %d concepts failed to ingest", len(report.Failures))
	}

	artifact, err := json.Marshal(domain.ProcessedMessage{
		Mail:         msg,
		ProcessedAt:  s.now(),
		TokensUsed:   ext.TotalTokens,
		TokensCached: ext.CachedTokens,
		Model:        ext.Model,
		Provider:     ext.Provider,
		ConceptCount: len(ext.Concepts),
		KeywordCount: ext.KeywordCount(),
		URLCount:     ext.URLCount(),
		Concepts:     ext.Concepts,
	})
	if err != nil {
		return domain.MessageAudit{}, domain.StagePersist, fmt.Errorf("usecase: encode artifact: %w", err)
	}
	if err := s.blobs.Upload(ctx, msg.Identifier()+artifactSuffix, artifact); err != nil {
		return domain.MessageAudit{}, domain.StagePersist, err
	}

	end := s.now()
	in, out := textSize(original), textSize(cleaned)
	return domain.MessageAudit{
		MailIdentifier:    msg.Identifier(),
		MailSource:        source,
		OriginalBodySize:  in,
		ProcessedBodySize: out,
		SavingsPercent:    domain.Savings(in, out),
		StartTime:         start,
		EndTime:           end,
		DurationSeconds:   end.Sub(start).Seconds(),
		TokensUsed:        ext.TotalTokens,
		TokensCached:      ext.CachedTokens,
		Model:             ext.Model,
		Provider:          ext.Provider,
		ConceptCount:      len(ext.Concepts),
		KeywordCount:      ext.KeywordCount(),
		URLCount:          ext.URLCount(),
		Steps:             steps,
		Concepts:          ext.Concepts,
		GraphFailures:     report.Failures,
	}, "", nil
}

// observedWindow returns the earliest and latest message dates, or nils.
func observedWindow(headers []domain.MessageHeader) (*time.Time, *time.Time) {
	if len(headers) == 0 {
		return nil, nil
	}
	lo, hi := headers[0].Date, headers[0].Date
	for _, h := range headers[1:] {
		if h.Date.Before(lo) {
			lo = h.Date
		}
		if h.Date.After(hi) {
			hi = h.Date
		}
	}
	return &lo, &hi
}

func textSize(s string) int {
	return utf8.RuneCountInString(s)
}

// auditIDLayout keeps every fraction digit so ids sort as strings.
const auditIDLayout = "2006-01-02T15:04:05.000000000Z07:00"

func newAuditID(at time.Time) string {
	return auditIDPrefix + at.UTC().Format(auditIDLayout) + "-" + newUUID()
}

var newUUID = func() string {
	return uuid.NewString()
}
