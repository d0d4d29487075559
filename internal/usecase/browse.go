package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"mailgraph/internal/domain"
)

const (
	defaultBrowseLimit = 10
	maxBrowseLimit     = 100
)

type MailBrowser interface {
	FetchHeaders(ctx context.Context, w domain.Window) ([]domain.MessageHeader, error)
	FetchMessage(ctx context.Context, id string) (domain.Message, error)
}

type AuditReader interface {
	GetRunAudit(ctx context.Context, id string) (domain.RunAudit, error)
}

// BrowseService gives read-only access to the mailbox and stored audits.
type BrowseService struct {
	source MailBrowser
	audits AuditReader
	log    *slog.Logger
	now    func() time.Time
}

func NewBrowseService(source MailBrowser, audits AuditReader, log *slog.Logger) (*BrowseService, error) {
	if source == nil {
		return nil, errors.New("usecase: mail source must not be nil")
	}
	if audits == nil {
		return nil, errors.New("usecase: audit reader must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &BrowseService{
		source: source,
		audits: audits,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// BasicEmails returns up to limit headers from the last days, newest first.
func (s *BrowseService) BasicEmails(ctx context.Context, days, limit int) ([]domain.MessageHeader, error) {
	if days <= 0 {
		return nil, newError(ErrorInvalidInput, "invalid_days", nil)
	}
	if limit <= 0 {
		limit = defaultBrowseLimit
	}
	if limit > maxBrowseLimit {
		return nil, newError(ErrorInvalidInput, "limit_too_large", nil)
	}

	headers, err := s.source.FetchHeaders(ctx, domain.LastDays(s.now(), days))
	if err != nil {
		return nil, newError(ErrorConnector, "mail_source_error", err)
	}
	out := append([]domain.MessageHeader(nil), headers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FullEmail returns one message with its body. Attachment bytes are
// dropped; only their metadata is returned.
func (s *BrowseService) FullEmail(ctx context.Context, id string) (domain.Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Message{}, newError(ErrorInvalidInput, "missing_email_id", nil)
	}
	msg, err := s.source.FetchMessage(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Message{}, newError(ErrorNotFound, "email_not_found", err)
	}
	if err != nil {
		return domain.Message{}, newError(ErrorConnector, "mail_source_error", err)
	}
	for i := range msg.Attachments {
		msg.Attachments[i].Data = nil
	}
	return msg, nil
}

func (s *BrowseService) GetAudit(ctx context.Context, id string) (domain.RunAudit, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.RunAudit{}, newError(ErrorInvalidInput, "missing_audit_id", nil)
	}
	a, err := s.audits.GetRunAudit(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RunAudit{}, newError(ErrorNotFound, "audit_not_found", err)
	}
	if err != nil {
		return domain.RunAudit{}, newError(ErrorConnector, "audit_read_error", err)
	}
	return a, nil
}
