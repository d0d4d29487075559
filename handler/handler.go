package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"mailgraph/internal/domain"
	"mailgraph/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	dateLayout        = "2006-01-02"
	defaultDays       = 7
)

type Ingester interface {
	ProcessEmails(ctx context.Context, days int) (int, error)
	ProcessEmailsInRange(ctx context.Context, after, before time.Time) (int, error)
	RecentAudits(ctx context.Context, limit int) ([]domain.RunAuditSummary, error)
}

type Browser interface {
	BasicEmails(ctx context.Context, days, limit int) ([]domain.MessageHeader, error)
	FullEmail(ctx context.Context, id string) (domain.Message, error)
	GetAudit(ctx context.Context, id string) (domain.RunAudit, error)
}

var newCorrelationID = func() string { return uuid.NewString() }

type Handler struct {
	ingest       Ingester
	browse       Browser
	scheduleDays int
	log          *slog.Logger
	routes       map[string]route
}

type route func(ctx context.Context, q query) (any, error)

type processResponse struct {
	Processed int `json:"processed"`
}

type auditsResponse struct {
	Audits []domain.RunAuditSummary `json:"audits"`
}

type emailsResponse struct {
	Emails []domain.MessageHeader `json:"emails"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error         string `json:"error"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlationId"`
}

func NewHandler(ingest Ingester, browse Browser, scheduleDays int, log *slog.Logger) (*Handler, error) {
	if ingest == nil {
		return nil, errors.New("handler: ingester must not be nil")
	}
	if browse == nil {
		return nil, errors.New("handler: browser must not be nil")
	}
	if scheduleDays <= 0 {
		return nil, errors.New("handler: schedule days must be positive")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{ingest: ingest, browse: browse, scheduleDays: scheduleDays, log: log}
	h.routes = map[string]route{
		"/health":               h.health,
		"/process-emails":       h.processEmails,
		"/process-emails-range": h.processEmailsRange,
		"/recent-audits":        h.recentAudits,
		"/audit":                h.audit,
		"/basic-emails":         h.basicEmails,
		"/full-email":           h.fullEmail,
	}
	return h, nil
}

// Handle serves API Gateway proxy requests. Every route is a GET.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	cid := correlationID(req.Headers)
	path := strings.TrimSuffix(req.Path, "/")

	resp := h.dispatch(ctx, path, req, cid)
	h.log.Info("request handled",
		"path", path,
		"status", resp.StatusCode,
		"correlation_id", cid,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (h *Handler) dispatch(ctx context.Context, path string, req events.APIGatewayProxyRequest, cid string) events.APIGatewayProxyResponse {
	rt, ok := h.routes[path]
	if !ok {
		return writeJSON(http.StatusNotFound, cid, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "unknown_route", CorrelationID: cid})
	}
	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodGet {
		return writeJSON(http.StatusMethodNotAllowed, cid, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "method_not_allowed", CorrelationID: cid})
	}

	out, err := rt(ctx, query(req.QueryStringParameters))
	if err != nil {
		status, code, reason := mapError(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("request failed", "path", path, "code", code, "reason", reason, "correlation_id", cid, "err", err)
		}
		return writeJSON(status, cid, errorResponse{Error: code, Reason: reason, CorrelationID: cid})
	}
	return writeJSON(http.StatusOK, cid, out)
}

// HandleSchedule runs an ingestion pass over the configured number of days.
func (h *Handler) HandleSchedule(ctx context.Context, ev events.CloudWatchEvent) error {
	h.log.Info("scheduled run", "event_id", ev.ID, "days", h.scheduleDays)
	n, err := h.ingest.ProcessEmails(ctx, h.scheduleDays)
	if err != nil {
		h.log.Error("scheduled run failed", "event_id", ev.ID, "err", err)
		return err
	}
	h.log.Info("scheduled run complete", "event_id", ev.ID, "processed", n)
	return nil
}

func (h *Handler) health(context.Context, query) (any, error) {
	return healthResponse{Status: "ok"}, nil
}

func (h *Handler) processEmails(ctx context.Context, q query) (any, error) {
	days, err := q.intParam("days", defaultDays)
	if err != nil {
		return nil, err
	}
	n, err := h.ingest.ProcessEmails(ctx, days)
	if err != nil {
		return nil, err
	}
	return processResponse{Processed: n}, nil
}

func (h *Handler) processEmailsRange(ctx context.Context, q query) (any, error) {
	after, err := q.dateParam("after_date")
	if err != nil {
		return nil, err
	}
	before, err := q.dateParam("before_date")
	if err != nil {
		return nil, err
	}
	n, err := h.ingest.ProcessEmailsInRange(ctx, after, before)
	if err != nil {
		return nil, err
	}
	return processResponse{Processed: n}, nil
}

func (h *Handler) recentAudits(ctx context.Context, q query) (any, error) {
	limit, err := q.intParam("limit", 0)
	if err != nil {
		return nil, err
	}
	audits, err := h.ingest.RecentAudits(ctx, limit)
	if err != nil {
		return nil, err
	}
	if audits == nil {
		audits = []domain.RunAuditSummary{}
	}
	return auditsResponse{Audits: audits}, nil
}

func (h *Handler) audit(ctx context.Context, q query) (any, error) {
	return h.browse.GetAudit(ctx, q["id"])
}

func (h *Handler) basicEmails(ctx context.Context, q query) (any, error) {
	days, err := q.intParam("days", defaultDays)
	if err != nil {
		return nil, err
	}
	limit, err := q.intParam("max_emails", 0)
	if err != nil {
		return nil, err
	}
	emails, err := h.browse.BasicEmails(ctx, days, limit)
	if err != nil {
		return nil, err
	}
	if emails == nil {
		emails = []domain.MessageHeader{}
	}
	return emailsResponse{Emails: emails}, nil
}

func (h *Handler) fullEmail(ctx context.Context, q query) (any, error) {
	return h.browse.FullEmail(ctx, q["email_id"])
}

type query map[string]string

func (q query) intParam(key string, def int) (int, error) {
	v := strings.TrimSpace(q[key])
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_" + key, Err: err}
	}
	return n, nil
}

func (q query) dateParam(key string) (time.Time, error) {
	v := strings.TrimSpace(q[key])
	if v == "" {
		return time.Time{}, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_" + key}
	}
	t, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_" + key, Err: err}
	}
	return t, nil
}

func mapError(err error) (int, string, string) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal), ""
	}
	switch ue.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, string(ue.Code), ue.Reason
	case usecase.ErrorNotFound:
		return http.StatusNotFound, string(ue.Code), ue.Reason
	case usecase.ErrorConnector:
		return http.StatusBadGateway, string(ue.Code), ue.Reason
	default:
		return http.StatusInternalServerError, string(ue.Code), ue.Reason
	}
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return newCorrelationID()
}

func writeJSON(status int, cid string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(fmt.Sprintf(`{"error":%q,"correlationId":%q}`, usecase.ErrorInternal, cid))
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: cid,
		},
		Body: string(body),
	}
}
