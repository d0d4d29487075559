package domain

import "time"

// Stage names used in message failure records.
const (
	StageFetchBody = "fetch_body"
	StageExtract   = "extract"
	StageGraph     = "graph"
	StagePersist   = "persist"
)

// StageAudit measures one step of the normalization chain for one message.
type StageAudit struct {
	ProcessorName   string  `json:"processor_name"`
	StartTextSize   int     `json:"start_text_size"`
	EndTextSize     int     `json:"end_text_size"`
	SavingsPercent  float64 `json:"savings_percentage"`
	DurationSeconds float64 `json:"processing_duration_seconds"`
	TokensUsed      int     `json:"tokens_used"`
}

// MessageAudit is the audit record for one processed message.
type MessageAudit struct {
	MailIdentifier    string         `json:"mail_identifier"`
	MailSource        string         `json:"mail_source"`
	OriginalBodySize  int            `json:"original_body_size"`
	ProcessedBodySize int            `json:"processed_body_size"`
	SavingsPercent    float64        `json:"processing_body_savings_percentage"`
	StartTime         time.Time      `json:"processing_start_time"`
	EndTime           time.Time      `json:"processing_end_time"`
	DurationSeconds   float64        `json:"processing_duration_seconds"`
	TokensUsed        int            `json:"tokens_used"`
	TokensCached      int            `json:"tokens_cached"`
	Model             string         `json:"model"`
	Provider          string         `json:"provider"`
	ConceptCount      int            `json:"concept_count"`
	KeywordCount      int            `json:"keyword_count"`
	URLCount          int            `json:"url_count"`
	Steps             []StageAudit   `json:"processing_steps"`
	Concepts          []Concept      `json:"concepts"`
	GraphFailures     []GraphFailure `json:"graph_failures,omitempty"`
}

// MessageFailure explains why a filtered message was not processed.
type MessageFailure struct {
	MessageID string `json:"message_id"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// RunAudit is written once per orchestrator run.
type RunAudit struct {
	ID                   string           `json:"id"`
	TotalEmailsFetched   int              `json:"total_emails_fetched"`
	TotalEmailsProcessed int              `json:"total_emails_processed"`
	MailStartWindow      *time.Time       `json:"mail_start_window"`
	MailEndWindow        *time.Time       `json:"mail_end_window"`
	StartTime            time.Time        `json:"processing_start_time"`
	EndTime              time.Time        `json:"processing_end_time"`
	ProcessedMails       []MessageAudit   `json:"processed_mails"`
	Failures             []MessageFailure `json:"failures,omitempty"`
}

// Summary drops the per-message detail.
func (a RunAudit) Summary() RunAuditSummary {
	return RunAuditSummary{
		ID:                   a.ID,
		TotalEmailsFetched:   a.TotalEmailsFetched,
		TotalEmailsProcessed: a.TotalEmailsProcessed,
		MailStartWindow:      a.MailStartWindow,
		MailEndWindow:        a.MailEndWindow,
		StartTime:            a.StartTime,
		EndTime:              a.EndTime,
	}
}

// RunAuditSummary is the list view of a RunAudit.
type RunAuditSummary struct {
	ID                   string     `json:"id"`
	TotalEmailsFetched   int        `json:"total_emails_fetched"`
	TotalEmailsProcessed int        `json:"total_emails_processed"`
	MailStartWindow      *time.Time `json:"mail_start_window"`
	MailEndWindow        *time.Time `json:"mail_end_window"`
	StartTime            time.Time  `json:"processing_start_time"`
	EndTime              time.Time  `json:"processing_end_time"`
}

// ProcessedMessage is the artifact persisted to object storage.
type ProcessedMessage struct {
	Mail         Message   `json:"mail"`
	ProcessedAt  time.Time `json:"processed_at"`
	TokensUsed   int       `json:"tokens_used"`
	TokensCached int       `json:"tokens_cached"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	ConceptCount int       `json:"concept_count"`
	KeywordCount int       `json:"keyword_count"`
	URLCount     int       `json:"url_count"`
	Concepts     []Concept `json:"concepts"`
}

// Savings returns the percentage by which out is smaller than in.
// An empty input yields zero.
func Savings(in, out int) float64 {
	if in == 0 {
		return 0
	}
	return float64(in-out) / float64(in) * 100
}
