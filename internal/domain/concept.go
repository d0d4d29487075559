package domain

import "time"

// Concept is a distilled topic extracted from a message.
type Concept struct {
	Name     string   `json:"name"`
	Topic    string   `json:"topic"`
	URLs     []string `json:"urls"`
	Keywords []string `json:"keywords"`
}

// Extraction is the metered result of one concept-extraction call.
type Extraction struct {
	Concepts         []Concept
	TotalTokens      int
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	Model            string
	Provider         string
}

// KeywordCount is the number of keywords across all concepts.
func (e Extraction) KeywordCount() int {
	n := 0
	for _, c := range e.Concepts {
		n += len(c.Keywords)
	}
	return n
}

// URLCount is the number of URLs across all concepts.
func (e Extraction) URLCount() int {
	n := 0
	for _, c := range e.Concepts {
		n += len(c.URLs)
	}
	return n
}

// Provenance identifies where a batch of concepts came from.
type Provenance struct {
	EmailID string
	SentAt  time.Time
	Source  string
}

// GraphFailure records a concept that could not be merged into the graph.
type GraphFailure struct {
	Concept string `json:"concept"`
	Error   string `json:"error"`
}

// GraphReport summarises one message's graph ingestion.
type GraphReport struct {
	Ingested int            `json:"ingested"`
	Failures []GraphFailure `json:"failures,omitempty"`
}
