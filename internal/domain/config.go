package domain

import "errors"

// ErrNotFound is returned by stores when a document does not exist.
var ErrNotFound = errors.New("not found")

// Run-scoped configuration item ids.
const (
	ConfigApprovedMails = "approved_mails"
	ConfigLLMPrompt     = "llm_prompt"
	ConfigConceptTopic  = "concept_topic"
)

// ConfigItem is a run-scoped configuration document. Which fields are set
// depends on the item: approved_mails uses Mails, llm_prompt uses Prompt,
// concept_topic uses Prompt and Topic.
type ConfigItem struct {
	ID     string
	Mails  []string
	Prompt string
	Topic  []string
}
