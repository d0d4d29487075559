package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"mailgraph/internal/domain"
)

// runConfig is loaded from the config store at the start of every run.
type runConfig struct {
	approved    map[string]bool
	prompt      string
	topicPrompt string
	topics      []string
}

func (s *IngestService) loadRunConfig(ctx context.Context) (runConfig, error) {
	mails, err := s.readConfig(ctx, domain.ConfigApprovedMails)
	if err != nil {
		return runConfig{}, err
	}
	prompt, err := s.readConfig(ctx, domain.ConfigLLMPrompt)
	if err != nil {
		return runConfig{}, err
	}
	if strings.TrimSpace(prompt.Prompt) == "" {
		return runConfig{}, newError(ErrorConfiguration, "empty_llm_prompt", nil)
	}
	topic, err := s.readConfig(ctx, domain.ConfigConceptTopic)
	if err != nil {
		return runConfig{}, err
	}

	approved := make(map[string]bool, len(mails.Mails))
	for _, m := range mails.Mails {
		approved[m] = true
	}
	return runConfig{
		approved:    approved,
		prompt:      prompt.Prompt,
		topicPrompt: topic.Prompt,
		topics:      topic.Topic,
	}, nil
}

func (s *IngestService) readConfig(ctx context.Context, id string) (domain.ConfigItem, error) {
	item, err := s.config.GetConfigItem(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ConfigItem{}, newError(ErrorConfiguration, "missing_"+id, err)
	}
	if err != nil {
		return domain.ConfigItem{}, newError(ErrorConnector, "config_store_error", fmt.Errorf("usecase: read %s: %w", id, err))
	}
	return item, nil
}

// extractionPrompt joins the base prompt with the topic instructions.
func (c runConfig) extractionPrompt() string {
	return fmt.Sprintf("%s\n%s %s", c.prompt, c.topicPrompt, strings.Join(c.topics, ", "))
}

var angleAddress = regexp.MustCompile(`<([^>]+)>`)

// senderAddress returns the bare address of a sender such as
// "Name <a@x.com>" or "a@x.com". It returns "" when there is none.
func senderAddress(sender string) string {
	if m := angleAddress.FindStringSubmatch(sender); m != nil {
		return m[1]
	}
	if strings.Contains(sender, "@") {
		return strings.TrimSpace(sender)
	}
	return ""
}

// filterApproved keeps headers whose sender address is allow-listed,
// preserving fetch order.
func filterApproved(headers []domain.MessageHeader, approved map[string]bool) []domain.MessageHeader {
	out := make([]domain.MessageHeader, 0, len(headers))
	for _, h := range headers {
		if addr := senderAddress(h.Sender); addr != "" && approved[addr] {
			out = append(out, h)
		}
	}
	return out
}
