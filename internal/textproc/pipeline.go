// Package textproc implements the ordered text-normalization chain applied
// to mail bodies before concept extraction.
package textproc

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mailgraph/internal/domain"
)

// Processor is one stateless step of the chain.
type Processor interface {
	Name() string
	Process(text, source string) string
}

// Pipeline runs processors in the order given, feeding each one the output
// of the previous one.
type Pipeline struct {
	processors []Processor
}

// NewPipeline builds a pipeline. Order is significant.
func NewPipeline(processors ...Processor) (*Pipeline, error) {
	for i, p := range processors {
		if p == nil {
			return nil, fmt.Errorf("textproc: processor %d must not be nil", i)
		}
	}
	return &Pipeline{processors: processors}, nil
}

// Names lists the processors in run order.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.processors))
	for _, proc := range p.processors {
		names = append(names, proc.Name())
	}
	return names
}

// Process applies every stage and returns the final text with one audit per
// stage. Empty input skips the processors and yields zero-size audits.
func (p *Pipeline) Process(text, source string) (string, []domain.StageAudit) {
	audits := make([]domain.StageAudit, 0, len(p.processors))
	if text == "" {
		for _, proc := range p.processors {
			audits = append(audits, domain.StageAudit{ProcessorName: proc.Name()})
		}
		return "", audits
	}

	current := text
	for _, proc := range p.processors {
		start := time.Now()
		in := utf8.RuneCountInString(current)
		out := proc.Process(current, source)
		outSize := utf8.RuneCountInString(out)
		audits = append(audits, domain.StageAudit{
			ProcessorName:   proc.Name(),
			StartTextSize:   in,
			EndTextSize:     outSize,
			SavingsPercent:  domain.Savings(in, outSize),
			DurationSeconds: time.Since(start).Seconds(),
		})
		current = out
	}
	return current, audits
}

// Stage names accepted by ByName.
const (
	StageMarkup      = "markup"
	StageBoilerplate = "boilerplate"
	StageAggressive  = "aggressive"
)

// ByName builds a processor from its configuration name.
func ByName(name string, opts CleanerOptions) (Processor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StageMarkup:
		return MarkupStripper{}, nil
	case StageBoilerplate:
		return NewBoilerplateCleaner(opts), nil
	case StageAggressive:
		return NewAggressiveBoilerplateCleaner(opts), nil
	case "":
		return nil, errors.New("textproc: stage name is required")
	default:
		return nil, fmt.Errorf("textproc: unknown stage %q", name)
	}
}

// FromNames builds a pipeline from an ordered list of stage names.
func FromNames(names []string, opts CleanerOptions) (*Pipeline, error) {
	processors := make([]Processor, 0, len(names))
	for _, n := range names {
		p, err := ByName(n, opts)
		if err != nil {
			return nil, err
		}
		processors = append(processors, p)
	}
	return NewPipeline(processors...)
}
