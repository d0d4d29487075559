package textproc

import (
	"regexp"
	"strings"
)

var (
	escapedBreaks = regexp.MustCompile(`\\r\\n|\\n|\\r`)

	headerRules = compileAll(`(?im)`,
		`^.*?Newsletter\s*\n`,
		`Your customized.*?newsletter.*?\n`,
		`Hello,?\s*\n`,
		`Here is your customized.*?\n`,
	)

	footerRules = compileAll(`(?is)`,
		`This email is a free service.*?$`,
		`You received this email because.*?$`,
		`If you do not wish to receive.*?unsubscribe.*?\.`,
		`You are subscribed as\s+[\w.\-+]+@[\w.\-]+\.\w+\s*\.`,
		`You may manage your subscription.*?\.`,
		`Story previews are generated using AI.*?\.`,
		`For the most complete and accurate information.*?\.`,
		`Read the full disclaimer\s*\.`,
		`©\s*\d{4}.*?All rights reserved\.`,
		`[\r\n]+\s*You may manage your subscription options from your.*?profile\s*\.`,
	)

	promotionalRules = compileAll(`(?im)`,
		`^Science X Newsletter.*?for week \d+:?\s*\n`,
		`unsubscribe here`,
		`manage your subscription`,
		`click here to`,
		`view this email in your browser`,
		`forward to a friend`,
		`update your preferences`,
		`privacy policy`,
		`terms of service`,
		`contact us at`,
		`follow us on`,
		`powered by.*?\n`,
	)

	emailAddress = regexp.MustCompile(`\b[\w.\-+]+@[\w.\-]+\.\w+\b`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

func compileAll(flags string, patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(flags + p)
	}
	return out
}

// CleanerOptions toggles the optional boilerplate rules.
type CleanerOptions struct {
	RemoveEmails        bool `yaml:"remove_emails"`
	NormalizeWhitespace bool `yaml:"normalize_whitespace"`
}

// DefaultCleanerOptions enables every optional rule.
func DefaultCleanerOptions() CleanerOptions {
	return CleanerOptions{RemoveEmails: true, NormalizeWhitespace: true}
}

// BoilerplateCleaner removes newsletter headers, footers and disclaimers.
// The aggressive variant additionally strips promotional phrases.
type BoilerplateCleaner struct {
	opts       CleanerOptions
	aggressive bool
}

func NewBoilerplateCleaner(opts CleanerOptions) BoilerplateCleaner {
	return BoilerplateCleaner{opts: opts}
}

func NewAggressiveBoilerplateCleaner(opts CleanerOptions) BoilerplateCleaner {
	return BoilerplateCleaner{opts: opts, aggressive: true}
}

func (c BoilerplateCleaner) Name() string {
	if c.aggressive {
		return "AggressiveBoilerplateCleaner"
	}
	return "BoilerplateCleaner"
}

func (c BoilerplateCleaner) Process(text, _ string) string {
	if text == "" {
		return text
	}

	out := escapedBreaks.ReplaceAllLiteralString(text, "\n")
	out = removeAll(out, headerRules)
	out = removeAll(out, footerRules)
	if c.opts.RemoveEmails {
		out = emailAddress.ReplaceAllLiteralString(out, "")
	}
	if c.opts.NormalizeWhitespace {
		out = normalizeLines(out)
	}
	out = strings.TrimSpace(out)

	if c.aggressive {
		out = strings.TrimSpace(removeAll(out, promotionalRules))
	}
	return out
}

func removeAll(s string, rules []*regexp.Regexp) string {
	for _, re := range rules {
		s = re.ReplaceAllLiteralString(s, "")
	}
	return s
}

// normalizeLines trims every line before folding blank runs, so lines that
// held only spaces count as blank.
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return blankRuns.ReplaceAllLiteralString(strings.Join(lines, "\n"), "\n\n")
}
