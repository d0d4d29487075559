package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type funcProcessor struct {
	name string
	fn   func(string) string
}

func (f funcProcessor) Name() string                  { return f.name }
func (f funcProcessor) Process(text, _ string) string { return f.fn(text) }

func TestPipeline_ComposesInOrder(t *testing.T) {
	upper := funcProcessor{"upper", strings.ToUpper}
	half := funcProcessor{"half", func(s string) string { return s[:len(s)/2] }}

	p, err := NewPipeline(upper, half)
	require.NoError(t, err)

	out, audits := p.Process("abcdefgh", "src")
	require.Equal(t, "ABCD", out)
	require.Len(t, audits, 2)
	require.Equal(t, []string{"upper", "half"}, p.Names())

	require.Equal(t, "upper", audits[0].ProcessorName)
	require.Equal(t, 8, audits[0].StartTextSize)
	require.Equal(t, 8, audits[0].EndTextSize)
	require.Zero(t, audits[0].SavingsPercent)

	require.Equal(t, "half", audits[1].ProcessorName)
	require.Equal(t, audits[0].EndTextSize, audits[1].StartTextSize)
	require.Equal(t, 4, audits[1].EndTextSize)
	require.InDelta(t, 50.0, audits[1].SavingsPercent, 1e-9)
	for _, a := range audits {
		require.GreaterOrEqual(t, a.DurationSeconds, 0.0)
	}
}

func TestPipeline_EmptyInputSkipsProcessors(t *testing.T) {
	called := false
	spy := funcProcessor{"spy", func(s string) string { called = true; return s + "x" }}

	p, err := NewPipeline(spy, MarkupStripper{})
	require.NoError(t, err)

	out, audits := p.Process("", "src")
	require.Empty(t, out)
	require.False(t, called)
	require.Len(t, audits, 2)
	for _, a := range audits {
		require.Zero(t, a.StartTextSize)
		require.Zero(t, a.EndTextSize)
		require.Zero(t, a.SavingsPercent)
	}
}

func TestPipeline_SizesCountCharacters(t *testing.T) {
	p, err := NewPipeline(funcProcessor{"id", func(s string) string { return s }})
	require.NoError(t, err)

	_, audits := p.Process("héllo wörld", "src")
	require.Equal(t, 11, audits[0].StartTextSize)
}

func TestNewPipeline_RejectsNil(t *testing.T) {
	_, err := NewPipeline(MarkupStripper{}, nil)
	require.Error(t, err)
}

func TestFromNames(t *testing.T) {
	p, err := FromNames([]string{"markup", " Boilerplate ", "aggressive"}, DefaultCleanerOptions())
	require.NoError(t, err)
	require.Equal(t, []string{"MarkupStripper", "BoilerplateCleaner", "AggressiveBoilerplateCleaner"}, p.Names())

	_, err = FromNames([]string{"markup", "summarize"}, DefaultCleanerOptions())
	require.ErrorContains(t, err, "summarize")

	_, err = ByName("", DefaultCleanerOptions())
	require.Error(t, err)
}

func TestPipeline_MarkupThenCleaner(t *testing.T) {
	p, err := FromNames([]string{"markup", "boilerplate"}, DefaultCleanerOptions())
	require.NoError(t, err)

	in := `<html><body><h1>AI Weekly Newsletter</h1><p>Hello,</p>` +
		`<p>Transformers keep getting bigger.</p>` +
		`<p>You are subscribed as reader@example.com.</p></body></html>`
	out, audits := p.Process(in, "news@example.com")

	require.Equal(t, "Transformers keep getting bigger.", out)
	require.Len(t, audits, 2)
	require.Less(t, audits[1].EndTextSize, audits[0].StartTextSize)
}
