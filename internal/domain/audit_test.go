package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSavings(t *testing.T) {
	cases := []struct {
		in, out int
		want    float64
	}{
		{100, 25, 75},
		{100, 100, 0},
		{0, 0, 0},
		{0, 10, 0},
		{50, 75, -50},
		{3, 1, 200.0 / 3},
	}
	for _, tc := range cases {
		require.InDelta(t, tc.want, Savings(tc.in, tc.out), 1e-9, "in=%d out=%d", tc.in, tc.out)
	}
}

func TestExtractionCounts(t *testing.T) {
	e := Extraction{Concepts: []Concept{
		{Name: "a", Keywords: []string{"k1", "k2"}, URLs: []string{"https://x.org"}},
		{Name: "b", Keywords: []string{"k3"}},
	}}
	require.Equal(t, 3, e.KeywordCount())
	require.Equal(t, 1, e.URLCount())
}

func TestLastDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w := LastDays(now, 7)
	require.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), w.After)
	require.Equal(t, now, w.Before)
}

func TestRunAuditSummary_DropsDetail(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := RunAudit{
		ID:                   "mm-x",
		TotalEmailsFetched:   3,
		TotalEmailsProcessed: 1,
		StartTime:            start,
		EndTime:              start.Add(time.Minute),
		ProcessedMails:       []MessageAudit{{MailIdentifier: "1"}},
	}
	s := a.Summary()
	require.Equal(t, "mm-x", s.ID)
	require.Equal(t, 3, s.TotalEmailsFetched)
	require.Equal(t, 1, s.TotalEmailsProcessed)
	require.Nil(t, s.MailStartWindow)
	require.Equal(t, start.Add(time.Minute), s.EndTime)
}
