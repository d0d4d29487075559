package textproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoilerplateCleaner(t *testing.T) {
	c := NewBoilerplateCleaner(DefaultCleanerOptions())
	require.Equal(t, "BoilerplateCleaner", c.Name())

	in := "Weekly Newsletter\nHello,\nBig news today.\n\n\n\n  Second paragraph  \n" +
		"Contact me at bob@example.com now\n© 2025 Example Corp. All rights reserved."
	require.Equal(t, "Big news today.\n\nSecond paragraph\nContact me at  now", c.Process(in, "src"))
}

func TestBoilerplateCleaner_Rules(t *testing.T) {
	c := NewBoilerplateCleaner(DefaultCleanerOptions())

	cases := map[string]struct{ in, want string }{
		"escaped breaks":   {`Line one\nLine two\r\nLine three`, "Line one\nLine two\nLine three"},
		"unsubscribe":      {"Real content.\nIf you do not wish to receive these emails, unsubscribe here.", "Real content."},
		"free service":     {"Story\nThis email is a free service of X.\nMore stuff", "Story"},
		"received because": {"Body\nYou received this email because you signed up.\nmore", "Body"},
		"subscribed as":    {"Body. You are subscribed as a.b+c@mail.example.org .", "Body."},
		"disclaimer":       {"Body. Story previews are generated using AI. Read the full disclaimer.", "Body."},
		"customized intro": {"Here is your customized digest\nItem", "Item"},
		"empty":            {"", ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, c.Process(tc.in, "src"))
		})
	}
}

func TestBoilerplateCleaner_OptionsOff(t *testing.T) {
	c := NewBoilerplateCleaner(CleanerOptions{})

	out := c.Process("ping bob@example.com\n\n\n\nend", "src")
	require.Equal(t, "ping bob@example.com\n\n\n\nend", out)
}

func TestAggressiveBoilerplateCleaner(t *testing.T) {
	c := NewAggressiveBoilerplateCleaner(DefaultCleanerOptions())
	require.Equal(t, "AggressiveBoilerplateCleaner", c.Name())

	in := "Read more. Click here to view.\nFollow us on Twitter\nPowered by Mailer\nEnd"
	require.Equal(t, "Read more.  view.\n Twitter\nEnd", c.Process(in, "src"))
}

func TestAggressiveBoilerplateCleaner_AppliesBaseRules(t *testing.T) {
	base := NewBoilerplateCleaner(DefaultCleanerOptions())
	aggr := NewAggressiveBoilerplateCleaner(DefaultCleanerOptions())

	in := "Hello,\nContent here.\n© 2024 Foo Inc. All rights reserved."
	require.Equal(t, base.Process(in, "s"), aggr.Process(in, "s"))
	require.Equal(t, "Content here.", aggr.Process(in, "s"))
}
