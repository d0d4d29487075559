package textproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkupStripper(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "document",
			in: `<html><head><title>T</title><style>.x{color:red}</style></head>` +
				`<body><p>Hello <b>world</b></p><div>Second</div>` +
				`<ul><li>One</li><li>Two</li></ul><script>track()</script></body></html>`,
			want: "Hello world\nSecond\nOne\nTwo",
		},
		{
			name: "line breaks",
			in:   "<p>first<br>second</p>",
			want: "first\nsecond",
		},
		{
			name: "entities",
			in:   "<p>Fish &amp; Chips</p>",
			want: "Fish & Chips",
		},
		{
			name: "inline spacing",
			in:   "<p><b>bold</b> <i>italic</i>\n   text</p>",
			want: "bold italic text",
		},
		{
			name: "table layout",
			in:   "<table><tr><td>left</td><td>right</td></tr></table><!-- hidden -->",
			want: "left\nright",
		},
		{
			name: "plain text unchanged",
			in:   "Hello,\n\n  plain   text here  ",
			want: "Hello,\n\n  plain   text here  ",
		},
		{
			name: "angle bracket address is not markup",
			in:   "From Alice <alice@example.com>\nbody",
			want: "From Alice <alice@example.com>\nbody",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, MarkupStripper{}.Process(tc.in, "src"))
		})
	}
}
