package imapsource

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/require"
)

func TestParseBody_PlainOnly(t *testing.T) {
	raw := "Content-Type: multipart/alternative; boundary=b\r\n\r\n" +
		"--b\r\nContent-Type: text/plain\r\n\r\nfirst\r\n" +
		"--b\r\nContent-Type: text/plain\r\n\r\nsecond\r\n" +
		"--b\r\nContent-Type: image/png\r\n\r\nxx\r\n" +
		"--b--\r\n"

	got, err := parseBody(strings.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "first", strings.TrimSpace(got.Text))
	require.Empty(t, got.Attachments)
}

func TestParseBody_SkipsUnnamedAttachments(t *testing.T) {
	raw := "Content-Type: multipart/mixed; boundary=b\r\n\r\n" +
		"--b\r\nContent-Type: text/html\r\n\r\n<b>hi</b>\r\n" +
		"--b\r\nContent-Type: text/csv\r\nContent-Disposition: attachment\r\n\r\na,b\r\n" +
		"--b\r\nContent-Type: text/csv\r\nContent-Disposition: attachment; filename=data.csv\r\n\r\na,b\r\n" +
		"--b--\r\n"

	got, err := parseBody(strings.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "<b>hi</b>", strings.TrimSpace(got.Text))
	require.Len(t, got.Attachments, 1)
	require.Equal(t, "data.csv", got.Attachments[0].Filename)
	require.Equal(t, "text/csv", got.Attachments[0].ContentType)
}

func TestParseBody_QuotedPrintable(t *testing.T) {
	raw := "Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n\r\n" +
		"Gr=C3=BC=C3=9Fe\r\n"

	got, err := parseBody(strings.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "Grüße", strings.TrimSpace(got.Text))
}

func TestHeaderOf_FallsBackToInternalDate(t *testing.T) {
	internal := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	h := headerOf(&imap.Message{Uid: 12, InternalDate: internal, Envelope: &imap.Envelope{
		From: []*imap.Address{{MailboxName: "solo", HostName: "example.com"}},
	}})

	require.Equal(t, "12", h.ID)
	require.Equal(t, internal, h.Date)
	require.Equal(t, "solo@example.com", h.Sender)
	require.Empty(t, h.Recipients)

	bare := headerOf(&imap.Message{Uid: 1})
	require.Equal(t, "1", bare.ID)
	require.Empty(t, bare.Sender)
}
