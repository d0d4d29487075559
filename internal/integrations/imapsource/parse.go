package imapsource

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strconv"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"mailgraph/internal/domain"
)

func headerOf(m *imap.Message) domain.MessageHeader {
	h := domain.MessageHeader{
		ID:         strconv.FormatUint(uint64(m.Uid), 10),
		Date:       m.InternalDate,
		Recipients: []string{},
	}
	env := m.Envelope
	if env == nil {
		return h
	}
	if !env.Date.IsZero() {
		h.Date = env.Date
	}
	h.Subject = env.Subject
	if len(env.From) > 0 {
		h.Sender = formatAddress(env.From[0])
	}
	for _, a := range env.To {
		if s := formatAddress(a); s != "" {
			h.Recipients = append(h.Recipients, s)
		}
	}
	return h
}

func formatAddress(a *imap.Address) string {
	if a == nil {
		return ""
	}
	addr := a.Address()
	if a.PersonalName == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", a.PersonalName, addr)
}

func parseMessage(m *imap.Message, section *imap.BodySectionName) (domain.Message, error) {
	r := m.GetBody(section)
	if r == nil {
		return domain.Message{}, errors.New("server returned no body")
	}
	body, err := parseBody(r)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.NewMessage(headerOf(m), body), nil
}

// parseBody walks a MIME message. The first text/html part wins over the
// first text/plain part; parts with a filename and an attachment
// disposition are collected as attachments.
func parseBody(r io.Reader) (domain.MessageBody, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return domain.MessageBody{}, fmt.Errorf("read message: %w", err)
	}

	var (
		html, plain string
		seenHTML    bool
		seenPlain   bool
		out         = domain.MessageBody{Attachments: []domain.Attachment{}}
	)
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return domain.MessageBody{}, fmt.Errorf("read part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			if ct != "text/html" && ct != "text/plain" {
				continue
			}
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return domain.MessageBody{}, fmt.Errorf("read %s part: %w", ct, err)
			}
			if ct == "text/html" && !seenHTML {
				html, seenHTML = string(b), true
			}
			if ct == "text/plain" && !seenPlain {
				plain, seenPlain = string(b), true
			}
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			if name == "" {
				continue
			}
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return domain.MessageBody{}, fmt.Errorf("read attachment %q: %w", name, err)
			}
			ct, _, _ := h.ContentType()
			if ct == "" {
				ct = mime.TypeByExtension(path.Ext(name))
			}
			out.Attachments = append(out.Attachments, domain.Attachment{
				Filename:    name,
				ContentType: ct,
				Size:        len(b),
				Data:        b,
			})
		}
	}

	if seenHTML {
		out.Text = html
	} else {
		out.Text = plain
	}
	return out, nil
}
