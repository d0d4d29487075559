package domain

import "time"

// Attachment is a file carried by a message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Data        []byte `json:"data,omitempty"`
}

// MessageHeader is the lightweight view of a message returned by a header
// search. It carries no body.
type MessageHeader struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	Recipients []string  `json:"recipients"`
}

// Message is a fully fetched mail message. Body is rewritten by the
// normalization pipeline before the message is persisted.
type Message struct {
	ID          string       `json:"id"`
	Date        time.Time    `json:"date"`
	Subject     string       `json:"subject"`
	Sender      string       `json:"sender"`
	Recipients  []string     `json:"recipients"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments"`
}

// MessageBody is the content returned by a full fetch.
type MessageBody struct {
	Text        string
	Attachments []Attachment
}

// NewMessage joins a header with its fetched body.
func NewMessage(h MessageHeader, b MessageBody) Message {
	return Message{
		ID:          h.ID,
		Date:        h.Date,
		Subject:     h.Subject,
		Sender:      h.Sender,
		Recipients:  h.Recipients,
		Body:        b.Text,
		Attachments: b.Attachments,
	}
}

// Identifier returns the stable key used for artifacts and graph provenance.
func (m Message) Identifier() string {
	return m.ID
}

// Window bounds a mail search: messages dated in [After, Before).
type Window struct {
	After  time.Time
	Before time.Time
}

// LastDays returns the window covering the days before now.
func LastDays(now time.Time, days int) Window {
	return Window{
		After:  now.AddDate(0, 0, -days),
		Before: now,
	}
}
