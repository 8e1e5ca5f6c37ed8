package mail

import (
	"context"
	"time"
)

// Message is a rendered notification with plain-text and HTML bodies.
type Message struct {
	From     string
	To       []string
	Cc       []string
	Subject  string
	Date     time.Time
	TextBody string
	HTMLBody string
}

// Recipients returns every envelope recipient, To first then Cc.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc))
	out = append(out, m.To...)
	return append(out, m.Cc...)
}

// Mailer delivers a rendered message through some transport.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}
