// Package alert fans a detected PolicyChange out to every matching
// RouteSubscription. EmailSender is the sole external interface,
// grounded on core/pkg/audit.Logger's shape: a small interface plus
// one production implementation and one test-friendly in-memory
// implementation.
package alert

import (
	"context"
	"fmt"
	"net/smtp"
)

// EmailSender is implemented by whatever delivers the alert text to a
// subscriber. SMTPSender and InMemorySender below are the two
// implementations in this package.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends plain-text mail through a configured SMTP relay.
type SMTPSender struct {
	Addr string
	From string
	Auth smtp.Auth
}

func NewSMTPSender(addr, from string, auth smtp.Auth) *SMTPSender {
	return &SMTPSender{Addr: addr, From: from, Auth: auth}
}

func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", s.From, to, subject, body)
	return smtp.SendMail(s.Addr, s.Auth, s.From, []string{to}, []byte(msg))
}

// InMemorySender records every send instead of delivering it,
// for tests and for local runs without an SMTP relay.
type InMemorySender struct {
	Sent []SentMail
	Fail map[string]error
}

type SentMail struct {
	To      string
	Subject string
	Body    string
}

func NewInMemorySender() *InMemorySender {
	return &InMemorySender{Fail: map[string]error{}}
}

func (s *InMemorySender) Send(_ context.Context, to, subject, body string) error {
	if err, ok := s.Fail[to]; ok {
		return err
	}
	s.Sent = append(s.Sent, SentMail{To: to, Subject: subject, Body: body})
	return nil
}
