package email

import (
	"context"
	"sync"
)

// Message is an email as it was handed to a Sender.
type Message struct {
	From      Address
	Recipient Address
	Subject   string
	Body      string
}

// MemorySender keeps sent emails in memory. It is safe for concurrent use.
type MemorySender struct {
	mu     sync.Mutex
	emails []Message
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Send(_ context.Context, from, recipient Address, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emails = append(s.emails, Message{
		From:      from,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	return nil
}

// Emails returns a copy of all emails sent so far.
func (s *MemorySender) Emails() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.emails))
	copy(out, s.emails)
	return out
}

// Last returns the most recently sent email.
func (s *MemorySender) Last() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.emails) == 0 {
		return Message{}, false
	}
	return s.emails[len(s.emails)-1], true
}
