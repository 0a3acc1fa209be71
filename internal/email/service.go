package email

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// TemplateElement is used by a renderer to identify the different parts of an email template.
type TemplateElement string

const (
	ElementSubject TemplateElement = "subject"
	ElementBody    TemplateElement = "body"
)

// Renderer is responsible for rendering email templates.
type Renderer interface {
	Render(w io.Writer, name string, element TemplateElement, data any) error
}

// Sender is responsible for actually sending an email.
type Sender interface {
	Send(ctx context.Context, sender, recipient Address, subject, body string) error
}

// Service renders templated emails and hands them to a Sender.
type Service struct {
	from     Address
	renderer Renderer
	sender   Sender
}

func NewService(from Address, renderer Renderer, sender Sender) *Service {
	return &Service{
		from:     from,
		renderer: renderer,
		sender:   sender,
	}
}

// Send renders the subject and body of the named template with data and
// sends the result to recipient. Failures are returned, not retried.
func (s *Service) Send(ctx context.Context, name string, recipient Address, data any) error {
	var subject strings.Builder
	err := s.renderer.Render(&subject, name, ElementSubject, data)
	if err != nil {
		return fmt.Errorf("failed to render subject of %s: %w", name, err)
	}

	var body strings.Builder
	err = s.renderer.Render(&body, name, ElementBody, data)
	if err != nil {
		return fmt.Errorf("failed to render body of %s: %w", name, err)
	}

	// Subjects must be a single line.
	subj := strings.Join(strings.Fields(subject.String()), " ")

	return s.sender.Send(ctx, s.from, recipient, subj, strings.TrimSpace(body.String()))
}
