package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

var ticketCreatedTmpl = template.Must(template.New("ticket_created").Parse(`<p>Hello {{.Name}},</p>
<p>We received your support request and opened ticket <strong>#{{.Token}}</strong>.</p>
<table>
  <tr><td>Subject</td><td>{{.Subject}}</td></tr>
  <tr><td>Status</td><td>{{.Status}}</td></tr>
  {{- if .Priority}}
  <tr><td>Priority</td><td>{{.Priority}}</td></tr>
  {{- end}}
</table>
<p>{{.Description}}</p>
<p>Please keep the ticket number for any follow-up.</p>
`))

var resetCodeTmpl = template.Must(template.New("reset_code").Parse(`<p>Hello {{.Name}},</p>
<p>Your password reset code is <strong>{{.Code}}</strong>.</p>
<p>It expires in {{.Minutes}} minutes. If you did not ask for a reset, ignore this email.</p>
`))

// TicketCreatedSubject is the confirmation subject line for ticket token.
func TicketCreatedSubject(token string) string {
	return fmt.Sprintf("[Ticket #%s] Support Ticket Created", token)
}

// TicketCreatedEmail renders the confirmation sent to the requester.
func TicketCreatedEmail(ticket domain.Ticket, supportCC string) (Message, error) {
	var buf bytes.Buffer
	if err := ticketCreatedTmpl.Execute(&buf, ticket); err != nil {
		return Message{}, fmt.Errorf("render ticket confirmation: %w", err)
	}
	msg := Message{
		To:      []string{ticket.Email},
		Subject: TicketCreatedSubject(ticket.Token),
		HTML:    buf.String(),
	}
	if supportCC != "" {
		msg.Cc = []string{supportCC}
	}
	return msg, nil
}

// ResetCodeEmail renders the one-time code message.
func ResetCodeEmail(email, name, code string, ttl time.Duration) (Message, error) {
	if name == "" {
		name = "there"
	}
	var buf bytes.Buffer
	err := resetCodeTmpl.Execute(&buf, struct {
		Name    string
		Code    string
		Minutes int
	}{name, code, int(ttl.Round(time.Minute) / time.Minute)})
	if err != nil {
		return Message{}, fmt.Errorf("render reset code: %w", err)
	}
	return Message{
		To:      []string{email},
		Subject: "Password Reset Code",
		HTML:    buf.String(),
	}, nil
}
