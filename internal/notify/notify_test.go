package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
)

func sampleTicket() domain.Ticket {
	return domain.Ticket{
		Token:       "202508180143ABCD",
		Name:        "Jane <admin>",
		Email:       "jane@x.com",
		Subject:     "Login broken",
		Description: "Cannot log in",
		Status:      domain.TicketStatusOpen,
	}
}

func TestTicketCreatedEmail(t *testing.T) {
	msg, err := TicketCreatedEmail(sampleTicket(), "support@x.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"jane@x.com"}, msg.To)
	assert.Equal(t, []string{"support@x.com"}, msg.Cc)
	assert.Equal(t, "[Ticket #202508180143ABCD] Support Ticket Created", msg.Subject)
	assert.Contains(t, msg.HTML, "#202508180143ABCD")
	assert.Contains(t, msg.HTML, "Jane &lt;admin&gt;")
	assert.NotContains(t, msg.HTML, "Priority")
}

func TestTicketCreatedEmailWithoutCC(t *testing.T) {
	msg, err := TicketCreatedEmail(sampleTicket(), "")
	require.NoError(t, err)
	assert.Empty(t, msg.Cc)
}

func TestResetCodeEmail(t *testing.T) {
	msg, err := ResetCodeEmail("jane@x.com", "", "123456", 10*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "123456")
	assert.Contains(t, msg.HTML, "10 minutes")
	assert.Contains(t, msg.HTML, "Hello there")
}

func TestSMTPMailerCompose(t *testing.T) {
	mailer := NewSMTPMailer(config.SMTPConfig{Host: "localhost", Port: 2525}, "noreply@x.com")
	msg, err := TicketCreatedEmail(sampleTicket(), "support@x.com")
	require.NoError(t, err)

	gm, err := mailer.compose(msg)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = gm.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "From: noreply@x.com")
	assert.Contains(t, raw, "To: jane@x.com")
	assert.Contains(t, raw, "Cc: support@x.com")
	assert.Contains(t, raw, "Subject: [Ticket #202508180143ABCD] Support Ticket Created")
	assert.Contains(t, raw, "text/html")
}

func TestSMTPMailerRejectsNoRecipients(t *testing.T) {
	mailer := NewSMTPMailer(config.SMTPConfig{Host: "localhost"}, "noreply@x.com")
	assert.Error(t, mailer.Send(context.Background(), Message{Subject: "x"}))
}

func TestSMTPMailerHonoursCancelledContext(t *testing.T) {
	mailer := NewSMTPMailer(config.SMTPConfig{Host: "localhost", Port: 1}, "noreply@x.com")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := mailer.Send(ctx, Message{To: []string{"a@x.com"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogMailerOmitsBody(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	mailer := NewLogMailer(zap.New(core))
	require.NoError(t, mailer.Send(context.Background(), Message{To: []string{"a@x.com"}, Subject: "s", HTML: "secret 123456"}))
	require.Equal(t, 1, logs.Len())
	for _, f := range logs.All()[0].Context {
		assert.False(t, strings.Contains(f.String, "123456"))
	}
}

func TestWebhookPosterSendsJSON(t *testing.T) {
	var got map[string]any
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	poster := NewWebhookPoster(srv.URL, time.Second)
	require.NoError(t, poster.Post(context.Background(), map[string]string{"type": "ticket_created"}))
	assert.Equal(t, "ticket_created", got["type"])
	assert.Contains(t, contentType, "application/json")
}

func TestWebhookPosterNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookPoster(srv.URL, time.Second).Post(context.Background(), map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestWebhookPosterUnreachable(t *testing.T) {
	err := NewWebhookPoster("http://127.0.0.1:1", 200*time.Millisecond).Post(context.Background(), map[string]string{})
	assert.Error(t, err)
}
