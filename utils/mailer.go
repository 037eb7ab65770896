package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Mailer is the outbound email channel. Delivery is best-effort everywhere it
// is used; implementations must not be relied on for correctness.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

type MailMessage struct {
	To          []string
	Subject     string
	HTML        string
	Attachments []MailAttachment
}

type MailAttachment struct {
	Filename string
	Content  []byte
}

// ResendMailer sends through the Resend HTTP API. Configured via
// RESEND_API_KEY, MAIL_FROM_EMAIL, MAIL_FROM_NAME.
type ResendMailer struct {
	APIKey    string
	FromEmail string
	FromName  string
	Client    *http.Client
}

func NewResendMailerFromEnv() *ResendMailer {
	return &ResendMailer{
		APIKey:    strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		FromEmail: envOr("MAIL_FROM_EMAIL", "noreply@nuzum.local"),
		FromName:  envOr("MAIL_FROM_NAME", "نظام نُظم"),
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (m *ResendMailer) Send(ctx context.Context, msg MailMessage) error {
	if m == nil || m.APIKey == "" {
		return errors.New("resend api key is not configured")
	}
	if len(msg.To) == 0 {
		return errors.New("mail message has no recipients")
	}

	payload := map[string]interface{}{
		"from":    fmt.Sprintf("%s <%s>", m.FromName, m.FromEmail),
		"to":      msg.To,
		"subject": msg.Subject,
		"html":    msg.HTML,
	}
	if len(msg.Attachments) > 0 {
		var attachments []map[string]string
		for _, a := range msg.Attachments {
			attachments = append(attachments, map[string]string{
				"filename": a.Filename,
				"content":  base64.StdEncoding.EncodeToString(a.Content),
			})
		}
		payload["attachments"] = attachments
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.resend.com/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("resend api returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopMailer is used when email is not configured.
type NoopMailer struct{}

func (NoopMailer) Send(ctx context.Context, msg MailMessage) error { return nil }
