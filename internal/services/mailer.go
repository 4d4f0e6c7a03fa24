package services

import (
	"context"
	"fmt"

	"proxyhub-api/internal/config"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// Mailer sends transactional mail. Settlement uses it for payment
// receipts; nil disables mail entirely.
type Mailer interface {
	SendPaymentReceipt(ctx context.Context, toEmail, username string, amount float64, currency string) error
}

// BrevoMailer sends transactional email through the Brevo API
type BrevoMailer struct {
	client    *brevo.APIClient
	fromEmail string
	fromName  string
}

// NewBrevoMailer creates a Brevo mailer from app config. Returns nil when
// no API key is configured so callers can treat mail as optional.
func NewBrevoMailer() *BrevoMailer {
	if config.AppConfig.BrevoAPIKey == "" {
		return nil
	}

	cfg := brevo.NewConfiguration()
	cfg.AddDefaultHeader("api-key", config.AppConfig.BrevoAPIKey)

	return &BrevoMailer{
		client:    brevo.NewAPIClient(cfg),
		fromEmail: config.AppConfig.BrevoFromEmail,
		fromName:  config.AppConfig.BrevoFromName,
	}
}

// SendPaymentReceipt emails a balance-credit confirmation
func (m *BrevoMailer) SendPaymentReceipt(ctx context.Context, toEmail, username string, amount float64, currency string) error {
	if currency == "" {
		currency = "USD"
	}

	subject := fmt.Sprintf("Payment received - %.2f %s", amount, currency)
	htmlContent := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>Your payment of <b>%.2f %s</b> was confirmed and your balance has been credited.</p>
		<p>Thanks for topping up.</p>
	`, username, amount, currency)

	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  m.fromName,
			Email: m.fromEmail,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: toEmail, Name: username},
		},
		Subject:     subject,
		HtmlContent: htmlContent,
	}

	_, _, err := m.client.TransactionalEmailsApi.SendTransacEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send receipt email: %w", err)
	}
	return nil
}
