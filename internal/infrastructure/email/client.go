// Package email sends operator alerts through Resend.
package email

import (
	"errors"
	"fmt"

	"github.com/resendlabs/resend-go"
)

// Service defines the interface for sending emails, allowing for mock implementations in tests.
type Service interface {
	SendAlert(alert Alert) error
}

// Config holds the Resend credentials and the alert addresses.
type Config struct {
	APIKey   string
	From     string
	FromName string
	To       []string
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	client    *resend.Client
	fromEmail string
	fromName  string
	to        []string
}

// NewService creates a new email service client, returning the Service interface.
func NewService(cfg Config) (Service, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("RESEND_API_KEY is required for email alerts")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("at least one alert recipient is required")
	}
	if cfg.From == "" {
		cfg.From = "noreply@ddap.local"
	}
	if cfg.FromName == "" {
		cfg.FromName = "DDAP Admin"
	}

	return &ResendClient{
		client:    resend.NewClient(cfg.APIKey),
		fromEmail: cfg.From,
		fromName:  cfg.FromName,
		to:        cfg.To,
	}, nil
}

// SendAlert composes and sends an alert to every configured recipient.
func (c *ResendClient) SendAlert(alert Alert) error {
	subject, html, err := RenderAlert(alert)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      c.to,
		Subject: subject,
		Html:    html,
	}

	if _, err := c.client.Emails.Send(params); err != nil {
		return fmt.Errorf("failed to send alert email via Resend: %w", err)
	}
	return nil
}
