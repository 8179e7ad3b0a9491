package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"dawncrm/internal/config"
)

// maxErrorBody caps how much of a failed response is kept in SendError.
const maxErrorBody = 512

// EmailSender posts to an EmailJS-style REST endpoint.
type EmailSender struct {
	cfg    config.EmailConfig
	client *http.Client
}

func NewEmailSender(cfg config.EmailConfig, client *http.Client) *EmailSender {
	return &EmailSender{cfg: cfg, client: client}
}

func (s *EmailSender) Channel() string { return "email" }

type emailRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if msg.Email == "" {
		return fmt.Errorf("%w %s", ErrNoRecipient, s.Channel())
	}
	params := make(map[string]string, len(msg.Params)+2)
	for k, v := range msg.Params {
		params[k] = v
	}
	params["to_email"] = msg.Email
	params["subject"] = msg.Subject

	return postJSON(ctx, s.client, s.Channel(), s.cfg.Endpoint, "", emailRequest{
		ServiceID:      s.cfg.ServiceID,
		TemplateID:     s.cfg.TemplateID,
		UserID:         s.cfg.PublicKey,
		TemplateParams: params,
	})
}

// WhatsAppSender posts a phone number and text to a messaging webhook.
type WhatsAppSender struct {
	cfg    config.WhatsAppConfig
	client *http.Client
}

func NewWhatsAppSender(cfg config.WhatsAppConfig, client *http.Client) *WhatsAppSender {
	return &WhatsAppSender{cfg: cfg, client: client}
}

func (s *WhatsAppSender) Channel() string { return "whatsapp" }

type whatsAppRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (s *WhatsAppSender) Send(ctx context.Context, msg Message) error {
	if msg.Phone == "" {
		return fmt.Errorf("%w %s", ErrNoRecipient, s.Channel())
	}
	return postJSON(ctx, s.client, s.Channel(), s.cfg.WebhookURL, s.cfg.Token, whatsAppRequest{
		Phone:   msg.Phone,
		Message: msg.Text,
	})
}

func postJSON(ctx context.Context, client *http.Client, channel, url, token string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", channel, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", channel, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &SendError{Channel: channel, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(text))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
