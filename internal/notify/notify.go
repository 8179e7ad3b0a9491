// Package notify sends best-effort customer notifications when a job moves
// through the workflow.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dawncrm/internal/config"
	"dawncrm/internal/utils"
)

// DefaultTimeout bounds one outbound request.
const DefaultTimeout = 10 * time.Second

// ErrNoRecipient is returned by a sender when the message lacks the
// address it needs.
var ErrNoRecipient = errors.New("no recipient for channel")

// Message is one outbound notification.
type Message struct {
	Email   string
	Phone   string
	Name    string
	Subject string
	Text    string
	// Params are passed to templated channels as-is.
	Params map[string]string
}

// Sender delivers a message over one channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// SendError describes a non-2xx answer from a notification endpoint.
type SendError struct {
	Channel    string
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Channel, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Channel, e.StatusCode, e.Body)
}

// JobStatusEvent carries the fields a status notification needs.
type JobStatusEvent struct {
	BusinessName  string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Vehicle       string
	JobTitle      string
	Status        string
	Note          string
}

// Text renders the event as one plain-text line.
func (e JobStatusEvent) Text() string {
	var b strings.Builder
	if e.CustomerName != "" {
		fmt.Fprintf(&b, "Hi %s, ", e.CustomerName)
	}
	subject := e.JobTitle
	if e.Vehicle != "" {
		subject = strings.TrimSpace(fmt.Sprintf("%s (%s)", e.Vehicle, e.JobTitle))
	}
	fmt.Fprintf(&b, "your %s is now: %s.", subject, e.Status)
	if e.Note != "" {
		fmt.Fprintf(&b, " %s", e.Note)
	}
	if e.BusinessName != "" {
		fmt.Fprintf(&b, " - %s", e.BusinessName)
	}
	return b.String()
}

func (e JobStatusEvent) message() Message {
	return Message{
		Email:   e.CustomerEmail,
		Phone:   e.CustomerPhone,
		Name:    e.CustomerName,
		Subject: fmt.Sprintf("%s: %s", e.JobTitle, e.Status),
		Text:    e.Text(),
		Params: map[string]string{
			"to_name":       e.CustomerName,
			"to_email":      e.CustomerEmail,
			"business_name": e.BusinessName,
			"vehicle":       e.Vehicle,
			"job_title":     e.JobTitle,
			"status":        e.Status,
			"message":       e.Text(),
		},
	}
}

// Dispatcher fans a notification out to every configured channel.
type Dispatcher struct {
	senders []Sender
}

// NewDispatcher wraps the given senders.
func NewDispatcher(senders ...Sender) *Dispatcher {
	return &Dispatcher{senders: senders}
}

// FromConfig builds a dispatcher with a sender per configured channel.
// A nil client uses one with DefaultTimeout.
func FromConfig(cfg config.NotifyConfig, client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	var senders []Sender
	if cfg.Email.Endpoint != "" {
		senders = append(senders, NewEmailSender(cfg.Email, client))
	}
	if cfg.WhatsApp.WebhookURL != "" {
		senders = append(senders, NewWhatsAppSender(cfg.WhatsApp, client))
	}
	return NewDispatcher(senders...)
}

// Enabled reports whether any channel is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.senders) > 0
}

// Channels lists the configured channel names.
func (d *Dispatcher) Channels() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.senders))
	for _, s := range d.senders {
		out = append(out, s.Channel())
	}
	return out
}

// JobStatusChanged notifies the customer on every channel. Channels missing
// a recipient are skipped. Failures are joined and returned; one failing
// channel never stops the others.
func (d *Dispatcher) JobStatusChanged(ctx context.Context, ev JobStatusEvent) error {
	if !d.Enabled() {
		return nil
	}
	msg := ev.message()

	var errs []error
	for _, s := range d.senders {
		err := s.Send(ctx, msg)
		switch {
		case errors.Is(err, ErrNoRecipient):
			utils.Debugf("Skipping %s notification: %v", s.Channel(), err)
		case err != nil:
			utils.Warnf("Failed to send %s notification: %v", s.Channel(), err)
			errs = append(errs, err)
		default:
			utils.Debugf("Sent %s notification for %q", s.Channel(), ev.JobTitle)
		}
	}
	return errors.Join(errs...)
}
