// Package alerts notifies the operator when a run needs human attention.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Notifier delivers a short operator alert.
type Notifier interface {
	Notify(ctx context.Context, subject string, body string) error
}

// Opts holds configuration options for the Twilio SMS notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	ToNumber   string
}

// Option defines a configuration option for the Twilio SMS notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithToNumber sets the operator phone number that receives alerts.
func WithToNumber(to string) Option {
	return func(o *Opts) { o.ToNumber = to }
}

// Client sends operator alerts as SMS via the Twilio REST API.
type Client struct {
	client *twilio.RestClient
	from   string
	to     string
}

// NewClient builds a Twilio-backed notifier, falling back to the standard
// TWILIO_* environment variables for anything not set via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.ToNumber == "" {
		cfg.ToNumber = os.Getenv("ALERT_PHONE_NUMBER")
	}
	slog.Debug("Twilio alert config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "",
		"ToNumber_set", cfg.ToNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" || cfg.ToNumber == "" {
		return nil, fmt.Errorf("from and to numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client: client,
		from:   cfg.FromNumber,
		to:     cfg.ToNumber,
	}, nil
}

// Notify sends the alert as a single SMS to the operator.
func (c *Client) Notify(ctx context.Context, subject string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(c.to)
	params.SetFrom(c.from)
	params.SetBody(fmt.Sprintf("[YearReel] %s: %s", subject, body))

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio alert failed", "subject", subject, "error", err)
		return fmt.Errorf("failed to send alert %q: %w", subject, err)
	}

	slog.Debug("Twilio alert sent", "subject", subject)
	return nil
}

// NopNotifier discards alerts, used when no alert channel is configured.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(ctx context.Context, subject string, body string) error {
	slog.Debug("alert suppressed, no notifier configured", "subject", subject)
	return nil
}

// MockNotifier records alerts for assertions in tests.
type MockNotifier struct {
	Alerts []Alert
}

// Alert is one recorded notification.
type Alert struct {
	Subject string
	Body    string
}

// NewMockNotifier creates an empty mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Alerts: []Alert{}}
}

// Notify implements Notifier.
func (m *MockNotifier) Notify(ctx context.Context, subject string, body string) error {
	m.Alerts = append(m.Alerts, Alert{Subject: subject, Body: body})
	return nil
}
