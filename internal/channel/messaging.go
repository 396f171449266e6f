package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultMessagingBaseURL = "https://api.twilio.com"

// MessagingClient talks to a Twilio-compatible REST API for SMS and
// voice delivery.
type MessagingClient struct {
	accountSID string
	authToken  string
	from       string
	voiceURL   string
	baseURL    string
	client     *http.Client
}

// NewMessagingClient creates a messaging client. voiceURL is the
// endpoint returning call instructions played to the callee when a
// voice alert is placed.
func NewMessagingClient(accountSID, authToken, from, voiceURL string) *MessagingClient {
	return &MessagingClient{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		voiceURL:   voiceURL,
		baseURL:    defaultMessagingBaseURL,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// SendSMS sends a text message to the given phone number.
func (m *MessagingClient) SendSMS(ctx context.Context, to, body string) error {
	form := url.Values{
		"To":   {to},
		"From": {m.from},
		"Body": {body},
	}
	return m.post(ctx, "Messages.json", form)
}

// PlaceCall places a voice call to the given phone number. The call
// plays the instructions served at the configured voice URL.
func (m *MessagingClient) PlaceCall(ctx context.Context, to string) error {
	if m.voiceURL == "" {
		return fmt.Errorf("%w: no voice url configured", ErrUnreachable)
	}
	form := url.Values{
		"To":   {to},
		"From": {m.from},
		"Url":  {m.voiceURL},
	}
	return m.post(ctx, "Calls.json", form)
}

func (m *MessagingClient) post(ctx context.Context, resource string, form url.Values) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s", m.baseURL, m.accountSID, resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.SetBasicAuth(m.accountSID, m.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrInvalidAddress, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUnreachable, resp.StatusCode, detail)
	}
}

// SMSSender adapts the messaging client to the Sender interface.
type SMSSender struct {
	client *MessagingClient
}

// NewSMSSender creates an SMS sender.
func NewSMSSender(client *MessagingClient) *SMSSender {
	return &SMSSender{client: client}
}

// Send delivers the message as a text to the phone number in address.
func (s *SMSSender) Send(ctx context.Context, address, message string) error {
	if address == "" {
		return fmt.Errorf("%w: empty phone number", ErrInvalidAddress)
	}
	return s.client.SendSMS(ctx, address, message)
}

// VoiceSender adapts the messaging client to the Sender interface for
// voice calls. The message text is not spoken directly; the call plays
// the configured instructions.
type VoiceSender struct {
	client *MessagingClient
}

// NewVoiceSender creates a voice sender.
func NewVoiceSender(client *MessagingClient) *VoiceSender {
	return &VoiceSender{client: client}
}

// Send places a call to the phone number in address.
func (v *VoiceSender) Send(ctx context.Context, address, _ string) error {
	if address == "" {
		return fmt.Errorf("%w: empty phone number", ErrInvalidAddress)
	}
	return v.client.PlaceCall(ctx, address)
}
