package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/models"
)

// SMSClient sends SMS through a Twilio-compatible Messages API.
type SMSClient struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewSMSClient creates an SMS client. baseURL defaults to the Twilio API
// host when empty.
func NewSMSClient(accountSID, authToken, fromNumber, baseURL string) *SMSClient {
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &SMSClient{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logrus.WithField("component", "sms-client"),
	}
}

// Configured reports whether the client has usable credentials.
func (c *SMSClient) Configured() bool {
	return c.accountSID != "" && c.authToken != "" && c.fromNumber != ""
}

// Send delivers body to an E.164 phone number.
func (c *SMSClient) Send(ctx context.Context, to, body string) error {
	if !c.Configured() {
		return fmt.Errorf("%w: SMS credentials missing", models.ErrConfiguration)
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	c.logger.WithField("to", to).Info("SMS sent")
	return nil
}
