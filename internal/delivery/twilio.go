package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// Twilio sends WhatsApp messages through the Twilio REST API.
type Twilio struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
}

func NewTwilio(accountSID, authToken, from string, logger *slog.Logger) *Twilio {
	return &Twilio{
		accountSID: accountSID,
		authToken:  authToken,
		from:       whatsappAddress(from),
		baseURL:    twilioBaseURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// SetTestTransport points the sink at a test server.
func (t *Twilio) SetTestTransport(baseURL string) {
	t.baseURL = strings.TrimRight(baseURL, "/")
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send posts one Twilio message per text body, then one per media URL.
// It stops at the first failure.
func (t *Twilio) Send(ctx context.Context, out Outbound) Result {
	to := whatsappAddress(out.To)
	sent := 0
	for _, body := range RenderText(out) {
		if err := t.post(ctx, to, body, ""); err != nil {
			return Failed("message %d of %s: %v", sent+1, out.To, err)
		}
		sent++
	}
	for _, media := range out.MediaURLs {
		if err := t.post(ctx, to, "", media); err != nil {
			return Failed("media %s to %s: %v", media, out.To, err)
		}
		sent++
	}
	t.logger.Debug("whatsapp delivered", "to", out.To, "messages", sent)
	return Delivered()
}

func (t *Twilio) post(ctx context.Context, to, body, mediaURL string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.from)
	if body != "" {
		form.Set("Body", body)
	}
	if mediaURL != "" {
		form.Set("MediaUrl", mediaURL)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.baseURL, url.PathEscape(t.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var te twilioError
		if json.Unmarshal(raw, &te) == nil && te.Message != "" {
			return fmt.Errorf("twilio status %d: code %d: %s", resp.StatusCode, te.Code, te.Message)
		}
		return fmt.Errorf("twilio status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

func whatsappAddress(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}
