// Package telegram provides Telegram notification services.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fgeck/ilo-fanctl/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		baseURL: "https://api.telegram.org",
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// sendMessageRequest is the request body for Telegram sendMessage API.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewMessage builds an alert from a cycle result. ok is false when nothing
// in the cycle is worth alerting about.
func NewMessage(result models.CycleResult) (msg models.TelegramMessage, ok bool) {
	msg = models.TelegramMessage{
		StartTime:  result.StartTime,
		Duration:   result.Duration,
		TotalHosts: len(result.Outcomes),
	}

	for _, o := range result.Failed() {
		alert := models.HostAlert{Host: o.Host, Cause: string(o.Cause), MaxTemp: o.MaxTemp}
		if o.Error != nil {
			alert.Error = o.Error.Error()
		}
		msg.Failed = append(msg.Failed, alert)
	}
	for _, o := range result.Critical() {
		msg.Critical = append(msg.Critical, models.HostAlert{Host: o.Host, MaxTemp: o.MaxTemp})
	}

	return msg, len(msg.Failed) > 0 || len(msg.Critical) > 0
}

// SendNotification sends a cycle alert via Telegram.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Info().
		Str("chat_id", cfg.ChatID).
		Int("failed", len(msg.Failed)).
		Int("critical", len(msg.Critical)).
		Msg("sending Telegram notification")

	// Format message
	text := s.formatMessage(msg)

	// Build request
	reqBody := sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      text,
		ParseMode: "HTML",
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal request: %w", err)
		return result, nil
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result, nil
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// The request URL carries the bot token; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		result.Error = fmt.Errorf("failed to send request: %w", err)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("telegram API returned status %d", resp.StatusCode)
		return result, nil
	}

	result.MessageSent = true
	s.logger.Info().Msg("Telegram notification sent successfully")

	return result, nil
}

func (s *Impl) formatMessage(msg models.TelegramMessage) string {
	var b bytes.Buffer

	if len(msg.Failed) > 0 {
		b.WriteString(fmt.Sprintf("❌ <b>Fan control failed on %d of %d hosts</b>\n\n", len(msg.Failed), msg.TotalHosts))
	} else {
		b.WriteString("🔥 <b>Critical temperature reached</b>\n\n")
	}

	b.WriteString(fmt.Sprintf("⏰ <b>Started:</b> %s\n", msg.StartTime.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("⏱ <b>Duration:</b> %s\n", msg.Duration.Round(time.Millisecond)))

	if len(msg.Failed) > 0 {
		b.WriteString("\n<b>⚠️ Failed hosts:</b>\n")
		for _, h := range msg.Failed {
			b.WriteString(fmt.Sprintf("  • %s (%s)", escapeHTML(h.Host), escapeHTML(h.Cause)))
			if h.Error != "" {
				b.WriteString(fmt.Sprintf(": <code>%s</code>", escapeHTML(h.Error)))
			}
			b.WriteString("\n")
		}
	}

	if len(msg.Critical) > 0 {
		b.WriteString("\n<b>🌡 Critical temperatures:</b>\n")
		for _, h := range msg.Critical {
			b.WriteString(fmt.Sprintf("  • %s: hottest CPU %d°C\n", escapeHTML(h.Host), h.MaxTemp))
		}
	}

	return b.String()
}

// escapeHTML escapes HTML special characters.
func escapeHTML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
