package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/furisto/scout/shared/resilience"
)

const (
	defaultChannel  = "#security-alerts"
	evidenceLimit   = 500
	webhookUsername = "Security Scanner Bot"
	webhookIcon     = ":shield:"

	noWebhookError = "No Slack webhook configured. Set SLACK_WEBHOOK_URL in .env file"
)

var severityColors = map[string]string{
	"Critical": "#FF0000",
	"High":     "#FF6600",
	"Medium":   "#FFB84D",
	"Low":      "#FFCC00",
	"Info":     "#0099FF",
}

var severityEmojis = map[string]string{
	"Critical": "🚨",
	"High":     "⚠️",
	"Medium":   "⚡",
	"Low":      "📝",
	"Info":     "ℹ️",
}

type NotifierOptions struct {
	Channel     string
	HTTPClient  *http.Client
	RetryConfig *resilience.RetryConfig
	Logger      *slog.Logger
	Now         func() time.Time
}

func DefaultNotifierOptions() *NotifierOptions {
	return &NotifierOptions{
		Channel:    defaultChannel,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		RetryConfig: &resilience.RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      time.Second,
			MaxDelay:          10 * time.Second,
			BackoffMultiplier: 2,
		},
		Logger: slog.Default(),
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

type NotifierOption func(*NotifierOptions)

func WithChannel(channel string) NotifierOption {
	return func(o *NotifierOptions) {
		o.Channel = channel
	}
}

func WithHTTPClient(client *http.Client) NotifierOption {
	return func(o *NotifierOptions) {
		o.HTTPClient = client
	}
}

func WithRetryConfig(config *resilience.RetryConfig) NotifierOption {
	return func(o *NotifierOptions) {
		o.RetryConfig = config
	}
}

func WithClock(now func() time.Time) NotifierOption {
	return func(o *NotifierOptions) {
		o.Now = now
	}
}

func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(o *NotifierOptions) {
		o.Logger = logger
	}
}

// Notifier posts findings and scan summaries to a Slack incoming webhook. An
// empty webhook URL is valid; every send then reports the missing
// configuration instead of erroring.
type Notifier struct {
	webhookURL string
	options    *NotifierOptions
}

func NewNotifier(webhookURL string, opts ...NotifierOption) *Notifier {
	options := DefaultNotifierOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Notifier{
		webhookURL: webhookURL,
		options:    options,
	}
}

// NewNotifierFromEnv reads SLACK_WEBHOOK_URL and SLACK_CHANNEL.
func NewNotifierFromEnv(opts ...NotifierOption) *Notifier {
	if channel := os.Getenv("SLACK_CHANNEL"); channel != "" {
		opts = append([]NotifierOption{WithChannel(channel)}, opts...)
	}
	return NewNotifier(os.Getenv("SLACK_WEBHOOK_URL"), opts...)
}

type Alert struct {
	VulnerabilityType string
	Severity          string
	TargetURL         string
	Description       string
	Evidence          string
	Recommendation    string
	ThreadTS          string
}

type ScanSummary struct {
	TargetURL     string
	TotalFindings int
	CriticalCount int
	HighCount     int
	MediumCount   int
	LowCount      int
	ScanDuration  string
}

// SendAlert posts a single vulnerability finding. The returned string is a
// JSON status payload meant for the model, mirroring SendSummary.
func (n *Notifier) SendAlert(ctx context.Context, alert Alert) string {
	color, ok := severityColors[alert.Severity]
	if !ok {
		color = "#808080"
	}
	emoji, ok := severityEmojis[alert.Severity]
	if !ok {
		emoji = "📌"
	}

	blocks := []map[string]any{
		headerBlock(fmt.Sprintf("%s %s Vulnerability Detected", emoji, alert.VulnerabilityType)),
		{
			"type": "section",
			"fields": []map[string]any{
				mrkdwn(fmt.Sprintf("*Severity:*\n%s", alert.Severity)),
				mrkdwn(fmt.Sprintf("*Target:*\n<%s|%s>", alert.TargetURL, alert.TargetURL)),
			},
		},
		sectionBlock(fmt.Sprintf("*Description:*\n%s", alert.Description)),
	}

	if alert.Evidence != "" {
		evidence := alert.Evidence
		if len(evidence) > evidenceLimit {
			evidence = evidence[:evidenceLimit]
		}
		blocks = append(blocks, sectionBlock(fmt.Sprintf("*Evidence/PoC:*\n```%s```", evidence)))
	}
	if alert.Recommendation != "" {
		blocks = append(blocks, sectionBlock(fmt.Sprintf("*Recommendation:*\n%s", alert.Recommendation)))
	}
	blocks = append(blocks, contextBlock(fmt.Sprintf("Detected at: %s", n.timestamp())))

	fallback := fmt.Sprintf("%s %s %s vulnerability found at %s",
		emoji, alert.Severity, alert.VulnerabilityType, alert.TargetURL)

	payload := n.payload(fallback, color, blocks)
	if alert.ThreadTS != "" {
		payload["thread_ts"] = alert.ThreadTS
	}

	return n.post(ctx, payload, "Alert sent to Slack successfully")
}

// SendSummary posts an end-of-scan rollup.
func (n *Notifier) SendSummary(ctx context.Context, summary ScanSummary) string {
	var statusEmoji, statusText, color string
	switch {
	case summary.CriticalCount > 0:
		statusEmoji, statusText, color = "🔴", "Critical Issues Found", "#FF0000"
	case summary.HighCount > 0:
		statusEmoji, statusText, color = "🟠", "High Risk Issues Found", "#FF6600"
	case summary.MediumCount > 0:
		statusEmoji, statusText, color = "🟡", "Medium Risk Issues Found", "#FFB84D"
	case summary.LowCount > 0:
		statusEmoji, statusText, color = "🟢", "Low Risk Issues Found", "#00FF00"
	default:
		statusEmoji, statusText, color = "✅", "No Issues Found", "#00FF00"
	}

	blocks := []map[string]any{
		headerBlock(fmt.Sprintf("%s Security Scan Summary", statusEmoji)),
		sectionBlock(fmt.Sprintf("*Target:* <%s|%s>\n*Status:* %s\n*Total Findings:* %d",
			summary.TargetURL, summary.TargetURL, statusText, summary.TotalFindings)),
	}

	if summary.TotalFindings > 0 {
		var breakdown []string
		if summary.CriticalCount > 0 {
			breakdown = append(breakdown, fmt.Sprintf("🚨 Critical: %d", summary.CriticalCount))
		}
		if summary.HighCount > 0 {
			breakdown = append(breakdown, fmt.Sprintf("⚠️ High: %d", summary.HighCount))
		}
		if summary.MediumCount > 0 {
			breakdown = append(breakdown, fmt.Sprintf("⚡ Medium: %d", summary.MediumCount))
		}
		if summary.LowCount > 0 {
			breakdown = append(breakdown, fmt.Sprintf("📝 Low: %d", summary.LowCount))
		}
		blocks = append(blocks, sectionBlock("*Findings Breakdown:*\n"+strings.Join(breakdown, "\n")))
	}

	if summary.ScanDuration != "" {
		blocks = append(blocks, contextBlock(fmt.Sprintf("Scan Duration: %s | Completed: %s",
			summary.ScanDuration, n.timestamp())))
	}

	fallback := fmt.Sprintf("%s Security scan completed for %s: %d findings",
		statusEmoji, summary.TargetURL, summary.TotalFindings)

	return n.post(ctx, n.payload(fallback, color, blocks), "Summary sent to Slack successfully")
}

func (n *Notifier) payload(fallback, color string, blocks []map[string]any) map[string]any {
	return map[string]any{
		"channel":    n.options.Channel,
		"username":   webhookUsername,
		"icon_emoji": webhookIcon,
		"text":       fallback,
		"blocks":     blocks,
		"attachments": []map[string]any{
			{"color": color, "fallback": fallback},
		},
	}
}

func (n *Notifier) post(ctx context.Context, payload map[string]any, successMessage string) string {
	if n.webhookURL == "" {
		return statusJSON(map[string]any{"success": false, "error": noWebhookError})
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return statusJSON(map[string]any{"success": false, "error": err.Error()})
	}

	_, err = resilience.Do(ctx, n.options.RetryConfig, resilience.DoOptions{
		Retryable: retryableDelivery,
	}, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(encoded))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.options.HTTPClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return struct{}{}, &webhookError{
				status: resp.StatusCode,
				body:   strings.TrimSpace(string(body)),
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		n.options.Logger.Error("slack delivery failed", "error", err)
		return statusJSON(map[string]any{"success": false, "error": err.Error()})
	}

	return statusJSON(map[string]any{"success": true, "message": successMessage})
}

type webhookError struct {
	status int
	body   string
}

func (e *webhookError) Error() string {
	return fmt.Sprintf("Failed to send to Slack: %s", e.body)
}

// retryableDelivery retries transport failures, throttling, and server
// errors. A 4xx answer means the payload or webhook itself is bad; repeating
// it cannot succeed.
func retryableDelivery(err error) (bool, time.Duration) {
	var webhookErr *webhookError
	if errors.As(err, &webhookErr) {
		retry := webhookErr.status == http.StatusTooManyRequests || webhookErr.status >= 500
		return retry, 0
	}
	return true, 0
}

func (n *Notifier) timestamp() string {
	return n.options.Now().Format("2006-01-02 15:04:05 UTC")
}

func statusJSON(payload map[string]any) string {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return `{"success":false,"error":"failed to encode status"}`
	}
	return string(encoded)
}

func headerBlock(text string) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{"type": "plain_text", "text": text, "emoji": true},
	}
}

func sectionBlock(text string) map[string]any {
	return map[string]any{
		"type": "section",
		"text": mrkdwn(text),
	}
}

func contextBlock(text string) map[string]any {
	return map[string]any{
		"type":     "context",
		"elements": []map[string]any{mrkdwn(text)},
	}
}

func mrkdwn(text string) map[string]any {
	return map[string]any{"type": "mrkdwn", "text": text}
}
