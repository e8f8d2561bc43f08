package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"github.com/furisto/scout/shared/resilience"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func captureWebhook(t *testing.T) (*httptest.Server, func() string) {
	t.Helper()

	var mu sync.Mutex
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read webhook body: %v", err)
		}
		mu.Lock()
		body = string(payload)
		mu.Unlock()
	}))
	t.Cleanup(server.Close)

	return server, func() string {
		mu.Lock()
		defer mu.Unlock()
		return body
	}
}

func TestSendAlert(t *testing.T) {
	t.Parallel()

	server, lastBody := captureWebhook(t)
	notifier := NewNotifier(server.URL, WithClock(fixedClock))

	status := notifier.SendAlert(context.Background(), Alert{
		VulnerabilityType: "SQL Injection",
		Severity:          "Critical",
		TargetURL:         "https://example.com/login",
		Description:       "Login form is injectable",
		Evidence:          strings.Repeat("x", 600),
		Recommendation:    "Use parameterized queries",
	})

	want := `{"message":"Alert sent to Slack successfully","success":true}`
	var gotStatus, wantStatus map[string]any
	if err := json.Unmarshal([]byte(status), &gotStatus); err != nil {
		t.Fatalf("status is not valid JSON: %v", err)
	}
	_ = json.Unmarshal([]byte(want), &wantStatus)
	if diff := cmp.Diff(wantStatus, gotStatus); diff != "" {
		t.Errorf("unexpected status (-want +got):\n%s", diff)
	}

	payload := lastBody()
	if got := gjson.Get(payload, "channel").String(); got != "#security-alerts" {
		t.Errorf("unexpected channel %q", got)
	}
	if got := gjson.Get(payload, "username").String(); got != "Security Scanner Bot" {
		t.Errorf("unexpected username %q", got)
	}
	if got := gjson.Get(payload, "attachments.0.color").String(); got != "#FF0000" {
		t.Errorf("expected critical color #FF0000, got %q", got)
	}
	if got := gjson.Get(payload, "blocks.0.text.text").String(); got != "🚨 SQL Injection Vulnerability Detected" {
		t.Errorf("unexpected header %q", got)
	}
	if got := gjson.Get(payload, "text").String(); got != "🚨 Critical SQL Injection vulnerability found at https://example.com/login" {
		t.Errorf("unexpected fallback text %q", got)
	}

	evidence := gjson.Get(payload, "blocks.3.text.text").String()
	if len(evidence) != len("*Evidence/PoC:*\n```")+500+len("```") {
		t.Errorf("expected evidence capped at 500 characters, got block of %d", len(evidence))
	}
}

func TestSendAlertSeverityMapping(t *testing.T) {
	t.Parallel()

	scenarios := []struct {
		severity  string
		wantColor string
		wantEmoji string
	}{
		{severity: "Critical", wantColor: "#FF0000", wantEmoji: "🚨"},
		{severity: "High", wantColor: "#FF6600", wantEmoji: "⚠️"},
		{severity: "Medium", wantColor: "#FFB84D", wantEmoji: "⚡"},
		{severity: "Low", wantColor: "#FFCC00", wantEmoji: "📝"},
		{severity: "Info", wantColor: "#0099FF", wantEmoji: "ℹ️"},
		{severity: "Bogus", wantColor: "#808080", wantEmoji: "📌"},
	}

	for _, scenario := range scenarios {
		t.Run(scenario.severity, func(t *testing.T) {
			t.Parallel()

			server, lastBody := captureWebhook(t)
			notifier := NewNotifier(server.URL, WithClock(fixedClock))

			notifier.SendAlert(context.Background(), Alert{
				VulnerabilityType: "XSS",
				Severity:          scenario.severity,
				TargetURL:         "https://example.com",
				Description:       "test",
			})

			payload := lastBody()
			if got := gjson.Get(payload, "attachments.0.color").String(); got != scenario.wantColor {
				t.Errorf("expected color %q, got %q", scenario.wantColor, got)
			}
			if got := gjson.Get(payload, "blocks.0.text.text").String(); !strings.HasPrefix(got, scenario.wantEmoji) {
				t.Errorf("expected header to start with %q, got %q", scenario.wantEmoji, got)
			}
		})
	}
}

func TestSendSummary(t *testing.T) {
	t.Parallel()

	server, lastBody := captureWebhook(t)
	notifier := NewNotifier(server.URL, WithClock(fixedClock))

	notifier.SendSummary(context.Background(), ScanSummary{
		TargetURL:     "https://example.com",
		TotalFindings: 4,
		CriticalCount: 1,
		HighCount:     2,
		LowCount:      1,
		ScanDuration:  "1h2m",
	})

	payload := lastBody()
	if got := gjson.Get(payload, "blocks.0.text.text").String(); got != "🔴 Security Scan Summary" {
		t.Errorf("unexpected header %q", got)
	}
	breakdown := gjson.Get(payload, "blocks.2.text.text").String()
	for _, line := range []string{"🚨 Critical: 1", "⚠️ High: 2", "📝 Low: 1"} {
		if !strings.Contains(breakdown, line) {
			t.Errorf("expected breakdown to contain %q, got %q", line, breakdown)
		}
	}
	if strings.Contains(breakdown, "Medium") {
		t.Errorf("expected no medium line, got %q", breakdown)
	}
	if got := gjson.Get(payload, "blocks.3.elements.0.text").String(); !strings.Contains(got, "Scan Duration: 1h2m") {
		t.Errorf("unexpected context block %q", got)
	}
}

func TestSendWithoutWebhook(t *testing.T) {
	t.Parallel()

	notifier := NewNotifier("")
	status := notifier.SendAlert(context.Background(), Alert{Severity: "High"})

	if got := gjson.Get(status, "success").Bool(); got {
		t.Error("expected success false without a webhook")
	}
	if got := gjson.Get(status, "error").String(); got != "No Slack webhook configured. Set SLACK_WEBHOOK_URL in .env file" {
		t.Errorf("unexpected error message %q", got)
	}
}

func TestSendRetriesOnFailure(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "channel_not_found", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	notifier := NewNotifier(server.URL,
		WithRetryConfig(&resilience.RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 2,
		}),
	)

	status := notifier.SendAlert(context.Background(), Alert{Severity: "High", TargetURL: "https://example.com"})

	if attempts.Load() != 3 {
		t.Errorf("expected 3 delivery attempts, got %d", attempts.Load())
	}
	if gjson.Get(status, "success").Bool() {
		t.Error("expected success false after exhausted retries")
	}
	if got := gjson.Get(status, "error").String(); !strings.Contains(got, "Failed to send to Slack") {
		t.Errorf("unexpected error message %q", got)
	}
}

func TestSendRetriesOnlyRecoverableStatuses(t *testing.T) {
	t.Parallel()

	scenarios := []struct {
		name         string
		status       int
		wantAttempts int32
	}{
		{name: "bad payload is not retried", status: http.StatusBadRequest, wantAttempts: 1},
		{name: "dead webhook is not retried", status: http.StatusNotFound, wantAttempts: 1},
		{name: "throttling is retried", status: http.StatusTooManyRequests, wantAttempts: 3},
		{name: "server error is retried", status: http.StatusServiceUnavailable, wantAttempts: 3},
	}

	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			t.Parallel()

			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				http.Error(w, "no_service", scenario.status)
			}))
			t.Cleanup(server.Close)

			notifier := NewNotifier(server.URL,
				WithRetryConfig(&resilience.RetryConfig{
					MaxAttempts:       3,
					InitialDelay:      time.Millisecond,
					MaxDelay:          5 * time.Millisecond,
					BackoffMultiplier: 2,
				}),
			)

			status := notifier.SendAlert(context.Background(), Alert{Severity: "High", TargetURL: "https://example.com"})

			if attempts.Load() != scenario.wantAttempts {
				t.Errorf("expected %d delivery attempts, got %d", scenario.wantAttempts, attempts.Load())
			}
			if gjson.Get(status, "success").Bool() {
				t.Error("expected success false")
			}
		})
	}
}
