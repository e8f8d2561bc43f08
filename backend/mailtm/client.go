package mailtm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

const defaultBaseURL = "https://api.mail.tm"

// Client reads disposable mailboxes on mail.tm. Tokens are registered per
// account at runtime; the client holds no credentials of its own.
type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.RWMutex
	tokens map[string]string
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.http = client
	}
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  map[string]string{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// RegisterToken stores the JWT for an account, replacing any previous one.
func (c *Client) RegisterToken(email, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[email] = token
}

func (c *Client) token(email string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	token, ok := c.tokens[email]
	return token, ok
}

// Emails returns the registered account addresses in sorted order.
func (c *Client) Emails() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	emails := make([]string, 0, len(c.tokens))
	for email := range c.tokens {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	return emails
}

type MessageSummary struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	From      string `json:"from"`
	Intro     string `json:"intro"`
	Seen      bool   `json:"seen"`
	CreatedAt string `json:"createdAt"`
}

type Message struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// ErrNoToken reports a lookup for an account without a registered JWT.
type ErrNoToken struct {
	Email string
}

func (e *ErrNoToken) Error() string {
	return fmt.Sprintf("no JWT token stored for %s", e.Email)
}

func (c *Client) ListMessages(ctx context.Context, email string, limit int) ([]MessageSummary, error) {
	token, ok := c.token(email)
	if !ok {
		return nil, &ErrNoToken{Email: email}
	}
	if limit <= 0 {
		limit = 50
	}

	body, err := c.get(ctx, "/messages", token)
	if err != nil {
		return nil, err
	}

	var summaries []MessageSummary
	for _, member := range gjson.GetBytes(body, "hydra:member").Array() {
		if len(summaries) >= limit {
			break
		}
		summaries = append(summaries, MessageSummary{
			ID:        member.Get("id").String(),
			Subject:   member.Get("subject").String(),
			From:      senderAddress(member.Get("from")),
			Intro:     member.Get("intro").String(),
			Seen:      member.Get("seen").Bool(),
			CreatedAt: member.Get("createdAt").String(),
		})
	}
	return summaries, nil
}

func (c *Client) GetMessage(ctx context.Context, email, messageID string) (*Message, error) {
	token, ok := c.token(email)
	if !ok {
		return nil, &ErrNoToken{Email: email}
	}

	body, err := c.get(ctx, "/messages/"+messageID, token)
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	return &Message{
		ID:      parsed.Get("id").String(),
		Subject: parsed.Get("subject").String(),
		From:    senderAddress(parsed.Get("from")),
		Text:    parsed.Get("text").String(),
		HTML:    flattenHTML(parsed.Get("html")),
	}, nil
}

func (c *Client) get(ctx context.Context, path, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to mail.tm failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read mail.tm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mail.tm returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// senderAddress prefers the address field and falls back to the display name.
func senderAddress(from gjson.Result) string {
	if address := from.Get("address").String(); address != "" {
		return address
	}
	return from.Get("name").String()
}

// flattenHTML joins the html parts, which mail.tm returns as an array.
func flattenHTML(html gjson.Result) string {
	if html.IsArray() {
		var parts []string
		for _, part := range html.Array() {
			parts = append(parts, part.String())
		}
		return strings.Join(parts, "\n")
	}
	return html.String()
}

func encodeJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("failed to encode response: %v", err)
	}
	return string(encoded)
}
