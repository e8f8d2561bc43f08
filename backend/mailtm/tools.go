package mailtm

import (
	"context"
	"errors"
	"fmt"

	"github.com/furisto/scout/backend/tool"
)

type listMessagesInput struct {
	Email string `json:"email" jsonschema:"description=The email account to fetch messages for"`
	Limit int    `json:"limit" jsonschema:"description=Maximum number of messages to return (default: 50)"`
}

type getMessageInput struct {
	Email     string `json:"email" jsonschema:"description=The email account to fetch the message from"`
	MessageID string `json:"message_id" jsonschema:"description=The ID of the message to fetch"`
}

type setTokenInput struct {
	Email    string `json:"email" jsonschema:"description=The email account the token belongs to"`
	JWTToken string `json:"jwt_token" jsonschema:"description=The JWT bearer token for the account"`
}

// Tools exposes the mailbox operations to the main agent. Missing tokens are
// reported as instructional text so the model knows how to recover.
func (c *Client) Tools() []tool.Tool {
	return []tool.Tool{
		c.RegisteredEmailsTool(),
		c.SetTokenTool(),
		c.ListMessagesTool(),
		c.GetMessageTool(),
	}
}

func (c *Client) RegisteredEmailsTool() tool.Tool {
	type emptyInput struct{}
	return tool.New(
		"get_registered_emails",
		"Return the list of email accounts in case you need to use them to receive emails such as account activation emails, credentials, etc.",
		func(ctx context.Context, input emptyInput) (string, error) {
			return encodeJSON(c.Emails()), nil
		},
	)
}

func (c *Client) SetTokenTool() tool.Tool {
	return tool.New(
		"set_email_jwt_token",
		"Store the JWT token for an email account so its messages can be fetched.",
		func(ctx context.Context, input setTokenInput) (string, error) {
			if input.Email == "" || input.JWTToken == "" {
				return "Both email and jwt_token are required.", nil
			}
			c.RegisterToken(input.Email, input.JWTToken)
			return fmt.Sprintf("Stored JWT token for %s.", input.Email), nil
		},
	)
}

func (c *Client) ListMessagesTool() tool.Tool {
	return tool.New(
		"list_account_messages",
		"List recent messages for the given email account. Returns JSON list: [{id, subject, from, intro, seen, createdAt}]",
		func(ctx context.Context, input listMessagesInput) (string, error) {
			summaries, err := c.ListMessages(ctx, input.Email, input.Limit)
			if err != nil {
				return missingTokenMessage(err, input.Email)
			}
			if summaries == nil {
				summaries = []MessageSummary{}
			}
			return encodeJSON(summaries), nil
		},
	)
}

func (c *Client) GetMessageTool() tool.Tool {
	return tool.New(
		"get_message_by_id",
		"Fetch a specific message by id for the given email account using its stored JWT. Returns JSON: {id, subject, from, text, html}",
		func(ctx context.Context, input getMessageInput) (string, error) {
			message, err := c.GetMessage(ctx, input.Email, input.MessageID)
			if err != nil {
				return missingTokenMessage(err, input.Email)
			}
			return encodeJSON(message), nil
		},
	)
}

func missingTokenMessage(err error, email string) (string, error) {
	var noToken *ErrNoToken
	if errors.As(err, &noToken) {
		return fmt.Sprintf("No JWT token stored for %s. Call set_email_jwt_token(email, jwt_token) first.", email), nil
	}
	return fmt.Sprintf("Request failed: %v", err), nil
}
