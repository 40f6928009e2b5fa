package api

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/pigeonchat/pigeon/internal/model"
)

// Client talks to the pigeond REST surface.
type Client struct {
	http *resty.Client
}

// SendRequest is the body of a send-message call. ImageData, when set,
// is a base64 data URL the server turns into a hosted image.
type SendRequest struct {
	Text      string `json:"text,omitempty"`
	ImageData string `json:"imageData,omitempty"`
}

type apiError struct {
	Error string `json:"error"`
}

// New creates a REST client for the given server URL and bearer token.
func New(serverURL, token string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(serverURL).
			SetAuthToken(token),
	}
}

// Me resolves the identity behind the configured token.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&user).
		SetError(&apiError{}).
		Get("/me")
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	if resp.IsError() {
		return nil, respError("resolving identity", resp)
	}
	return &user, nil
}

// Registration is the result of creating an account. The token is
// returned exactly once.
type Registration struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

// Register creates a new account. No token is required.
func (c *Client) Register(ctx context.Context, username, displayName string) (*Registration, error) {
	var reg Registration
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": username, "displayName": displayName}).
		SetResult(&reg).
		SetError(&apiError{}).
		Post("/register")
	if err != nil {
		return nil, fmt.Errorf("registering: %w", err)
	}
	if resp.IsError() {
		return nil, respError("registering", resp)
	}
	return &reg, nil
}

// Conversation fetches the full history with the given user, ascending.
func (c *Client) Conversation(ctx context.Context, otherUserID string) ([]model.Message, error) {
	var msgs []model.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&msgs).
		SetError(&apiError{}).
		Get("/conversation/" + otherUserID)
	if err != nil {
		return nil, fmt.Errorf("fetching conversation: %w", err)
	}
	if resp.IsError() {
		return nil, respError("fetching conversation", resp)
	}
	return msgs, nil
}

// ConversationSince fetches messages with the given user created at or
// after since (unix milliseconds), ascending.
func (c *Client) ConversationSince(ctx context.Context, otherUserID string, since int64) ([]model.Message, error) {
	var msgs []model.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("otherUserId", otherUserID).
		SetQueryParam("since", strconv.FormatInt(since, 10)).
		SetResult(&msgs).
		SetError(&apiError{}).
		Get("/conversation")
	if err != nil {
		return nil, fmt.Errorf("fetching conversation since %d: %w", since, err)
	}
	if resp.IsError() {
		return nil, respError("fetching conversation", resp)
	}
	return msgs, nil
}

// SendMessage persists a new message addressed to otherUserID and
// returns the server's copy with ID and CreatedAt assigned.
func (c *Client) SendMessage(ctx context.Context, otherUserID string, req SendRequest) (*model.Message, error) {
	var msg model.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&msg).
		SetError(&apiError{}).
		Post("/conversation/" + otherUserID)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	if resp.IsError() {
		return nil, respError("sending message", resp)
	}
	return &msg, nil
}

// Users lists all registered users except the caller.
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var users []model.User
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&users).
		SetError(&apiError{}).
		Get("/users")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	if resp.IsError() {
		return nil, respError("listing users", resp)
	}
	return users, nil
}

// SearchUsers looks up users whose username or display name contains
// the query, excluding the caller.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	var users []model.User
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("query", query).
		SetResult(&users).
		SetError(&apiError{}).
		Get("/users/search")
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	if resp.IsError() {
		return nil, respError("searching users", resp)
	}
	return users, nil
}

func respError(op string, resp *resty.Response) error {
	if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
		return fmt.Errorf("%s: %s (status %d)", op, e.Error, resp.StatusCode())
	}
	return fmt.Errorf("%s: status %d", op, resp.StatusCode())
}
