package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// loginTimeout is the hard client-side timeout on authentication calls.
// Other operations run on the caller's context; the backend owns their
// deadlines.
const loginTimeout = 10 * time.Second

// ServerError is a response the backend delivered but flagged unsuccessful
// (success=false or missing data). The Message is the backend's own string,
// surfaced verbatim in retryable UI error states.
type ServerError struct {
	Op      string
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: server reported failure", e.Op)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Client talks to the employee-management backend's chat endpoints.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates an authenticated client. token may be empty until Login.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
		logger:  logger,
	}
}

// SetToken replaces the bearer token after a login.
func (c *Client) SetToken(token string) { c.token = token }

// Login authenticates and returns the session identity. This is the only
// call with an enforced client-side timeout.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	body := map[string]string{"username": username, "password": password}
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.UserID == "" {
		return nil, &ServerError{Op: "login", Message: "login response missing token or user id"}
	}
	return &out, nil
}

// GetChatList fetches every conversation summary for the local user.
func (c *Client) GetChatList(ctx context.Context) ([]ChatSummary, error) {
	var out []ChatSummary
	if err := c.do(ctx, http.MethodGet, "/api/chat/list", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetChatMessageList fetches one page of a room's message history.
// Page 1 is the most recent messages; higher pages are older.
func (c *Client) GetChatMessageList(ctx context.Context, roomID string, page int) ([]ChatMessage, error) {
	q := url.Values{"page": {strconv.Itoa(page)}}
	var out []ChatMessage
	if err := c.do(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(roomID)+"/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage sends text to a counterpart. The backend resolves (or creates)
// the room and returns its durable id in the result.
func (c *Client) SendMessage(ctx context.Context, receiverID, text string) (*SendResult, error) {
	body := map[string]string{"receiverId": receiverID, "text": text}
	var out SendResult
	if err := c.do(ctx, http.MethodPost, "/api/chat/send", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkChatAsRead zeroes the server-side unread counter for a room.
func (c *Client) MarkChatAsRead(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodPost, "/api/chat/"+url.PathEscape(roomID)+"/read", nil, nil, nil)
}

// GetAccountListForChat fetches a page of the employee directory for
// starting new conversations.
func (c *Client) GetAccountListForChat(ctx context.Context, page int) ([]Account, error) {
	q := url.Values{"page": {strconv.Itoa(page)}}
	var out []Account
	if err := c.do(ctx, http.MethodGet, "/api/chat/accounts", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOnlineUsers fetches the authoritative set of online user ids. Used to
// resynchronize presence after a push-channel reconnect.
func (c *Client) GetOnlineUsers(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, "/api/chat/online", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do executes one request and decodes the backend envelope. A transported
// response with success=false (or absent data when out is wanted) becomes a
// ServerError carrying the backend's message.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%s: decode envelope (status %d): %w", op, resp.StatusCode, err)
	}
	if !env.Success {
		return &ServerError{Op: op, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		// Missing data on a successful envelope is treated as an
		// empty-result error; cached state stays untouched upstream.
		return &ServerError{Op: op, Message: "response has no data"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", op, err)
	}
	return nil
}
