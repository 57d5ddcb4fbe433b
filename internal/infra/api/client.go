package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketchat/internal/domain/chat"
)

// ErrEmptyBaseURL is returned when no API base URL is configured.
var ErrEmptyBaseURL = errors.New("api: base URL required")

// Config defines REST client settings.
type Config struct {
	BaseURL      string
	SessionToken string
	CallTimeout  time.Duration
}

// Upload is one attachment file to send.
type Upload struct {
	Name    string
	Content io.Reader
}

// MessagePage is one page of a conversation's history.
type MessagePage struct {
	Messages []chat.Message
	Count    int
	HasNext  bool
	HasPrev  bool
}

// Client wraps the marketplace messaging REST API.
type Client struct {
	base        string
	token       string
	userID      string
	http        *http.Client
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewClient validates the configuration and returns a typed client. The
// local user id is read from the session token claims (see identity.go).
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	userID, err := sessionUserID(cfg.SessionToken)
	if err != nil {
		return nil, err
	}
	return &Client{
		base:        strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.SessionToken,
		userID:      userID,
		http:        &http.Client{},
		callTimeout: callTimeout,
		logger:      logger,
	}, nil
}

// SessionUserID returns the user id carried by the session token.
func (c *Client) SessionUserID() string {
	return c.userID
}

// BaseURL returns the configured API base, without trailing slash.
func (c *Client) BaseURL() string {
	return c.base
}

// SessionToken returns the raw session credential.
func (c *Client) SessionToken() string {
	return c.token
}

// Conversation loads a single conversation record.
func (c *Client) Conversation(ctx context.Context, id string) (chat.Conversation, error) {
	var wire conversationWire
	if err := c.getJSON(ctx, "/conversations/"+url.PathEscape(id)+"/", nil, &wire); err != nil {
		return chat.Conversation{}, err
	}
	return wire.toDomain(), nil
}

// Conversations lists the current user's conversation summaries.
func (c *Client) Conversations(ctx context.Context) ([]chat.Summary, error) {
	var wire []conversationWire
	if err := c.getJSON(ctx, "/conversations/", nil, &wire); err != nil {
		return nil, err
	}
	items := make([]chat.Summary, 0, len(wire))
	for _, w := range wire {
		items = append(items, w.toSummary())
	}
	return items, nil
}

// Messages fetches one page of a conversation's history. Pages are
// numbered from 1, oldest first; the server reports total count and
// next/previous page links.
func (c *Client) Messages(ctx context.Context, conversationID string, page int) (MessagePage, error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{"page": []string{strconv.Itoa(page)}}
	var wire messagePageWire
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages/"
	if err := c.getJSON(ctx, path, query, &wire); err != nil {
		return MessagePage{}, err
	}
	result := MessagePage{
		Messages: make([]chat.Message, 0, len(wire.Results)),
		Count:    wire.Count,
		HasNext:  wire.Next != nil,
		HasPrev:  wire.Previous != nil,
	}
	for _, m := range wire.Results {
		result.Messages = append(result.Messages, m.toDomain())
	}
	return result, nil
}

// SendText posts a plain-text message and returns the created record.
func (c *Client) SendText(ctx context.Context, conversationID, text string) (chat.Message, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return chat.Message{}, err
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages/"
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(body))
	if err != nil {
		return chat.Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var wire messageWire
	if err := c.do(req, &wire); err != nil {
		return chat.Message{}, err
	}
	return wire.toDomain(), nil
}

// SendAttachments posts a multipart message with files and optional text.
func (c *Client) SendAttachments(ctx context.Context, conversationID, text string, files []Upload) (chat.Message, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if text != "" {
		if err := writer.WriteField("text", text); err != nil {
			return chat.Message{}, err
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile("attachments", f.Name)
		if err != nil {
			return chat.Message{}, err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return chat.Message{}, fmt.Errorf("api: read attachment %q: %w", f.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return chat.Message{}, err
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages/"
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, &buf)
	if err != nil {
		return chat.Message{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	var wire messageWire
	if err := c.do(req, &wire); err != nil {
		return chat.Message{}, err
	}
	return wire.toDomain(), nil
}

// MarkRead acknowledges every unread message in the conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/read/"
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	callCtx, cancel := context.WithTimeout(req.Context(), c.callTimeout)
	defer cancel()
	resp, err := c.http.Do(req.WithContext(callCtx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a little of the body for the log line, then discard.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		if c.logger != nil {
			c.logger.Error("api call failed",
				"method", req.Method, "path", req.URL.Path,
				"status", resp.StatusCode, "body", string(snippet))
		}
		return &StatusError{Code: resp.StatusCode, Path: req.URL.Path}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError reports a non-2xx API response.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s returned %d", e.Path, e.Code)
}
