package teamdesksdk

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
)

// Client is a minimal teamdesk HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type User struct {
	UID         string  `json:"uid"`
	Email       string  `json:"email"`
	DisplayName string  `json:"displayName"`
	Role        string  `json:"role"`
	Status      string  `json:"status"`
	TeamID      *string `json:"teamId,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
}

type Session struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	User      User   `json:"user"`
}

// Task represents the API task model (partial).
type Task struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	MilestoneID     string   `json:"milestoneId"`
	AssignedUserIDs []string `json:"assignedUserIds"`
	AssignedRole    *string  `json:"assignedRole,omitempty"`
	AssignedByID    string   `json:"assignedById"`
	Priority        string   `json:"priority"`
	Status          string   `json:"status"`
	BlockReason     *string  `json:"blockReason,omitempty"`
	CreatedAt       int64    `json:"createdAt"`
	DueAt           *int64   `json:"dueAt,omitempty"`
}

// NewTask is the create-task payload. Set either AssignedUserIDs or
// AssignedRole.
type NewTask struct {
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	MilestoneID     string   `json:"milestoneId,omitempty"`
	AssignedUserIDs []string `json:"assignedUserIds,omitempty"`
	AssignedRole    string   `json:"assignedRole,omitempty"`
	Priority        string   `json:"priority,omitempty"`
	DueAt           *int64   `json:"dueAt,omitempty"`
}

type Views struct {
	Mine         []Task `json:"mine"`
	Subordinates []Task `json:"subordinates"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"taskId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         int64          `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"nextCursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the server sent one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SignIn exchanges credentials for a session and keeps its token.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "auth/signin", map[string]any{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Me returns the caller's profile.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp.User, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

// Views returns the caller's task views.
func (c *Client) Views(ctx context.Context) (Views, error) {
	var resp Views
	err := c.do(ctx, http.MethodGet, "tasks/views", nil, &resp)
	return resp, err
}

// SetTaskStatus moves a task; reason is required when blocking.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status, reason string) (Task, error) {
	body := map[string]any{"status": status}
	if reason != "" {
		body["blockReason"] = reason
	}
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(taskID)+"/status", body, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(taskID), nil, nil)
}

// AddComment posts a comment on a task.
func (c *Client) AddComment(ctx context.Context, taskID, text string) (Comment, error) {
	var resp Comment
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/comments", map[string]any{"text": text}, &resp)
	return resp, err
}

func (c *Client) Comments(ctx context.Context, taskID string) ([]Comment, error) {
	var resp []Comment
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID)+"/comments", nil, &resp)
	return resp, err
}

// EventsPage returns a page of the audit log, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
