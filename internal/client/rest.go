package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	projectdomain "github.com/crewboard/crewboard-backend/internal/projects/domain"
	"github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

const DefaultTimeout = 15 * time.Second

// APIError is a non-2xx answer carrying the server's error message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Client calls the /api/v1 REST surface with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }
func (c *Client) Token() string   { return c.token }

// NewTask is the body of a create-task call.
type NewTask struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      domain.Status   `json:"status,omitempty"`
	Priority    domain.Priority `json:"priority,omitempty"`
	AssigneeID  *string         `json:"assigneeId,omitempty"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
	Labels      []string        `json:"labels,omitempty"`
}

// Patch is a partial task update keyed by wire field name. A nil value
// clears assigneeId or dueDate.
type Patch map[string]any

func (c *Client) ListProjects(ctx context.Context) ([]*projectdomain.Project, error) {
	var out struct {
		Projects []*projectdomain.Project `json:"projects"`
	}
	err := c.do(ctx, http.MethodGet, "/projects", nil, &out)
	return out.Projects, err
}

func (c *Client) GetProject(ctx context.Context, id string) (*projectdomain.Project, error) {
	var out struct {
		Project *projectdomain.Project `json:"project"`
	}
	err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(id), nil, &out)
	return out.Project, err
}

func (c *Client) CreateProject(ctx context.Context, name, description string) (*projectdomain.Project, error) {
	body := map[string]string{"name": name, "description": description}
	var out struct {
		Project *projectdomain.Project `json:"project"`
	}
	err := c.do(ctx, http.MethodPost, "/projects", body, &out)
	return out.Project, err
}

func (c *Client) JoinProject(ctx context.Context, inviteCode string) (*projectdomain.Project, error) {
	var out struct {
		Project *projectdomain.Project `json:"project"`
	}
	err := c.do(ctx, http.MethodPost, "/projects/join/"+url.PathEscape(inviteCode), nil, &out)
	return out.Project, err
}

func (c *Client) ListTasks(ctx context.Context, projectID string) ([]*domain.Task, error) {
	var out struct {
		Tasks []*domain.Task `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/tasks", nil, &out)
	return out.Tasks, err
}

func (c *Client) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	var out struct {
		Task *domain.Task `json:"task"`
	}
	err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &out)
	return out.Task, err
}

func (c *Client) CreateTask(ctx context.Context, projectID string, in NewTask) (*domain.Task, error) {
	var out struct {
		Task *domain.Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/tasks", in, &out)
	return out.Task, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch Patch) (*domain.Task, error) {
	var out struct {
		Task *domain.Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), patch, &out)
	return out.Task, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AddComment(ctx context.Context, taskID, text string) (*domain.Comment, error) {
	var out struct {
		Comment *domain.Comment `json:"comment"`
	}
	err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/comments", map[string]string{"text": text}, &out)
	return out.Comment, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &envelope)
		if envelope.Error == "" {
			envelope.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: envelope.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
