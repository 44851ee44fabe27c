// Package client is a typed HTTP client for the product under test. It covers
// the auth, agent and preview endpoints the verification flows depend on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowcheck/internal/entity"
)

// APIError is a non-2xx response from the product. The body excerpt is kept
// for triage; full bodies can be megabytes of HTML on misrouted requests.
type APIError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
	log     *zap.Logger
}

func New(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

func (c *Client) SetToken(token string) { c.token = token }
func (c *Client) Token() string         { return c.token }

type registerRequest struct {
	TeamName   string `json:"teamName"`
	UserName   string `json:"userName"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	InviteCode string `json:"inviteCode,omitempty"`
}

type registerResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Team struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		InviteCode string `json:"inviteCode"`
	} `json:"team"`
}

// Register creates a fresh user and team with generated unique credentials
// and stores the returned bearer token on the client.
func (c *Client) Register(ctx context.Context) (*entity.Account, error) {
	suffix := uuid.NewString()[:8]
	return c.register(ctx, registerRequest{
		TeamName: "e2e-team-" + suffix,
		UserName: "e2e-user-" + suffix,
		Email:    fmt.Sprintf("e2e-%s@flowcheck.local", suffix),
		Password: "pw-" + uuid.NewString(),
	})
}

// RegisterWithInvite creates a second user joining an existing team.
func (c *Client) RegisterWithInvite(ctx context.Context, inviteCode string) (*entity.Account, error) {
	suffix := uuid.NewString()[:8]
	return c.register(ctx, registerRequest{
		UserName:   "e2e-guest-" + suffix,
		Email:      fmt.Sprintf("e2e-guest-%s@flowcheck.local", suffix),
		Password:   "pw-" + uuid.NewString(),
		InviteCode: inviteCode,
	})
}

func (c *Client) register(ctx context.Context, req registerRequest) (*entity.Account, error) {
	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("register: no token in response")
	}
	c.token = resp.Token

	c.log.Info("registered account",
		zap.String("email", req.Email),
		zap.String("team_id", resp.Team.ID))

	return &entity.Account{
		Email:      req.Email,
		Password:   req.Password,
		TeamName:   resp.Team.Name,
		Token:      resp.Token,
		UserID:     resp.User.ID,
		TeamID:     resp.Team.ID,
		InviteCode: resp.Team.InviteCode,
	}, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login: no token in response")
	}
	c.token = resp.Token
	return resp.Token, nil
}

// spawnResponse tolerates both shapes the product has been seen to return:
// {agent:{id,status}} and a flat {id,status,...}.
type spawnResponse struct {
	Agent *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"agent"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SpawnAgent starts a simulated agent working on the given task.
func (c *Client) SpawnAgent(ctx context.Context, task, agentType string) (*entity.Agent, error) {
	req := map[string]string{"task": task, "type": agentType}
	var resp spawnResponse
	if err := c.do(ctx, http.MethodPost, "/api/agents/spawn", req, &resp); err != nil {
		return nil, err
	}

	agent := &entity.Agent{Task: task, Type: agentType}
	switch {
	case resp.Agent != nil && resp.Agent.ID != "":
		agent.ID = resp.Agent.ID
		agent.Status = entity.AgentStatus(resp.Agent.Status)
	case resp.ID != "":
		agent.ID = resp.ID
		agent.Status = entity.AgentStatus(resp.Status)
	default:
		return nil, fmt.Errorf("spawn: no agent id in response")
	}
	if agent.Status == "" {
		agent.Status = entity.AgentStatusPending
	}

	c.log.Info("spawned agent", zap.String("agent_id", agent.ID), zap.String("status", string(agent.Status)))
	return agent, nil
}

// GetAgent fetches the current state of an agent.
func (c *Client) GetAgent(ctx context.Context, id string) (*entity.Agent, error) {
	var resp spawnResponse
	if err := c.do(ctx, http.MethodGet, "/api/agents/"+id, nil, &resp); err != nil {
		return nil, err
	}
	agent := &entity.Agent{ID: id}
	if resp.Agent != nil {
		agent.Status = entity.AgentStatus(resp.Agent.Status)
	} else {
		agent.Status = entity.AgentStatus(resp.Status)
	}
	return agent, nil
}

// StopAgent stops a running agent. Stopping an already-finished agent is not
// an error on any known deployment.
func (c *Client) StopAgent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/agents/"+id+"/stop", nil, nil)
}

// WaitAgentStatus polls the agent until it reports the wanted status.
func (c *Client) WaitAgentStatus(ctx context.Context, id string, want entity.AgentStatus, interval time.Duration) (*entity.Agent, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		agent, err := c.GetAgent(ctx, id)
		if err == nil && agent.Status == want {
			return agent, nil
		}
		if err == nil && agent.Status.Terminal() && agent.Status != want {
			return agent, fmt.Errorf("agent %s reached terminal status %q, wanted %q", id, agent.Status, want)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for agent %s status %q: %w", id, want, ctx.Err())
		case <-ticker.C:
		}
	}
}

type previewResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

// CreatePreview asks the product to spin up a live preview.
func (c *Client) CreatePreview(ctx context.Context) (*entity.Preview, error) {
	var resp previewResponse
	if err := c.do(ctx, http.MethodPost, "/api/preview/create", map[string]string{}, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("preview create: no id in response")
	}
	return &entity.Preview{ID: resp.ID, Status: entity.PreviewStatus(resp.Status), URL: resp.URL}, nil
}

// PreviewStatus fetches the current preview state.
func (c *Client) PreviewStatus(ctx context.Context, id string) (*entity.Preview, error) {
	var resp previewResponse
	if err := c.do(ctx, http.MethodGet, "/api/preview/status?id="+id, nil, &resp); err != nil {
		return nil, err
	}
	return &entity.Preview{ID: resp.ID, Status: entity.PreviewStatus(resp.Status), URL: resp.URL}, nil
}

// WaitPreviewReady polls until the preview reports ready.
func (c *Client) WaitPreviewReady(ctx context.Context, id string, interval time.Duration) (*entity.Preview, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p, err := c.PreviewStatus(ctx, id)
		if err == nil {
			switch p.Status {
			case entity.PreviewStatusReady:
				return p, nil
			case entity.PreviewStatusFailed:
				return p, fmt.Errorf("preview %s failed", id)
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for preview %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// PreviewProxyURL returns the browser-facing proxy route for a preview.
func (c *Client) PreviewProxyURL(p *entity.Preview) string {
	if p.URL != "" {
		if strings.HasPrefix(p.URL, "http") {
			return p.URL
		}
		return c.baseURL + p.URL
	}
	return fmt.Sprintf("%s/preview/%s/", c.baseURL, p.ID)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(data)
		if len(excerpt) > 256 {
			excerpt = excerpt[:256]
		}
		return &APIError{Status: resp.StatusCode, Endpoint: path, Body: excerpt}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}
