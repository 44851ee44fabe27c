package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowcheck/internal/entity"
)

func TestRegister(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/register", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req["email"], "@flowcheck.local")
		assert.NotEmpty(t, req["password"])

		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-123",
			"user":  map[string]string{"id": "u1", "email": req["email"]},
			"team":  map[string]string{"id": "t1", "name": req["teamName"], "inviteCode": "inv-9"},
		})
	}))
	defer server.Close()

	c := New(server.URL, zap.NewNop())
	acct, err := c.Register(context.Background())
	require.NoError(t, err)

	assert.Empty(t, gotAuth, "register must not send a bearer token")
	assert.Equal(t, "tok-123", acct.Token)
	assert.Equal(t, "t1", acct.TeamID)
	assert.Equal(t, "inv-9", acct.InviteCode)
	assert.Equal(t, "tok-123", c.Token(), "token should be stored for later calls")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error":"email already registered"}`)
	}))
	defer server.Close()

	c := New(server.URL, zap.NewNop())
	_, err := c.Register(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Contains(t, apiErr.Body, "already registered")
}

func TestSpawnAgent_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		id   string
	}{
		{"nested agent object", `{"agent":{"id":"a1","status":"running"}}`, "a1"},
		{"flat object", `{"id":"a2","status":"running"}`, "a2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/api/agents/spawn", r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			c := New(server.URL, zap.NewNop())
			c.SetToken("tok")
			agent, err := c.SpawnAgent(context.Background(), "build a todo app", "simulated")
			require.NoError(t, err)
			assert.Equal(t, tt.id, agent.ID)
			assert.Equal(t, entity.AgentStatusRunning, agent.Status)
		})
	}
}

func TestSpawnAgent_NoID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	c := New(server.URL, zap.NewNop())
	_, err := c.SpawnAgent(context.Background(), "task", "simulated")
	assert.Error(t, err)
}

func TestWaitAgentStatus(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/api/agents/"))
		calls++
		status := "running"
		if calls >= 3 {
			status = "completed"
		}
		fmt.Fprintf(w, `{"id":"a1","status":"%s"}`, status)
	}))
	defer server.Close()

	c := New(server.URL, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	agent, err := c.WaitAgentStatus(ctx, "a1", entity.AgentStatusCompleted, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, entity.AgentStatusCompleted, agent.Status)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestWaitAgentStatus_TerminalMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"a1","status":"failed"}`)
	}))
	defer server.Close()

	c := New(server.URL, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.WaitAgentStatus(ctx, "a1", entity.AgentStatusCompleted, 10*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitPreviewReady(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/preview/status", r.URL.Path)
		require.Equal(t, "p1", r.URL.Query().Get("id"))
		calls++
		if calls < 2 {
			fmt.Fprint(w, `{"id":"p1","status":"creating"}`)
			return
		}
		fmt.Fprint(w, `{"id":"p1","status":"ready","url":"/preview/p1/"}`)
	}))
	defer server.Close()

	c := New(server.URL, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := c.WaitPreviewReady(ctx, "p1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, entity.PreviewStatusReady, p.Status)
	assert.Equal(t, server.URL+"/preview/p1/", c.PreviewProxyURL(p))
}

func TestStopAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/agents/a1/stop", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, zap.NewNop())
	assert.NoError(t, c.StopAgent(context.Background(), "a1"))
}
