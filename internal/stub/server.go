// Package stub is a minimal in-process stand-in for the product under test.
// It implements just enough of the auth/agent/preview/socket contract for
// flows to run offline and for tests to have a live target. State is in
// memory and discarded with the process, like the fixtures it fakes.
package stub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type account struct {
	ID       string
	Email    string
	Password string
	Name     string
	TeamID   string
}

type team struct {
	ID         string
	Name       string
	InviteCode string
}

type agentState struct {
	ID     string
	Status string
	Task   string
	TeamID string
}

type previewState struct {
	ID     string
	Status string
	TeamID string
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

type Server struct {
	log *zap.Logger

	// AgentDelay is how long a spawned agent "works" before completing.
	AgentDelay time.Duration
	// PreviewDelay is how long a preview takes to become ready.
	PreviewDelay time.Duration

	mu              sync.Mutex
	accountsByEmail map[string]*account
	accountsByToken map[string]*account
	teams           map[string]*team
	teamsByInvite   map[string]*team
	agents          map[string]*agentState
	previews        map[string]*previewState
	conns           map[string]map[*wsClient]bool

	upgrader websocket.Upgrader
}

func New(log *zap.Logger) *Server {
	return &Server{
		log:             log,
		AgentDelay:      2 * time.Second,
		PreviewDelay:    time.Second,
		accountsByEmail: make(map[string]*account),
		accountsByToken: make(map[string]*account),
		teams:           make(map[string]*team),
		teamsByInvite:   make(map[string]*team),
		agents:          make(map[string]*agentState),
		previews:        make(map[string]*previewState),
		conns:           make(map[string]map[*wsClient]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the router with request logging.
func (s *Server) Handler() http.Handler {
	logger := httplog.NewLogger("flowcheck-stub", httplog.Options{
		Concise: true,
		JSON:    true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/api/agents", s.handleListAgents)
		r.Post("/api/agents/spawn", s.handleSpawn)
		r.Get("/api/agents/{id}", s.handleGetAgent)
		r.Post("/api/agents/{id}/stop", s.handleStop)
		r.Post("/api/preview/create", s.handlePreviewCreate)
		r.Get("/api/preview/status", s.handlePreviewStatus)
	})

	r.Get("/preview/{id}/", s.handlePreviewPage)
	r.Get("/ws", s.handleWS)
	r.Get("/", s.handleShell)
	r.Get("/app", s.handleShell)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) tokenAccount(r *http.Request) *account {
	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if token == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountsByToken[token]
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenAccount(r) == nil {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamName   string `json:"teamName"`
		UserName   string `json:"userName"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		InviteCode string `json:"inviteCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	s.mu.Lock()
	if _, exists := s.accountsByEmail[req.Email]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "email already registered")
		return
	}

	var tm *team
	if req.InviteCode != "" {
		tm = s.teamsByInvite[req.InviteCode]
		if tm == nil {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, "unknown invite code")
			return
		}
	} else {
		if req.TeamName == "" {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, "teamName or inviteCode is required")
			return
		}
		tm = &team{
			ID:         "team-" + uuid.NewString()[:8],
			Name:       req.TeamName,
			InviteCode: "inv-" + uuid.NewString()[:8],
		}
		s.teams[tm.ID] = tm
		s.teamsByInvite[tm.InviteCode] = tm
	}

	acct := &account{
		ID:       "user-" + uuid.NewString()[:8],
		Email:    req.Email,
		Password: req.Password,
		Name:     req.UserName,
		TeamID:   tm.ID,
	}
	token := "tok-" + uuid.NewString()
	s.accountsByEmail[acct.Email] = acct
	s.accountsByToken[token] = acct
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  map[string]string{"id": acct.ID, "email": acct.Email},
		"team":  map[string]string{"id": tm.ID, "name": tm.Name, "inviteCode": tm.InviteCode},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	acct := s.accountsByEmail[req.Email]
	if acct == nil || acct.Password != req.Password {
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token := "tok-" + uuid.NewString()
	s.accountsByToken[token] = acct
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	acct := s.tokenAccount(r)
	s.mu.Lock()
	out := make([]map[string]string, 0)
	for _, a := range s.agents {
		if a.TeamID == acct.TeamID {
			out = append(out, map[string]string{"id": a.ID, "status": a.Status, "task": a.Task})
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	acct := s.tokenAccount(r)
	var req struct {
		Task string `json:"task"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Task == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}

	agent := &agentState{
		ID:     "agent-" + uuid.NewString()[:8],
		Status: "running",
		Task:   req.Task,
		TeamID: acct.TeamID,
	}
	// Snapshot the response before runAgent can mutate Status.
	resp := map[string]string{"id": agent.ID, "status": agent.Status}
	s.mu.Lock()
	s.agents[agent.ID] = agent
	s.mu.Unlock()

	go s.runAgent(agent.ID, agent.TeamID, req.Task)

	writeJSON(w, http.StatusCreated, map[string]any{"agent": resp})
}

// runAgent simulates the agent lifecycle: terminal connects, emits output,
// then the agent completes unless it was stopped first.
func (s *Server) runAgent(id, teamID, task string) {
	s.broadcast(teamID, map[string]any{"type": "terminal_connected", "agentId": id})
	s.broadcast(teamID, map[string]any{"type": "terminal_output", "agentId": id,
		"data": fmt.Sprintf("$ %s\n", task)})

	time.Sleep(s.AgentDelay / 2)
	s.broadcast(teamID, map[string]any{"type": "terminal_output", "agentId": id,
		"data": "working...\ndone\n"})
	s.broadcast(teamID, map[string]any{"type": "agentOutput", "agentId": id,
		"data": map[string]string{"output": "task finished: " + task}})

	time.Sleep(s.AgentDelay / 2)
	s.mu.Lock()
	agent := s.agents[id]
	if agent != nil && agent.Status == "running" {
		agent.Status = "completed"
	}
	s.mu.Unlock()
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	var resp map[string]string
	if agent := s.agents[id]; agent != nil {
		resp = map[string]string{"id": agent.ID, "status": agent.Status, "task": agent.Task}
	}
	s.mu.Unlock()
	if resp == nil {
		writeError(w, http.StatusNotFound, "unknown agent")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	var resp map[string]string
	if agent := s.agents[id]; agent != nil {
		if agent.Status == "running" {
			agent.Status = "stopped"
		}
		resp = map[string]string{"id": agent.ID, "status": agent.Status}
	}
	s.mu.Unlock()
	if resp == nil {
		writeError(w, http.StatusNotFound, "unknown agent")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreviewCreate(w http.ResponseWriter, r *http.Request) {
	acct := s.tokenAccount(r)
	p := &previewState{
		ID:     "prev-" + uuid.NewString()[:8],
		Status: "creating",
		TeamID: acct.TeamID,
	}
	s.mu.Lock()
	s.previews[p.ID] = p
	s.mu.Unlock()

	go func() {
		time.Sleep(s.PreviewDelay)
		s.mu.Lock()
		p.Status = "ready"
		s.mu.Unlock()
		s.broadcast(p.TeamID, map[string]any{"type": "previewUpdated",
			"data": map[string]string{"id": p.ID, "status": "ready"}})
	}()

	writeJSON(w, http.StatusCreated, map[string]string{"id": p.ID, "status": p.Status})
}

func (s *Server) handlePreviewStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	s.mu.Lock()
	var resp map[string]string
	if p := s.previews[id]; p != nil {
		resp = map[string]string{"id": p.ID, "status": p.Status, "url": "/preview/" + p.ID + "/"}
	}
	s.mu.Unlock()
	if resp == nil {
		writeError(w, http.StatusNotFound, "unknown preview")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreviewPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	status := ""
	if p := s.previews[id]; p != nil {
		status = p.Status
	}
	s.mu.Unlock()
	if status == "" {
		http.NotFound(w, r)
		return
	}
	if status != "ready" {
		http.Error(w, "preview not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>Preview %s</title></head>
<body><h1>Live preview</h1><p data-testid="preview-body">preview %s is ready</p></body></html>`, id, id)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	acct := s.tokenAccount(r)
	if acct == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsClient{conn: conn}

	s.mu.Lock()
	if s.conns[acct.TeamID] == nil {
		s.conns[acct.TeamID] = make(map[*wsClient]bool)
	}
	s.conns[acct.TeamID][c] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns[acct.TeamID], c)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "chat-message" {
			s.broadcast(acct.TeamID, map[string]any{
				"type": "chat-message",
				"data": map[string]string{"text": msg.Data, "from": acct.Name},
			})
		}
	}
}

func (s *Server) broadcast(teamID string, v any) {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.conns[teamID]))
	for c := range s.conns[teamID] {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.send(v); err != nil {
			s.log.Debug("broadcast failed", zap.Error(err))
		}
	}
}
