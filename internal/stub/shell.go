package stub

import (
	"fmt"
	"net/http"
)

// The app shell mirrors the surfaces the real frontend exposes, with the
// selectors flows probe for. It authenticates from localStorage the same way
// the product does, so Session.Authenticate works against it unchanged.
const shellHTML = `<!DOCTYPE html>
<html>
<head><title>Team Workspace</title></head>
<body>
<div id="landing">
  <h1>Team Workspace</h1>
  <p>Sign in to continue</p>
</div>
<div id="app" style="display:none">
  <h1>Agent Dashboard</h1>
  <button data-testid="spawn-agent">Spawn Agent</button>
  <form data-testid="spawn-form" style="display:none">
    <textarea data-testid="task-input" name="task" placeholder="Describe a task..."></textarea>
    <button type="submit" data-testid="spawn-submit">Start</button>
  </form>
  <div data-testid="agent-list"></div>
  <div data-testid="terminal" class="terminal" style="display:none"><pre data-testid="terminal-output"></pre></div>
  <div class="chat">
    <div data-testid="chat-log"></div>
    <input data-testid="chat-input" placeholder="Message the team"/>
    <button data-testid="chat-send">Send</button>
  </div>
</div>
<script>
(function () {
  var token = localStorage.getItem('token') || localStorage.getItem('auth_token');
  if (!token) return;
  document.getElementById('landing').style.display = 'none';
  document.getElementById('app').style.display = 'block';

  var headers = { 'Authorization': 'Bearer ' + token, 'Content-Type': 'application/json' };

  function renderAgents() {
    fetch('/api/agents', { headers: headers }).then(function (r) { return r.json(); }).then(function (body) {
      var list = document.querySelector('[data-testid=agent-list]');
      list.innerHTML = '';
      (body.agents || []).forEach(function (a) {
        var card = document.createElement('div');
        card.className = 'agent-card';
        card.setAttribute('data-testid', 'agent-card');
        card.setAttribute('data-agent-id', a.id);
        card.innerHTML = '<span class="agent-task">' + a.task + '</span> ' +
          '<span class="agent-status" data-testid="agent-status">' + a.status + '</span>';
        card.addEventListener('click', function () {
          document.querySelector('[data-testid=terminal]').style.display = 'block';
        });
        list.appendChild(card);
      });
    });
  }
  renderAgents();
  setInterval(renderAgents, 500);

  document.querySelector('[data-testid=spawn-agent]').addEventListener('click', function () {
    document.querySelector('[data-testid=spawn-form]').style.display = 'block';
  });
  document.querySelector('[data-testid=spawn-form]').addEventListener('submit', function (ev) {
    ev.preventDefault();
    var task = document.querySelector('[data-testid=task-input]').value;
    fetch('/api/agents/spawn', { method: 'POST', headers: headers, body: JSON.stringify({ task: task, type: 'simulated' }) })
      .then(renderAgents);
  });

  var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  var ws = new WebSocket(proto + location.host + '/ws?token=' + encodeURIComponent(token));
  ws.onmessage = function (msg) {
    var ev;
    try { ev = JSON.parse(msg.data); } catch (e) { return; }
    if (ev.type === 'terminal_output' || ev.type === 'terminal_error') {
      var out = document.querySelector('[data-testid=terminal-output]');
      out.textContent += (typeof ev.data === 'string') ? ev.data : JSON.stringify(ev.data);
    }
    if (ev.type === 'chat-message') {
      var line = document.createElement('div');
      line.className = 'chat-message';
      line.textContent = (ev.data.from || '?') + ': ' + (ev.data.text || '');
      document.querySelector('[data-testid=chat-log]').appendChild(line);
    }
  };
  document.querySelector('[data-testid=chat-send]').addEventListener('click', function () {
    var input = document.querySelector('[data-testid=chat-input]');
    ws.send(JSON.stringify({ type: 'chat-message', data: input.value }));
    input.value = '';
  });
})();
</script>
</body>
</html>`

func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, shellHTML)
}
