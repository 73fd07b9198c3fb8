// Package web serves the developer chat console, a browser page that
// talks to the agent loop over a WebSocket without going through the
// LINE platform. It is intended for local development and is disabled
// by default.
package web

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/izaki/koto-agent/internal/agent"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024

	// consoleUser keys the console's session and memory so developer
	// chatter never mixes with a real LINE user.
	consoleUser = "console"
)

// Responder drives the agent loop for console input.
type Responder interface {
	Respond(ctx context.Context, userID, inputText string, attachment *agent.Attachment) (string, error)
}

// frame is one WebSocket message in either direction.
type frame struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// Console serves the chat page and its WebSocket endpoint.
type Console struct {
	agent    Responder
	logger   *slog.Logger
	upgrader websocket.Upgrader
	page     *template.Template
}

// NewConsole wires the console handlers.
func NewConsole(responder Responder, logger *slog.Logger) *Console {
	return &Console{
		agent:  responder,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		page: template.Must(template.New("console").Parse(consolePage)),
	}
}

// Register mounts the console routes on mux.
func (c *Console) Register(mux *http.ServeMux) {
	mux.HandleFunc("/console", c.handlePage)
	mux.HandleFunc("/console/ws", c.handleSocket)
}

func (c *Console) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.page.Execute(w, nil); err != nil {
		c.logger.Error("console page render failed", "error", err)
	}
}

// handleSocket runs a simple request/response chat over one connection.
// Each inbound frame blocks until the agent answers; the console is a
// single-developer tool, not a concurrent chat server.
func (c *Console) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warn("console websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	c.logger.Info("console session opened", "remote", r.RemoteAddr)

	for {
		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("console read failed", "error", err)
			}
			return
		}
		if in.Text == "" {
			continue
		}

		answer, err := c.agent.Respond(r.Context(), consoleUser, in.Text, nil)
		if err != nil {
			c.logger.Error("console respond failed", "error", err)
			answer = agent.UserMessage(err)
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame{Role: "model", Text: answer}); err != nil {
			c.logger.Warn("console write failed", "error", err)
			return
		}
	}
}

const consolePage = `<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>Koto Console</title>
<style>
body { font-family: sans-serif; max-width: 640px; margin: 2rem auto; }
#log { border: 1px solid #ccc; height: 420px; overflow-y: auto; padding: 8px; }
.user { color: #146c2e; }
.model { color: #1a3f8f; white-space: pre-wrap; }
form { display: flex; gap: 8px; margin-top: 8px; }
input { flex: 1; padding: 6px; }
</style>
</head>
<body>
<h1>Koto Console</h1>
<div id="log"></div>
<form id="form"><input id="input" autocomplete="off" placeholder="メッセージを入力"><button>送信</button></form>
<script>
const log = document.getElementById("log");
const proto = location.protocol === "https:" ? "wss:" : "ws:";
const ws = new WebSocket(proto + "//" + location.host + "/console/ws");
function append(role, text) {
  const div = document.createElement("div");
  div.className = role;
  div.textContent = (role === "user" ? "you: " : "koto: ") + text;
  log.appendChild(div);
  log.scrollTop = log.scrollHeight;
}
ws.onmessage = (ev) => { const f = JSON.parse(ev.data); append(f.role, f.text); };
document.getElementById("form").onsubmit = (ev) => {
  ev.preventDefault();
  const input = document.getElementById("input");
  if (!input.value) return;
  append("user", input.value);
  ws.send(JSON.stringify({role: "user", text: input.value}));
  input.value = "";
};
</script>
</body>
</html>
`
