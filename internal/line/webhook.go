package line

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/izaki/koto-agent/internal/agent"
)

// followGreeting is sent once when a user adds the bot.
const followGreeting = "はじめまして！秘書のコトです！\n計算や調べもの、メールやカレンダーの確認など、なんでも聞いてくださいね〜"

// Responder drives the agent loop for one inbound message.
type Responder interface {
	Respond(ctx context.Context, userID, inputText string, attachment *agent.Attachment) (string, error)
}

// UserDirectory records follow state.
type UserDirectory interface {
	Register(ctx context.Context, userID string) error
	Block(ctx context.Context, userID string) error
}

// SessionClearer resets a user's short-term history. A follow event is
// the platform's "start over" signal.
type SessionClearer interface {
	Clear(userID string)
}

// Event is one entry in a webhook delivery.
type Event struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

type webhookBody struct {
	Events []Event `json:"events"`
}

// Webhook handles LINE platform callbacks. Events are acknowledged
// immediately and processed in the background; the platform's delivery
// timeout is shorter than a full agent loop.
type Webhook struct {
	secret   string
	client   *Client
	agent    Responder
	users    UserDirectory
	sessions SessionClearer
	logger   *slog.Logger

	// eventTimeout bounds one event's processing.
	eventTimeout time.Duration
	// handleAsync is disabled by tests that need deterministic
	// completion.
	handleAsync bool
}

// NewWebhook wires the webhook handler.
func NewWebhook(secret string, client *Client, responder Responder, users UserDirectory, sessions SessionClearer, logger *slog.Logger) *Webhook {
	return &Webhook{
		secret:       secret,
		client:       client,
		agent:        responder,
		users:        users,
		sessions:     sessions,
		logger:       logger,
		eventTimeout: 2 * time.Minute,
		handleAsync:  true,
	}
}

func (w *Webhook) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		http.Error(rw, "read error", http.StatusBadRequest)
		return
	}

	if !ValidateSignature(w.secret, body, req.Header.Get("X-Line-Signature")) {
		w.logger.Warn("webhook signature mismatch", "remote", req.RemoteAddr)
		http.Error(rw, "invalid signature", http.StatusForbidden)
		return
	}

	var parsed webhookBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		http.Error(rw, "bad payload", http.StatusBadRequest)
		return
	}

	// Acknowledge before processing; LINE retries unacknowledged
	// deliveries.
	rw.WriteHeader(http.StatusOK)

	for _, ev := range parsed.Events {
		if w.handleAsync {
			go w.handleEvent(ev)
		} else {
			w.handleEvent(ev)
		}
	}
}

func (w *Webhook) handleEvent(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), w.eventTimeout)
	defer cancel()

	userID := ev.Source.UserID
	switch ev.Type {
	case "message":
		w.handleMessage(ctx, ev)

	case "follow":
		if err := w.users.Register(ctx, userID); err != nil {
			w.logger.Warn("follow registration failed", "user_id", userID, "error", err)
		}
		w.sessions.Clear(userID)
		if err := w.client.Reply(ctx, ev.ReplyToken, followGreeting); err != nil {
			w.logger.Warn("greeting failed", "user_id", userID, "error", err)
		}
		w.logger.Info("user followed", "user_id", userID)

	case "unfollow":
		if err := w.users.Block(ctx, userID); err != nil {
			w.logger.Warn("unfollow handling failed", "user_id", userID, "error", err)
		}
		w.logger.Info("user unfollowed", "user_id", userID)

	default:
		w.logger.Debug("ignoring event", "type", ev.Type)
	}
}

func (w *Webhook) handleMessage(ctx context.Context, ev Event) {
	userID := ev.Source.UserID

	var text string
	var attachment *agent.Attachment
	switch ev.Message.Type {
	case "text":
		text = ev.Message.Text
	case "image", "audio", "file":
		data, mime, err := w.client.GetContent(ctx, ev.Message.ID)
		if err != nil {
			w.logger.Warn("content download failed", "user_id", userID, "error", err)
			w.reply(ctx, ev, agent.UserMessage(err))
			return
		}
		attachment = &agent.Attachment{MIMEType: mime, Data: data}
	default:
		w.logger.Debug("ignoring message type", "type", ev.Message.Type)
		return
	}

	answer, err := w.agent.Respond(ctx, userID, text, attachment)
	if err != nil {
		w.logger.Error("respond failed", "user_id", userID, "error", err)
		answer = agent.UserMessage(err)
	}

	w.reply(ctx, ev, ToPlainText(answer))
}

// reply tries the single-use reply token first; push is the fallback
// when the token has expired mid-processing.
func (w *Webhook) reply(ctx context.Context, ev Event, text string) {
	if err := w.client.Reply(ctx, ev.ReplyToken, text); err == nil {
		return
	} else {
		w.logger.Debug("reply failed, falling back to push", "user_id", ev.Source.UserID, "error", err)
	}
	if err := w.client.Push(ctx, ev.Source.UserID, text); err != nil {
		w.logger.Error("push fallback failed", "user_id", ev.Source.UserID, "error", err)
	}
}
