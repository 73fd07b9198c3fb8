// Package agent implements the conversation loop: it assembles model
// input from the session, profile, and long-term memory, round-trips
// with the model while dispatching tool calls, and persists the final
// answer.
package agent

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"

	"github.com/izaki/koto-agent/internal/llm"
	"github.com/izaki/koto-agent/internal/memory"
	"github.com/izaki/koto-agent/internal/prompts"
	"github.com/izaki/koto-agent/internal/session"
	"github.com/izaki/koto-agent/internal/tools"
)

// MaxTurns caps model round-trips per Respond call. The cap bounds
// worst-case latency and cost; tool calls are the protocol's work
// units, not transient faults, so there is no retry behind it.
const MaxTurns = 5

// Attachment is a binary payload that arrived with a message.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// attachmentPlaceholder stands in for the text of an attachment-only
// message so the turn is never empty.
const attachmentPlaceholder = "[添付ファイルを受信しました]"

// MemoryStore is the subset of [*memory.Store] the loop needs.
type MemoryStore interface {
	Save(ctx context.Context, userID, role, text string) bool
	ContextExcerpt(ctx context.Context, userID, queryText string, k, tokenBudget int) string
	GetProfile(ctx context.Context, userID string) (memory.UserProfile, error)
}

// PersonaSource supplies per-user persona overrides. Implemented by
// [*userconfig.Store].
type PersonaSource interface {
	Persona(userID string) string
}

// Config tunes context assembly.
type Config struct {
	Persona       string        // Overrides the built-in system prompt when set.
	Personas      PersonaSource // Per-user persona overrides; wins over Persona.
	SearchTopK    int           // Memory records retrieved per turn (default 5).
	ContextTokens int           // Token budget for the memory excerpt (default 500).
}

// Agent drives the conversation loop for all users. Respond calls for
// the same user are serialized; different users proceed in parallel.
type Agent struct {
	model    llm.Model
	registry *tools.Registry
	sessions *session.Store
	memory   MemoryStore
	logger   *slog.Logger
	cfg      Config

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// New creates the agent loop controller.
func New(model llm.Model, registry *tools.Registry, sessions *session.Store, mem MemoryStore, logger *slog.Logger, cfg Config) *Agent {
	if cfg.SearchTopK <= 0 {
		cfg.SearchTopK = 5
	}
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = 500
	}
	return &Agent{
		model:     model,
		registry:  registry,
		sessions:  sessions,
		memory:    mem,
		logger:    logger,
		cfg:       cfg,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// lockUser returns the per-user mutex, creating it on first use. A
// second message from the same user queues behind the first rather than
// interleaving turns.
func (a *Agent) lockUser(userID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		a.userLocks[userID] = l
	}
	return l
}

// Respond handles one inbound message and returns the final answer
// text. On failure it returns a [*Fault]; the caller maps that to an
// apology with [UserMessage].
func (a *Agent) Respond(ctx context.Context, userID, inputText string, attachment *Attachment) (string, error) {
	lock := a.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	if inputText == "" && attachment != nil {
		inputText = attachmentPlaceholder
	}

	a.sessions.Append(userID, "user", inputText)

	// Context is assembled before the inbound turn reaches semantic
	// memory; otherwise the just-saved record would match its own query
	// and waste an excerpt slot.
	contents := a.assembleInput(ctx, userID, inputText, attachment)

	// The inbound turn is recorded before the model round-trips, so the
	// user's utterance survives any downstream failure.
	a.memory.Save(ctx, userID, "user", inputText)
	declarations := a.registry.Declarations()

	for turn := 0; turn < MaxTurns; turn++ {
		resp, err := a.model.Generate(ctx, contents, declarations)
		if err != nil {
			return "", &Fault{Kind: KindTransport, Op: "model generate", Err: err}
		}

		// A tool call wins over text in the same response: the answer
		// is not final while an unexecuted call is pending. Only the
		// first requested call is honored per iteration so tool
		// effects stay ordered and observable one at a time.
		if resp.FunctionCall != nil {
			call := resp.FunctionCall
			a.logger.Debug("dispatching tool call",
				"user_id", userID, "tool", call.Name, "turn", turn)

			result := a.registry.Dispatch(ctx, userID, call)
			contents = append(contents,
				llm.CallContent(call),
				llm.ResultContent(call.Name, map[string]any{"result": result.AsResponse()}),
			)
			continue
		}

		if resp.Text == "" {
			return "", &Fault{Kind: KindProtocol, Op: "empty model response"}
		}

		a.sessions.Append(userID, "model", resp.Text)
		a.memory.Save(ctx, userID, "model", resp.Text)
		a.logger.Info("response generated",
			"user_id", userID, "turns", turn+1,
			"input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens)
		return resp.Text, nil
	}

	a.logger.Warn("turn limit reached without final answer", "user_id", userID, "max_turns", MaxTurns)
	return "", &Fault{Kind: KindLoopLimit, Op: "respond"}
}

// assembleInput builds the model transcript: instruction preamble, a
// synthesized acknowledgement (so the transcript never opens with two
// user turns in a row), per-user context, session history, and the new
// input with its attachment.
func (a *Agent) assembleInput(ctx context.Context, userID, inputText string, attachment *Attachment) []llm.Content {
	persona := a.cfg.Persona
	if a.cfg.Personas != nil {
		if p := a.cfg.Personas.Persona(userID); p != "" {
			persona = p
		}
	}

	contents := []llm.Content{
		llm.TextContent("user", prompts.BaseSystemPrompt(persona)),
		llm.TextContent("model", prompts.AckTurn()),
	}

	if userContext := a.buildUserContext(ctx, userID, inputText); userContext != "" {
		contents = append(contents,
			llm.TextContent("user", userContext),
			llm.TextContent("model", "わかりました。"),
		)
	}

	// History already contains the just-appended inbound turn; it is
	// replayed separately below so the attachment can ride along.
	history := a.sessions.History(userID)
	if n := len(history); n > 0 && history[n-1].Role == "user" && history[n-1].Text == inputText {
		history = history[:n-1]
	}
	for _, turn := range history {
		role := "user"
		if turn.Role == "model" {
			role = "model"
		}
		contents = append(contents, llm.TextContent(role, turn.Text))
	}

	input := llm.Content{Role: "user", Parts: []llm.Part{{Text: inputText}}}
	if attachment != nil {
		input.Parts = append(input.Parts, llm.Part{InlineData: &llm.InlineData{
			MIMEType: attachment.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(attachment.Data),
		}})
	}
	return append(contents, input)
}

// buildUserContext renders the profile and the semantic memory excerpt
// as one context block. Either piece missing just shrinks the block.
func (a *Agent) buildUserContext(ctx context.Context, userID, inputText string) string {
	var blocks []string

	profile, err := a.memory.GetProfile(ctx, userID)
	if err != nil {
		a.logger.Warn("profile read failed", "user_id", userID, "error", err)
	} else if framed := prompts.ProfileFraming(
		profile.Name, profile.Summary,
		profile.PersonalityTraits, profile.Interests,
		profile.Values, profile.CurrentGoals,
	); framed != "" {
		blocks = append(blocks, framed)
	}

	if excerpt := a.memory.ContextExcerpt(ctx, userID, inputText, a.cfg.SearchTopK, a.cfg.ContextTokens); excerpt != "" {
		blocks = append(blocks, prompts.MemoryExcerptFraming(excerpt))
	}

	switch len(blocks) {
	case 0:
		return ""
	case 1:
		return blocks[0]
	default:
		return blocks[0] + "\n\n" + blocks[1]
	}
}
