package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/izaki/koto-agent/internal/llm"
	"github.com/izaki/koto-agent/internal/memory"
	"github.com/izaki/koto-agent/internal/session"
	"github.com/izaki/koto-agent/internal/tools"
)

// scriptedModel returns canned responses in order and records every
// request transcript it receives.
type scriptedModel struct {
	responses []*llm.Response
	err       error
	calls     [][]llm.Content
}

func (m *scriptedModel) Generate(_ context.Context, contents []llm.Content, _ []llm.Declaration) (*llm.Response, error) {
	m.calls = append(m.calls, contents)
	if m.err != nil {
		return nil, m.err
	}
	i := len(m.calls) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

type stubMemory struct {
	saved   []string // "role:text"
	ops     []string // call order across Save and ContextExcerpt
	excerpt string
	profile memory.UserProfile
}

func (s *stubMemory) Save(_ context.Context, _, role, text string) bool {
	s.saved = append(s.saved, role+":"+text)
	s.ops = append(s.ops, "save")
	return true
}

func (s *stubMemory) ContextExcerpt(context.Context, string, string, int, int) string {
	s.ops = append(s.ops, "excerpt")
	return s.excerpt
}

func (s *stubMemory) GetProfile(context.Context, string) (memory.UserProfile, error) {
	return s.profile, nil
}

func newTestAgent(t *testing.T, model llm.Model, mem MemoryStore) (*Agent, *session.Store, *tools.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewStore(50)
	registry := tools.NewRegistry(logger)
	a := New(model, registry, sessions, mem, logger, Config{})
	return a, sessions, registry
}

func TestRespondPlainText(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{{Text: "こんにちは！"}}}
	mem := &stubMemory{}
	a, sessions, _ := newTestAgent(t, model, mem)

	got, err := a.Respond(context.Background(), "u1", "やあ", nil)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "こんにちは！" {
		t.Errorf("got %q", got)
	}

	history := sessions.History("u1")
	if len(history) != 2 || history[0].Text != "やあ" || history[1].Text != "こんにちは！" {
		t.Errorf("history = %v", history)
	}
	if len(mem.saved) != 2 || mem.saved[0] != "user:やあ" || mem.saved[1] != "model:こんにちは！" {
		t.Errorf("memory saves = %v", mem.saved)
	}
}

func TestRespondCalculateScenario(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		{FunctionCall: &llm.FunctionCall{Name: "calculate", Args: map[string]any{"expression": "3+4"}}},
		{Text: "計算しました！3+4は7ですよ〜"},
	}}
	a, _, registry := newTestAgent(t, model, &stubMemory{})
	tools.RegisterCalculate(registry)

	got, err := a.Respond(context.Background(), "u1", "3+4を計算して", nil)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !strings.Contains(got, "7") {
		t.Errorf("answer missing result: %q", got)
	}
	if len(model.calls) != 2 {
		t.Fatalf("model calls = %d, want 2", len(model.calls))
	}

	// The second request must carry the echoed call and the tool
	// result with the exact computed value.
	second := model.calls[1]
	last := second[len(second)-1]
	if last.Role != "function" {
		t.Fatalf("last content role = %q", last.Role)
	}
	fr := last.Parts[0].FunctionResponse
	if fr == nil || fr.Name != "calculate" {
		t.Fatalf("function response = %+v", last.Parts[0])
	}
	payload := fr.Response["result"].(map[string]any)
	if payload["result"] != "7" {
		t.Errorf("tool result = %v, want 7", payload)
	}
	echo := second[len(second)-2]
	if echo.Role != "model" || echo.Parts[0].FunctionCall == nil {
		t.Errorf("call not echoed before result: %+v", echo)
	}
}

func TestRespondToolErrorIsFedBack(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		{FunctionCall: &llm.FunctionCall{Name: "no_such_tool"}},
		{Text: "すみません、それはできませんでした"},
	}}
	a, _, _ := newTestAgent(t, model, &stubMemory{})

	got, err := a.Respond(context.Background(), "u1", "やって", nil)
	if err != nil {
		t.Fatalf("tool failure escalated: %v", err)
	}
	if got == "" {
		t.Fatal("no answer after tool failure")
	}

	second := model.calls[1]
	fr := second[len(second)-1].Parts[0].FunctionResponse
	result := fr.Response["result"].(map[string]any)
	if _, ok := result["error"]; !ok {
		t.Errorf("tool error not visible to model: %v", result)
	}
}

func TestRespondToolCallWinsOverText(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		{
			Text:         "ちょっと確認しますね",
			FunctionCall: &llm.FunctionCall{Name: "calculate", Args: map[string]any{"expression": "1+1"}},
		},
		{Text: "2です！"},
	}}
	a, _, registry := newTestAgent(t, model, &stubMemory{})
	tools.RegisterCalculate(registry)

	got, err := a.Respond(context.Background(), "u1", "1+1は？", nil)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "2です！" {
		t.Errorf("got %q, interim text must not be treated as the answer", got)
	}
}

func TestRespondLoopLimit(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		{FunctionCall: &llm.FunctionCall{Name: "calculate", Args: map[string]any{"expression": "1"}}},
	}}
	a, _, registry := newTestAgent(t, model, &stubMemory{})
	tools.RegisterCalculate(registry)

	_, err := a.Respond(context.Background(), "u1", "無限に", nil)
	var fault *Fault
	if !errors.As(err, &fault) || fault.Kind != KindLoopLimit {
		t.Fatalf("err = %v, want loop limit fault", err)
	}
	if len(model.calls) != MaxTurns {
		t.Errorf("model calls = %d, want exactly %d", len(model.calls), MaxTurns)
	}
	if UserMessage(err) != "考えがまとまりませんでした...もう一度聞いてください。" {
		t.Errorf("UserMessage = %q", UserMessage(err))
	}
}

func TestRespondTransportFaultStillPersistsInbound(t *testing.T) {
	model := &scriptedModel{err: errors.New("connection refused")}
	a, sessions, _ := newTestAgent(t, model, &stubMemory{})

	_, err := a.Respond(context.Background(), "u1", "大事な用件", nil)
	var fault *Fault
	if !errors.As(err, &fault) || fault.Kind != KindTransport {
		t.Fatalf("err = %v, want transport fault", err)
	}

	history := sessions.History("u1")
	if len(history) != 1 || history[0].Text != "大事な用件" {
		t.Errorf("inbound turn lost on transport failure: %v", history)
	}
	if UserMessage(err) != "ちょっとエラーが出ちゃいました...😢" {
		t.Errorf("UserMessage = %q", UserMessage(err))
	}
}

func TestRespondEmptyResponseIsProtocolFault(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{{}}}
	a, _, _ := newTestAgent(t, model, &stubMemory{})

	_, err := a.Respond(context.Background(), "u1", "hello", nil)
	var fault *Fault
	if !errors.As(err, &fault) || fault.Kind != KindProtocol {
		t.Fatalf("err = %v, want protocol fault", err)
	}
}

func TestRespondAttachmentOnly(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{{Text: "画像見ました！"}}}
	a, sessions, _ := newTestAgent(t, model, &stubMemory{})

	_, err := a.Respond(context.Background(), "u1", "", &Attachment{
		MIMEType: "image/jpeg",
		Data:     []byte{0xff, 0xd8},
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	history := sessions.History("u1")
	if history[0].Text == "" {
		t.Error("attachment-only turn has empty text")
	}

	request := model.calls[0]
	input := request[len(request)-1]
	if len(input.Parts) != 2 || input.Parts[1].InlineData == nil {
		t.Fatalf("attachment not inlined: %+v", input)
	}
	if input.Parts[1].InlineData.MIMEType != "image/jpeg" {
		t.Errorf("mime = %q", input.Parts[1].InlineData.MIMEType)
	}
}

func TestAssembleInputOrdering(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{{Text: "ok"}}}
	mem := &stubMemory{
		excerpt: "[user] 前に登山の話をした",
		profile: memory.UserProfile{Name: "太郎"},
	}
	a, sessions, _ := newTestAgent(t, model, mem)

	sessions.Append("u1", "user", "前の発言")
	sessions.Append("u1", "model", "前の返事")

	if _, err := a.Respond(context.Background(), "u1", "新しい質問", nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	request := model.calls[0]
	// preamble, ack, context, context-ack, 2 history turns, new input
	if len(request) != 7 {
		t.Fatalf("len = %d: %+v", len(request), request)
	}
	if request[0].Role != "user" || !strings.Contains(request[0].Parts[0].Text, "コト") {
		t.Error("preamble missing")
	}
	if request[1].Role != "model" {
		t.Error("ack turn missing")
	}
	if !strings.Contains(request[2].Parts[0].Text, "太郎") || !strings.Contains(request[2].Parts[0].Text, "登山") {
		t.Error("profile/excerpt context missing")
	}
	if request[4].Parts[0].Text != "前の発言" || request[5].Parts[0].Text != "前の返事" {
		t.Error("history out of order")
	}
	if request[6].Parts[0].Text != "新しい質問" {
		t.Error("new input not last")
	}
}

type stubPersonas map[string]string

func (s stubPersonas) Persona(userID string) string { return s[userID] }

func TestAssembleInputPerUserPersona(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{{Text: "ok"}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(model, tools.NewRegistry(logger), session.NewStore(50), &stubMemory{}, logger, Config{
		Personas: stubPersonas{"u1": "あなたは執事のセバスチャンです。"},
	})

	if _, err := a.Respond(context.Background(), "u1", "やあ", nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if _, err := a.Respond(context.Background(), "u2", "やあ", nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if got := model.calls[0][0].Parts[0].Text; got != "あなたは執事のセバスチャンです。" {
		t.Errorf("u1 preamble = %q, want persona override", got)
	}
	if got := model.calls[1][0].Parts[0].Text; !strings.Contains(got, "コト") {
		t.Errorf("u2 preamble = %q, want built-in persona", got)
	}
}

// The inbound turn must not be searchable while its own excerpt is
// being assembled, but must be in memory before the model round-trips.
func TestRespondRetrievesBeforeSavingInbound(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{{Text: "ok"}}}
	mem := &stubMemory{}
	a, _, _ := newTestAgent(t, model, mem)

	if _, err := a.Respond(context.Background(), "u1", "山の話", nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if len(mem.ops) < 2 || mem.ops[0] != "excerpt" || mem.ops[1] != "save" {
		t.Errorf("ops = %v, want retrieval before the inbound save", mem.ops)
	}
	if mem.saved[0] != "user:山の話" {
		t.Errorf("saved = %v", mem.saved)
	}
}

func TestRespondSerializesPerUser(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{{Text: "ok"}}}
	a, sessions, _ := newTestAgent(t, model, &stubMemory{})

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			a.Respond(context.Background(), "u1", fmt.Sprintf("msg-%d", n), nil)
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	// Serialized calls mean a strict user/model alternation.
	history := sessions.History("u1")
	if len(history) != 20 {
		t.Fatalf("history len = %d, want 20", len(history))
	}
	for i, turn := range history {
		want := "user"
		if i%2 == 1 {
			want = "model"
		}
		if turn.Role != want {
			t.Fatalf("turn %d role = %q, want %q", i, turn.Role, want)
		}
	}
}
