package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/izaki/koto-agent/internal/llm"
	"github.com/izaki/koto-agent/internal/memory"
)

type fakeStore struct {
	logs    []string
	logsErr error
	profile memory.UserProfile
	saved   *memory.UserProfile
	saveErr error
}

func (f *fakeStore) RecentUserTexts(context.Context, string, time.Time, int) ([]string, error) {
	return f.logs, f.logsErr
}

func (f *fakeStore) GetProfile(context.Context, string) (memory.UserProfile, error) {
	return f.profile, nil
}

func (f *fakeStore) SaveProfile(_ context.Context, _ string, p memory.UserProfile) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = &p
	return nil
}

type fakeModel struct {
	text string
	err  error
}

func (f *fakeModel) Generate(context.Context, []llm.Content, []llm.Declaration) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text}, nil
}

func newTestSynthesizer(store *fakeStore, model *fakeModel) *Synthesizer {
	return NewSynthesizer(store, model, slog.New(slog.NewTextHandler(io.Discard, nil)), 24*time.Hour)
}

func TestRunAnalysisNoLogsKeepsProfile(t *testing.T) {
	store := &fakeStore{profile: memory.UserProfile{Name: "太郎"}}
	s := newTestSynthesizer(store, &fakeModel{text: `{"name":"should not be used"}`})

	got, err := s.RunAnalysis(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	if got.Name != "太郎" {
		t.Errorf("Name = %q, want 太郎", got.Name)
	}
	if store.saved != nil {
		t.Error("profile saved despite empty logs")
	}
}

func TestRunAnalysisMergesAndSaves(t *testing.T) {
	store := &fakeStore{
		logs:    []string{"最近登山にはまってる"},
		profile: memory.UserProfile{Name: "太郎"},
	}
	model := &fakeModel{text: `{"name":"太郎","interests":["登山"],"summary":"アウトドア派"}`}
	s := newTestSynthesizer(store, model)

	got, err := s.RunAnalysis(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	if len(got.Interests) != 1 || got.Interests[0] != "登山" {
		t.Errorf("Interests = %v", got.Interests)
	}
	if store.saved == nil {
		t.Fatal("merged profile not saved")
	}
	if store.saved.Summary != "アウトドア派" {
		t.Errorf("saved summary = %q", store.saved.Summary)
	}
}

func TestRunAnalysisStripsCodeFence(t *testing.T) {
	store := &fakeStore{logs: []string{"log"}}
	model := &fakeModel{text: "```json\n{\"name\":\"花子\"}\n```"}
	s := newTestSynthesizer(store, model)

	got, err := s.RunAnalysis(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	if got.Name != "花子" {
		t.Errorf("Name = %q, want 花子", got.Name)
	}
}

func TestRunAnalysisModelFailureKeepsOld(t *testing.T) {
	store := &fakeStore{
		logs:    []string{"log"},
		profile: memory.UserProfile{Name: "太郎"},
	}
	s := newTestSynthesizer(store, &fakeModel{err: errors.New("timeout")})

	got, err := s.RunAnalysis(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	if got.Name != "太郎" {
		t.Errorf("Name = %q, want unchanged profile", got.Name)
	}
	if store.saved != nil {
		t.Error("profile saved despite model failure")
	}
}

func TestRunAnalysisUnparseableKeepsOld(t *testing.T) {
	store := &fakeStore{
		logs:    []string{"log"},
		profile: memory.UserProfile{Name: "太郎"},
	}
	s := newTestSynthesizer(store, &fakeModel{text: "すみません、わかりません"})

	got, err := s.RunAnalysis(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	if got.Name != "太郎" {
		t.Error("profile changed despite parse failure")
	}
	if store.saved != nil {
		t.Error("profile saved despite parse failure")
	}
}

func TestParseProfileBareFence(t *testing.T) {
	p, ok := parseProfile("```\n{\"name\":\"x\"}\n```")
	if !ok || p.Name != "x" {
		t.Errorf("parseProfile = %+v, %v", p, ok)
	}
}
