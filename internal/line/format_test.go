package line

import (
	"strings"
	"testing"
)

func TestToPlainTextStripsMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bold", "これは**大事**です", "これは大事です"},
		{"heading", "# 今日の予定\n散歩", "今日の予定\n\n散歩"},
		{"link", "[天気](https://example.com)を確認", "天気を確認"},
		{"plain", "そのままのテキスト", "そのままのテキスト"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToPlainText(tt.in); got != tt.want {
				t.Errorf("ToPlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToPlainTextKeepsListLines(t *testing.T) {
	got := ToPlainText("- りんご\n- みかん\n- バナナ")
	for _, item := range []string{"りんご", "みかん", "バナナ"} {
		if !strings.Contains(got, item) {
			t.Fatalf("missing %q in %q", item, got)
		}
	}
	if lines := strings.Split(got, "\n"); len(lines) < 3 {
		t.Errorf("list items collapsed onto %d lines: %q", len(lines), got)
	}
}

func TestToPlainTextCollapsesBlankRuns(t *testing.T) {
	got := ToPlainText("一段落目\n\n二段落目\n\n\n\n三段落目")
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank run survived: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("短い"); got != "短い" {
		t.Errorf("short text changed: %q", got)
	}

	long := strings.Repeat("あ", maxMessageRunes+100)
	got := Truncate(long)
	runes := []rune(got)
	if len(runes) != maxMessageRunes+1 {
		t.Errorf("truncated length = %d runes", len(runes))
	}
	if runes[len(runes)-1] != '…' {
		t.Errorf("missing ellipsis: %q", string(runes[len(runes)-10:]))
	}
}
