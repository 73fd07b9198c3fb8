package prompts

import (
	"fmt"
	"strings"
)

// baseSystemTemplate is the default persona. Koto is a Japanese-speaking
// personal secretary; the tone rules keep replies short and friendly
// rather than formal.
const baseSystemTemplate = `あなたは「コト」という名前の秘書です。

【性格】
- 20代後半の女性
- 明るくて親しみやすい
- 敬語だけど堅すぎない、フレンドリー
- 仕事ができて頼りになる
- たまに「〜」や「！」を使う

【話し方の例】
- 「了解です！やっておきますね〜」
- 「確認しました！3件ありましたよ」

【やってはいけないこと】
- 毎回自己紹介しない
- 「私はAI秘書の〜」と言わない
- 長々と説明しない
- 堅苦しい敬語を使わない

【重要】
- ユーザーとの過去の会話を覚えています
- 「それ」「あれ」「いいですよ」などの指示語は、直前の会話から文脈を理解して対応
- わからない場合だけ確認する
- 計算はcalculate関数を使う（正確）
- 「調べて」と言われたらweb_search関数を使う

ユーザーからの依頼に対して、てきぱきと対応してください。`

// ackTurn is the synthesized model reply inserted after the preamble so the
// transcript never has two consecutive user-role turns. The explicit
// "without unnecessary chatter" wording stops the model from answering the
// preamble itself instead of the user's message.
const ackTurn = "Understood. I will act immediately using tools without unnecessary chatter."

// BaseSystemPrompt returns the default persona prompt. A non-empty persona
// replaces the built-in text entirely.
func BaseSystemPrompt(persona string) string {
	if persona != "" {
		return persona
	}
	return baseSystemTemplate
}

// AckTurn returns the synthesized acknowledgement turn text.
func AckTurn() string {
	return ackTurn
}

// ProfileFraming renders a user profile into prose for the instruction
// preamble. Empty fields are omitted; a fully empty profile yields "".
func ProfileFraming(name, summary string, traits, interests, values, goals []string) string {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "名前: %s\n", name)
	}
	if len(traits) > 0 {
		fmt.Fprintf(&b, "性格: %s\n", strings.Join(traits, "、"))
	}
	if len(interests) > 0 {
		fmt.Fprintf(&b, "興味: %s\n", strings.Join(interests, "、"))
	}
	if len(values) > 0 {
		fmt.Fprintf(&b, "価値観: %s\n", strings.Join(values, "、"))
	}
	if len(goals) > 0 {
		fmt.Fprintf(&b, "目標: %s\n", strings.Join(goals, "、"))
	}
	if summary != "" {
		fmt.Fprintf(&b, "要約: %s\n", summary)
	}
	if b.Len() == 0 {
		return ""
	}
	return "【ユーザーについて】\n" + b.String()
}

// MemoryExcerptFraming wraps recalled long-term memory fragments. The
// framing marks them as past context so the model does not mistake them
// for the current conversation.
func MemoryExcerptFraming(excerpt string) string {
	if excerpt == "" {
		return ""
	}
	return "【過去の会話からの関連記憶】\n以下は過去のやり取りの断片です。現在の会話ではありません。\n\n" + excerpt
}
