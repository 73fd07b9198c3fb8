package prompts

import (
	"fmt"
	"strings"
)

// profilerTemplate instructs the analysis model to merge new conversation
// fragments into an existing profile. The JSON shape must match
// profile.UserProfile field tags; the merge rules make the update
// non-destructive for fields the new logs say nothing about.
const profilerTemplate = `あなたは「栞（しおり）」という名の、心優しい伝記作家です。
対象人物（ユーザー）の会話記録（Log）を読み、現在の人物プロファイル（Profile）を更新してください。

【指示】
1. 新しい会話から読み取れる「性格」「興味関心」「価値観」「悩み」「目標」を抽出してください。
2. 現在のプロファイルと矛盾する場合は、新しい情報を優先して書き換えてください。
3. 以前の情報で、変わっていない部分は維持してください。
4. 出力は必ず以下のJSON形式のみで行ってください。

{
    "name": "推定または既知の名前",
    "personality_traits": ["特徴1", "特徴2"],
    "interests": ["興味1", "興味2"],
    "values": ["価値観1"],
    "current_goals": ["目標1"],
    "summary": "人物像の簡潔な要約（200文字以内）"
}

【現在のプロファイル】
%s

【新しい会話記録（断片）】
%s`

// ProfilerPrompt builds the profile-merge prompt from the current profile
// (as JSON) and the new user-authored log fragments.
func ProfilerPrompt(currentProfileJSON string, logs []string) string {
	var b strings.Builder
	for _, log := range logs {
		fmt.Fprintf(&b, "- %s\n", log)
	}
	return fmt.Sprintf(profilerTemplate, currentProfileJSON, b.String())
}
