package prompts

import "fmt"

// defaultMorningPrompt is the stock 07:00 reminder instruction for new
// users. The reminder text itself is generated by the model so each
// morning's greeting differs.
const defaultMorningPrompt = "おはようのあいさつと、今日の日付を添えて、今日も一日がんばれるような一言をお願いします。"

// DefaultMorningPrompt returns the stock morning reminder instruction.
func DefaultMorningPrompt() string {
	return defaultMorningPrompt
}

// ReminderPrompt frames a reminder rule's instruction as a scheduled task.
// It is injected as a user turn so the regular agent loop (tools included)
// produces the outgoing message.
func ReminderPrompt(name, instruction string) string {
	return fmt.Sprintf("【定時タスク: %s】\n次の指示に従ってメッセージを作成してください。作成したメッセージだけを返してください。\n\n%s", name, instruction)
}
