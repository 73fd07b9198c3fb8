// Package prompts contains the prompt text sent to the model.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation, benefit from compile-time
// embedding, and can be validated by tests. Per-user persona overrides live
// in the user config directory; this package holds the defaults and the
// instructions for internal operations (profile analysis, reminders).
package prompts
