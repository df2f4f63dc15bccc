package tools

// ErrorResult formats a tool failure for the model with an optional recovery hint.
// If hint is non-empty, formats as "Error: {msg}. {hint}".
// Tool failures are returned as text so the model can see them and self-correct.
func ErrorResult(msg, hint string) string {
	text := "Error: " + msg
	if hint != "" {
		text += ". " + hint
	}
	return text
}
