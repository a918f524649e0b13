package assistant

import (
	"strings"

	"project-chat/internal/models"
)

// TriggerMarker in a message body asks the assistant to answer.
const TriggerMarker = "@" + models.AssistantName

// ExtractPrompt reports whether body addresses the assistant and returns the
// body with every marker occurrence removed. Surrounding whitespace is kept.
func ExtractPrompt(body string) (string, bool) {
	if !strings.Contains(body, TriggerMarker) {
		return "", false
	}
	return strings.ReplaceAll(body, TriggerMarker, ""), true
}
