package controlplane

import (
	"fmt"
	"strings"

	"github.com/zjrosen/stagehook/internal/orchestration/workflow"
)

// Marker returns the token embedded in every prompt for a stage. Seeing it in the
// transcript proves the prompt reached the agent.
func Marker(workflowID string, index int, sessionID string) string {
	return fmt.Sprintf("[WF:%s:%d:%s]", workflowID, index, sessionID)
}

// FormatPrompt renders the instruction for stage index of def. The stage template comes
// first so its slash command leads the text; the header carries the marker; the original
// request is appended when non-empty.
func FormatPrompt(def *workflow.Definition, index int, sessionID, originalRequest string) string {
	name := ""
	if st, ok := def.StageAt(index); ok {
		name = st.Name
	}
	body := def.Prompt(name)
	header := fmt.Sprintf("🔄 LONGRUN WORKFLOW - Stage %d/%d: %s %s",
		index+1, def.StageCount(), strings.ToUpper(name), Marker(def.Trigger, index, sessionID))

	if originalRequest != "" {
		return body + "\n\n" + header + "\n\nOriginal Request: " + originalRequest
	}
	return body + "\n\n" + header
}
