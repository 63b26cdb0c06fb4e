package prompt

import (
	"fmt"
	"strings"

	"workpilot/internal/domain"
)

const maxExistingTasks = 30

// TaskGeneration asks for a JSON array of task suggestions for one project.
func TaskGeneration(p domain.Project, existing []domain.Task) string {
	var b strings.Builder
	b.WriteString("You break project goals into concrete, actionable tasks.\n")
	fmt.Fprintf(&b, "Project: %s [%s]\n", orNone(p.Name), orNone(p.Status))
	fmt.Fprintf(&b, "Description: %s\n", orNone(p.Description))
	section(&b, fmt.Sprintf("Existing tasks (%d)", len(existing)))
	list(&b, len(existing), maxExistingTasks, true, func(i int) string {
		return fmt.Sprintf("%s [%s]", orNone(existing[i].Title), orNone(existing[i].Status))
	})
	b.WriteString("\nDo not repeat existing tasks. Reply with only a JSON array, no prose, where each element is\n")
	b.WriteString(`{"title": string, "description": string, "priority": "low"|"medium"|"high"|"urgent"}` + "\n")
	return b.String()
}

// TranscriptCleanup instructs the model to tidy a raw speech transcript.
func TranscriptCleanup() string {
	return "You clean up speech-to-text transcripts. Fix punctuation, casing and obvious recognition errors, " +
		"remove filler words and false starts, and keep the speaker's meaning and language. " +
		"Reply with the cleaned transcript only.\n"
}
