package session

import (
	"fmt"
	"strings"

	"github.com/mirepoix-app/mirepoix/internal/cook"
	"github.com/mirepoix-app/mirepoix/internal/recipe"
)

// buildInstructions renders the system prompt for one connection: the full
// recipe, the step the user is currently on, and the navigation rules the
// assistant must follow. Rebuilt from current state on every (re)connect.
func buildInstructions(rec recipe.Recipe, snap cook.Snapshot, language string) string {
	var b strings.Builder

	b.WriteString("You are a calm, concise cooking guide speaking to someone ")
	b.WriteString("who is actively cooking in a possibly noisy kitchen. ")
	b.WriteString("Keep answers short and practical.\n\n")

	fmt.Fprintf(&b, "Recipe: %s (serves %d)\n", rec.Title, snap.Servings)
	fmt.Fprintf(&b, "Steps (%d total):\n", len(rec.Steps))
	for i, step := range rec.Steps {
		if i < len(rec.StepTimestamps) {
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, rec.StepTimestamps[i], step)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}

	fmt.Fprintf(&b, "\nThe user is currently on step %d.\n\n", snap.StepIndex+1)

	b.WriteString("Rules:\n")
	b.WriteString("- When the user wants to move between steps, call nextStep, previousStep, or goToStep. Never describe a step change without calling the tool.\n")
	b.WriteString("- When the user asks for a timer, call startTimer with the duration from the step, then confirm briefly.\n")
	b.WriteString("- When a step implies a heat level, call setTemperature.\n")
	b.WriteString("- Answer questions about the current step from the step text above.\n")

	if language != "" {
		fmt.Fprintf(&b, "- Speak %s.\n", language)
	}
	return b.String()
}
