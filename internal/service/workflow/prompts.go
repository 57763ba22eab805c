package workflow

import (
	"strings"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// BuildEnhancedPrompt appends the collected assets to the prompt. Without
// assets the prompt is returned unchanged.
func BuildEnhancedPrompt(prompt string, assets []core.ImageResource) string {
	if len(assets) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n## Available assets\n")
	sb.WriteString("Embed these resources where they fit the page, using the exact URLs:\n")
	for _, a := range assets {
		sb.WriteString("- ")
		sb.WriteString(string(a.Category))
		sb.WriteString(": ")
		sb.WriteString(a.Description)
		sb.WriteString(" (")
		sb.WriteString(a.URL)
		sb.WriteString(")\n")
	}
	return sb.String()
}

// BuildFixPrompt turns a failed quality check into the next generation
// prompt. It replaces the enhanced prompt rather than extending it.
func BuildFixPrompt(q core.QualityResult) string {
	var sb strings.Builder
	sb.WriteString("The previously generated code has the following issues:\n")
	for _, e := range q.Errors {
		sb.WriteString("- ")
		sb.WriteString(e)
		sb.WriteString("\n")
	}
	if len(q.Suggestions) > 0 {
		sb.WriteString("\nSuggestions:\n")
		for _, s := range q.Suggestions {
			sb.WriteString("- ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nFix every issue above and regenerate the complete code.")
	return sb.String()
}
