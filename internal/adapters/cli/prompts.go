package cli

import (
	"strings"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

const plainPageSystemPrompt = `You are a senior front-end engineer. Build the requested website as one
self-contained HTML page with inline <style> and <script>. Reply with a short
introduction followed by exactly one fenced code block tagged html that holds
the complete page. Use the provided asset URLs where they fit.`

const multiFileSystemPrompt = `You are a senior front-end engineer. Build the requested website as three
files. Reply with exactly three fenced code blocks tagged html, css and
javascript. The HTML must link style.css and script.js. Use the provided asset
URLs where they fit.`

const structuredProjectSystemPrompt = `You are a senior front-end engineer. Create a Vue 3 project with Vite in the
current directory using your file tools. The project must contain
package.json with a "build" script that emits to dist/, index.html, and
sources under src/. Do not run npm yourself. Keep the project small and
buildable. Use the provided asset URLs where they fit.`

const planSystemPrompt = `You plan the assets for a website. Reply with JSON only, matching:
{"contentImageTasks":[{"query":"..."}],
 "illustrationTasks":[{"query":"..."}],
 "diagramTasks":[{"mermaidCode":"...","description":"..."}],
 "logoTasks":[{"description":"..."}]}
Use English search queries. Leave a list empty when the site does not need
that kind of asset. Plan at most three tasks per list.`

const classifySystemPrompt = `You choose how a website should be generated. Reply with JSON only:
{"generationType":"plain_page"|"multi_file"|"structured_project"}
Use plain_page for simple single pages, multi_file for pages with notable
styling or scripting, and structured_project for multi-page applications.`

const qualitySystemPrompt = `You review generated website code. Report syntax errors, broken references
between files, and missing required files. Ignore style preferences. Reply
with JSON only:
{"isValid":true|false,"errors":["..."],"suggestions":["..."]}`

// systemPromptFor returns the generation instructions for a type.
func systemPromptFor(t core.GenerationType) string {
	switch t {
	case core.GenerationMultiFile:
		return multiFileSystemPrompt
	case core.GenerationStructuredProject:
		return structuredProjectSystemPrompt
	default:
		return plainPageSystemPrompt
	}
}

// buildPromptWithHistory renders earlier turns ahead of the current prompt,
// since the CLI takes a single text input.
func buildPromptWithHistory(prompt string, history []core.HistoryMessage) string {
	if len(history) == 0 {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString("<conversation_history>\n")
	for _, msg := range history {
		switch msg.Role {
		case core.RoleUser:
			sb.WriteString("<user>\n")
			sb.WriteString(msg.Content)
			sb.WriteString("\n</user>\n")
		case core.RoleAI:
			sb.WriteString("<assistant>\n")
			sb.WriteString(msg.Content)
			sb.WriteString("\n</assistant>\n")
		}
	}
	sb.WriteString("</conversation_history>\n\n")
	sb.WriteString("<current_message>\n")
	sb.WriteString(prompt)
	sb.WriteString("\n</current_message>")
	return sb.String()
}
