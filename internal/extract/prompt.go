package extract

import (
	_ "embed"
	"strings"

	"github.com/spigell/resume-matcher/internal/records"
)

// PromptVersion changes whenever a template changes, so cached extractions made
// with an older prompt are not reused.
const PromptVersion = "v1"

//go:embed prompts/resume.md
var resumePrompt string

//go:embed prompts/position.md
var positionPrompt string

const noMapping = "(none)"

// BuildPrompt renders the template for kind around the document text.
func BuildPrompt(kind records.Kind, text, techMapping string) string {
	template := resumePrompt
	if kind == records.KindPosition {
		template = positionPrompt
	}

	if techMapping = strings.TrimSpace(techMapping); techMapping == "" {
		techMapping = noMapping
	}

	prompt := strings.ReplaceAll(template, "{{TECH_MAPPING}}", techMapping)
	return strings.ReplaceAll(prompt, "{{DOCUMENT_TEXT}}", strings.TrimSpace(text))
}
