package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"ai-motiondraft-be/pkg/store"
)

// Excerpt is a retrieved passage from an indexed reference document.
type Excerpt struct {
	Source string
	Text   string
}

// DraftBuilder builds the stage-1 creation prompt from the intake payload.
type DraftBuilder struct {
	details    *store.CaseDetails
	references []string // display names of reference documents
	excerpts   []Excerpt
}

func NewDraftBuilder(details *store.CaseDetails, references []string, excerpts []Excerpt) *DraftBuilder {
	return &DraftBuilder{details: details, references: references, excerpts: excerpts}
}

func (b *DraftBuilder) Build() string {
	var prompt strings.Builder

	b.writeTask(&prompt)
	b.writeCaseFacts(&prompt)
	b.writeReferences(&prompt)
	b.writeExcerpts(&prompt)
	b.writeOutputFormat(&prompt)

	return prompt.String()
}

func (b *DraftBuilder) writeTask(prompt *strings.Builder) {
	prompt.WriteString("<task>\n")
	prompt.WriteString(fmt.Sprintf("Draft a complete %s as a structured legal document.\n", b.details.TaskType))
	prompt.WriteString("Ground every argument in the case facts below. Cite controlling case law.\n")
	prompt.WriteString("</task>\n\n")
}

func (b *DraftBuilder) writeCaseFacts(prompt *strings.Builder) {
	prompt.WriteString("<case>\n")
	for key, value := range b.details.Fields {
		prompt.WriteString(fmt.Sprintf("%s: %s\n", key, value))
	}
	prompt.WriteString("\nNarrative:\n")
	prompt.WriteString(b.details.Narrative)
	prompt.WriteString("\n</case>\n\n")
}

func (b *DraftBuilder) writeReferences(prompt *strings.Builder) {
	if len(b.references) == 0 {
		return
	}
	prompt.WriteString("<reference_documents>\n")
	for _, name := range b.references {
		prompt.WriteString(fmt.Sprintf("- %s\n", name))
	}
	prompt.WriteString("</reference_documents>\n\n")
}

func (b *DraftBuilder) writeExcerpts(prompt *strings.Builder) {
	if len(b.excerpts) == 0 {
		return
	}
	prompt.WriteString("<document_excerpts>\n")
	prompt.WriteString("Passages retrieved from the reference documents, most relevant first.\n")
	for _, ex := range b.excerpts {
		prompt.WriteString(fmt.Sprintf("[%s]\n%s\n\n", ex.Source, ex.Text))
	}
	prompt.WriteString("</document_excerpts>\n\n")
}

func (b *DraftBuilder) writeOutputFormat(prompt *strings.Builder) {
	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"title\": \"document title\",\n")
	prompt.WriteString("  \"sections\": [{\"heading\": \"...\", \"body\": \"...\"}],\n")
	prompt.WriteString("  \"citations\": [\"case name, citation\"]\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")
}

// RefineBuilder builds the stage-2 prompt. The refiner sees the original
// structured fields, the original narrative and the ENTIRE previous result
// as context, not a diff, and must report what it changed.
type RefineBuilder struct {
	details     *store.CaseDetails
	previous    *store.Result
	instruction string // user feedback; empty for the automatic pass
}

func NewRefineBuilder(details *store.CaseDetails, previous *store.Result, instruction string) *RefineBuilder {
	return &RefineBuilder{details: details, previous: previous, instruction: instruction}
}

func (b *RefineBuilder) Build() string {
	var prompt strings.Builder

	prompt.WriteString("<task>\n")
	prompt.WriteString("You are reviewing a draft legal document produced by another model.\n")
	prompt.WriteString("Improve its structure, argumentation and citations without changing the facts.\n")
	prompt.WriteString("</task>\n\n")

	if b.details != nil {
		prompt.WriteString("<case>\n")
		for key, value := range b.details.Fields {
			prompt.WriteString(fmt.Sprintf("%s: %s\n", key, value))
		}
		prompt.WriteString("\nNarrative:\n")
		prompt.WriteString(b.details.Narrative)
		prompt.WriteString("\n</case>\n\n")
	}

	prompt.WriteString("<previous_draft>\n")
	prompt.WriteString(b.renderPrevious())
	prompt.WriteString("\n</previous_draft>\n\n")

	if b.instruction != "" {
		prompt.WriteString("<user_feedback>\n")
		prompt.WriteString(b.instruction)
		prompt.WriteString("\n</user_feedback>\n\n")
	}

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"title\": \"document title\",\n")
	prompt.WriteString("  \"sections\": [{\"heading\": \"...\", \"body\": \"...\"}],\n")
	prompt.WriteString("  \"citations\": [\"case name, citation\"],\n")
	prompt.WriteString("  \"change_notes\": \"plain-language list of what you changed and why\"\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

func (b *RefineBuilder) renderPrevious() string {
	if b.previous == nil {
		return ""
	}
	if b.previous.Document != nil {
		// Hand the refiner the same shape it must produce.
		rendered, err := json.MarshalIndent(b.previous.Document, "", "  ")
		if err == nil {
			return string(rendered)
		}
	}
	return b.previous.RawText
}
