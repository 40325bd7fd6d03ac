package prompt

import (
	"strings"
	"testing"

	"ai-motiondraft-be/pkg/store"
)

func caseDetails() *store.CaseDetails {
	return &store.CaseDetails{
		TaskType:  "motion to dismiss",
		Fields:    map[string]string{"client_name": "Acme Corp", "case_number": "23-cv-1042"},
		Narrative: "Acme was served outside the limitations period.",
	}
}

func TestDraftBuilderIncludesCaseFacts(t *testing.T) {
	out := NewDraftBuilder(caseDetails(), nil, nil).Build()

	for _, want := range []string{
		"motion to dismiss",
		"client_name: Acme Corp",
		"case_number: 23-cv-1042",
		"Acme was served outside the limitations period.",
		"ONLY valid JSON",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(out, "<reference_documents>") {
		t.Error("reference section rendered with no references")
	}
	if strings.Contains(out, "<document_excerpts>") {
		t.Error("excerpt section rendered with no excerpts")
	}
}

func TestDraftBuilderRendersReferencesAndExcerpts(t *testing.T) {
	refs := []string{"services-agreement.txt"}
	excerpts := []Excerpt{
		{Source: "services-agreement.txt", Text: "Section 12: venue lies in Delaware."},
	}

	out := NewDraftBuilder(caseDetails(), refs, excerpts).Build()

	if !strings.Contains(out, "- services-agreement.txt") {
		t.Error("reference name not listed")
	}
	if !strings.Contains(out, "[services-agreement.txt]") {
		t.Error("excerpt source not labeled")
	}
	if !strings.Contains(out, "Section 12: venue lies in Delaware.") {
		t.Error("excerpt text not quoted")
	}
}

func TestRefineBuilderCarriesPreviousDraftAndFeedback(t *testing.T) {
	previous := &store.Result{
		Provider: "provider-a",
		Document: &store.MotionDocument{
			Title:    "Motion to Dismiss",
			Sections: []store.Section{{Heading: "Argument", Body: "The claim is time-barred."}},
		},
	}

	out := NewRefineBuilder(caseDetails(), previous, "tighten the venue argument").Build()

	if !strings.Contains(out, "The claim is time-barred.") {
		t.Error("previous draft not included")
	}
	if !strings.Contains(out, "tighten the venue argument") {
		t.Error("user feedback not included")
	}
	if !strings.Contains(out, "change_notes") {
		t.Error("refine output format must ask for change notes")
	}
}

func TestRefineBuilderFallsBackToRawText(t *testing.T) {
	previous := &store.Result{Provider: "provider-a", RawText: "plain draft text"}

	out := NewRefineBuilder(caseDetails(), previous, "").Build()

	if !strings.Contains(out, "plain draft text") {
		t.Error("raw text fallback not rendered")
	}
	if strings.Contains(out, "<user_feedback>") {
		t.Error("feedback section rendered for the automatic pass")
	}
}
