package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"ai-motiondraft-be/pkg/draft/docs"
	"ai-motiondraft-be/pkg/llm"
	"ai-motiondraft-be/pkg/store"
)

// Endpoint is the intake collaborator: given the full message sequence, the
// task type and the resolved document set, it either asks the next
// clarifying question or declares the payload complete.
type Endpoint interface {
	Clarify(ctx context.Context, messages []store.Message, taskType string, references []docs.Reference) (*Outcome, error)
}

// Resolver implements Endpoint with a pure LLM call: the transcript goes in,
// structured JSON comes out. No generation happens here.
type Resolver struct {
	provider llm.Provider
	logger   *log.Logger
}

func NewResolver(provider llm.Provider, logger *log.Logger) *Resolver {
	return &Resolver{provider: provider, logger: logger}
}

var _ Endpoint = &Resolver{}

func (r *Resolver) Clarify(
	ctx context.Context,
	messages []store.Message,
	taskType string,
	references []docs.Reference,
) (*Outcome, error) {

	prompt := r.buildPrompt(messages, taskType, references)

	// Temperature 0 for deterministic classification
	response, err := r.provider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		return nil, fmt.Errorf("intake call failed: %w", err)
	}

	outcome, err := r.parseOutcome(response)
	if err != nil {
		r.logger.Printf("[INTAKE] Parse failed, asking generic follow-up: %v", err)
		// Under-specification is the steady state of Collecting, so a
		// malformed reply degrades to one more question instead of failing.
		return &Outcome{
			Ready:    false,
			Question: "Could you tell me more about the case so I can draft this properly?",
		}, nil
	}

	r.logger.Printf("[INTAKE] Round result: ready=%v fields=%d", outcome.Ready, len(outcome.Fields))
	return outcome, nil
}

func (r *Resolver) buildPrompt(messages []store.Message, taskType string, references []docs.Reference) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are the intake assistant for a legal drafting tool.\n")
	prompt.WriteString("Your ONLY job is to decide whether enough information has been gathered to draft the requested document.\n")
	prompt.WriteString("You do NOT draft anything here.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString(fmt.Sprintf("<task_type>%s</task_type>\n\n", taskType))

	if len(references) > 0 {
		prompt.WriteString("<reference_documents>\n")
		for _, ref := range references {
			prompt.WriteString(fmt.Sprintf("- %s (%s)\n", ref.Name, ref.Type))
		}
		prompt.WriteString("</reference_documents>\n\n")
	}

	prompt.WriteString("<conversation>\n")
	for _, msg := range messages {
		prompt.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
	}
	prompt.WriteString("</conversation>\n\n")

	prompt.WriteString("<required_fields>\n")
	for _, key := range RequiredFields {
		prompt.WriteString(fmt.Sprintf("- %s\n", key))
	}
	prompt.WriteString("</required_fields>\n\n")

	prompt.WriteString("<rules>\n")
	prompt.WriteString("1. Extract every field value the conversation already contains.\n")
	prompt.WriteString("2. If one or more required fields are missing, pick the SINGLE most important one and ask for it.\n")
	prompt.WriteString("3. Ask one question at a time, in plain language.\n")
	prompt.WriteString("4. When all required fields are present, set status to ready and summarize the facts as a narrative.\n")
	prompt.WriteString("</rules>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"status\": \"ready|needs_info\",\n")
	prompt.WriteString("  \"question\": \"next clarifying question if needs_info, otherwise empty\",\n")
	prompt.WriteString("  \"fields\": {\"client_name\": \"...\", \"case_number\": \"...\"},\n")
	prompt.WriteString("  \"narrative\": \"factual summary of the case so far\",\n")
	prompt.WriteString("  \"task_type\": \"normalized task type\"\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

type intakeResponse struct {
	Status    string            `json:"status"`
	Question  string            `json:"question"`
	Fields    map[string]string `json:"fields"`
	Narrative string            `json:"narrative"`
	TaskType  string            `json:"task_type"`
}

func (r *Resolver) parseOutcome(response string) (*Outcome, error) {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var parsed intakeResponse
	if err := json.Unmarshal([]byte(jsonContent), &parsed); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}

	ready := strings.EqualFold(parsed.Status, "ready")
	if !ready && parsed.Question == "" {
		return nil, fmt.Errorf("needs_info response without a question")
	}

	return &Outcome{
		Ready:     ready,
		Question:  parsed.Question,
		Fields:    parsed.Fields,
		Narrative: parsed.Narrative,
		TaskType:  strings.ToLower(parsed.TaskType),
	}, nil
}

func extractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}

	return response[startIdx : endIdx+1]
}
