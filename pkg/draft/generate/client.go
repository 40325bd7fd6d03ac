package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"ai-motiondraft-be/pkg/draft/prompt"
	"ai-motiondraft-be/pkg/llm"
	"ai-motiondraft-be/pkg/store"
)

// Request describes one single-shot generation call.
type Request struct {
	Details        *store.CaseDetails
	ReferenceNames []string
	Excerpts       []prompt.Excerpt
	Providers      []string
	MaxTokens      int
}

// Generator is the single-shot multi-provider generation collaborator.
// The result map is keyed by provider; every requested provider gets an
// entry, failed ones with Success=false.
type Generator interface {
	Generate(ctx context.Context, req Request) (map[string]*store.Result, error)
}

// Refiner is the refine collaborator. It receives the entire previous result
// as context and returns the improved result plus change notes.
type Refiner interface {
	Refine(
		ctx context.Context,
		details *store.CaseDetails,
		previous *store.Result,
		instruction string,
		provider string,
	) (*store.Result, string, error)
}

// Client implements Generator and Refiner on top of the provider registry.
type Client struct {
	registry *llm.Registry
	logger   *log.Logger
}

func NewClient(registry *llm.Registry, logger *log.Logger) *Client {
	return &Client{registry: registry, logger: logger}
}

var (
	_ Generator = &Client{}
	_ Refiner   = &Client{}
)

// Generate fans the same request out to every provider. Fan-out races are
// intentional here: results are keyed by provider so arrival order does not
// matter, and one provider failing never aborts its siblings.
func (c *Client) Generate(ctx context.Context, req Request) (map[string]*store.Result, error) {
	if len(req.Providers) == 0 {
		return nil, fmt.Errorf("no providers requested")
	}

	draftPrompt := prompt.NewDraftBuilder(req.Details, req.ReferenceNames, req.Excerpts).Build()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]*store.Result, len(req.Providers))
	)

	for _, name := range req.Providers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			result := c.callProvider(ctx, name, draftPrompt, req.MaxTokens)

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name)
	}

	wg.Wait()
	return results, nil
}

func (c *Client) callProvider(ctx context.Context, name, draftPrompt string, maxTokens int) *store.Result {
	provider := c.registry.Get(name)
	if provider == nil {
		c.logger.Printf("[GENERATE] Unknown provider %q", name)
		return &store.Result{
			Provider: name,
			Meta:     map[string]interface{}{"error": fmt.Sprintf("unknown provider %q", name)},
		}
	}

	opts := []llm.Option{llm.WithTemperature(0.4)}
	if maxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(maxTokens))
	}

	response, err := provider.Generate(ctx, draftPrompt, opts...)
	if err != nil {
		c.logger.Printf("[GENERATE] Provider %s failed: %v", name, err)
		return &store.Result{
			Provider: name,
			Meta:     map[string]interface{}{"error": err.Error()},
		}
	}

	result := parseResult(name, response)
	c.logger.Printf("[GENERATE] Provider %s done (structured=%v)", name, result.Document != nil)
	return result
}

// Refine invokes the refiner provider with the full previous result as
// context. instruction is empty for the automatic stage-2 pass and carries
// the user's feedback in the post-completion loop.
func (c *Client) Refine(
	ctx context.Context,
	details *store.CaseDetails,
	previous *store.Result,
	instruction string,
	providerName string,
) (*store.Result, string, error) {

	provider := c.registry.Get(providerName)
	if provider == nil {
		return nil, "", fmt.Errorf("unknown provider %q", providerName)
	}

	refinePrompt := prompt.NewRefineBuilder(details, previous, instruction).Build()

	response, err := provider.Generate(ctx, refinePrompt, llm.WithTemperature(0.3))
	if err != nil {
		return nil, "", fmt.Errorf("refine call failed: %w", err)
	}

	result := parseResult(providerName, response)
	notes := changeNotes(result)
	c.logger.Printf("[REFINE] Provider %s done (structured=%v)", providerName, result.Document != nil)
	return result, notes, nil
}

func changeNotes(result *store.Result) string {
	if result == nil || result.Meta == nil {
		return ""
	}
	if notes, ok := result.Meta["change_notes"].(string); ok {
		return notes
	}
	return ""
}

// refinedDocument is the wire shape both stages share; change_notes is only
// present on refine responses.
type refinedDocument struct {
	Title       string          `json:"title"`
	Sections    []store.Section `json:"sections"`
	Citations   []string        `json:"citations"`
	ChangeNotes string          `json:"change_notes"`
}

func parseResult(providerName, response string) *store.Result {
	jsonContent := extractJSON(response)
	if jsonContent != "" {
		var doc refinedDocument
		if err := json.Unmarshal([]byte(jsonContent), &doc); err == nil && doc.Title != "" {
			result := &store.Result{
				Success:  true,
				Provider: providerName,
				Document: &store.MotionDocument{
					Title:     doc.Title,
					Sections:  doc.Sections,
					Citations: doc.Citations,
				},
			}
			if doc.ChangeNotes != "" {
				result.Meta = map[string]interface{}{"change_notes": doc.ChangeNotes}
			}
			return result
		}
	}

	// Raw fallback: the call succeeded but the payload was not structured.
	return &store.Result{
		Success:  true,
		Provider: providerName,
		RawText:  response,
	}
}

func extractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}

	return response[startIdx : endIdx+1]
}
