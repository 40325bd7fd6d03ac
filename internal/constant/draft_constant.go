package constant

// Registry keys for the two drafting providers. The concrete backend behind
// each key is configuration (ollama, openai); the pipeline only ever sees
// the role.
const (
	ProviderKeyA = "provider-a"
	ProviderKeyB = "provider-b"
)

// Task types the intake dialogue recognises.
const (
	TaskTypeMotion   = "motion"
	TaskTypeAnalysis = "analysis"
)
