package embedding

// EmbeddingProvider generates a vector for one piece of text. taskType is
// "RETRIEVAL_DOCUMENT" at indexing time and "RETRIEVAL_QUERY" at search
// time; backends that have no notion of task types may ignore it.
type EmbeddingProvider interface {
	Generate(text string, taskType string) (*EmbeddingResponse, error)
}
