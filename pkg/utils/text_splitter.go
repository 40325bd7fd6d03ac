package utils

// SplitText cuts text into rune chunks of roughly chunkSize, each carrying
// 'overlap' runes from the previous chunk so embeddings keep boundary
// context. Character-based on purpose; a tokenizer-aware splitter would be
// more precise but ties us to one model family.
func SplitText(text string, chunkSize int, overlap int) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	totalLen := len(runes)

	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize // fallback if overlap >= chunkSize
	}

	for i := 0; i < totalLen; i += step {
		end := i + chunkSize
		if end > totalLen {
			end = totalLen
		}

		chunks = append(chunks, string(runes[i:end]))

		if end == totalLen {
			break
		}
	}

	return chunks
}
