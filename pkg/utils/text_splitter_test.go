package utils

import (
	"strings"
	"testing"
)

func TestSplitTextShortInput(t *testing.T) {
	chunks := SplitText("short", 100, 10)
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSplitTextOverlap(t *testing.T) {
	text := strings.Repeat("a", 25)
	chunks := SplitText(text, 10, 3)

	if len(chunks) < 3 {
		t.Fatalf("got %d chunks, want at least 3", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 10 {
			t.Errorf("chunk %d is %d chars, exceeds chunk size", i, len(c))
		}
	}

	// Reassembling with the step (chunkSize - overlap) must reproduce the input.
	var rebuilt strings.Builder
	step := 10 - 3
	for i, c := range chunks {
		if i == len(chunks)-1 {
			rebuilt.WriteString(c)
			break
		}
		rebuilt.WriteString(c[:step])
	}
	if rebuilt.String() != text {
		t.Fatal("stepped reassembly lost content")
	}
}

func TestSplitTextOverlapLargerThanChunk(t *testing.T) {
	// Degenerate config must not loop forever.
	text := strings.Repeat("b", 30)
	chunks := SplitText(text, 10, 20)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3 non-overlapping", len(chunks))
	}
}
