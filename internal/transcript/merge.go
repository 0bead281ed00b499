package transcript

import "strings"

// overlapWindow is the maximum run of words compared between the tail of the
// accumulated transcript and the head of a new chunk's text.
const overlapWindow = 10

// Merge strips from next the longest word run (up to overlapWindow words)
// that case-insensitively duplicates the tail of previous, and returns the
// remainder. Chunk overlap guarantees some audio is re-transcribed across a
// boundary; this is what keeps those words from appearing twice.
func Merge(previous, next string) string {
	prevWords := strings.Fields(previous)
	nextWords := strings.Fields(next)
	if len(prevWords) == 0 || len(nextWords) == 0 {
		return next
	}

	max := overlapWindow
	if len(prevWords) < max {
		max = len(prevWords)
	}
	if len(nextWords) < max {
		max = len(nextWords)
	}

	for n := max; n >= 1; n-- {
		if wordsEqualFold(prevWords[len(prevWords)-n:], nextWords[:n]) {
			return strings.Join(nextWords[n:], " ")
		}
	}
	return next
}

func wordsEqualFold(a, b []string) bool {
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
