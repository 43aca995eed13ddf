package rerank

// Overlap scan bounds for merging chunk content. Adjacent chunks from the
// same source often share boundary text; scanning from the largest window
// down finds the longest suffix/prefix overlap first.
const (
	mergeMaxOverlap = 200
	mergeMinOverlap = 50
)

// mergeSeparator joins contents when no overlap is found.
const mergeSeparator = "\n[...]\n"

// mergeContent concatenates b onto a. When a suffix of a equals a prefix of
// b (window sizes mergeMaxOverlap down to mergeMinOverlap), only the
// non-overlapping remainder of b is appended; otherwise the contents are
// joined with an explicit separator.
func mergeContent(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}

	maxW := mergeMaxOverlap
	if len(a) < maxW {
		maxW = len(a)
	}
	if len(b) < maxW {
		maxW = len(b)
	}

	for w := maxW; w >= mergeMinOverlap; w-- {
		if a[len(a)-w:] == b[:w] {
			return a + b[w:]
		}
	}
	return a + mergeSeparator + b
}
