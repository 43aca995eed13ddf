// Package transcript segments meeting transcripts into topic-coherent,
// contiguous chunks for indexing.
//
// A transcript is an ordered sequence of turns (timecode, speaker, text).
// Chunker splits it into chunks that exactly cover the index range with no
// gaps and no overlaps, the contiguity invariant:
//
//	chunks[0].StartIdx == 0
//	chunks[last].EndIdx == len(items)-1
//	chunks[i+1].StartIdx == chunks[i].EndIdx+1
//
// Two modes are supported. The heuristic mode splits on speaker changes
// around a target chunk size without any model call and satisfies the
// invariant by construction. The AI-assisted mode asks a language model for
// labeled index ranges and then validates and repairs the result, so the
// invariant holds regardless of what the model returns.
//
// Chunking never fails: any model or parsing error falls back to a single
// chunk labeled "General Discussion" spanning the full transcript.
package transcript
