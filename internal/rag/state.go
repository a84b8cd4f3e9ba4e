// Package rag turns free-text queries into ranked, rendered context
// blocks backed by the vector repository.
package rag

// Phase names a step in the retrieval/indexing progress state machine.
// Transitions are one-directional within a logical operation; each
// operation resets to its own initial phase when invoked. Idle has no
// visual representation.
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseReadingMentionables Phase = "reading-mentionables"
	PhaseReadingFiles        Phase = "reading-files"
	PhaseReadingFilesDone    Phase = "reading-files-done"
	PhaseReadingWebsites     Phase = "reading-websites"
	PhaseReadingWebsitesDone Phase = "reading-websites-done"
	PhaseQuerying            Phase = "querying"
	PhaseQueryingDone        Phase = "querying-done"
	PhaseIndexing            Phase = "indexing"
)

// State is one progress event. The chunk and file counts are meaningful
// only in PhaseIndexing.
type State struct {
	Phase Phase

	CompletedChunks int
	TotalChunks     int
	TotalFiles      int
}

// StateFunc receives progress states. May be nil.
type StateFunc func(State)
