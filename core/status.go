package core

import "fmt"

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchPending:     {BatchExtracting, BatchFailed, BatchCancelled},
	BatchExtracting:  {BatchClassifying, BatchProcessing, BatchFailed, BatchCancelled},
	BatchClassifying: {BatchProcessing, BatchFailed, BatchCancelled},
	BatchProcessing:  {BatchCompleted, BatchFailed, BatchCancelled},
	// Retry re-opens a finished batch for its failed episodes. A batch that
	// failed before its episodes existed starts over from pending.
	BatchCompleted: {BatchProcessing},
	BatchFailed:    {BatchProcessing, BatchPending},
	BatchCancelled: {BatchProcessing},
}

var episodeTransitions = map[EpisodeStatus][]EpisodeStatus{
	EpisodePending:    {EpisodeProcessing, EpisodeSkipped},
	EpisodeProcessing: {EpisodeCompleted, EpisodeFailed, EpisodeSkipped, EpisodePending},
	EpisodeFailed:     {EpisodePending, EpisodeProcessing},
	// A namespace override on a finished episode queues it for re-upload.
	EpisodeCompleted: {EpisodeFailed},
	// Retrying a cancelled batch requeues the episodes cancellation skipped.
	// Duplicates stay skipped; the coordinator enforces that.
	EpisodeSkipped: {EpisodePending},
}

// CanTransitionBatch reports whether a batch may move from one status to another.
func CanTransitionBatch(from, to BatchStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range batchTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTransitionEpisode reports whether an episode may move from one status to another.
func CanTransitionEpisode(from, to EpisodeStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range episodeTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionBatch moves b to status to, or returns ErrInvalidTransition.
func TransitionBatch(b *Batch, to BatchStatus) error {
	if !CanTransitionBatch(b.Status, to) {
		return fmt.Errorf("%w: batch %s %s -> %s", ErrInvalidTransition, b.ID, b.Status, to)
	}
	b.Status = to
	return nil
}

// TransitionEpisode moves e to status to, or returns ErrInvalidTransition.
func TransitionEpisode(e *Episode, to EpisodeStatus) error {
	if !CanTransitionEpisode(e.Status, to) {
		return fmt.Errorf("%w: episode %s %s -> %s", ErrInvalidTransition, e.ID, e.Status, to)
	}
	e.Status = to
	return nil
}
