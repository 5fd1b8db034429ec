package ingestion

import "errors"

var (
	// ErrBatchRepositoryRequired is returned when a batch repository is not provided.
	ErrBatchRepositoryRequired = errors.New("batch repository required")

	// ErrEpisodeRepositoryRequired is returned when an episode repository is not provided.
	ErrEpisodeRepositoryRequired = errors.New("episode repository required")

	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrProcessorRequired is returned when an episode processor is not provided.
	ErrProcessorRequired = errors.New("episode processor required")

	// ErrNamespaceRequired is returned when a batch has no namespace and
	// auto-detection is off.
	ErrNamespaceRequired = errors.New("namespace required unless auto-detect is enabled")

	// ErrArchiveRequired is returned when a batch has no source archive.
	ErrArchiveRequired = errors.New("archive path required")

	// ErrEmptyArchive is returned when an archive holds no transcripts.
	ErrEmptyArchive = errors.New("archive contains no transcripts")

	// ErrTranscriptTooLarge is returned for a transcript over the size limit.
	ErrTranscriptTooLarge = errors.New("transcript too large")

	// ErrBatchRunning is returned when an operation needs an idle batch.
	ErrBatchRunning = errors.New("batch is running")

	// ErrNotAwaitingConfirmation is returned by Confirm for a batch that is
	// not waiting in the classifying state.
	ErrNotAwaitingConfirmation = errors.New("batch is not awaiting confirmation")

	// ErrBatchFinished is returned by Cancel for a batch in a final state.
	ErrBatchFinished = errors.New("batch already finished")

	// ErrCancelled is the episode error recorded when a batch cancellation
	// interrupts an upload.
	ErrCancelled = errors.New("cancelled")

	// ErrVectorStoreUnavailable is returned when the vector store cannot be
	// reached before processing.
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")
)
