// Package ingestion turns uploaded transcript archives into vectors.
//
// A Coordinator owns the batch state machine:
//
//	pending -> extracting -> (classifying) -> processing -> completed | failed | cancelled
//
// Extraction creates one episode per transcript. Auto-detect batches stop in
// classifying until Confirm is called. Processing hands each pending episode,
// in archive order, to the Processor, which deduplicates by content hash,
// distills, classifies and uploads it, persisting its work after every step.
//
// The Pipeline runs several batches at once on a worker pool, and the
// Supervisor resubmits batches a crashed process left behind. Nothing is
// held only in memory: a batch can always be resumed from what is stored.
package ingestion
