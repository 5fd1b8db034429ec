// Package upload embeds distilled chunks and writes them to a vector store.
//
// Uploads are resumable. Chunks are upserted in fixed-size groups and the
// confirmed count for each (episode, namespace) pair is persisted after
// every group through a storage.ProgressStore. Re-running an upload from the
// persisted count never re-embeds finished groups, and replaying a group
// after a crash between upsert and persist is a harmless overwrite because
// vector IDs are the chunk IDs.
package upload
