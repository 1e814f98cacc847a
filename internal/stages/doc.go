// Package stages holds the pipeline stage executors: ingest pulls memos from
// remote storage, transcribe turns them into journal entries, summarize asks
// the assistant for a digest of the work window.
package stages
