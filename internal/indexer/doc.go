// Package indexer keeps the SQLite image index in step with the media
// directory.
//
// Each run lists every readable image under the root, records its size,
// modification time, MIME type and EXIF capture time, and writes the rows
// in batched transactions. Rows whose files were not seen are pruned once
// every batch has committed, so an interrupted run never shrinks the index.
//
// Runs happen:
//   - once at startup, in the background
//   - on a fixed interval (INDEX_INTERVAL)
//   - when a cheap poll of directory modification times sees a change
//     (INDEX_POLL_INTERVAL)
//   - on demand via TriggerIndex
//
// Only one run executes at a time; overlapping requests get ErrInProgress.
package indexer
