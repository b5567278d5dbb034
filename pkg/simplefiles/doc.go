// Package simplefiles provides a file-storage gateway core that keeps blob
// content and per-file metadata in an understood relationship.
//
// It exposes a single Service interface that orchestrates upload, download,
// soft-delete and listing of files. Blobs live in a BlobStore (e.g., memory,
// filesystem, S3) and file records live in a MetadataStore (e.g., memory,
// Postgres, DynamoDB). Implementations are provided under subpackages.
//
// Consistency Model
//
// The two stores are eventually, not atomically, consistent. Upload writes the
// blob before the record, so a failed record write leaves an orphan blob that
// listing never surfaces. Delete removes the blob before tombstoning the
// record, so a failed tombstone leaves an active record without a blob. Both
// windows are reported to the caller as a PartialFailureError and are never
// repaired automatically. CompleteDelete lets the caller retry the tombstone
// of a partially deleted file.
//
// Files are addressed by filename in every operation. Uploading an existing
// filename overwrites the blob and tombstones the records it supersedes.
// Records are keyed by FileID so that every upload keeps its history.
//
// Concurrent uploads of one filename are not serialized. The blob store keeps
// the last blob written and the metadata store keeps the last record written;
// when those come from different uploads the active record describes bytes it
// did not write until the next upload or delete of that filename.
package simplefiles
