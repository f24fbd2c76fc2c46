// Package blobstore abstracts the storage that holds array schemas and
// fragments.
//
// Every blob is written once with Put and is immutable afterwards; fragments
// are never modified, only superseded by newer ones. Implementations must be
// safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and ephemeral arrays
//   - LocalStore: local file system, atomic writes via rename
//   - minio.Store: MinIO and other S3-compatible services
//   - s3.Store: Amazon S3 with multipart uploads
//
// CachingStore wraps any of them with a block cache for remote reads; the
// array facade installs one with the WithBlockCache option.
package blobstore
