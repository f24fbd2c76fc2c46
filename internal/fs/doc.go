// Package fs abstracts the file system under blobstore.LocalStore so tests
// can inject I/O faults.
//
//   - [LocalFS]: the os package
//   - [FaultyFS]: wraps a FileSystem and fails writes, syncs, closes or
//     renames of matching files
//
// Operations take no context.Context: they are local syscalls that cannot
// be interrupted. Cancellation is handled one level up by the BlobStore.
package fs
