// Package blobstore abstracts where source images are read from and where
// computed outputs are written to.
//
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local file system, reads through read-only mmap
//   - MemoryStore: in-process map, for tests and scratch pipelines
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//
// Blob names always use forward slashes, whatever the platform.
package blobstore
