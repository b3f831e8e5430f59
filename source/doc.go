// Package source connects cache registries to blob stores.
//
// Loader decodes images from any blobstore.BlobStore on a cache miss and
// Persister writes computed outputs back. Both resolve keys to blob names the
// same way, so a key written through a Persister can later be reloaded by a
// Loader on the same store.
//
// A Throttle bounds how hard loaders hit the underlying store: concurrent
// reads, bytes per second, and host memory held by in-flight decodes.
package source
