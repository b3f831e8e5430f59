// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("textures/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	loader := source.NewLoader(store)
//
// # Features
//
//   - Range reads, so decoders can pull headers without the full object
//   - Multipart uploads for large computed outputs
//   - CRC32C integrity checks on uploads
//   - Automatic pagination for listing
package s3
