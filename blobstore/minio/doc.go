// Package minio provides a BlobStore backed by MinIO or any S3-compatible
// server (Ceph, SeaweedFS, Garage).
//
// # Basic Usage
//
//	store, err := minioblob.Dial(ctx, minioblob.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "textures",
//	    Prefix:    "sources/",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	loader := source.NewLoader(store)
//
// Uploaded outputs carry a Content-Type derived from the blob extension, so
// the bucket can be browsed directly.
package minio
