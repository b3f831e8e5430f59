// Package settings persists small named values grouped by module.
//
// The cache system stores exactly one of them: the shared device budget
// under module "ImagesCollection", key "MaxDeviceOccupancy". Backends:
//
//   - MemoryStore: process-local, for tests
//   - FileStore: one JSON document on disk
//   - SQLiteStore: a table in a SQLite database (pure Go driver)
//   - DynamoStore: one item per setting in a DynamoDB table
//
// Open picks a backend from a URI.
package settings
