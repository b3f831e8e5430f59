// Package fs provides the file system operations used for atomic writes,
// behind an interface so tests can inject faults.
//
// Production code uses fs.Default (which is [LocalFS]):
//
//	err := fs.WriteFileAtomic(fs.Default, path, ".settings-*", data)
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp-", fs.Fault{FailOnSync: true})
//	// inject ffs into component under test
//
// The package does not take a context.Context. Local file operations are
// not interruptible at the syscall level; remote stores go through
// blobstore.Blob, which does.
package fs
