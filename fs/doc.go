// Package fs provides filesystem abstractions for testability and
// fault injection.
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: filesystem operations (open, remove, rename, ...)
//
// Production code uses fs.Default ([LocalFS]). Tests inject [FaultyFS]
// to simulate I/O failures at specific points of the commit protocol:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("segs-stable", fs.Fault{FailOnSync: true})
//	// inject ffs into the component under test
package fs
