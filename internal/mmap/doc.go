// Package mmap opens texture source files as read-only byte views.
//
// Files of at least DefaultMinMapSize bytes are mapped with mmap(2) (or
// MapViewOfFile on Windows); smaller files are read into the heap, where a
// mapping would cost more than the copy. Either way the View hands out
// slices of the file without further copying.
//
//	v, err := mmap.Open("textures/albedo.raw.lz4", mmap.WithHint(mmap.HintSequential))
//	if err != nil { ... }
//	defer v.Close()
//
//	hdr, err := v.Region(0, 28)
//
// Slices returned by a View are invalid once Close returns.
package mmap
