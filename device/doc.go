// Package device models GPU-resident resources as opaque handles.
//
// A Handle is what a cache entry owns: it knows its byte footprint, its
// pixel format and whether it is still backed by device memory. How the
// bytes get onto the device is the job of a Backend. Real GPU backends
// live outside this module; HostBackend keeps texture storage in process
// memory and is what tests and the batch driver use.
//
// # Format
//
// Format describes a texture: dimensions, channel layout, mipmap chain
// and sampling settings. Format.Size is the number of bytes the texture
// occupies on the device and is the unit every budget decision uses.
//
//	f := device.Format{Width: 1920, Height: 1080, Channels: 4, Depth: 1}
//	f.Size() // 8294400
package device
