// Package imageio decodes image files into device.Image values and encodes
// them back.
//
// The codec is chosen from the file name:
//
//	.png .jpg .jpeg .gif   image/png, image/jpeg, image/gif
//	.bmp .tif .tiff        golang.org/x/image/bmp, golang.org/x/image/tiff
//	.webp                  golang.org/x/image/webp (decode only)
//	.pgm .ppm              binary NetPBM (P5, P6)
//	.raw .raw.zst .raw.lz4 uncompressed texture dump, optionally compressed
//
// Multi-byte channels are stored little-endian in device.Image.Pix.
package imageio
