package imageio

import (
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/hupe1980/vramcache/device"
)

// stdCodec adapts an image.Image decoder/encoder pair.
type stdCodec struct {
	name   string
	decode func(io.Reader) (image.Image, error)
	encode func(io.Writer, image.Image) error
}

func (c stdCodec) Name() string { return c.name }

func (c stdCodec) Decode(r io.Reader) (*device.Image, error) {
	m, err := c.decode(r)
	if err != nil {
		return nil, err
	}
	return FromImage(m), nil
}

func (c stdCodec) Encode(w io.Writer, img *device.Image) error {
	if c.encode == nil {
		return ErrEncodeUnsupported
	}
	m, err := ToImage(img)
	if err != nil {
		return err
	}
	return c.encode(w, m)
}

var (
	pngCodec = stdCodec{
		name:   "png",
		decode: png.Decode,
		encode: func(w io.Writer, m image.Image) error {
			enc := png.Encoder{CompressionLevel: png.BestSpeed}
			return enc.Encode(w, m)
		},
	}

	jpegCodec = stdCodec{
		name:   "jpg",
		decode: jpeg.Decode,
		encode: func(w io.Writer, m image.Image) error {
			return jpeg.Encode(w, m, &jpeg.Options{Quality: 95})
		},
	}

	gifCodec = stdCodec{
		name:   "gif",
		decode: gif.Decode,
		encode: func(w io.Writer, m image.Image) error {
			return gif.Encode(w, m, nil)
		},
	}

	bmpCodec = stdCodec{
		name:   "bmp",
		decode: bmp.Decode,
		encode: bmp.Encode,
	}

	tiffCodec = stdCodec{
		name:   "tiff",
		decode: tiff.Decode,
		encode: func(w io.Writer, m image.Image) error {
			return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
		},
	}

	webpCodec = stdCodec{
		name:   "webp",
		decode: webp.Decode,
	}
)
