package imageio

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/hupe1980/vramcache/device"
)

func alloc(w, h, channels, depth int) *device.Image {
	f := layout(w, h, channels, depth)
	return &device.Image{Format: f, Pix: make([]byte, f.BaseSize())}
}

func layout(w, h, channels, depth int) device.Format {
	return device.Format{
		Width:    w,
		Height:   h,
		Channels: channels,
		Depth:    depth,
		Sampling: device.DefaultSampling,
	}
}

// FromImage converts m into a device image.
//
// 8-bit gray stays single channel, 16-bit sources keep 16 bits per channel
// and everything else becomes 8-bit RGBA.
func FromImage(m image.Image) *device.Image {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := m.(type) {
	case *image.Gray:
		img := alloc(w, h, 1, 1)
		for y := range h {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(img.Pix[y*w:(y+1)*w], src.Pix[off:off+w])
		}
		return img

	case *image.NRGBA:
		img := alloc(w, h, 4, 1)
		for y := range h {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(img.Pix[y*w*4:(y+1)*w*4], src.Pix[off:off+w*4])
		}
		return img

	case *image.Gray16:
		img := alloc(w, h, 1, 2)
		for y := range h {
			for x := range w {
				v := src.Gray16At(b.Min.X+x, b.Min.Y+y).Y
				binary.LittleEndian.PutUint16(img.Pix[(y*w+x)*2:], v)
			}
		}
		return img

	case *image.NRGBA64, *image.RGBA64:
		img := alloc(w, h, 4, 2)
		for y := range h {
			for x := range w {
				c := color.NRGBA64Model.Convert(m.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
				p := img.Pix[(y*w+x)*8:]
				binary.LittleEndian.PutUint16(p[0:], c.R)
				binary.LittleEndian.PutUint16(p[2:], c.G)
				binary.LittleEndian.PutUint16(p[4:], c.B)
				binary.LittleEndian.PutUint16(p[6:], c.A)
			}
		}
		return img
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), m, b.Min, draw.Src)

	img := alloc(w, h, 4, 1)
	for y := range h {
		copy(img.Pix[y*w*4:(y+1)*w*4], dst.Pix[y*dst.Stride:y*dst.Stride+w*4])
	}
	return img
}

// ToImage converts the base level of img into an image.Image.
// 32-bit channels are not representable and return ErrUnsupportedFormat.
func ToImage(img *device.Image) (image.Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	f := img.Format
	rect := image.Rect(0, 0, f.Width, f.Height)
	n := f.Width * f.Height

	switch {
	case f.Depth == 1 && f.Channels == 1:
		m := image.NewGray(rect)
		copy(m.Pix, img.Pix)
		return m, nil

	case f.Depth == 2 && f.Channels == 1:
		m := image.NewGray16(rect)
		for i := range n {
			v := binary.LittleEndian.Uint16(img.Pix[i*2:])
			m.Pix[i*2], m.Pix[i*2+1] = byte(v>>8), byte(v)
		}
		return m, nil

	case f.Depth == 1:
		m := image.NewNRGBA(rect)
		for i := range n {
			r, g, b, a := expand(f.Channels, func(c int) uint32 { return uint32(img.Pix[i*f.Channels+c]) }, 0xff)
			m.Pix[i*4+0], m.Pix[i*4+1], m.Pix[i*4+2], m.Pix[i*4+3] = uint8(r), uint8(g), uint8(b), uint8(a)
		}
		return m, nil

	case f.Depth == 2:
		m := image.NewNRGBA64(rect)
		for i := range n {
			r, g, b, a := expand(f.Channels, func(c int) uint32 {
				return uint32(binary.LittleEndian.Uint16(img.Pix[(i*f.Channels+c)*2:]))
			}, 0xffff)
			m.SetNRGBA64(i%f.Width, i/f.Width, color.NRGBA64{R: uint16(r), G: uint16(g), B: uint16(b), A: uint16(a)})
		}
		return m, nil
	}

	return nil, fmt.Errorf("%w: %d-byte channels", ErrUnsupportedFormat, f.Depth)
}

// expand maps 1 to 4 channels onto RGBA. Two channels are luminance and alpha.
func expand(channels int, at func(c int) uint32, opaque uint32) (r, g, b, a uint32) {
	switch channels {
	case 1:
		v := at(0)
		return v, v, v, opaque
	case 2:
		v := at(0)
		return v, v, v, at(1)
	case 3:
		return at(0), at(1), at(2), opaque
	default:
		return at(0), at(1), at(2), at(3)
	}
}
