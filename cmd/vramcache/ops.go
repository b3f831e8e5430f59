package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/hupe1980/vramcache/device"
)

// operation computes one image from its inputs on the host.
// Channels of 1 and 2 bytes are unsigned integers, 4-byte channels are float32.
type operation struct {
	// arity is the exact number of inputs, 0 for one or more.
	arity int
	apply func(inputs []*device.Image) (*device.Image, error)
}

var operations = map[string]operation{
	"copy":    {arity: 1, apply: copyImage},
	"average": {arity: 0, apply: averageImages},
	"invert":  {arity: 1, apply: invertImage},
}

func lookupOp(name string) (operation, bool) {
	op, ok := operations[name]
	return op, ok
}

func operationNames() []string {
	names := make([]string, 0, len(operations))
	for n := range operations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func copyImage(in []*device.Image) (*device.Image, error) {
	return in[0].Clone(), nil
}

// invertImage inverts the color channels. Alpha is kept.
func invertImage(in []*device.Image) (*device.Image, error) {
	out := in[0].Clone()
	f := out.Format
	color := colorChannels(f.Channels)
	n := f.Width * f.Height
	for i := range n {
		for c := range color {
			off := (i*f.Channels + c) * f.Depth
			switch f.Depth {
			case 1:
				out.Pix[off] = math.MaxUint8 - out.Pix[off]
			case 2:
				v := binary.LittleEndian.Uint16(out.Pix[off:])
				binary.LittleEndian.PutUint16(out.Pix[off:], math.MaxUint16-v)
			case 4:
				v := math.Float32frombits(binary.LittleEndian.Uint32(out.Pix[off:]))
				binary.LittleEndian.PutUint32(out.Pix[off:], math.Float32bits(1-v))
			}
		}
	}
	return out, nil
}

// averageImages returns the per-channel mean of images sharing one layout.
func averageImages(in []*device.Image) (*device.Image, error) {
	f := in[0].Format
	for i, img := range in[1:] {
		if !img.Format.SameLayout(f) {
			return nil, fmt.Errorf("average: input %d is %s, want %s", i+1, img.Format, f)
		}
	}

	out := in[0].Clone()
	count := len(out.Pix) / f.Depth
	for i := range count {
		off := i * f.Depth
		var sum float64
		for _, img := range in {
			sum += channelAt(img.Pix, off, f.Depth)
		}
		setChannel(out.Pix, off, f.Depth, sum/float64(len(in)))
	}
	return out, nil
}

func colorChannels(channels int) int {
	switch channels {
	case 2:
		return 1
	case 4:
		return 3
	}
	return channels
}

func channelAt(pix []byte, off, depth int) float64 {
	switch depth {
	case 1:
		return float64(pix[off])
	case 2:
		return float64(binary.LittleEndian.Uint16(pix[off:]))
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(pix[off:])))
}

func setChannel(pix []byte, off, depth int, v float64) {
	switch depth {
	case 1:
		pix[off] = uint8(math.Round(v))
	case 2:
		binary.LittleEndian.PutUint16(pix[off:], uint16(math.Round(v)))
	default:
		binary.LittleEndian.PutUint32(pix[off:], math.Float32bits(float32(v)))
	}
}
