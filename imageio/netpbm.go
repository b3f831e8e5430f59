package imageio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/vramcache/device"
)

const maxNetpbmDimension = 1 << 15

// netpbmCodec reads and writes binary graymaps (P5) and pixmaps (P6).
type netpbmCodec struct {
	magic    string
	channels int
}

func (c netpbmCodec) Name() string {
	if c.channels == 1 {
		return "pgm"
	}
	return "ppm"
}

func (c netpbmCodec) Decode(r io.Reader) (*device.Image, error) {
	br := bufio.NewReader(r)

	magic, err := netpbmToken(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if magic != c.magic {
		return nil, fmt.Errorf("%w: magic %q, want %q", ErrCorrupt, magic, c.magic)
	}

	var dims [3]int
	for i := range dims {
		tok, err := netpbmToken(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if dims[i], err = strconv.Atoi(tok); err != nil {
			return nil, fmt.Errorf("%w: header field %q", ErrCorrupt, tok)
		}
	}
	w, h, maxval := dims[0], dims[1], dims[2]
	if w <= 0 || h <= 0 || w > maxNetpbmDimension || h > maxNetpbmDimension {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrCorrupt, w, h)
	}
	if maxval < 1 || maxval > 0xffff {
		return nil, fmt.Errorf("%w: maxval %d", ErrCorrupt, maxval)
	}

	depth := 1
	if maxval > 0xff {
		depth = 2
	}
	f := layout(w, h, c.channels, depth)
	pix, err := readFull(br, f.BaseSize())
	if err != nil {
		return nil, fmt.Errorf("%w: pixels: %v", ErrCorrupt, err)
	}

	// Samples are big-endian on disk.
	if depth == 2 {
		for i := 0; i < len(pix); i += 2 {
			binary.LittleEndian.PutUint16(pix[i:], binary.BigEndian.Uint16(pix[i:]))
		}
	}
	return &device.Image{Format: f, Pix: pix}, nil
}

func (c netpbmCodec) Encode(w io.Writer, img *device.Image) error {
	f := img.Format
	if f.Depth != 1 && f.Depth != 2 {
		return fmt.Errorf("%w: %d-byte channels", ErrUnsupportedFormat, f.Depth)
	}
	if c.channels == 1 && f.Channels > 2 {
		return fmt.Errorf("%w: %d channels in a graymap", ErrUnsupportedFormat, f.Channels)
	}

	maxval := 0xff
	if f.Depth == 2 {
		maxval = 0xffff
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n%d %d\n%d\n", c.magic, f.Width, f.Height, maxval)

	at := func(i, ch int) uint32 {
		if f.Depth == 1 {
			return uint32(img.Pix[i*f.Channels+ch])
		}
		return uint32(binary.LittleEndian.Uint16(img.Pix[(i*f.Channels+ch)*2:]))
	}

	for i := range f.Width * f.Height {
		r, g, b, _ := expand(f.Channels, func(ch int) uint32 { return at(i, ch) }, uint32(maxval))
		samples := []uint32{r, g, b}[:c.channels]
		for _, s := range samples {
			if f.Depth == 1 {
				bw.WriteByte(byte(s))
			} else {
				bw.WriteByte(byte(s >> 8))
				bw.WriteByte(byte(s))
			}
		}
	}
	return bw.Flush()
}

// netpbmToken returns the next whitespace-delimited header token and
// consumes the single whitespace byte that ends it.
func netpbmToken(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		switch {
		case b == '#' && sb.Len() == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", err
			}
		case b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f':
			if sb.Len() > 0 {
				return sb.String(), nil
			}
		default:
			if sb.Len() > 16 {
				return "", errors.New("header token too long")
			}
			sb.WriteByte(b)
		}
	}
}
