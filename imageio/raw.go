package imageio

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/vramcache/device"
)

// Compression selects how the pixel payload of a raw texture dump is stored.
type Compression uint8

const (
	CompressionNone Compression = 0
	// CompressionLZ4 is fast to decode, suited to frequently reloaded sources.
	CompressionLZ4 Compression = 1
	// CompressionZSTD gives a better ratio for archived outputs.
	CompressionZSTD Compression = 2
)

// Raw layout, little-endian:
//
//	[0:4]   "VRAW"
//	[4]     version
//	[5]     compression
//	[6]     channels
//	[7]     bytes per channel
//	[8]     max mipmap level
//	[9:13]  min filter, mag filter, wrap S, wrap T
//	[13:16] reserved
//	[16:20] width
//	[20:24] height
//	[24:28] stored payload size, 0 if stored uncompressed
const (
	rawMagic      = "VRAW"
	rawVersion    = 1
	rawHeaderSize = 28

	// Payloads that shrink by less than this ratio are stored as is.
	rawMinRatio = 0.9

	maxRawDimension = 1 << 16
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecodeAllCapLimit(true))
	return dec
}

type rawCodec struct {
	compression Compression
}

func (c rawCodec) Name() string {
	switch c.compression {
	case CompressionLZ4:
		return "raw.lz4"
	case CompressionZSTD:
		return "raw.zst"
	default:
		return "raw"
	}
}

// Decode reads any raw dump; the header decides the compression.
func (rawCodec) Decode(r io.Reader) (*device.Image, error) {
	var hdr [rawHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if string(hdr[0:4]) != rawMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, hdr[0:4])
	}
	if hdr[4] != rawVersion {
		return nil, fmt.Errorf("%w: version %d", ErrCorrupt, hdr[4])
	}

	f := device.Format{
		Channels: int(hdr[6]),
		Depth:    int(hdr[7]),
		MaxLevel: int(hdr[8]),
		Sampling: device.Sampling{
			MinFilter: device.Filter(hdr[9]),
			MagFilter: device.Filter(hdr[10]),
			WrapS:     device.Wrap(hdr[11]),
			WrapT:     device.Wrap(hdr[12]),
		},
		Width:  int(binary.LittleEndian.Uint32(hdr[16:])),
		Height: int(binary.LittleEndian.Uint32(hdr[20:])),
	}
	if f.Width > maxRawDimension || f.Height > maxRawDimension {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrCorrupt, f.Width, f.Height)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	base := f.BaseSize()
	stored := int64(binary.LittleEndian.Uint32(hdr[24:]))

	if stored == 0 {
		pix, err := readFull(r, base)
		if err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
		}
		return &device.Image{Format: f, Pix: pix}, nil
	}

	compression := Compression(hdr[5])
	bound, ok := storedBound(compression, base)
	if !ok {
		return nil, fmt.Errorf("%w: compression %d", ErrCorrupt, hdr[5])
	}
	if stored > bound {
		return nil, fmt.Errorf("%w: stored size %d exceeds %d for %s", ErrCorrupt, stored, bound, f)
	}

	payload, err := readFull(r, stored)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
	}

	img := &device.Image{Format: f, Pix: make([]byte, base)}
	switch compression {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, img.Pix)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if n != len(img.Pix) {
			return nil, fmt.Errorf("%w: decompressed %d of %d bytes", ErrCorrupt, n, len(img.Pix))
		}

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(payload, img.Pix[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if len(out) != len(img.Pix) {
			return nil, fmt.Errorf("%w: decompressed %d of %d bytes", ErrCorrupt, len(out), len(img.Pix))
		}
	}
	return img, nil
}

// storedBound returns the largest compressed payload c can produce for n
// input bytes.
func storedBound(c Compression, n int64) (int64, bool) {
	switch c {
	case CompressionLZ4:
		return int64(lz4.CompressBlockBound(int(n))), true
	case CompressionZSTD:
		const small = 128 << 10
		b := n + n>>8 + 64
		if n < small {
			b += (small - n) >> 11
		}
		return b, true
	}
	return 0, false
}

// readFull reads exactly n bytes. The buffer grows with the data actually
// read, so a short source costs what it holds rather than n.
func readFull(r io.Reader, n int64) ([]byte, error) {
	buf, err := io.ReadAll(io.LimitReader(r, n))
	if err != nil {
		return nil, err
	}
	if int64(len(buf)) != n {
		return nil, fmt.Errorf("read %d of %d bytes: %w", len(buf), n, io.ErrUnexpectedEOF)
	}
	return buf, nil
}

func (c rawCodec) Encode(w io.Writer, img *device.Image) error {
	f := img.Format
	if f.Width > maxRawDimension || f.Height > maxRawDimension {
		return fmt.Errorf("%w: dimensions %dx%d", ErrUnsupportedFormat, f.Width, f.Height)
	}

	payload, err := c.compress(img.Pix)
	if err != nil {
		return err
	}

	var hdr [rawHeaderSize]byte
	copy(hdr[0:4], rawMagic)
	hdr[4] = rawVersion
	hdr[5] = byte(c.compression)
	hdr[6] = byte(f.Channels)
	hdr[7] = byte(f.Depth)
	hdr[8] = byte(f.MaxLevel)
	hdr[9] = byte(f.MinFilter)
	hdr[10] = byte(f.MagFilter)
	hdr[11] = byte(f.WrapS)
	hdr[12] = byte(f.WrapT)
	binary.LittleEndian.PutUint32(hdr[16:], uint32(f.Width))
	binary.LittleEndian.PutUint32(hdr[20:], uint32(f.Height))
	if payload != nil {
		binary.LittleEndian.PutUint32(hdr[24:], uint32(len(payload)))
	} else {
		payload = img.Pix
	}

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// compress returns nil when the data should be stored uncompressed.
func (c rawCodec) compress(data []byte) ([]byte, error) {
	var out []byte

	switch c.compression {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		out = buf[:n]

	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		out = enc.EncodeAll(data, nil)

	default:
		return nil, nil
	}

	if len(out) == 0 || float64(len(out)) > float64(len(data))*rawMinRatio {
		return nil, nil
	}
	return out, nil
}
