package imageio

import (
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/vramcache/device"
)

var (
	// ErrUnsupportedFormat is returned for file names no codec claims.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrEncodeUnsupported is returned by decode-only codecs.
	ErrEncodeUnsupported = errors.New("codec cannot encode")
	// ErrCorrupt is returned when a file does not match its declared layout.
	ErrCorrupt = errors.New("corrupt image data")
)

// Codec converts between files and device images.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Name is the canonical extension without the leading dot.
	Name() string
	Decode(r io.Reader) (*device.Image, error)
	Encode(w io.Writer, img *device.Image) error
}

var (
	mu    sync.RWMutex
	byExt = map[string]Codec{}
	order []string
)

// Register makes c available for each extension (with leading dot).
// Later registrations replace earlier ones.
func Register(c Codec, exts ...string) {
	mu.Lock()
	defer mu.Unlock()
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if _, ok := byExt[ext]; !ok {
			order = append(order, ext)
		}
		byExt[ext] = c
	}
}

// Extensions lists registered extensions in registration order.
func Extensions() []string {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Clone(order)
}

// Lookup returns the codec for a file name. Double extensions such as
// ".raw.zst" take precedence over the last extension alone.
func Lookup(name string) (Codec, bool) {
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))

	mu.RLock()
	defer mu.RUnlock()

	for i := range len(base) {
		if base[i] != '.' {
			continue
		}
		if c, ok := byExt[base[i:]]; ok {
			return c, true
		}
	}
	return nil, false
}

// Supported reports whether name has a registered codec.
func Supported(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Decode reads an image, choosing the codec from name.
func Decode(name string, r io.Reader) (*device.Image, error) {
	c, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	img, err := c.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}
	return img, nil
}

// Encode writes img, choosing the codec from name.
func Encode(name string, w io.Writer, img *device.Image) error {
	c, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err := img.Validate(); err != nil {
		return err
	}
	if err := c.Encode(w, img); err != nil {
		return fmt.Errorf("%s: %w", c.Name(), err)
	}
	return nil
}

func init() {
	Register(pngCodec, ".png")
	Register(jpegCodec, ".jpg", ".jpeg")
	Register(gifCodec, ".gif")
	Register(bmpCodec, ".bmp")
	Register(tiffCodec, ".tif", ".tiff")
	Register(webpCodec, ".webp")
	Register(netpbmCodec{magic: "P5", channels: 1}, ".pgm")
	Register(netpbmCodec{magic: "P6", channels: 3}, ".ppm")
	Register(rawCodec{compression: CompressionNone}, ".raw")
	Register(rawCodec{compression: CompressionZSTD}, ".raw.zst")
	Register(rawCodec{compression: CompressionLZ4}, ".raw.lz4")
}
