package device

import (
	"errors"
	"fmt"
)

// Filter selects how texels are sampled.
type Filter uint8

const (
	FilterNearest Filter = iota
	FilterLinear
	FilterNearestMipmapNearest
	FilterNearestMipmapLinear
	FilterLinearMipmapNearest
	FilterLinearMipmapLinear
)

var filterNames = [...]string{
	FilterNearest:              "nearest",
	FilterLinear:               "linear",
	FilterNearestMipmapNearest: "nearest_mipmap_nearest",
	FilterNearestMipmapLinear:  "nearest_mipmap_linear",
	FilterLinearMipmapNearest:  "linear_mipmap_nearest",
	FilterLinearMipmapLinear:   "linear_mipmap_linear",
}

func (f Filter) String() string {
	if int(f) < len(filterNames) {
		return filterNames[f]
	}
	return "unknown"
}

// ParseFilter returns the Filter named s.
func ParseFilter(s string) (Filter, error) {
	for i, n := range filterNames {
		if n == s {
			return Filter(i), nil
		}
	}
	return 0, fmt.Errorf("unknown filter %q", s)
}

// Wrap selects how coordinates outside [0,1] are resolved.
type Wrap uint8

const (
	WrapClamp Wrap = iota
	WrapClampToBorder
	WrapClampToEdge
	WrapRepeat
	WrapMirroredRepeat
)

var wrapNames = [...]string{
	WrapClamp:          "clamp",
	WrapClampToBorder:  "clamp_to_border",
	WrapClampToEdge:    "clamp_to_edge",
	WrapRepeat:         "repeat",
	WrapMirroredRepeat: "mirrored_repeat",
}

func (w Wrap) String() string {
	if int(w) < len(wrapNames) {
		return wrapNames[w]
	}
	return "unknown"
}

// ParseWrap returns the Wrap mode named s.
func ParseWrap(s string) (Wrap, error) {
	for i, n := range wrapNames {
		if n == s {
			return Wrap(i), nil
		}
	}
	return 0, fmt.Errorf("unknown wrap mode %q", s)
}

// Sampling holds the per-texture sampler state.
// It never affects the byte size of a texture.
type Sampling struct {
	MinFilter Filter
	MagFilter Filter
	WrapS     Wrap
	WrapT     Wrap
}

// DefaultSampling is applied to freshly decoded images.
var DefaultSampling = Sampling{
	MinFilter: FilterNearest,
	MagFilter: FilterNearest,
	WrapS:     WrapClamp,
	WrapT:     WrapClamp,
}

// ErrInvalidFormat is returned when a Format cannot describe a texture.
var ErrInvalidFormat = errors.New("invalid texture format")

// Format describes a texture layout.
type Format struct {
	Width    int
	Height   int
	Channels int // 1 (luminance) to 4 (RGBA)
	Depth    int // bytes per channel: 1, 2 or 4
	// MaxLevel is the index of the last mipmap level; 0 means no mipmaps.
	MaxLevel int

	Sampling
}

// Validate reports whether the format is usable.
func (f Format) Validate() error {
	switch {
	case f.Width <= 0 || f.Height <= 0:
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidFormat, f.Width, f.Height)
	case f.Channels < 1 || f.Channels > 4:
		return fmt.Errorf("%w: %d channels", ErrInvalidFormat, f.Channels)
	case f.Depth != 1 && f.Depth != 2 && f.Depth != 4:
		return fmt.Errorf("%w: depth %d", ErrInvalidFormat, f.Depth)
	case f.MaxLevel < 0:
		return fmt.Errorf("%w: max level %d", ErrInvalidFormat, f.MaxLevel)
	}
	return nil
}

// PixelSize returns the number of bytes per pixel.
func (f Format) PixelSize() int {
	return f.Channels * f.Depth
}

// RowSize returns the number of bytes per row of the base level.
func (f Format) RowSize() int {
	return f.Width * f.PixelSize()
}

// BaseSize returns the byte size of the base level.
func (f Format) BaseSize() int64 {
	return int64(f.Width) * int64(f.Height) * int64(f.PixelSize())
}

// Size returns the device footprint in bytes, including every mipmap level.
func (f Format) Size() int64 {
	w, h := f.Width, f.Height
	var total int64
	for level := 0; level <= f.MaxLevel; level++ {
		total += int64(w) * int64(h) * int64(f.PixelSize())
		w = max(w/2, 1)
		h = max(h/2, 1)
	}
	return total
}

// SameLayout reports whether two formats describe the same storage,
// ignoring sampling state.
func (f Format) SameLayout(o Format) bool {
	return f.Width == o.Width && f.Height == o.Height &&
		f.Channels == o.Channels && f.Depth == o.Depth && f.MaxLevel == o.MaxLevel
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d c%d d%d l%d", f.Width, f.Height, f.Channels, f.Depth, f.MaxLevel)
}
