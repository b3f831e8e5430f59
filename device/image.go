package device

import "fmt"

// Image is a decoded texture held in host memory, ready for upload.
// Pix stores the base level row by row with no padding.
type Image struct {
	Format Format
	Pix    []byte
}

// NewImage allocates a zeroed image for the given format.
func NewImage(f Format) (*Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Image{Format: f, Pix: make([]byte, f.BaseSize())}, nil
}

// Validate checks that Pix matches the format.
func (img *Image) Validate() error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidFormat)
	}
	if err := img.Format.Validate(); err != nil {
		return err
	}
	if int64(len(img.Pix)) != img.Format.BaseSize() {
		return fmt.Errorf("%w: %d pixel bytes for %s", ErrInvalidFormat, len(img.Pix), img.Format)
	}
	return nil
}

// Size returns the device footprint the image will occupy once uploaded.
func (img *Image) Size() int64 {
	return img.Format.Size()
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	pix := make([]byte, len(img.Pix))
	copy(pix, img.Pix)
	return &Image{Format: img.Format, Pix: pix}
}
