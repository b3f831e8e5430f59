package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat_Size(t *testing.T) {
	tests := []struct {
		name string
		f    Format
		want int64
	}{
		{"rgba8", Format{Width: 4, Height: 4, Channels: 4, Depth: 1}, 64},
		{"luminance16", Format{Width: 3, Height: 2, Channels: 1, Depth: 2}, 12},
		// 4x4 + 2x2 + 1x1 texels, one byte each
		{"mipmapped", Format{Width: 4, Height: 4, Channels: 1, Depth: 1, MaxLevel: 2}, 21},
		// levels never shrink below one texel
		{"thin", Format{Width: 4, Height: 1, Channels: 1, Depth: 1, MaxLevel: 3}, 4 + 2 + 1 + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Size())
		})
	}
}

func TestFormat_Validate(t *testing.T) {
	assert.NoError(t, Format{Width: 1, Height: 1, Channels: 3, Depth: 1}.Validate())
	assert.ErrorIs(t, Format{Width: 0, Height: 1, Channels: 3, Depth: 1}.Validate(), ErrInvalidFormat)
	assert.ErrorIs(t, Format{Width: 1, Height: 1, Channels: 5, Depth: 1}.Validate(), ErrInvalidFormat)
	assert.ErrorIs(t, Format{Width: 1, Height: 1, Channels: 1, Depth: 3}.Validate(), ErrInvalidFormat)
}

func TestParseSampling(t *testing.T) {
	f, err := ParseFilter("linear_mipmap_nearest")
	require.NoError(t, err)
	assert.Equal(t, FilterLinearMipmapNearest, f)

	w, err := ParseWrap("mirrored_repeat")
	require.NoError(t, err)
	assert.Equal(t, WrapMirroredRepeat, w)

	_, err = ParseFilter("cubic")
	assert.Error(t, err)
	_, err = ParseWrap("")
	assert.Error(t, err)
}

func TestHostBackend_UploadRelease(t *testing.T) {
	b := NewHostBackend(0)

	img, err := NewImage(Format{Width: 2, Height: 2, Channels: 4, Depth: 1})
	require.NoError(t, err)
	img.Pix[0] = 7

	h, err := b.Upload(img)
	require.NoError(t, err)
	assert.True(t, h.Valid())
	assert.Equal(t, int64(16), h.Size())
	assert.Equal(t, int64(16), b.LiveBytes())
	assert.Equal(t, 1, b.LiveHandles())

	back, err := b.Download(h)
	require.NoError(t, err)
	assert.Equal(t, byte(7), back.Pix[0])

	require.NoError(t, h.Release())
	assert.False(t, h.Valid())
	assert.Equal(t, int64(0), b.LiveBytes())
	assert.ErrorIs(t, h.Release(), ErrInvalidHandle)

	_, err = b.Download(h)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestHostBackend_Capacity(t *testing.T) {
	b := NewHostBackend(32)
	f := Format{Width: 4, Height: 1, Channels: 4, Depth: 1} // 16 bytes

	img, err := NewImage(f)
	require.NoError(t, err)

	_, err = b.Upload(img)
	require.NoError(t, err)
	_, err = b.Upload(img)
	require.NoError(t, err)
	_, err = b.Upload(img)
	assert.ErrorIs(t, err, ErrDeviceFull)
}

func TestHostBackend_ForeignHandle(t *testing.T) {
	a, b := NewHostBackend(0), NewHostBackend(0)
	img, err := NewImage(Format{Width: 1, Height: 1, Channels: 1, Depth: 1})
	require.NoError(t, err)

	h, err := a.Upload(img)
	require.NoError(t, err)

	_, err = b.Download(h)
	assert.ErrorIs(t, err, ErrForeignHandle)
}

func TestHostBackend_SetSampling(t *testing.T) {
	b := NewHostBackend(0)
	img, err := NewImage(Format{Width: 1, Height: 1, Channels: 1, Depth: 1})
	require.NoError(t, err)

	h, err := b.Upload(img)
	require.NoError(t, err)

	s, ok := h.(SamplingSetter)
	require.True(t, ok)
	require.NoError(t, s.SetSampling(Sampling{MinFilter: FilterLinear, MagFilter: FilterLinear, WrapS: WrapRepeat, WrapT: WrapRepeat}))
	assert.Equal(t, FilterLinear, h.Format().MinFilter)
	assert.Equal(t, WrapRepeat, h.Format().WrapT)
}
