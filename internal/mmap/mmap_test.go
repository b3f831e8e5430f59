package mmap

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.raw")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestOpen_MapsOrReads(t *testing.T) {
	content := []byte("VRAW texture payload")
	path := writeFile(t, content)

	tests := []struct {
		name   string
		opts   []Option
		mapped bool
	}{
		{"small file is read", nil, false},
		{"mapped", []Option{WithMinMapSize(0), WithHint(HintSequential)}, true},
		{"at threshold", []Option{WithMinMapSize(int64(len(content)))}, true},
		{"below threshold", []Option{WithMinMapSize(int64(len(content)) + 1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Open(path, tt.opts...)
			require.NoError(t, err)
			defer v.Close()

			assert.Equal(t, tt.mapped, v.Mapped())
			assert.Equal(t, int64(len(content)), v.Len())
			assert.Equal(t, content, v.Bytes())
		})
	}
}

func TestView_Region(t *testing.T) {
	v, err := Open(writeFile(t, []byte("VRAW texture payload")), WithMinMapSize(0))
	require.NoError(t, err)
	defer v.Close()

	r, err := v.Region(5, 7)
	require.NoError(t, err)
	assert.Equal(t, "texture", string(r))
	assert.Equal(t, 7, cap(r))

	r, err = v.Region(20, 0)
	require.NoError(t, err)
	assert.Empty(t, r)

	for _, bad := range [][2]int64{{-1, 2}, {0, 21}, {19, 2}, {3, -1}} {
		_, err := v.Region(bad[0], bad[1])
		assert.ErrorIs(t, err, ErrRange, "%v", bad)
	}
}

func TestView_ReadAt(t *testing.T) {
	v, err := Open(writeFile(t, []byte("VRAW texture payload")))
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := v.ReadAt(buf, 13)
	assert.Equal(t, 7, n)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "payload", string(buf[:n]))

	_, err = v.ReadAt(buf, 100)
	assert.Equal(t, io.EOF, err)

	_, err = v.ReadAt(buf, -1)
	assert.ErrorIs(t, err, ErrRange)

	got, err := io.ReadAll(io.NewSectionReader(v, 5, 7))
	require.NoError(t, err)
	assert.Equal(t, "texture", string(got))

	require.NoError(t, v.Close())
	_, err = v.ReadAt(buf, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestView_WillNeed(t *testing.T) {
	content := bytes.Repeat([]byte{7}, 3*pageSize+100)
	v, err := Open(writeFile(t, content), WithMinMapSize(0))
	require.NoError(t, err)
	defer v.Close()
	require.True(t, v.Mapped())

	// Unaligned and overlong ranges are trimmed to the mapping.
	assert.NoError(t, v.WillNeed(int64(pageSize)+17, 10))
	assert.NoError(t, v.WillNeed(-5, int64(len(content))*2))
	assert.NoError(t, v.WillNeed(int64(len(content)), 10))
	assert.NoError(t, v.WillNeed(0, 0))

	small, err := Open(writeFile(t, []byte("tiny")))
	require.NoError(t, err)
	assert.NoError(t, small.WillNeed(0, 4))
	require.NoError(t, small.Close())
	assert.ErrorIs(t, small.WillNeed(0, 4), ErrClosed)
}

func TestView_Close(t *testing.T) {
	for _, threshold := range []int64{0, DefaultMinMapSize} {
		v, err := Open(writeFile(t, []byte("payload")), WithMinMapSize(threshold))
		require.NoError(t, err)

		require.NoError(t, v.Close())
		require.NoError(t, v.Close())
		assert.Nil(t, v.Bytes())
		assert.Equal(t, int64(7), v.Len())

		_, err = v.Region(0, 1)
		assert.ErrorIs(t, err, ErrClosed)
	}
}

func TestOpen_EmptyAndMissing(t *testing.T) {
	v, err := Open(writeFile(t, nil), WithMinMapSize(0))
	require.NoError(t, err)
	assert.False(t, v.Mapped())
	assert.Equal(t, int64(0), v.Len())
	assert.Empty(t, v.Bytes())
	assert.NoError(t, v.WillNeed(0, 10))
	require.NoError(t, v.Close())

	_, err = Open(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
