package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageBuf_Invalid(t *testing.T) {
	_, err := NewImageBuf(0, 4, FormatR8)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = NewImageBuf(4, 4, formatCount)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestImageBuf_WriteRowsWithPadding(t *testing.T) {
	buf, err := NewImageBuf(2, 2, FormatR8)
	require.NoError(t, err)

	// Stride 4, only the first two bytes of each row are texels.
	src := []byte{10, 20, 99, 99, 30, 40}
	require.NoError(t, buf.WriteRows(src, 4))
	assert.Equal(t, []byte{10, 20, 30, 40}, buf.Data())
}

func TestImageBuf_WriteRowsErrors(t *testing.T) {
	buf, err := NewImageBuf(4, 2, FormatRG8)
	require.NoError(t, err)

	assert.ErrorIs(t, buf.WriteRows(make([]byte, 16), 4), ErrInvalidStride)
	assert.ErrorIs(t, buf.WriteRows(make([]byte, 10), 8), ErrDataTooSmall)
}

func TestImageBuf_Texel16(t *testing.T) {
	buf, err := NewImageBuf(1, 1, FormatRG16)
	require.NoError(t, err)
	require.NoError(t, buf.WriteRows([]byte{0xff, 0xff, 0x00, 0x80}, 4))

	assert.InDelta(t, 1.0, buf.Texel(0, 0, 0), 1e-6)
	assert.InDelta(t, float32(0x8000)/65535, buf.Texel(0, 0, 1), 1e-6)
}

func TestImageBuf_TexelClamps(t *testing.T) {
	buf, err := NewImageBuf(2, 1, FormatR8)
	require.NoError(t, err)
	require.NoError(t, buf.WriteRows([]byte{0, 255}, 2))

	assert.Equal(t, float32(0), buf.Texel(-5, 0, 0))
	assert.Equal(t, float32(1), buf.Texel(10, 3, 0))
}

func TestImageBuf_SampleBilinear(t *testing.T) {
	buf, err := NewImageBuf(2, 1, FormatR8)
	require.NoError(t, err)
	require.NoError(t, buf.WriteRows([]byte{0, 255}, 2))

	// Texel centers at u=0.25 and u=0.75; halfway is the average.
	assert.InDelta(t, 0.0, buf.Sample(0.25, 0.5, 0), 1e-6)
	assert.InDelta(t, 1.0, buf.Sample(0.75, 0.5, 0), 1e-6)
	assert.InDelta(t, 0.5, buf.Sample(0.5, 0.5, 0), 1e-6)
}

func TestImageBuf_FillAndGet(t *testing.T) {
	buf, err := NewImageBuf(3, 2, FormatRGBA8)
	require.NoError(t, err)
	buf.Fill(1, 2, 3, 4)

	r, g, b, a := buf.GetRGBA(2, 1)
	assert.Equal(t, [4]uint8{1, 2, 3, 4}, [4]uint8{r, g, b, a})

	buf.Clear()
	r, _, _, _ = buf.GetRGBA(2, 1)
	assert.Zero(t, r)
}
