package audioring

import (
	"encoding/binary"
	"math"
)

const (
	s16Scale = 1.0 / 32768
	s32Scale = 1.0 / 2147483648
)

func f32At(b []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
}

func s32At(b []byte, i int) float32 {
	return float32(int32(binary.LittleEndian.Uint32(b[4*i:]))) * s32Scale
}

func s16At(b []byte, i int) float32 {
	return float32(int16(binary.LittleEndian.Uint16(b[2*i:]))) * s16Scale
}

// accumulate adds n samples of src, starting at sample offset off, into dst.
func accumulate(dst []float32, src []byte, off int, gain float32, n int, at func([]byte, int) float32) {
	dst = dst[:n]
	for i := range dst {
		dst[i] += at(src, off+i) * gain
	}
}

// accumulateStereo de-interleaves n stereo frames starting at frame off.
func accumulateStereo(left, right []float32, src []byte, off int, gain []float32, n int, at func([]byte, int) float32) {
	left = left[:n]
	right = right[:n]
	for i := range left {
		j := 2 * (off + i)
		left[i] += at(src, j) * gain[0]
		right[i] += at(src, j+1) * gain[1]
	}
}
