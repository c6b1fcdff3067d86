// Package image provides host-memory texel storage for video planes and
// converted frames.
package image

// Format represents a texel storage format.
type Format uint8

const (
	// FormatR8 is one 8-bit channel (8-bit luma or chroma plane).
	FormatR8 Format = iota

	// FormatRG8 is two interleaved 8-bit channels (semi-planar chroma).
	FormatRG8

	// FormatR16 is one 16-bit little-endian channel.
	FormatR16

	// FormatRG16 is two interleaved 16-bit little-endian channels.
	FormatRG16

	// FormatRGBA8 is 8-bit RGBA. Converted frames store sRGB-encoded color.
	FormatRGBA8

	// formatCount is the number of formats (for internal use).
	formatCount
)

// FormatInfo contains metadata about a texel format.
type FormatInfo struct {
	// BytesPerPixel is the number of bytes per texel.
	BytesPerPixel int

	// Channels is the number of channels.
	Channels int

	// BitsPerChannel is the number of bits per channel.
	BitsPerChannel int
}

var formatInfoTable = [formatCount]FormatInfo{
	FormatR8:    {BytesPerPixel: 1, Channels: 1, BitsPerChannel: 8},
	FormatRG8:   {BytesPerPixel: 2, Channels: 2, BitsPerChannel: 8},
	FormatR16:   {BytesPerPixel: 2, Channels: 1, BitsPerChannel: 16},
	FormatRG16:  {BytesPerPixel: 4, Channels: 2, BitsPerChannel: 16},
	FormatRGBA8: {BytesPerPixel: 4, Channels: 4, BitsPerChannel: 8},
}

// Info returns the FormatInfo for this format.
// Returns zero FormatInfo for invalid formats.
func (f Format) Info() FormatInfo {
	if f >= formatCount {
		return FormatInfo{}
	}
	return formatInfoTable[f]
}

// BytesPerPixel returns the number of bytes per texel.
func (f Format) BytesPerPixel() int { return f.Info().BytesPerPixel }

// Channels returns the number of channels.
func (f Format) Channels() int { return f.Info().Channels }

// BitsPerChannel returns the number of bits per channel.
func (f Format) BitsPerChannel() int { return f.Info().BitsPerChannel }

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatR8:
		return "R8"
	case FormatRG8:
		return "RG8"
	case FormatR16:
		return "R16"
	case FormatRG16:
		return "RG16"
	case FormatRGBA8:
		return "RGBA8"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the format is a known valid format.
func (f Format) IsValid() bool {
	return f < formatCount
}

// RowBytes returns the number of bytes needed for one row of pixels.
func (f Format) RowBytes(width int) int {
	return width * f.BytesPerPixel()
}
