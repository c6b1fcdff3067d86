package gpu

// Format specifies the texel format of an image.
type Format uint8

// Image formats.
const (
	// FormatUndefined is the zero value.
	FormatUndefined Format = iota

	// FormatR8Unorm is one 8-bit normalized channel (8-bit luma or chroma plane).
	FormatR8Unorm

	// FormatRG8Unorm is two 8-bit normalized channels (interleaved chroma plane).
	FormatRG8Unorm

	// FormatR16Unorm is one 16-bit normalized channel (high bit depth plane).
	FormatR16Unorm

	// FormatRG16Unorm is two 16-bit normalized channels.
	FormatRG16Unorm

	// FormatRGBA8Unorm is 8-bit RGBA.
	FormatRGBA8Unorm

	// FormatRGBA8UnormSRGB is 8-bit RGBA with sRGB-encoded color channels.
	// Converted frames are stored in this format.
	FormatRGBA8UnormSRGB
)

var formatNames = [...]string{
	FormatUndefined:      "Undefined",
	FormatR8Unorm:        "R8Unorm",
	FormatRG8Unorm:       "RG8Unorm",
	FormatR16Unorm:       "R16Unorm",
	FormatRG16Unorm:      "RG16Unorm",
	FormatRGBA8Unorm:     "RGBA8Unorm",
	FormatRGBA8UnormSRGB: "RGBA8UnormSRGB",
}

// String returns the format name.
func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "Unknown"
}

// BytesPerTexel returns the size of one texel, or 0 for FormatUndefined.
func (f Format) BytesPerTexel() int {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRG8Unorm, FormatR16Unorm:
		return 2
	case FormatRG16Unorm, FormatRGBA8Unorm, FormatRGBA8UnormSRGB:
		return 4
	default:
		return 0
	}
}

// Channels returns the number of channels.
func (f Format) Channels() int {
	switch f {
	case FormatR8Unorm, FormatR16Unorm:
		return 1
	case FormatRG8Unorm, FormatRG16Unorm:
		return 2
	case FormatRGBA8Unorm, FormatRGBA8UnormSRGB:
		return 4
	default:
		return 0
	}
}

// RowBytes returns the minimum bytes per row for width texels.
func (f Format) RowBytes(width int) int {
	return width * f.BytesPerTexel()
}
