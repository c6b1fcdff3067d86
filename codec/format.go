package codec

// MediaType is the kind of an elementary stream.
type MediaType uint8

// Media types.
const (
	MediaUnknown MediaType = iota
	MediaVideo
	MediaAudio
)

// String returns the media type name.
func (m MediaType) String() string {
	switch m {
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// PixelFormat is the memory layout of a decoded video frame.
type PixelFormat uint8

// Pixel formats. Suffix P is planar; P010/P016 style formats are
// semi-planar with 16-bit containers.
const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatYUV420P
	PixelFormatYUV444P
	PixelFormatNV12
	PixelFormatNV21
	PixelFormatP010
	PixelFormatP410
	PixelFormatYUV420P10
	PixelFormatYUV444P10
	PixelFormatP016
	PixelFormatP416
	PixelFormatRGBA
)

var pixelFormatNames = [...]string{
	PixelFormatUnknown:   "unknown",
	PixelFormatYUV420P:   "yuv420p",
	PixelFormatYUV444P:   "yuv444p",
	PixelFormatNV12:      "nv12",
	PixelFormatNV21:      "nv21",
	PixelFormatP010:      "p010",
	PixelFormatP410:      "p410",
	PixelFormatYUV420P10: "yuv420p10",
	PixelFormatYUV444P10: "yuv444p10",
	PixelFormatP016:      "p016",
	PixelFormatP416:      "p416",
	PixelFormatRGBA:      "rgba",
}

// String returns the conventional lowercase name.
func (f PixelFormat) String() string {
	if int(f) < len(pixelFormatNames) {
		return pixelFormatNames[f]
	}
	return "unknown"
}

// BitDepth returns the significant bits per luma sample.
func (f PixelFormat) BitDepth() int {
	switch f {
	case PixelFormatP010, PixelFormatP410, PixelFormatYUV420P10, PixelFormatYUV444P10:
		return 10
	case PixelFormatP016, PixelFormatP416:
		return 16
	default:
		return 8
	}
}

// SampleFormat is the memory layout of decoded audio samples.
type SampleFormat uint8

// Sample formats. Suffix P is planar (one buffer per channel).
const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatS16
	SampleFormatS32
	SampleFormatFLT
	SampleFormatS16P
	SampleFormatS32P
	SampleFormatFLTP
)

var sampleFormatNames = [...]string{
	SampleFormatUnknown: "unknown",
	SampleFormatS16:     "s16",
	SampleFormatS32:     "s32",
	SampleFormatFLT:     "flt",
	SampleFormatS16P:    "s16p",
	SampleFormatS32P:    "s32p",
	SampleFormatFLTP:    "fltp",
}

// String returns the conventional lowercase name.
func (f SampleFormat) String() string {
	if int(f) < len(sampleFormatNames) {
		return sampleFormatNames[f]
	}
	return "unknown"
}

// Planar reports whether each channel has its own buffer.
func (f SampleFormat) Planar() bool {
	return f == SampleFormatS16P || f == SampleFormatS32P || f == SampleFormatFLTP
}

// BytesPerSample returns the size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatS32, SampleFormatS32P, SampleFormatFLT, SampleFormatFLTP:
		return 4
	default:
		return 0
	}
}

// ColorSpace identifies the YUV matrix coefficients of a stream.
type ColorSpace uint8

// Color spaces.
const (
	ColorSpaceUnspecified ColorSpace = iota
	ColorSpaceBT709
	ColorSpaceBT2020NCL
	ColorSpaceBT2020CL
	ColorSpaceSMPTE170M
	ColorSpaceBT470BG
	ColorSpaceSMPTE240M
	ColorSpaceFCC
)

// String returns the color space name.
func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceBT709:
		return "bt709"
	case ColorSpaceBT2020NCL:
		return "bt2020nc"
	case ColorSpaceBT2020CL:
		return "bt2020c"
	case ColorSpaceSMPTE170M:
		return "smpte170m"
	case ColorSpaceBT470BG:
		return "bt470bg"
	case ColorSpaceSMPTE240M:
		return "smpte240m"
	case ColorSpaceFCC:
		return "fcc"
	default:
		return "unspecified"
	}
}

// ColorRange is the quantization range of video samples.
type ColorRange uint8

// Color ranges.
const (
	ColorRangeUnspecified ColorRange = iota
	ColorRangeLimited
	ColorRangeFull
)

// String returns the range name.
func (r ColorRange) String() string {
	switch r {
	case ColorRangeLimited:
		return "tv"
	case ColorRangeFull:
		return "pc"
	default:
		return "unspecified"
	}
}

// ChromaLocation is the siting of chroma samples relative to luma.
type ChromaLocation uint8

// Chroma locations.
const (
	ChromaLocationUnspecified ChromaLocation = iota
	ChromaLocationLeft
	ChromaLocationCenter
	ChromaLocationTopLeft
	ChromaLocationTop
	ChromaLocationBottomLeft
	ChromaLocationBottom
)

// String returns the location name.
func (l ChromaLocation) String() string {
	switch l {
	case ChromaLocationLeft:
		return "left"
	case ChromaLocationCenter:
		return "center"
	case ChromaLocationTopLeft:
		return "topleft"
	case ChromaLocationTop:
		return "top"
	case ChromaLocationBottomLeft:
		return "bottomleft"
	case ChromaLocationBottom:
		return "bottom"
	default:
		return "unspecified"
	}
}

// Colorimetry describes how video samples map to color.
type Colorimetry struct {
	Space          ColorSpace
	Range          ColorRange
	ChromaLocation ChromaLocation
}
