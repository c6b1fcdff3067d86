package color

// Transfer tables for the 8-bit paths. Conversion encodes every output
// texel and mip generation decodes every texel, so both go through a
// table instead of math.Pow.

// decodeTable maps an sRGB byte to linear light.
var decodeTable [256]float32

// encodeSteps is the resolution of encodeTable. 12 bits keeps every
// 8-bit code reachable.
const encodeSteps = 4096

// encodeTable maps linear light quantized to encodeSteps to an sRGB byte.
var encodeTable [encodeSteps]uint8

func init() {
	for i := range decodeTable {
		decodeTable[i] = SRGBToLinear(float32(i) / 255)
	}
	for i := range encodeTable {
		v := LinearToSRGB(float32(i)/(encodeSteps-1))*255 + 0.5
		encodeTable[i] = uint8(min(max(v, 0), 255)) //nolint:gosec // clamped
	}
}

// SRGBToLinearFast converts an sRGB byte to linear light.
func SRGBToLinearFast(s uint8) float32 {
	return decodeTable[s]
}

// LinearToSRGBFast converts linear light to an sRGB byte. Input outside
// [0, 1] is clamped; NaN maps to 0.
func LinearToSRGBFast(l float32) uint8 {
	if !(l > 0) {
		return 0
	}
	i := min(int(min(l, 1)*(encodeSteps-1)+0.5), encodeSteps-1)
	return encodeTable[i]
}
