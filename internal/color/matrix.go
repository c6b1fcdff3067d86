package color

// Vec3 is a 3-component vector.
type Vec3 [3]float64

// Scale returns v*s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Mat3 is a column-major 3x3 matrix: m[c] is column c.
type Mat3 [3]Vec3

// Identity3 is the 3x3 identity matrix.
var Identity3 = Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// At returns the element at row r, column c.
func (m Mat3) At(r, c int) float64 { return m[c][r] }

// MulVec returns m*v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	var out Vec3
	for c := range 3 {
		for r := range 3 {
			out[r] += m[c][r] * v[c]
		}
	}
	return out
}

// Mul returns m*n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for c := range 3 {
		out[c] = m.MulVec(n[c])
	}
	return out
}

// Det returns the determinant.
func (m Mat3) Det() float64 {
	a, b, c := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	d, e, f := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	g, h, i := m.At(2, 0), m.At(2, 1), m.At(2, 2)
	return a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
}

// Inverse returns the inverse of m. A singular matrix yields the zero matrix.
func (m Mat3) Inverse() Mat3 {
	det := m.Det()
	if det == 0 {
		return Mat3{}
	}
	a, b, c := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	d, e, f := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	g, h, i := m.At(2, 0), m.At(2, 1), m.At(2, 2)

	inv := 1 / det
	var out Mat3
	set := func(r, c int, v float64) { out[c][r] = v * inv }
	set(0, 0, e*i-f*h)
	set(0, 1, c*h-b*i)
	set(0, 2, b*f-c*e)
	set(1, 0, f*g-d*i)
	set(1, 1, a*i-c*g)
	set(1, 2, c*d-a*f)
	set(2, 0, d*h-e*g)
	set(2, 1, b*g-a*h)
	set(2, 2, a*e-b*d)
	return out
}

// Float32 returns m converted to float32, column-major.
func (m Mat3) Float32() [3][3]float32 {
	var out [3][3]float32
	for c := range 3 {
		for r := range 3 {
			out[c][r] = float32(m[c][r])
		}
	}
	return out
}

// Mat4 is a column-major 4x4 affine matrix.
type Mat4 [4][4]float64

// Affine builds a Mat4 from a linear part and a translation.
func Affine(l Mat3, t Vec3) Mat4 {
	var out Mat4
	for c := range 3 {
		out[c] = [4]float64{l[c][0], l[c][1], l[c][2], 0}
	}
	out[3] = [4]float64{t[0], t[1], t[2], 1}
	return out
}

// Mul returns m*n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for c := range 4 {
		for r := range 4 {
			var s float64
			for k := range 4 {
				s += m[k][r] * n[c][k]
			}
			out[c][r] = s
		}
	}
	return out
}

// Float32 returns m converted to float32, column-major.
func (m Mat4) Float32() [4][4]float32 {
	var out [4][4]float32
	for c := range 4 {
		for r := range 4 {
			out[c][r] = float32(m[c][r])
		}
	}
	return out
}
