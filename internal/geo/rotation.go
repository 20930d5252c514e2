package geo

import "math"

// RotX returns a rotation of angle radians about the X axis.
func RotX(angle float64) Mat3 {
	s, c := math.Sincos(angle)
	return Mat3{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	}
}

// RotY returns a rotation of angle radians about the Y axis.
func RotY(angle float64) Mat3 {
	s, c := math.Sincos(angle)
	return Mat3{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	}
}

// RotZ returns a rotation of angle radians about the Z axis.
func RotZ(angle float64) Mat3 {
	s, c := math.Sincos(angle)
	return Mat3{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	}
}

// FromAxisAngle converts a rotation vector (axis scaled by angle in radians)
// into a rotation matrix using the Rodrigues formula.
func FromAxisAngle(rv Vec3) Mat3 {
	theta := rv.Norm()
	if theta < 1e-12 {
		// first order: I + [rv]x
		return Mat3{
			1, -rv[2], rv[1],
			rv[2], 1, -rv[0],
			-rv[1], rv[0], 1,
		}
	}
	k := rv.Scale(1 / theta)
	s, c := math.Sincos(theta)
	v := 1 - c
	return Mat3{
		c + k[0]*k[0]*v, k[0]*k[1]*v - k[2]*s, k[0]*k[2]*v + k[1]*s,
		k[1]*k[0]*v + k[2]*s, c + k[1]*k[1]*v, k[1]*k[2]*v - k[0]*s,
		k[2]*k[0]*v - k[1]*s, k[2]*k[1]*v + k[0]*s, c + k[2]*k[2]*v,
	}
}

// ToAxisAngle converts a rotation matrix to a rotation vector.
func ToAxisAngle(m Mat3) Vec3 {
	cos := (m[0] + m[4] + m[8] - 1) / 2
	cos = math.Max(-1, math.Min(1, cos))
	theta := math.Acos(cos)

	if theta < 1e-12 {
		return Vec3{(m[7] - m[5]) / 2, (m[2] - m[6]) / 2, (m[3] - m[1]) / 2}
	}

	if math.Pi-theta < 1e-6 {
		// sin(theta) ~ 0, recover the axis from the symmetric part
		xx := math.Sqrt(math.Max(0, (m[0]+1)/2))
		yy := math.Sqrt(math.Max(0, (m[4]+1)/2))
		zz := math.Sqrt(math.Max(0, (m[8]+1)/2))
		axis := Vec3{xx, yy, zz}
		switch {
		case xx >= yy && xx >= zz:
			axis[1] = math.Copysign(yy, m[1]+m[3])
			axis[2] = math.Copysign(zz, m[2]+m[6])
		case yy >= zz:
			axis[0] = math.Copysign(xx, m[1]+m[3])
			axis[2] = math.Copysign(zz, m[5]+m[7])
		default:
			axis[0] = math.Copysign(xx, m[2]+m[6])
			axis[1] = math.Copysign(yy, m[5]+m[7])
		}
		return axis.Scale(theta / axis.Norm())
	}

	s := 2 * math.Sin(theta)
	axis := Vec3{(m[7] - m[5]) / s, (m[2] - m[6]) / s, (m[3] - m[1]) / s}
	return axis.Scale(theta)
}
