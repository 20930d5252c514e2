package pose

import (
	"errors"
	"fmt"
	"math"

	"github.com/GamesCrafters/gamesplane/internal/geo"
	"github.com/GamesCrafters/gamesplane/pkg/core"
)

// ErrInvalidCamera is returned when the intrinsics cannot be used.
var ErrInvalidCamera = errors.New("invalid camera intrinsics")

// Camera holds pinhole intrinsics and lens distortion.
//
// Distortion follows the usual k1, k2, p1, p2[, k3[, k4, k5, k6[, s1, s2, s3, s4]]]
// ordering, so it has 0, 4, 5, 8 or 12 coefficients.
type Camera struct {
	Matrix     geo.Mat3
	Distortion []float64
}

// DefaultCamera approximates intrinsics for an uncalibrated camera from the
// frame size: focal length (w+h)/2, principal point at the centre, no distortion.
func DefaultCamera(width, height int) Camera {
	f := float64(width+height) / 2
	return Camera{
		Matrix: geo.Mat3{
			f, 0, float64(width) / 2,
			0, f, float64(height) / 2,
			0, 0, 1,
		},
		Distortion: make([]float64, 5),
	}
}

// Validate checks that the camera can be used for pose estimation.
func (c Camera) Validate() error {
	m := c.Matrix
	if !m.IsFinite() {
		return fmt.Errorf("%w: camera matrix is not finite", ErrInvalidCamera)
	}
	if m[0] <= 0 || m[4] <= 0 {
		return fmt.Errorf("%w: focal lengths must be positive (fx=%g, fy=%g)", ErrInvalidCamera, m[0], m[4])
	}
	if m[3] != 0 || m[6] != 0 || m[7] != 0 || math.Abs(m[8]-1) > 1e-9 {
		return fmt.Errorf("%w: camera matrix must be upper triangular with K[2][2]=1", ErrInvalidCamera)
	}
	switch len(c.Distortion) {
	case 0, 4, 5, 8, 12:
	default:
		return fmt.Errorf("%w: unsupported number of distortion coefficients %d", ErrInvalidCamera, len(c.Distortion))
	}
	for i, d := range c.Distortion {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: distortion coefficient %d is not finite", ErrInvalidCamera, i)
		}
	}
	return nil
}

// coeffs expands the distortion vector to the full 12-coefficient form.
func (c Camera) coeffs() [12]float64 {
	var k [12]float64
	copy(k[:], c.Distortion)
	return k
}

// Project maps a camera-space point to pixel coordinates, applying distortion.
// The second return is false for points at or behind the camera plane.
func (c Camera) Project(p geo.Vec3) (core.Pixel, bool) {
	if p[2] <= 1e-12 {
		return core.Pixel{}, false
	}
	x, y := c.distort(p[0]/p[2], p[1]/p[2])
	m := c.Matrix
	return core.Pixel{
		X: m[0]*x + m[1]*y + m[2],
		Y: m[4]*y + m[5],
	}, true
}

func (c Camera) distort(x, y float64) (float64, float64) {
	k := c.coeffs()
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := (1 + k[0]*r2 + k[1]*r4 + k[4]*r6) / (1 + k[5]*r2 + k[6]*r4 + k[7]*r6)
	xd := x*radial + 2*k[2]*x*y + k[3]*(r2+2*x*x) + k[8]*r2 + k[9]*r4
	yd := y*radial + k[2]*(r2+2*y*y) + 2*k[3]*x*y + k[10]*r2 + k[11]*r4
	return xd, yd
}

// normalize maps a pixel to undistorted normalized image coordinates.
func (c Camera) normalize(px core.Pixel) (float64, float64) {
	m := c.Matrix
	yd := (px.Y - m[5]) / m[4]
	xd := (px.X - m[2] - m[1]*yd) / m[0]
	if len(c.Distortion) == 0 {
		return xd, yd
	}

	k := c.coeffs()
	x, y := xd, yd
	for i := 0; i < 20; i++ {
		r2 := x*x + y*y
		icdist := (1 + ((k[7]*r2+k[6])*r2+k[5])*r2) / (1 + ((k[4]*r2+k[1])*r2+k[0])*r2)
		dx := 2*k[2]*x*y + k[3]*(r2+2*x*x) + k[8]*r2 + k[9]*r2*r2
		dy := k[2]*(r2+2*y*y) + 2*k[3]*x*y + k[10]*r2 + k[11]*r2*r2
		x = (xd - dx) * icdist
		y = (yd - dy) * icdist
	}
	return x, y
}
