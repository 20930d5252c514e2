package pose

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/GamesCrafters/gamesplane/internal/geo"
	"github.com/GamesCrafters/gamesplane/pkg/core"
)

const (
	maxIterations = 50
	lambdaInit    = 1e-3
	lambdaMax     = 1e10
)

// initialPose estimates a pose from undistorted normalized corners by
// decomposing the marker-plane homography.
func initialPose(img [4][2]float64, edge float64) (geo.Mat3, geo.Vec3, error) {
	// unit square object points keep the DLT system well conditioned
	unit := ObjectPoints(2)

	a := mat.NewDense(8, 9, nil)
	for i, p := range unit {
		X, Y := p[0], p[1]
		x, y := img[i][0], img[i][1]
		a.SetRow(2*i, []float64{X, Y, 1, 0, 0, 0, -x * X, -x * Y, -x})
		a.SetRow(2*i+1, []float64{0, 0, 0, X, Y, 1, -y * X, -y * Y, -y})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return geo.Mat3{}, geo.Vec3{}, errors.New("homography factorization failed")
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[len(values)-1]/values[0] < 1e-12 {
		return geo.Mat3{}, geo.Vec3{}, errors.New("corners are degenerate")
	}
	var v mat.Dense
	svd.VTo(&v)
	h := mat.Col(nil, 8, &v)

	// undo the unit scaling: X_unit = X / (edge/2)
	s := 2 / edge
	h1 := geo.Vec3{h[0] * s, h[3] * s, h[6] * s}
	h2 := geo.Vec3{h[1] * s, h[4] * s, h[7] * s}
	h3 := geo.Vec3{h[2], h[5], h[8]}

	norm := h1.Norm() + h2.Norm()
	if norm < 1e-15 {
		return geo.Mat3{}, geo.Vec3{}, errors.New("homography is degenerate")
	}
	lambda := 2 / norm
	if h3[2]*lambda < 0 {
		lambda = -lambda
	}

	r1 := h1.Scale(lambda)
	r2 := h2.Scale(lambda)
	t := h3.Scale(lambda)

	rot, err := nearestRotation(geo.FromCols(r1, r2, r1.Cross(r2)))
	if err != nil {
		return geo.Mat3{}, geo.Vec3{}, err
	}
	return rot, t, nil
}

// nearestRotation projects m onto SO(3) in the Frobenius sense.
func nearestRotation(m geo.Mat3) (geo.Mat3, error) {
	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(3, 3, m[:]), mat.SVDFull) {
		return geo.Mat3{}, errors.New("rotation factorization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// flip the axis with the smallest singular value
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}

	var out geo.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = r.At(i, j)
		}
	}
	return out, nil
}

// refine minimizes pixel reprojection error over the six pose parameters
// with Levenberg-Marquardt and a central-difference Jacobian.
func refine(cam Camera, obj [4]geo.Vec3, observed core.Corners, rot geo.Mat3, t geo.Vec3) (geo.Mat3, geo.Vec3) {
	rv := geo.ToAxisAngle(rot)
	params := []float64{rv[0], rv[1], rv[2], t[0], t[1], t[2]}

	residuals := func(p []float64) []float64 {
		r := geo.FromAxisAngle(geo.Vec3{p[0], p[1], p[2]})
		tr := geo.Vec3{p[3], p[4], p[5]}
		out := make([]float64, 8)
		for i, o := range obj {
			px, ok := cam.Project(r.MulVec(o).Add(tr))
			if !ok {
				for j := range out {
					out[j] = 1e6
				}
				return out
			}
			out[2*i] = px.X - observed[i].X
			out[2*i+1] = px.Y - observed[i].Y
		}
		return out
	}

	cost := func(r []float64) float64 {
		var c float64
		for _, v := range r {
			c += v * v
		}
		return c
	}

	res := residuals(params)
	current := cost(res)
	lambda := lambdaInit

	for iter := 0; iter < maxIterations && current > 1e-18; iter++ {
		jac := jacobian(residuals, params)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var g mat.VecDense
		g.MulVec(jac.T(), mat.NewVecDense(len(res), res))
		g.ScaleVec(-1, &g)

		improved := false
		var step []float64
		for lambda < lambdaMax {
			damped := mat.DenseCopyOf(&jtj)
			for i := 0; i < 6; i++ {
				damped.Set(i, i, jtj.At(i, i)*(1+lambda)+1e-12)
			}
			var delta mat.VecDense
			if err := delta.SolveVec(damped, &g); err != nil {
				lambda *= 10
				continue
			}
			step = delta.RawVector().Data
			candidate := make([]float64, 6)
			for i := range candidate {
				candidate[i] = params[i] + step[i]
			}
			candRes := residuals(candidate)
			if c := cost(candRes); c < current {
				params, res, current = candidate, candRes, c
				lambda = math.Max(lambda/10, 1e-12)
				improved = true
				break
			}
			lambda *= 10
		}
		if !improved || stepNorm(step) < 1e-12 {
			break
		}
	}

	return geo.FromAxisAngle(geo.Vec3{params[0], params[1], params[2]}), geo.Vec3{params[3], params[4], params[5]}
}

func jacobian(f func([]float64) []float64, p []float64) *mat.Dense {
	base := f(p)
	jac := mat.NewDense(len(base), len(p), nil)
	x := append([]float64(nil), p...)
	for j := range p {
		h := 1e-6 * math.Max(1, math.Abs(p[j]))
		x[j] = p[j] + h
		plus := f(x)
		x[j] = p[j] - h
		minus := f(x)
		x[j] = p[j]
		for i := range base {
			jac.Set(i, j, (plus[i]-minus[i])/(2*h))
		}
	}
	return jac
}

func stepNorm(s []float64) float64 {
	var n float64
	for _, v := range s {
		n += v * v
	}
	return math.Sqrt(n)
}
