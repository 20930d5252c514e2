package pose

import (
	"errors"
	"fmt"
	"math"

	"github.com/GamesCrafters/gamesplane/internal/geo"
	"github.com/GamesCrafters/gamesplane/pkg/core"
)

// ErrPoseEstimation is returned when a marker's corners do not admit a pose.
var ErrPoseEstimation = errors.New("pose estimation failed")

// Detected is one marker's pose in camera space for a single frame.
type Detected struct {
	MarkerID    int
	Corners     core.Corners
	Rotation    geo.Mat3
	Translation geo.Vec3 // centimeters

	// ReprojectionError is the RMS pixel distance between the observed
	// corners and the corners projected from the solved pose.
	ReprojectionError float64
}

// RotationVector returns the rotation in axis-angle form.
func (d Detected) RotationVector() geo.Vec3 {
	return geo.ToAxisAngle(d.Rotation)
}

// Valid reports whether the pose holds a finite rotation and translation.
func (d Detected) Valid() bool {
	return d.Translation.IsFinite() && d.Rotation.IsRotation(1e-6)
}

// ObjectPoints returns the marker corners in the marker's own frame, in the
// same order as detected corners. The marker lies in its z=0 plane, x to the
// right and y up.
func ObjectPoints(edge float64) [4]geo.Vec3 {
	h := edge / 2
	return [4]geo.Vec3{
		{-h, h, 0},
		{h, h, 0},
		{h, -h, 0},
		{-h, -h, 0},
	}
}

// Estimate solves the pose of a square marker of the given edge length from
// its four pixel corners. Invalid intrinsics fail with an error matching both
// ErrPoseEstimation and ErrInvalidCamera.
func Estimate(id int, corners core.Corners, edge float64, cam Camera) (Detected, error) {
	if err := cam.Validate(); err != nil {
		return Detected{}, fmt.Errorf("%w: %w", ErrPoseEstimation, err)
	}
	if err := checkCorners(corners, edge); err != nil {
		return Detected{}, fmt.Errorf("%w: marker %d: %w", ErrPoseEstimation, id, err)
	}

	var img [4][2]float64
	for i, c := range corners {
		img[i][0], img[i][1] = cam.normalize(c)
	}

	rot, t, err := initialPose(img, edge)
	if err != nil {
		return Detected{}, fmt.Errorf("%w: marker %d: %w", ErrPoseEstimation, id, err)
	}

	obj := ObjectPoints(edge)
	rot, t = refine(cam, obj, corners, rot, t)

	if !rot.IsRotation(1e-6) || !t.IsFinite() || t[2] <= 0 {
		return Detected{}, fmt.Errorf("%w: marker %d: solver diverged", ErrPoseEstimation, id)
	}

	return Detected{
		MarkerID:          id,
		Corners:           corners,
		Rotation:          rot,
		Translation:       t,
		ReprojectionError: rmsError(cam, obj, corners, rot, t),
	}, nil
}

func checkCorners(c core.Corners, edge float64) error {
	if !(edge > 0) || math.IsInf(edge, 0) {
		return fmt.Errorf("edge length must be positive, got %v", edge)
	}
	for i, p := range c {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("corner %d is not finite", i)
		}
	}
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if math.Hypot(c[i].X-c[j].X, c[i].Y-c[j].Y) < 1e-6 {
				return fmt.Errorf("corners %d and %d coincide", i, j)
			}
		}
	}
	// shoelace; positive for TL, TR, BR, BL with y pointing down
	var area float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		area += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	if area/2 <= 1e-6 {
		return fmt.Errorf("corner quad has non-positive area %g", area/2)
	}
	return nil
}

func rmsError(cam Camera, obj [4]geo.Vec3, observed core.Corners, rot geo.Mat3, t geo.Vec3) float64 {
	var sum float64
	for i, p := range obj {
		px, ok := cam.Project(rot.MulVec(p).Add(t))
		if !ok {
			return math.Inf(1)
		}
		dx, dy := px.X-observed[i].X, px.Y-observed[i].Y
		sum += dx*dx + dy*dy
	}
	return math.Sqrt(sum / 4)
}
