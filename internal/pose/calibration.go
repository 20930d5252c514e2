package pose

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// calibrationFile is the on-disk layout written by the calibration tooling.
// dist_coeff is usually a nested 1xN list but a flat list is accepted too.
type calibrationFile struct {
	CameraMatrix [][]float64 `yaml:"camera_matrix"`
	DistCoeff    any         `yaml:"dist_coeff"`
}

// LoadCalibration reads camera intrinsics from a YAML file.
func LoadCalibration(path string) (Camera, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Camera{}, fmt.Errorf("reading calibration: %w", err)
	}
	return ParseCalibration(data)
}

// ParseCalibration decodes camera intrinsics from YAML.
func ParseCalibration(data []byte) (Camera, error) {
	var f calibrationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Camera{}, fmt.Errorf("%w: %w", ErrInvalidCamera, err)
	}
	if len(f.CameraMatrix) != 3 {
		return Camera{}, fmt.Errorf("%w: camera_matrix must have 3 rows, got %d", ErrInvalidCamera, len(f.CameraMatrix))
	}

	var cam Camera
	for r, row := range f.CameraMatrix {
		if len(row) != 3 {
			return Camera{}, fmt.Errorf("%w: camera_matrix row %d has %d values", ErrInvalidCamera, r, len(row))
		}
		copy(cam.Matrix[r*3:], row)
	}

	dist, err := flatten(f.DistCoeff)
	if err != nil {
		return Camera{}, fmt.Errorf("%w: dist_coeff: %w", ErrInvalidCamera, err)
	}
	cam.Distortion = dist

	if err := cam.Validate(); err != nil {
		return Camera{}, err
	}
	return cam, nil
}

// SaveCalibration writes camera intrinsics in the same layout LoadCalibration reads.
func SaveCalibration(path string, cam Camera) error {
	out, err := MarshalCalibration(cam)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}

// MarshalCalibration encodes camera intrinsics as YAML.
func MarshalCalibration(cam Camera) ([]byte, error) {
	m := cam.Matrix
	f := calibrationFile{
		CameraMatrix: [][]float64{
			{m[0], m[1], m[2]},
			{m[3], m[4], m[5]},
			{m[6], m[7], m[8]},
		},
		DistCoeff: [][]float64{append([]float64{}, cam.Distortion...)},
	}
	return yaml.Marshal(f)
}

func flatten(v any) ([]float64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int:
		return []float64{float64(t)}, nil
	case float64:
		return []float64{t}, nil
	case []any:
		var out []float64
		for _, e := range t {
			vals, err := flatten(e)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected value %v", v)
	}
}

