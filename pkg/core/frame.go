// pkg/core/frame.go
package core

import (
	"time"
)

// Pixel is an image-space coordinate. The origin is the top-left corner of the frame.
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Corners holds the four corners of a detected square marker,
// ordered top-left, top-right, bottom-right, bottom-left.
type Corners [4]Pixel

// Center returns the mean of the four corners.
func (c Corners) Center() Pixel {
	var p Pixel
	for _, corner := range c {
		p.X += corner.X
		p.Y += corner.Y
	}
	p.X /= 4
	p.Y /= 4
	return p
}

// Detection is one marker reported by the fiducial detector.
type Detection struct {
	MarkerID int     `json:"id"`
	Corners  Corners `json:"corners"`
}

// Frame is the detector output for a single video frame.
// Turn is 1 or 2; zero means the caller does not track turns.
type Frame struct {
	Timestamp  time.Time   `json:"timestamp"`
	Turn       int         `json:"turn,omitempty"`
	Width      int         `json:"width,omitempty"`
	Height     int         `json:"height,omitempty"`
	Detections []Detection `json:"detections"`
}
