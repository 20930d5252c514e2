// pkg/core/board.go
package core

// BoardPoint is a position in board units.
type BoardPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlacedMarker is the externally visible result for one located marker.
type PlacedMarker struct {
	MarkerID int        `json:"id"`
	Tag      string     `json:"tag"`
	Anchored bool       `json:"anchored"`
	Exact    BoardPoint `json:"exact"`
	Closest  BoardPoint `json:"closest"`
	OffBoard float64    `json:"offBoard,omitempty"`
}
