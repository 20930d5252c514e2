package board

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidMarker is returned when a marker definition is inconsistent.
var ErrInvalidMarker = errors.New("invalid marker")

// Position is a location in board units.
type Position struct {
	X float64 `json:"x" yaml:"x" mapstructure:"x"`
	Y float64 `json:"y" yaml:"y" mapstructure:"y"`
}

// Distance returns the Euclidean distance between two positions.
func (p Position) Distance(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

func (p Position) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Marker describes one physical fiducial marker used by a game.
// Anchored markers are glued to the board at BoardPosition; unanchored
// markers sit on movable pieces and never carry a position.
type Marker struct {
	ID            int
	Tag           string
	EdgeLength    float64 // centimeters
	Anchored      bool
	BoardPosition *Position
}

// NewAnchor builds an anchored marker fixed at pos.
func NewAnchor(id int, tag string, edge float64, pos Position) Marker {
	return Marker{ID: id, Tag: tag, EdgeLength: edge, Anchored: true, BoardPosition: &pos}
}

// NewPiece builds an unanchored marker.
func NewPiece(id int, tag string, edge float64) Marker {
	return Marker{ID: id, Tag: tag, EdgeLength: edge}
}

// Anchors builds one anchored marker per id, pairing ids with positions by index.
func Anchors(ids []int, tag string, edge float64, positions []Position) ([]Marker, error) {
	if len(ids) != len(positions) {
		return nil, fmt.Errorf("%w: %d anchor ids but %d positions", ErrInvalidMarker, len(ids), len(positions))
	}
	out := make([]Marker, len(ids))
	for i, id := range ids {
		out[i] = NewAnchor(id, tag, edge, positions[i])
	}
	return out, nil
}

// Pieces builds one unanchored marker per id.
func Pieces(ids []int, tag string, edge float64) []Marker {
	out := make([]Marker, len(ids))
	for i, id := range ids {
		out[i] = NewPiece(id, tag, edge)
	}
	return out
}

// Validate checks the marker on its own.
func (m Marker) Validate() error {
	if m.ID < 0 {
		return fmt.Errorf("%w: negative id %d", ErrInvalidMarker, m.ID)
	}
	if !(m.EdgeLength > 0) || math.IsInf(m.EdgeLength, 0) {
		return fmt.Errorf("%w: marker %d has edge length %v", ErrInvalidMarker, m.ID, m.EdgeLength)
	}
	if m.Anchored && m.BoardPosition == nil {
		return fmt.Errorf("%w: anchored marker %d has no board position", ErrInvalidMarker, m.ID)
	}
	if !m.Anchored && m.BoardPosition != nil {
		return fmt.Errorf("%w: unanchored marker %d may not have a board position", ErrInvalidMarker, m.ID)
	}
	return nil
}

// Position returns the fixed board position of an anchor.
func (m Marker) Position() (Position, bool) {
	if !m.Anchored || m.BoardPosition == nil {
		return Position{}, false
	}
	return *m.BoardPosition, true
}

func (m Marker) clone() Marker {
	if m.BoardPosition != nil {
		p := *m.BoardPosition
		m.BoardPosition = &p
	}
	return m
}
