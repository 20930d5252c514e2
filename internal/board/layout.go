package board

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
)

// ErrInvalidLayout is returned by NewLayout when the definition is unusable.
var ErrInvalidLayout = errors.New("invalid board layout")

// Layout is the static description of a game board. It is immutable after
// construction and safe to share between goroutines.
type Layout struct {
	pieces    []Marker
	anchors   []Marker
	positions []Position
	cmPerUnit float64

	byID      map[int]Marker
	footprint geom.Geometry
}

// NewLayout validates the markers and positions and builds a Layout.
func NewLayout(pieces, anchors []Marker, positions []Position, cmPerUnit float64) (*Layout, error) {
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: at least one unanchored marker is required", ErrInvalidLayout)
	}
	if len(anchors) == 0 {
		return nil, fmt.Errorf("%w: at least one anchored marker is required", ErrInvalidLayout)
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: at least one valid board position is required", ErrInvalidLayout)
	}
	if !(cmPerUnit > 0) || math.IsInf(cmPerUnit, 0) {
		return nil, fmt.Errorf("%w: cm per unit must be positive, got %v", ErrInvalidLayout, cmPerUnit)
	}

	l := &Layout{
		pieces:    make([]Marker, 0, len(pieces)),
		anchors:   make([]Marker, 0, len(anchors)),
		positions: append([]Position(nil), positions...),
		cmPerUnit: cmPerUnit,
		byID:      make(map[int]Marker, len(pieces)+len(anchors)),
	}

	for _, a := range anchors {
		if !a.Anchored {
			return nil, fmt.Errorf("%w: marker %d listed as anchor but not anchored", ErrInvalidLayout, a.ID)
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
		}
		if _, dup := l.byID[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate anchor id %d", ErrInvalidLayout, a.ID)
		}
		a = a.clone()
		l.anchors = append(l.anchors, a)
		l.byID[a.ID] = a
	}

	for _, p := range pieces {
		if p.Anchored {
			return nil, fmt.Errorf("%w: marker %d listed as piece but anchored", ErrInvalidLayout, p.ID)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
		}
		if prev, seen := l.byID[p.ID]; seen {
			if prev.Anchored {
				return nil, fmt.Errorf("%w: id %d used by both an anchor and a piece", ErrInvalidLayout, p.ID)
			}
			// pieces may share an id, but only as copies of the same kind
			if prev.Tag != p.Tag || prev.EdgeLength != p.EdgeLength {
				return nil, fmt.Errorf("%w: pieces sharing id %d disagree on tag or size", ErrInvalidLayout, p.ID)
			}
		}
		l.pieces = append(l.pieces, p)
		l.byID[p.ID] = p
	}

	for i, pos := range l.positions {
		if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) {
			return nil, fmt.Errorf("%w: position %d is not finite", ErrInvalidLayout, i)
		}
	}

	footprint, err := buildFootprint(l.positions, l.anchors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	l.footprint = footprint
	return l, nil
}

func toPoint(p Position) (geom.Point, error) {
	pt, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Y}, Type: geom.DimXY})
	if err != nil {
		return geom.Point{}, fmt.Errorf("board point %s: %w", p, err)
	}
	return pt, nil
}

// buildFootprint is the convex hull of every valid position and anchor.
func buildFootprint(positions []Position, anchors []Marker) (geom.Geometry, error) {
	pts := make([]geom.Point, 0, len(positions)+len(anchors))
	for _, p := range positions {
		pt, err := toPoint(p)
		if err != nil {
			return geom.Geometry{}, err
		}
		pts = append(pts, pt)
	}
	for _, a := range anchors {
		pt, err := toPoint(*a.BoardPosition)
		if err != nil {
			return geom.Geometry{}, err
		}
		pts = append(pts, pt)
	}
	return geom.NewMultiPoint(pts).AsGeometry().ConvexHull(), nil
}

// Marker returns the definition for id.
func (l *Layout) Marker(id int) (Marker, bool) {
	m, ok := l.byID[id]
	if !ok {
		return Marker{}, false
	}
	return m.clone(), true
}

// IsAnchor reports whether id belongs to an anchored marker.
func (l *Layout) IsAnchor(id int) bool {
	m, ok := l.byID[id]
	return ok && m.Anchored
}

// Pieces returns a copy of the unanchored markers.
func (l *Layout) Pieces() []Marker {
	return cloneAll(l.pieces)
}

// Anchors returns a copy of the anchored markers.
func (l *Layout) Anchors() []Marker {
	return cloneAll(l.anchors)
}

// Positions returns a copy of the valid board positions in layout order.
func (l *Layout) Positions() []Position {
	return append([]Position(nil), l.positions...)
}

// CmPerUnit is how many centimeters make one board unit.
func (l *Layout) CmPerUnit() float64 {
	return l.cmPerUnit
}

// Closest returns the valid position nearest to p. When two positions are
// equally near, the one that comes first in layout order wins.
func (l *Layout) Closest(p Position) Position {
	if len(l.positions) == 1 {
		return l.positions[0]
	}
	best := l.positions[0]
	bestDist := p.Distance(best)
	for _, pos := range l.positions[1:] {
		if d := p.Distance(pos); d < bestDist {
			best, bestDist = pos, d
		}
	}
	return best
}

// DistanceFromBoard returns how far p lies outside the board footprint, in
// board units. Points on or inside the footprint return zero.
func (l *Layout) DistanceFromBoard(p Position) float64 {
	point, err := toPoint(p)
	if err != nil {
		return math.Inf(1)
	}
	pt := point.AsGeometry()
	if geom.Intersects(l.footprint, pt) {
		return 0
	}
	d, ok := geom.Distance(l.footprint, pt)
	if !ok {
		return 0
	}
	return d
}

func cloneAll(ms []Marker) []Marker {
	out := make([]Marker, len(ms))
	for i, m := range ms {
		out[i] = m.clone()
	}
	return out
}
