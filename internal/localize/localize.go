package localize

import (
	"errors"
	"fmt"

	"github.com/GamesCrafters/gamesplane/internal/board"
	"github.com/GamesCrafters/gamesplane/internal/geo"
	"github.com/GamesCrafters/gamesplane/internal/pose"
	"github.com/GamesCrafters/gamesplane/pkg/core"
)

var (
	// ErrInsufficientAnchors means no anchor with a usable pose was supplied.
	ErrInsufficientAnchors = errors.New("insufficient anchors")
	// ErrNotAPiece means Locate was called on an anchored marker.
	ErrNotAPiece = errors.New("marker is not a piece")
	// ErrNotAnAnchor means Fixed was called on an unanchored marker.
	ErrNotAnAnchor = errors.New("marker is not an anchor")
	// ErrUnknownMarker means the id is not part of the layout.
	ErrUnknownMarker = errors.New("unknown marker")
)

// Anchor pairs an anchored marker's definition with its pose in this frame.
type Anchor struct {
	Pose   pose.Detected
	Marker board.Marker
}

func (a Anchor) usable() bool {
	_, ok := a.Marker.Position()
	return ok && a.Pose.Valid()
}

// AnchorEstimate is the piece position implied by a single anchor.
type AnchorEstimate struct {
	AnchorID int
	Position board.Position
}

// Marker is a detected marker placed on the board.
type Marker struct {
	pose.Detected
	Physical board.Marker

	Exact   board.Position
	Closest board.Position

	// Estimates holds one entry per anchor that contributed to Exact.
	// Empty for anchors.
	Estimates []AnchorEstimate

	// OffBoard is how far Exact lies outside the board footprint.
	OffBoard float64
}

// Placed converts the marker into its wire representation.
func (m Marker) Placed() core.PlacedMarker {
	return core.PlacedMarker{
		MarkerID: m.MarkerID,
		Tag:      m.Physical.Tag,
		Anchored: m.Physical.Anchored,
		Exact:    core.BoardPoint{X: m.Exact.X, Y: m.Exact.Y},
		Closest:  core.BoardPoint{X: m.Closest.X, Y: m.Closest.Y},
		OffBoard: m.OffBoard,
	}
}

// Fixed places an anchor at its configured position.
func Fixed(p pose.Detected, anchor board.Marker) (Marker, error) {
	pos, ok := anchor.Position()
	if !ok {
		return Marker{}, fmt.Errorf("%w: marker %d", ErrNotAnAnchor, anchor.ID)
	}
	return Marker{Detected: p, Physical: anchor, Exact: pos, Closest: pos}, nil
}

// Locate estimates a piece's board position from every usable anchor.
//
// Each anchor re-expresses the piece pose in its own frame; the planar part of
// that offset, scaled to board units and shifted by the anchor's position, is
// one estimate. Estimates are averaged with equal weight and the average is
// snapped to the closest valid position.
func Locate(piece pose.Detected, anchors []Anchor, layout *board.Layout) (Marker, error) {
	phys, ok := layout.Marker(piece.MarkerID)
	if !ok {
		return Marker{}, fmt.Errorf("%w: %d", ErrUnknownMarker, piece.MarkerID)
	}
	if phys.Anchored {
		return Marker{}, fmt.Errorf("%w: marker %d is anchored", ErrNotAPiece, piece.MarkerID)
	}
	if !piece.Valid() {
		return Marker{}, fmt.Errorf("%w: marker %d has no valid pose", pose.ErrPoseEstimation, piece.MarkerID)
	}

	scale := layout.CmPerUnit()
	var estimates []AnchorEstimate
	for _, a := range anchors {
		if !a.usable() {
			continue
		}
		_, offset := geo.Rebase(a.Pose.Rotation, a.Pose.Translation, piece.Rotation, piece.Translation)
		origin, _ := a.Marker.Position()
		estimates = append(estimates, AnchorEstimate{
			AnchorID: a.Marker.ID,
			Position: board.Position{
				X: offset[0]/scale + origin.X,
				Y: offset[1]/scale + origin.Y,
			},
		})
	}
	if len(estimates) == 0 {
		return Marker{}, fmt.Errorf("%w: locating marker %d", ErrInsufficientAnchors, piece.MarkerID)
	}

	var exact board.Position
	for _, e := range estimates {
		exact.X += e.Position.X
		exact.Y += e.Position.Y
	}
	exact.X /= float64(len(estimates))
	exact.Y /= float64(len(estimates))

	return Marker{
		Detected:  piece,
		Physical:  phys,
		Exact:     exact,
		Closest:   layout.Closest(exact),
		Estimates: estimates,
		OffBoard:  layout.DistanceFromBoard(exact),
	}, nil
}
