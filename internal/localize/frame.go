package localize

import (
	"github.com/GamesCrafters/gamesplane/internal/board"
	"github.com/GamesCrafters/gamesplane/internal/pose"
)

// Quality classifies what a frame says about the board.
type Quality int

const (
	// NotObserved means no anchor was visible; no piece positions exist.
	NotObserved Quality = iota
	// LowQuality means pieces were located but at least one landed off the board.
	LowQuality
	// Observed means every located piece is on the board.
	Observed
)

func (q Quality) String() string {
	switch q {
	case NotObserved:
		return "not_observed"
	case LowQuality:
		return "low_quality"
	case Observed:
		return "observed"
	default:
		return "unknown"
	}
}

// Options tunes frame localization.
type Options struct {
	// OffBoardTolerance is how far, in board units, a piece may land outside
	// the board footprint before the frame is considered low quality.
	OffBoardTolerance float64
}

// FrameResult is the outcome of localizing every marker of one frame.
type FrameResult struct {
	// Located is false when no usable anchor was visible. Pieces is then
	// empty and nothing about piece positions was observed.
	Located bool

	Anchors []Marker
	Pieces  []Marker

	// Unknown lists detected ids that are not part of the layout.
	Unknown []int

	tolerance float64
}

// Quality reports whether the frame observed the board, and how well.
func (r FrameResult) Quality() Quality {
	if !r.Located {
		return NotObserved
	}
	for _, p := range r.Pieces {
		if p.OffBoard > r.tolerance {
			return LowQuality
		}
	}
	return Observed
}

// Frame localizes every detected marker. Anchors are placed at their fixed
// positions; pieces are located relative to all visible anchors.
func Frame(detected []pose.Detected, layout *board.Layout, opts Options) FrameResult {
	res := FrameResult{tolerance: opts.OffBoardTolerance}

	var anchors []Anchor
	var pieces []pose.Detected
	for _, d := range detected {
		m, ok := layout.Marker(d.MarkerID)
		if !ok {
			res.Unknown = append(res.Unknown, d.MarkerID)
			continue
		}
		if m.Anchored {
			fixed, err := Fixed(d, m)
			if err != nil {
				continue
			}
			res.Anchors = append(res.Anchors, fixed)
			anchors = append(anchors, Anchor{Pose: d, Marker: m})
			continue
		}
		pieces = append(pieces, d)
	}

	for _, a := range anchors {
		if a.usable() {
			res.Located = true
			break
		}
	}
	if !res.Located {
		return res
	}

	for _, p := range pieces {
		m, err := Locate(p, anchors, layout)
		if err != nil {
			// a piece without a usable pose is dropped for this frame
			continue
		}
		res.Pieces = append(res.Pieces, m)
	}
	return res
}
