package localize

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GamesCrafters/gamesplane/internal/board"
	"github.com/GamesCrafters/gamesplane/internal/geo"
	"github.com/GamesCrafters/gamesplane/internal/pose"
)

const cmPerUnit = 5.0

// a tilted camera view shared by every marker
var view = geo.RotX(math.Pi).Mul(geo.RotX(0.4)).Mul(geo.RotZ(0.3))

func piecePose(id int, t geo.Vec3) pose.Detected {
	return pose.Detected{MarkerID: id, Rotation: view, Translation: t}
}

// anchorFor returns an anchor whose frame places the piece at offset (cm)
func anchorFor(t *testing.T, l *board.Layout, id int, piece pose.Detected, offset geo.Vec3) Anchor {
	t.Helper()
	m, ok := l.Marker(id)
	require.True(t, ok)
	return Anchor{
		Marker: m,
		Pose: pose.Detected{
			MarkerID:    id,
			Rotation:    view,
			Translation: piece.Translation.Sub(view.MulVec(offset)),
		},
	}
}

func testLayout(t *testing.T, positions ...board.Position) *board.Layout {
	t.Helper()
	if len(positions) == 0 {
		positions = []board.Position{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: 1}}
	}
	anchors, err := board.Anchors([]int{20, 21, 22}, "anchor", 5, []board.Position{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: 1}})
	require.NoError(t, err)
	l, err := board.NewLayout(board.Pieces([]int{1, 2}, "piece", 2), anchors, positions, cmPerUnit)
	require.NoError(t, err)
	return l
}

func TestLocate_SingleAnchorZeroOffset(t *testing.T) {
	l := testLayout(t)
	piece := piecePose(1, geo.Vec3{4, -3, 60})
	a := anchorFor(t, l, 22, piece, geo.Vec3{})

	m, err := Locate(piece, []Anchor{a}, l)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.Exact.X, 1e-9)
	assert.InDelta(t, 1.0, m.Exact.Y, 1e-9)
	assert.Equal(t, board.Position{X: 1, Y: 1}, m.Closest)
	assert.Equal(t, "piece", m.Physical.Tag)
	require.Len(t, m.Estimates, 1)
	assert.Equal(t, 22, m.Estimates[0].AnchorID)
}

func TestLocate_OffsetIsScaledToBoardUnits(t *testing.T) {
	l := testLayout(t)
	piece := piecePose(1, geo.Vec3{0, 0, 50})
	// 10cm along the anchor's x axis is two board units
	a := anchorFor(t, l, 20, piece, geo.Vec3{10, 0, 0.7})

	m, err := Locate(piece, []Anchor{a}, l)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, m.Exact.X, 1e-9)
	assert.InDelta(t, 0.0, m.Exact.Y, 1e-9)
	assert.Equal(t, board.Position{X: 2, Y: 0}, m.Closest)
}

func TestLocate_AveragesDisagreeingAnchors(t *testing.T) {
	l := testLayout(t)
	piece := piecePose(2, geo.Vec3{1, 2, 70})

	// anchor 20 says (1.2, 0.1), anchor 21 says (0.6, -0.3)
	a := anchorFor(t, l, 20, piece, geo.Vec3{6, 0.5, 0})
	b := anchorFor(t, l, 21, piece, geo.Vec3{-7, -1.5, 0})

	m, err := Locate(piece, []Anchor{a, b}, l)
	require.NoError(t, err)

	require.Len(t, m.Estimates, 2)
	assert.InDelta(t, 1.2, m.Estimates[0].Position.X, 1e-9)
	assert.InDelta(t, 0.6, m.Estimates[1].Position.X, 1e-9)
	assert.InDelta(t, 0.9, m.Exact.X, 1e-9)
	assert.InDelta(t, -0.1, m.Exact.Y, 1e-9)
	assert.Equal(t, board.Position{X: 1, Y: 0}, m.Closest)
}

func TestLocate_TieBreakFollowsLayoutOrder(t *testing.T) {
	// axis-aligned poses keep the halfway point exact
	piece := pose.Detected{MarkerID: 1, Rotation: geo.Identity(), Translation: geo.Vec3{0, 0, 40}}
	anchorPose := pose.Detected{MarkerID: 20, Rotation: geo.Identity(), Translation: geo.Vec3{-2.5, 0, 40}}

	forward := testLayout(t, board.Position{X: 0, Y: 0}, board.Position{X: 1, Y: 0})
	backward := testLayout(t, board.Position{X: 1, Y: 0}, board.Position{X: 0, Y: 0})

	for _, tt := range []struct {
		layout *board.Layout
		want   board.Position
	}{
		{forward, board.Position{X: 0, Y: 0}},
		{backward, board.Position{X: 1, Y: 0}},
	} {
		anchor, _ := tt.layout.Marker(20)
		m, err := Locate(piece, []Anchor{{Pose: anchorPose, Marker: anchor}}, tt.layout)
		require.NoError(t, err)
		assert.Equal(t, 0.5, m.Exact.X)
		assert.Equal(t, tt.want, m.Closest)
	}
}

func TestLocate_SkipsUnusableAnchors(t *testing.T) {
	l := testLayout(t)
	piece := piecePose(1, geo.Vec3{0, 0, 40})

	good := anchorFor(t, l, 20, piece, geo.Vec3{5, 0, 0})
	broken := anchorFor(t, l, 21, piece, geo.Vec3{})
	broken.Pose.Rotation = geo.Mat3{}

	m, err := Locate(piece, []Anchor{broken, good}, l)
	require.NoError(t, err)
	require.Len(t, m.Estimates, 1)
	assert.Equal(t, 20, m.Estimates[0].AnchorID)
	assert.Equal(t, board.Position{X: 1, Y: 0}, m.Closest)
}

func TestLocate_Errors(t *testing.T) {
	l := testLayout(t)
	piece := piecePose(1, geo.Vec3{0, 0, 40})
	a := anchorFor(t, l, 20, piece, geo.Vec3{})

	_, err := Locate(piece, nil, l)
	assert.ErrorIs(t, err, ErrInsufficientAnchors)

	a.Pose.Translation = geo.Vec3{math.NaN(), 0, 0}
	_, err = Locate(piece, []Anchor{a}, l)
	assert.ErrorIs(t, err, ErrInsufficientAnchors)

	_, err = Locate(piecePose(20, geo.Vec3{0, 0, 40}), []Anchor{a}, l)
	assert.ErrorIs(t, err, ErrNotAPiece)

	_, err = Locate(piecePose(99, geo.Vec3{0, 0, 40}), []Anchor{a}, l)
	assert.ErrorIs(t, err, ErrUnknownMarker)
}

func TestLocate_Idempotent(t *testing.T) {
	l := testLayout(t)
	piece := piecePose(2, geo.Vec3{1, 2, 70})
	anchors := []Anchor{
		anchorFor(t, l, 20, piece, geo.Vec3{6, 0.5, 0}),
		anchorFor(t, l, 21, piece, geo.Vec3{-7, -1.5, 0}),
	}

	first, err := Locate(piece, anchors, l)
	require.NoError(t, err)
	second, err := Locate(piece, anchors, l)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Locate not idempotent (-first +second):\n%s", diff)
	}
}

func TestFixed(t *testing.T) {
	l := testLayout(t)
	anchor, _ := l.Marker(21)

	m, err := Fixed(pose.Detected{MarkerID: 21}, anchor)
	require.NoError(t, err)
	assert.Equal(t, board.Position{X: 2, Y: 0}, m.Exact)
	assert.Equal(t, board.Position{X: 2, Y: 0}, m.Closest)
	assert.True(t, m.Placed().Anchored)

	piece, _ := l.Marker(1)
	_, err = Fixed(pose.Detected{MarkerID: 1}, piece)
	assert.ErrorIs(t, err, ErrNotAnAnchor)
}

func TestFrame_NoAnchorsIsNotObserved(t *testing.T) {
	l := testLayout(t)

	res := Frame([]pose.Detected{piecePose(1, geo.Vec3{0, 0, 40}), piecePose(2, geo.Vec3{3, 0, 40})}, l, Options{})

	assert.False(t, res.Located)
	assert.Empty(t, res.Pieces)
	assert.Equal(t, NotObserved, res.Quality())
}

func TestFrame_LocatesPiecesAndReportsUnknown(t *testing.T) {
	l := testLayout(t)
	p1 := piecePose(1, geo.Vec3{0, 0, 40})
	a := anchorFor(t, l, 20, p1, geo.Vec3{})
	p2 := piecePose(2, a.Pose.Translation.Add(view.MulVec(geo.Vec3{5, 5, 0})))

	res := Frame([]pose.Detected{p1, a.Pose, p2, {MarkerID: 77}}, l, Options{OffBoardTolerance: 0.5})

	require.True(t, res.Located)
	assert.Equal(t, []int{77}, res.Unknown)
	require.Len(t, res.Anchors, 1)
	require.Len(t, res.Pieces, 2)
	assert.Equal(t, board.Position{X: 0, Y: 0}, res.Pieces[0].Closest)
	assert.Equal(t, board.Position{X: 1, Y: 1}, res.Pieces[1].Closest)
	assert.Equal(t, Observed, res.Quality())
}

func TestFrame_OffBoardPieceIsLowQuality(t *testing.T) {
	l := testLayout(t)
	p1 := piecePose(1, geo.Vec3{0, 0, 40})
	// 40cm is eight board units away from the anchor
	a := anchorFor(t, l, 20, p1, geo.Vec3{-40, 0, 0})

	res := Frame([]pose.Detected{a.Pose, p1}, l, Options{OffBoardTolerance: 1})

	require.True(t, res.Located)
	require.Len(t, res.Pieces, 1)
	assert.InDelta(t, 8.0, res.Pieces[0].OffBoard, 1e-9)
	assert.Equal(t, LowQuality, res.Quality())
	assert.Equal(t, "low_quality", res.Quality().String())
}

func TestFrame_AnchorsOnly(t *testing.T) {
	l := testLayout(t)
	a := anchorFor(t, l, 21, piecePose(1, geo.Vec3{0, 0, 40}), geo.Vec3{})

	res := Frame([]pose.Detected{a.Pose}, l, Options{})

	assert.True(t, res.Located)
	assert.Empty(t, res.Pieces)
	assert.Equal(t, Observed, res.Quality())
}
