package encoder

import (
	"fmt"
	"strings"

	"github.com/GamesCrafters/gamesplane/internal/board"
	"github.com/GamesCrafters/gamesplane/internal/localize"
)

// Grid encodes a board as one character per cell in a fixed cell order,
// optionally prefixed with the player to move ("1_" or "2_").
type Grid struct {
	// Cells lists the board positions in the order they appear in the symbol.
	Cells []board.Position
	// Symbols maps a piece tag to its character. Tags missing from the map
	// use their first character.
	Symbols map[string]string
	// Empty is written for unoccupied cells. Defaults to "-".
	Empty string
	// PieceCount, when positive, is the exact number of pieces required.
	PieceCount int
	// TurnPrefix prepends the player to move.
	TurnPrefix bool
}

// Encode implements Encoder.
func (g Grid) Encode(turn int, pieces []localize.Marker) (string, error) {
	if g.PieceCount > 0 && len(pieces) != g.PieceCount {
		return "", fmt.Errorf("%w: expected %d pieces, saw %d", ErrInvalidBoardState, g.PieceCount, len(pieces))
	}

	empty := g.Empty
	if empty == "" {
		empty = "-"
	}
	cells := make([]string, len(g.Cells))
	for i := range cells {
		cells[i] = empty
	}

	for _, p := range pieces {
		idx := g.cellIndex(p.Closest)
		if idx < 0 {
			return "", fmt.Errorf("%w: marker %d at %s is not on a cell", ErrInvalidBoardState, p.MarkerID, p.Closest)
		}
		if cells[idx] != empty {
			return "", fmt.Errorf("%w: two pieces at %s", ErrInvalidBoardState, p.Closest)
		}
		sym, err := g.symbol(p.Physical.Tag)
		if err != nil {
			return "", err
		}
		cells[idx] = sym
	}

	var b strings.Builder
	if g.TurnPrefix {
		if turn == 2 {
			b.WriteString("2_")
		} else {
			b.WriteString("1_")
		}
	}
	for _, c := range cells {
		b.WriteString(c)
	}
	return b.String(), nil
}

func (g Grid) cellIndex(p board.Position) int {
	for i, c := range g.Cells {
		if c.Distance(p) < 1e-6 {
			return i
		}
	}
	return -1
}

func (g Grid) symbol(tag string) (string, error) {
	if s, ok := g.Symbols[tag]; ok {
		return s, nil
	}
	if tag == "" {
		return "", fmt.Errorf("%w: piece has no tag", ErrInvalidBoardState)
	}
	return tag[:1], nil
}

// Dao encodes the 4x4 Dao board: eight pieces, cells listed from the top row
// down and left to right, X moving first.
func Dao() Grid {
	coords := []float64{-2.7, -0.9, 0.9, 2.7}
	cells := make([]board.Position, 0, 16)
	for i := len(coords) - 1; i >= 0; i-- {
		for _, x := range coords {
			cells = append(cells, board.Position{X: x, Y: coords[i]})
		}
	}
	return Grid{
		Cells:      cells,
		Symbols:    map[string]string{"O": "O", "X": "X"},
		PieceCount: 8,
		TurnPrefix: true,
	}
}
