// Package game loads board game definitions: the markers, the valid piece
// positions, how a position is encoded and which anchors frame the overlay.
package game

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/GamesCrafters/gamesplane/internal/board"
	"github.com/GamesCrafters/gamesplane/internal/encoder"
	"github.com/GamesCrafters/gamesplane/pkg/core"
	"github.com/spf13/viper"
)

// ErrInvalidDefinition is returned when a definition cannot describe a board.
var ErrInvalidDefinition = errors.New("invalid game definition")

// ErrUnknownGame is returned by Resolve when the name is neither a file nor a built-in.
var ErrUnknownGame = errors.New("unknown game")

//go:embed builtin/*.yaml
var builtinFS embed.FS

// MarkerGroup is a run of markers sharing a tag and size. Anchor groups pair
// each id with the position at the same index.
type MarkerGroup struct {
	IDs       []int            `mapstructure:"ids"`
	Tag       string           `mapstructure:"tag"`
	Symbol    string           `mapstructure:"symbol"`
	Size      float64          `mapstructure:"size"`
	Positions []board.Position `mapstructure:"positions"`
}

// EncoderSpec selects the state encoder. Name "grid" builds an encoder over
// Cells, or over the valid positions when Cells is empty; any other name is
// looked up in the encoder registry.
type EncoderSpec struct {
	Name       string           `mapstructure:"name"`
	Cells      []board.Position `mapstructure:"cells"`
	Empty      string           `mapstructure:"empty"`
	PieceCount int              `mapstructure:"piece_count"`
	TurnPrefix bool             `mapstructure:"turn_prefix"`
}

// Definition is one game and variant as loaded from a file.
type Definition struct {
	Name           string           `mapstructure:"name"`
	Route          string           `mapstructure:"route"`
	Variant        string           `mapstructure:"variant"`
	CmPerUnit      float64          `mapstructure:"cm_per_unit"`
	Anchors        []MarkerGroup    `mapstructure:"anchors"`
	Pieces         []MarkerGroup    `mapstructure:"pieces"`
	ValidPositions []board.Position `mapstructure:"valid_positions"`
	Encoder        EncoderSpec      `mapstructure:"encoder"`
	// OverlayAnchors lists the anchors whose outer corners frame the
	// overlay, in top-left, top-right, bottom-right, bottom-left order.
	OverlayAnchors []int `mapstructure:"overlay_anchors"`
}

// Load reads a JSON or YAML definition file.
func Load(file string) (Definition, error) {
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return Definition{}, fmt.Errorf("read game definition %s: %w", file, err)
	}
	return decode(v, file)
}

// Parse reads a definition from data in the given format ("yaml" or "json").
func Parse(data []byte, format string) (Definition, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return Definition{}, fmt.Errorf("parse game definition: %w", err)
	}
	return decode(v, "<"+format+">")
}

func decode(v *viper.Viper, source string) (Definition, error) {
	v.SetDefault("variant", "regular")
	v.SetDefault("encoder.name", "grid")

	var def Definition
	if err := v.Unmarshal(&def); err != nil {
		return Definition{}, fmt.Errorf("decode game definition %s: %w", source, err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, fmt.Errorf("%s: %w", source, err)
	}
	return def, nil
}

// Builtin returns the bundled definition for route.
func Builtin(route string) (Definition, bool) {
	data, err := builtinFS.ReadFile(path.Join("builtin", route+".yaml"))
	if err != nil {
		return Definition{}, false
	}
	def, err := Parse(data, "yaml")
	if err != nil {
		return Definition{}, false
	}
	return def, true
}

// BuiltinNames lists the bundled definitions.
func BuiltinNames() []string {
	entries, _ := builtinFS.ReadDir("builtin")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Resolve loads name as a file when one exists, otherwise as a built-in route.
func Resolve(name string) (Definition, error) {
	if _, err := os.Stat(name); err == nil {
		return Load(name)
	}
	if def, ok := Builtin(name); ok {
		return def, nil
	}
	return Definition{}, fmt.Errorf("%w: %q (built-in games: %s)", ErrUnknownGame, name, strings.Join(BuiltinNames(), ", "))
}

// Scope is the overlay cache scope for this game and variant.
func (d Definition) Scope() core.Scope {
	return core.Scope{Game: d.Route, Variant: d.Variant}
}

// Validate builds the layout and encoder and checks the overlay anchors.
func (d Definition) Validate() error {
	if d.Route == "" {
		return fmt.Errorf("%w: route is required", ErrInvalidDefinition)
	}
	layout, err := d.Layout()
	if err != nil {
		return err
	}
	if _, err := d.NewEncoder(); err != nil {
		return err
	}
	if n := len(d.OverlayAnchors); n != 0 && n != 4 {
		return fmt.Errorf("%w: overlay needs exactly 4 anchors, got %d", ErrInvalidDefinition, n)
	}
	for _, id := range d.OverlayAnchors {
		if !layout.IsAnchor(id) {
			return fmt.Errorf("%w: overlay anchor %d is not an anchored marker", ErrInvalidDefinition, id)
		}
	}
	return nil
}

// Layout builds the board layout.
func (d Definition) Layout() (*board.Layout, error) {
	var anchors, pieces []board.Marker
	for _, g := range d.Anchors {
		ms, err := board.Anchors(g.IDs, g.Tag, g.Size, g.Positions)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
		}
		anchors = append(anchors, ms...)
	}
	for _, g := range d.Pieces {
		if len(g.Positions) != 0 {
			return nil, fmt.Errorf("%w: piece group %q may not have positions", ErrInvalidDefinition, g.Tag)
		}
		pieces = append(pieces, board.Pieces(g.IDs, g.Tag, g.Size)...)
	}

	layout, err := board.NewLayout(pieces, anchors, d.ValidPositions, d.CmPerUnit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return layout, nil
}

// NewEncoder builds the state encoder named by the definition.
func (d Definition) NewEncoder() (encoder.Encoder, error) {
	if d.Encoder.Name != "grid" {
		enc, err := encoder.Lookup(d.Encoder.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
		}
		return enc, nil
	}

	cells := d.Encoder.Cells
	if len(cells) == 0 {
		cells = d.ValidPositions
	}
	symbols := make(map[string]string)
	for _, g := range d.Pieces {
		if g.Symbol != "" {
			symbols[g.Tag] = g.Symbol
		}
	}
	return encoder.Grid{
		Cells:      append([]board.Position(nil), cells...),
		Symbols:    symbols,
		Empty:      d.Encoder.Empty,
		PieceCount: d.Encoder.PieceCount,
		TurnPrefix: d.Encoder.TurnPrefix,
	}, nil
}
