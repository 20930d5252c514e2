package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"strconv"

	"github.com/GamesCrafters/gamesplane/internal/config"
	"github.com/GamesCrafters/gamesplane/internal/game"
	"github.com/GamesCrafters/gamesplane/internal/pose"
	"github.com/GamesCrafters/gamesplane/internal/storage"
	sqlitestorage "github.com/GamesCrafters/gamesplane/internal/storage/sqlite"

	"github.com/spf13/pflag"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

func eraseFlags(fs *pflag.FlagSet) {
	fs.Bool("all", false, "remove every game's cache file (sqlite storage only)")
}

func runErase(ctx context.Context, fs *pflag.FlagSet) error {
	closeLogs, err := setupLogging(nil)
	if err != nil {
		return err
	}
	defer closeLogs()

	backend, err := storage.NewBackend(config.GetStorageConfig(), StorageLogger)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return err
	}
	defer backend.Close()

	if all, _ := fs.GetBool("all"); all {
		sb, ok := backend.(*sqlitestorage.Backend)
		if !ok {
			return errors.New("--all needs sqlite storage")
		}
		return eraseAllFiles(sb)
	}

	def, err := resolveGame()
	if err != nil {
		return err
	}
	if err := backend.Erase(ctx, def.Scope()); err != nil {
		return err
	}
	Logger.Info("overlay cache erased", "scope", def.Scope().String())
	return nil
}

func eraseAllFiles(sb *sqlitestorage.Backend) error {
	if err := sb.Close(); err != nil {
		return err
	}
	files, err := sb.Files()
	if err != nil {
		return err
	}
	var errs []error
	for _, f := range files {
		for _, p := range []string{f, f + "-wal", f + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
		Logger.Info("removed cache file", "path", f)
	}
	return errors.Join(errs...)
}

func layoutFlags(fs *pflag.FlagSet) {
	fs.String("out", "", "output PNG, defaults to <game>_layout.png")
}

func runLayout(ctx context.Context, fs *pflag.FlagSet) error {
	def, err := resolveGame()
	if err != nil {
		return err
	}
	out, _ := fs.GetString("out")
	if out == "" {
		out = def.Route + "_layout.png"
	}
	if err := plotLayout(def, out); err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// plotLayout draws the valid positions and the labelled anchors of a game.
func plotLayout(def game.Definition, out string) error {
	layout, err := def.Layout()
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%s)", def.Name, def.Variant)
	p.X.Label.Text = "x (board units)"
	p.Y.Label.Text = "y (board units)"
	p.Add(plotter.NewGrid())

	positions := layout.Positions()
	posPts := make(plotter.XYs, 0, len(positions))
	for _, pos := range positions {
		posPts = append(posPts, plotter.XY{X: pos.X, Y: pos.Y})
	}
	posScatter, err := plotter.NewScatter(posPts)
	if err != nil {
		return fmt.Errorf("plotting positions: %w", err)
	}
	posScatter.GlyphStyle.Shape = draw.CircleGlyph{}
	posScatter.GlyphStyle.Radius = vg.Points(4)
	posScatter.GlyphStyle.Color = color.RGBA{R: 40, G: 90, B: 200, A: 255}

	anchors := layout.Anchors()
	anchorPts := make(plotter.XYs, 0, len(anchors))
	labels := make([]string, 0, len(anchors))
	for _, a := range anchors {
		pos, _ := a.Position()
		anchorPts = append(anchorPts, plotter.XY{X: pos.X, Y: pos.Y})
		labels = append(labels, strconv.Itoa(a.ID))
	}
	anchorScatter, err := plotter.NewScatter(anchorPts)
	if err != nil {
		return fmt.Errorf("plotting anchors: %w", err)
	}
	anchorScatter.GlyphStyle.Shape = draw.BoxGlyph{}
	anchorScatter.GlyphStyle.Radius = vg.Points(5)
	anchorScatter.GlyphStyle.Color = color.RGBA{R: 200, G: 60, B: 40, A: 255}

	anchorLabels, err := plotter.NewLabels(plotter.XYLabels{XYs: anchorPts, Labels: labels})
	if err != nil {
		return fmt.Errorf("labelling anchors: %w", err)
	}
	for i := range anchorLabels.TextStyle {
		anchorLabels.TextStyle[i].XAlign = draw.XCenter
	}
	anchorLabels.Offset = vg.Point{Y: vg.Points(8)}

	p.Add(posScatter, anchorScatter, anchorLabels)
	p.Legend.Add("position", posScatter)
	p.Legend.Add("anchor", anchorScatter)
	p.Legend.Top = true

	if err := p.Save(6*vg.Inch, 6*vg.Inch, out); err != nil {
		return fmt.Errorf("saving layout plot: %w", err)
	}
	return nil
}

func calibrateFlags(fs *pflag.FlagSet) {
	fs.Int("width", 0, "frame width in pixels, defaults to camera.width")
	fs.Int("height", 0, "frame height in pixels, defaults to camera.height")
	fs.String("out", "camera.yaml", "calibration file to write")
}

func runCalibrate(ctx context.Context, fs *pflag.FlagSet) error {
	cc := config.GetCameraConfig()
	w, _ := fs.GetInt("width")
	h, _ := fs.GetInt("height")
	if w <= 0 {
		w = cc.Width
	}
	if h <= 0 {
		h = cc.Height
	}
	out, _ := fs.GetString("out")

	if err := pose.SaveCalibration(out, pose.DefaultCamera(w, h)); err != nil {
		return err
	}
	fmt.Printf("wrote %dx%d calibration to %s\n", w, h, out)
	return nil
}

func runGames(ctx context.Context, fs *pflag.FlagSet) error {
	for _, name := range game.BuiltinNames() {
		def, ok := game.Builtin(name)
		if !ok {
			continue
		}
		fmt.Printf("%-10s %s\n", name, def.Name)
	}
	return nil
}
