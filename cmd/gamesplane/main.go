package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GamesCrafters/gamesplane/internal/config"
	"github.com/GamesCrafters/gamesplane/internal/game"
	"github.com/GamesCrafters/gamesplane/internal/logging"
	intOtel "github.com/GamesCrafters/gamesplane/internal/otel"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
)

// BuildDate can be set at build time via ldflags
var (
	Version   string = "0.1.0"
	BuildDate string = "unknown"

	ProgramName string = "gamesplane"
)

// global services, set up by setupLogging
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger = slog.Default()

	// StorageLogger is the zerolog logger used by storage backends and the dispatcher
	StorageLogger zerolog.Logger = zerolog.Nop()

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()
)

type command struct {
	name  string
	usage string
	flags func(fs *pflag.FlagSet)
	run   func(ctx context.Context, fs *pflag.FlagSet) error
}

var commands = []command{
	{"replay", "run recorded detector frames through the pipeline", replayFlags, runReplay},
	{"erase-cache", "delete persisted overlays", eraseFlags, runErase},
	{"layout", "plot a game's board layout to a PNG file", layoutFlags, runLayout},
	{"calibrate", "write an auto-calibrated camera file", calibrateFlags, runCalibrate},
	{"games", "list built-in game definitions", nil, runGames},
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(out)
		return nil
	}
	if args[0] == "version" {
		fmt.Fprintf(out, "%s %s (built %s)\n", ProgramName, Version, BuildDate)
		return nil
	}

	for _, cmd := range commands {
		if !strings.EqualFold(cmd.name, args[0]) {
			continue
		}
		fs := pflag.NewFlagSet(cmd.name, pflag.ContinueOnError)
		fs.SetOutput(out)
		commonFlags(fs)
		if cmd.flags != nil {
			cmd.flags(fs)
		}
		if err := fs.Parse(args[1:]); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				return nil
			}
			return err
		}
		if err := loadConfig(fs); err != nil {
			return err
		}
		return cmd.run(ctx, fs)
	}

	printUsage(out)
	return fmt.Errorf("unknown command %q", args[0])
}

func printUsage(out io.Writer) {
	fmt.Fprintf(out, "usage: %s <command> [flags]\n\ncommands:\n", ProgramName)
	for _, cmd := range commands {
		fmt.Fprintf(out, "  %-12s %s\n", cmd.name, cmd.usage)
	}
	fmt.Fprintf(out, "  %-12s %s\n", "version", "print the version")
}

func commonFlags(fs *pflag.FlagSet) {
	fs.String("config-dir", ".", "directory holding "+config.FileName)
	fs.String("game", "", "built-in game route or path to a game definition file")
	fs.String("variant", "", "game variant, overrides the definition")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig reads the config file and lets flags override it. A missing file
// is not an error; the defaults apply.
func loadConfig(fs *pflag.FlagSet) error {
	dir, _ := fs.GetString("config-dir")
	if err := config.Load(dir); err != nil && fileExists(filepath.Join(dir, config.FileName)) {
		return err
	}

	if err := viper.BindPFlags(selectFlags(fs, "game", "variant")); err != nil {
		return err
	}
	if err := viper.BindPFlag("logLevel", fs.Lookup("log-level")); err != nil {
		return err
	}
	return nil
}

// selectFlags returns a flag set holding only the named flags, for binding
// flags whose names match config keys.
func selectFlags(fs *pflag.FlagSet, names ...string) *pflag.FlagSet {
	sel := pflag.NewFlagSet(fs.Name(), pflag.ContinueOnError)
	for _, n := range names {
		if f := fs.Lookup(n); f != nil {
			sel.AddFlag(f)
		}
	}
	return sel
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// resolveGame loads the configured game and applies the variant override.
func resolveGame() (game.Definition, error) {
	def, err := game.Resolve(viper.GetString("game"))
	if err != nil {
		return game.Definition{}, err
	}
	if v := viper.GetString("variant"); v != "" {
		def.Variant = v
	}
	return def, nil
}

// setupLogging wires slog, zerolog, OTel and Graylog. The returned func
// flushes and closes everything it opened. res is added to the OTel resource.
func setupLogging(attrs logging.ContextProvider, res ...attribute.KeyValue) (func(), error) {
	level := viper.GetString("logLevel")
	logsDir := viper.GetString("logsDir")

	var closers []func()

	var logFile *os.File
	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		path := logging.LogFilePath(logsDir, ProgramName, SessionStartTime)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logFile = f
		closers = append(closers, func() { _ = f.Close() })
	}

	var graylog io.Writer
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGraylogWriter(gl.Address)
		if err != nil {
			fmt.Fprintf(os.Stderr, "graylog disabled: %v\n", err)
		} else {
			graylog = w
			closers = append(closers, func() { _ = w.Close() })
		}
	}

	var otelWriter io.Writer
	if logFile != nil {
		otelWriter = logFile
	}
	provider, err := intOtel.New(config.GetOTelConfig(), otelWriter, res...)
	if err != nil {
		return nil, fmt.Errorf("setting up otel: %w", err)
	}
	OTelProvider = provider

	SlogManager = logging.NewSlogManager()
	sinks := logging.Sinks{
		Provider: provider.LoggerProvider(),
		Graylog:  graylog,
		Context:  attrs,
	}
	var file io.Writer
	if logFile != nil {
		file = io.MultiWriter(logFile, os.Stderr)
	}
	SlogManager.Setup(file, level, sinks)
	Logger = SlogManager.Logger()

	var storageOut io.Writer = os.Stderr
	if logFile != nil {
		storageOut = logFile
	}
	StorageLogger = logging.NewZerolog(storageOut, level, graylog)

	Logger.Debug("logging ready", "version", Version, "build", BuildDate, "otel", provider.Enabled())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := SlogManager.Flush(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
		}
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "otel shutdown: %v\n", err)
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}
