// Command vramcache runs image commands through a device cache with a shared
// memory budget and manages the saved budget.
//
//	vramcache [-config file] [-debug] run [-registry name] [-prefetch] [-watch] [-keep-going] commands.json
//	vramcache [-config file] status
//	vramcache [-config file] budget [size]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/vramcache"
	"github.com/hupe1980/vramcache/settings"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vramcache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	debugFlag := fs.Bool("debug", false, "enable debug logging")
	versionFlag := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: vramcache [flags] run|status|budget [args]\n\nops: %s\n\nflags:\n",
			strings.Join(operationNames(), ", "))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *versionFlag {
		fmt.Fprintf(stdout, "vramcache version %s\n", Version)
		return 0
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *debugFlag {
		cfg.LogLevel = "debug"
	}
	logger := newLogger(cfg, stderr)

	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	switch cmd, rest := fs.Arg(0), fs.Args()[1:]; cmd {
	case "run":
		err = runCommands(ctx, cfg, logger, rest, stdout, stderr)
	case "status":
		err = status(ctx, cfg, logger, stdout)
	case "budget":
		err = budget(ctx, cfg, logger, rest, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newLogger(cfg Config, w io.Writer) *vramcache.Logger {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return vramcache.NewLogger(slog.NewJSONHandler(w, opts))
	}
	return vramcache.NewLogger(slog.NewTextHandler(w, opts))
}

func systemOptions(cfg Config, logger *vramcache.Logger, extra ...vramcache.Option) []vramcache.Option {
	opts := []vramcache.Option{
		vramcache.WithLogger(logger),
		vramcache.WithSettingsURI(cfg.Settings),
	}
	if cfg.MaxBytes != nil {
		opts = append(opts, vramcache.WithMaxBytes(*cfg.MaxBytes))
	}
	return append(opts, extra...)
}

func status(ctx context.Context, cfg Config, logger *vramcache.Logger, stdout io.Writer) error {
	sys, err := vramcache.Open(ctx, systemOptions(cfg, logger)...)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "settings: %s (%s/%s)\n", cfg.Settings, settings.BudgetModule, settings.BudgetKey)
	fmt.Fprintf(stdout, "%s\n", sys.Stats())
	return sys.Close()
}

// budget prints the saved budget, or saves a new one when a size is given.
// Sizes accept units such as "512MiB" or "1GB"; 0 disables the limit.
func budget(ctx context.Context, cfg Config, logger *vramcache.Logger, args []string, stdout io.Writer) error {
	if len(args) > 1 {
		return errors.New("budget: too many arguments")
	}

	// The saved value is what this command manages, so ignore max_bytes.
	cfg.MaxBytes = nil
	sys, err := vramcache.Open(ctx, systemOptions(cfg, logger)...)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		n, perr := humanize.ParseBytes(args[0])
		if perr != nil {
			_ = sys.Close()
			return fmt.Errorf("budget: %w", perr)
		}
		if err := sys.SetMaxBytes(ctx, int64(n)); err != nil {
			_ = sys.Close()
			return err
		}
	}

	n := sys.MaxBytes()
	if n == 0 {
		fmt.Fprintln(stdout, "unlimited")
	} else {
		fmt.Fprintf(stdout, "%s (%d bytes)\n", humanize.IBytes(uint64(n)), n)
	}
	return sys.Close()
}
