package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"thumbcache/internal/database"
	"thumbcache/internal/indexer"
	"thumbcache/internal/memory"
	"thumbcache/internal/startup"
	"thumbcache/internal/thumbnail"
)

// app carries what every subcommand needs.
type app struct {
	config  *startup.Config
	thumbs  startup.Components
	stdout  io.Writer
	stderr  io.Writer
	verbose bool
}

func (a *app) flagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage: thumbcache %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, minArgs int) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() < minArgs {
		fs.Usage()
		return errUsage
	}
	return nil
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return abs, nil
}

// expand turns file and directory arguments into absolute image paths.
// Directories contribute the images a codec can read; files are taken as
// given so unreadable ones still get a fail entry.
func (a *app) expand(args []string, recursive bool) ([]string, error) {
	var paths []string
	for _, arg := range args {
		p, err := absPath(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, p)
			continue
		}
		infos, err := a.thumbs.Service.ListImages(p, recursive)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			paths = append(paths, info.Path)
		}
	}
	return paths, nil
}

func runGenerate(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("generate", "[-r] [-cache-only] [-size large|normal] [-workers N] PATH...")
	recursive := fs.Bool("r", false, "Descend into subdirectories")
	cacheOnly := fs.Bool("cache-only", false, "Only report what is already cached")
	size := fs.String("size", "large", "Tier whose file is printed (large or normal)")
	workers := fs.Int("workers", a.config.Workers, "Concurrent generations")
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}

	tier, ok := thumbnail.ParseTier(*size)
	if !ok || tier == thumbnail.TierFail {
		fmt.Fprintf(a.stderr, "Invalid size %q: use large or normal\n", *size)
		return errUsage
	}

	paths, err := a.expand(fs.Args(), *recursive)
	if err != nil {
		return err
	}

	if *cacheOnly {
		return a.reportCached(paths, tier)
	}

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()

	svc := a.thumbs.Service
	batch := svc.NewBatch(thumbnail.WithWorkers(*workers), thumbnail.WithThrottle(monitor), thumbnail.WithoutImages())
	hits, pending := batch.Populate(ctx, paths)

	var cached, generated, failed int
	for _, r := range hits {
		if r.OK {
			cached++
			a.printEntry("cached", r, tier)
		} else {
			failed++
			a.printEntry("failed", r, tier)
		}
	}
	for r := range pending {
		if r.OK {
			generated++
			a.printEntry("created", r, tier)
		} else {
			failed++
			a.printEntry("failed", r, tier)
		}
	}

	fmt.Fprintf(a.stdout, "%d images: %d cached, %d generated, %d failed\n",
		len(paths), cached, generated, failed)
	if skipped := len(paths) - cached - generated - failed; skipped > 0 {
		fmt.Fprintf(a.stdout, "%d images skipped\n", skipped)
	}
	if a.verbose {
		for _, s := range svc.Latency().All() {
			fmt.Fprintln(a.stdout, s.String())
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be thumbnailed", failed, len(paths))
	}
	return nil
}

func (a *app) printEntry(status string, r thumbnail.Result, tier thumbnail.Tier) {
	if !r.OK {
		fmt.Fprintf(a.stdout, "%-8s %s\n", status, r.Path)
		return
	}
	thumb, _ := a.thumbs.Service.Store().Locate(r.Key, tier)
	fmt.Fprintf(a.stdout, "%-8s %s -> %s\n", status, r.Path, thumb)
}

func (a *app) reportCached(paths []string, tier thumbnail.Tier) error {
	svc := a.thumbs.Service
	missing := 0
	for _, p := range paths {
		if thumb, ok := svc.ThumbnailPath(p, tier, true); ok {
			fmt.Fprintf(a.stdout, "%-8s %s -> %s\n", "cached", p, thumb)
		} else if _, failed := svc.ThumbnailPath(p, thumbnail.TierFail, true); failed {
			fmt.Fprintf(a.stdout, "%-8s %s\n", "failed", p)
		} else {
			missing++
			fmt.Fprintf(a.stdout, "%-8s %s\n", "missing", p)
		}
	}
	fmt.Fprintf(a.stdout, "%d images, %d not cached\n", len(paths), missing)
	return nil
}

func runLocate(_ context.Context, a *app, args []string) error {
	fs := a.flagSet("locate", "FILE...")
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}

	svc := a.thumbs.Service
	notCached := 0
	for _, arg := range fs.Args() {
		p, err := absPath(arg)
		if err != nil {
			return err
		}
		key := thumbnail.KeyFor(p)
		fmt.Fprintln(a.stdout, p)
		fmt.Fprintf(a.stdout, "  uri:    %s\n", thumbnail.URIFor(p))
		fmt.Fprintf(a.stdout, "  key:    %s\n", key)

		found := false
		for _, tier := range thumbnail.Tiers {
			if thumb, ok := svc.Store().Locate(key, tier); ok {
				found = true
				fmt.Fprintf(a.stdout, "  %-7s %s\n", tier.String()+":", thumb)
			}
		}
		if !found {
			notCached++
			fmt.Fprintln(a.stdout, "  not cached")
			continue
		}

		if attrs, _, err := svc.Attributes(p); err == nil {
			for _, k := range attrs.Keys() {
				fmt.Fprintf(a.stdout, "  %s = %s\n", k, attrs[k])
			}
		}
	}

	if notCached > 0 {
		return fmt.Errorf("%d of %d files not cached", notCached, fs.NArg())
	}
	return nil
}

func runInvalidate(_ context.Context, a *app, args []string) error {
	fs := a.flagSet("invalidate", "FILE...")
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}

	var errs []error
	for _, arg := range fs.Args() {
		p, err := absPath(arg)
		if err != nil {
			return err
		}
		if err := a.thumbs.Service.Invalidate(p); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", p, err))
			continue
		}
		fmt.Fprintf(a.stdout, "invalidated %s\n", p)
	}
	return errors.Join(errs...)
}

func runRotate(_ context.Context, a *app, args []string) error {
	fs := a.flagSet("rotate", "[-degrees N] FILE...")
	degrees := fs.Int("degrees", 90, "Clockwise rotation, a multiple of 90")
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}

	normalized, err := thumbnail.NormalizeRotation(*degrees)
	if err != nil {
		fmt.Fprintf(a.stderr, "Invalid rotation %d: %v\n", *degrees, err)
		return errUsage
	}

	failed := 0
	for _, arg := range fs.Args() {
		p, err := absPath(arg)
		if err != nil {
			return err
		}
		if !a.thumbs.Service.Rotate(p, *degrees) {
			failed++
			fmt.Fprintf(a.stdout, "failed  %s\n", p)
			continue
		}
		fmt.Fprintf(a.stdout, "rotated %s by %d degrees\n", p, normalized)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be rotated", failed, fs.NArg())
	}
	return nil
}

func (a *app) openDatabase(ctx context.Context) (*database.Database, error) {
	if err := os.MkdirAll(filepath.Dir(a.config.DatabasePath), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	return database.New(ctx, a.config.DatabasePath)
}

func runIndex(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("index", "[DIR]")
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}

	dir := a.config.MediaDir
	if fs.NArg() > 0 {
		var err error
		if dir, err = absPath(fs.Arg(0)); err != nil {
			return err
		}
	}

	db, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := indexer.New(db, a.thumbs.Service, dir).Index(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "indexed %d images under %s (%d removed) in %v\n",
		res.Images, dir, res.Removed, res.Duration.Round(time.Millisecond))
	return nil
}

func runStats(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("stats", "")
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}

	stats, err := a.thumbs.Service.CollectStats()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Cache: %s\n", a.thumbs.Service.Store().Root())
	for _, tier := range thumbnail.Tiers {
		ts := stats.Tiers[tier.String()]
		fmt.Fprintf(a.stdout, "  %-7s %6d files %10s\n", tier.String()+":", ts.Files, memory.FormatBytes(ts.Bytes))
	}

	if _, err := os.Stat(a.config.DatabasePath); err != nil {
		fmt.Fprintf(a.stdout, "Index: not created (%s)\n", a.config.DatabasePath)
		return nil
	}
	db, err := database.New(ctx, a.config.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Index: %d images (%s)\n", n, a.config.DatabasePath)
	return nil
}

func runVersion(_ context.Context, a *app, _ []string) error {
	info := startup.GetBuildInfo()
	fmt.Fprintf(a.stdout, "thumbcache %s (commit %s, built %s, %s %s/%s)\n",
		info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
	return nil
}
