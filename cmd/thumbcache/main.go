package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"thumbcache/internal/logging"
	"thumbcache/internal/memory"
	"thumbcache/internal/startup"
	"thumbcache/internal/thumbnail"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

var errUsage = errors.New("usage error")

// command is one subcommand. run receives the arguments after the
// subcommand name.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, app *app, args []string) error
}

var commands = []command{
	{"generate", "Generate (or check) thumbnails for files and directories", runGenerate},
	{"locate", "Print the cache entries for files", runLocate},
	{"invalidate", "Remove every cache entry for files", runInvalidate},
	{"rotate", "Rotate images in place and drop their thumbnails", runRotate},
	{"index", "Refresh the image index for a directory", runIndex},
	{"stats", "Show cache and index statistics", runStats},
	{"version", "Print version information", runVersion},
}

func main() {
	memory.ConfigureFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	if err := thumbnail.InitVips(); err != nil {
		logging.Debug("libvips unavailable: %v", err)
	}
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	thumbnail.ShutdownVips()
	os.Exit(code)
}

// run parses global flags, resolves configuration and dispatches to the
// subcommand. It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("thumbcache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "Enable debug logging")
	configFile := fs.String("config", "", "TOML configuration file (overrides "+startup.EnvConfigFile+")")
	fs.Usage = func() { printUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		printUsage(stderr)
		return exitUsage
	}

	if *verbose {
		logging.SetLevel(logging.LevelDebug)
	}
	if *configFile != "" {
		if err := os.Setenv(startup.EnvConfigFile, *configFile); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
	}

	name := fs.Arg(0)
	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", sanitizeCommand(name))
		printUsage(stderr)
		return exitUsage
	}

	config, err := startup.Resolve()
	if err != nil {
		fmt.Fprintf(stderr, "Error: configuration: %v\n", err)
		return exitFailure
	}

	a := &app{
		config:  config,
		thumbs:  startup.NewThumbnailService(config),
		stdout:  stdout,
		stderr:  stderr,
		verbose: *verbose,
	}

	if err := cmd.run(ctx, a, fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return exitUsage
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// sanitizeCommand returns a safe representation of a command string for display.
// Any character that is not alphanumeric, a hyphen, or an underscore becomes '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "thumbcache - freedesktop thumbnail cache tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: thumbcache [-v] [-config FILE] <command> [options] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-11s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  %-18s TOML configuration file\n", startup.EnvConfigFile)
	fmt.Fprintf(w, "  %-18s Cache root (default: ~/.cache)\n", "XDG_CACHE_HOME")
	fmt.Fprintf(w, "  %-18s Image index location\n", "DATABASE_PATH")
	fmt.Fprintf(w, "  %-18s Log level (debug/info/warn/error)\n", "LOG_LEVEL")
}
