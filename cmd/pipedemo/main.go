// Package main is a command-line driver for the action pipeline engine.
//
// It reads dispatch requests from stdin, one per line, in the form
//
//	<action-key> [json-payload]
//
// and prints each result envelope. Handlers come from Lua script files;
// guard settings come from an optional TOML profile, hot-reloaded while
// the driver runs.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dshills/actionpipe/pipeline"
	"github.com/dshills/actionpipe/pipeline/handler"
	"github.com/dshills/actionpipe/profile"
	"github.com/dshills/actionpipe/script"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

type options struct {
	ProfilePath string
	Parallel    bool
	Scripts     []string
}

func run() int {
	opts := parseFlags()

	eng := pipeline.NewWithDefaults()

	host := script.NewHost()
	defer host.Close()

	// Each script file registers one handler under the action key named by
	// its base filename (scripts/search.query.lua -> "search.query").
	for _, path := range opts.Scripts {
		key, fn, err := compileScript(host, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if _, err := eng.Register(key, fn, pipeline.WithBlocking()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: registering %s: %v\n", key, err)
			return 1
		}
	}

	if opts.ProfilePath != "" {
		watcher, err := profile.Watch(opts.ProfilePath, eng)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: loading profile: %v\n", err)
			return 1
		}
		defer watcher.Close()

		go func() {
			for err := range watcher.Errors() {
				fmt.Fprintf(os.Stderr, "Warning: profile reload: %v\n", err)
			}
		}()
	}

	// Handle signals for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()

	if err := dispatchLoop(ctx, eng, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	printStats(eng.Stats())
	return 0
}

func dispatchLoop(ctx context.Context, eng *pipeline.Engine, opts options) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, payload := splitRequest(line)

		callOpts := []pipeline.CallOption{}
		if opts.Parallel {
			callOpts = append(callOpts, pipeline.WithMode(pipeline.ModeParallel))
		}

		env, err := eng.DispatchWithResult(ctx, key, payload, callOpts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %s: %v\n", key, err)
			continue
		}
		printEnvelope(key, env)
	}
	return scanner.Err()
}

// splitRequest separates the action key from an optional JSON payload.
func splitRequest(line string) (string, any) {
	key, rest, found := strings.Cut(line, " ")
	if !found || strings.TrimSpace(rest) == "" {
		return key, nil
	}
	return key, strings.TrimSpace(rest)
}

func compileScript(host *script.Host, path string) (string, handler.Func, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", path, err)
	}
	fn, err := host.Compile(string(src))
	if err != nil {
		return "", nil, fmt.Errorf("compiling %s: %w", path, err)
	}
	return actionKeyFor(path), fn, nil
}

// actionKeyFor derives an action key from a script path: the base filename
// without the .lua extension.
func actionKeyFor(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".lua")
}

func printEnvelope(key string, env *handler.Envelope) {
	status := "ok"
	if !env.Success {
		status = "failed"
	}
	fmt.Printf("%s: %s mode=%s executed=%d skipped=%d in %s\n",
		key, status, env.Execution.Mode,
		env.Execution.HandlersExecuted, env.Execution.HandlersSkipped,
		env.Execution.Duration)
	for _, out := range env.Results {
		switch {
		case out.Skipped:
			fmt.Printf("  skipped (%s)\n", out.Reason)
		case out.Err != nil:
			fmt.Printf("  error: %v\n", out.Err)
		default:
			fmt.Printf("  result: %v\n", out.Value)
		}
	}
}

func printStats(stats pipeline.Stats) {
	fmt.Printf("dispatches=%d suppressed=%d deferred=%d trailing=%d executed=%d errors=%d\n",
		stats.Dispatches, stats.Suppressed, stats.Deferred,
		stats.TrailingRuns, stats.HandlersExecuted, stats.HandlerErrors)
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ProfilePath, "profile", "", "Path to guard profile (TOML)")
	flag.StringVar(&opts.ProfilePath, "p", "", "Path to guard profile (shorthand)")
	flag.BoolVar(&opts.Parallel, "parallel", false, "Run handlers in parallel mode")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Pipedemo - action pipeline driver\n\n")
		fmt.Fprintf(os.Stderr, "Usage: pipedemo [options] [scripts...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pipedemo search.query.lua              Register one scripted handler\n")
		fmt.Fprintf(os.Stderr, "  pipedemo -p guards.toml *.lua          Apply a guard profile\n")
		fmt.Fprintf(os.Stderr, "  echo 'search.query {\"q\":\"go\"}' | pipedemo search.query.lua\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("Pipedemo %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	// Remaining arguments are handler scripts to load
	opts.Scripts = flag.Args()

	return opts
}
