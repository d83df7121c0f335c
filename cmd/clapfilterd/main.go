// Command clapfilterd is the fuzzy filter engine's process entry point:
// an RPC daemon reading framed JSON-RPC from stdin and writing to
// stdout, or (with -batch) a one-shot filter pass over a single query
// and source.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dshills/clapfilter/internal/config"
	"github.com/dshills/clapfilter/internal/obslog"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes, per the CLI contract: 0 success, 1 I/O or command failure,
// 2 invalid arguments.
const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run())
}

type options struct {
	configPath string
	batch      bool

	// batch-mode flags
	query      string
	sourceFile string
	sourceCmd  string
	cwd        string

	showVersion bool
	showHelp    bool
}

func run() int {
	opts, exitCode, handled := parseFlags()
	if handled {
		return exitCode
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return exitFailure
	}
	obslog.Configure(cfg.LogLevel)

	if opts.batch {
		return runBatch(cfg, opts)
	}
	return runDaemon(cfg)
}

func parseFlags() (options, int, bool) {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "Path to ambient configuration file (TOML)")
	flag.StringVar(&opts.configPath, "c", "", "Path to ambient configuration file (shorthand)")
	flag.BoolVar(&opts.batch, "batch", false, "Run one non-cancellable filter pass and exit, instead of the RPC daemon")
	flag.StringVar(&opts.query, "query", "", "Query to filter by (batch mode)")
	flag.StringVar(&opts.sourceFile, "file", "", "Read candidate lines from this file (batch mode)")
	flag.StringVar(&opts.sourceCmd, "source-cmd", "", "Run this shell command and filter its stdout lines (batch mode)")
	flag.StringVar(&opts.cwd, "cwd", "", "Working directory for -source-cmd (batch mode)")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version information")
	flag.BoolVar(&opts.showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&opts.showHelp, "help", false, "Show help message")
	flag.BoolVar(&opts.showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "clapfilterd - interactive fuzzy filter engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: clapfilterd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  clapfilterd                             Run the RPC daemon over stdio\n")
		fmt.Fprintf(os.Stderr, "  clapfilterd -batch -file f.txt -query x Filter a file's lines once\n")
	}

	flag.Parse()

	if opts.showHelp {
		flag.Usage()
		return opts, exitSuccess, true
	}
	if opts.showVersion {
		fmt.Printf("clapfilterd %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return opts, exitSuccess, true
	}

	if opts.batch && opts.sourceFile == "" && opts.sourceCmd == "" {
		fmt.Fprintln(os.Stderr, "Error: -batch requires -file or -source-cmd")
		return opts, exitUsage, true
	}
	if opts.batch && opts.sourceFile != "" && opts.sourceCmd != "" {
		fmt.Fprintln(os.Stderr, "Error: -file and -source-cmd are mutually exclusive")
		return opts, exitUsage, true
	}

	return opts, exitSuccess, false
}
