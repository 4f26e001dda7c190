package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/jimezsa/jobwatch/internal/cmd"
	"github.com/jimezsa/jobwatch/internal/config"
	"github.com/jimezsa/jobwatch/internal/seen"
	"github.com/jimezsa/jobwatch/internal/ui"
	"github.com/rs/zerolog"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Exit codes. A refresh rejected because another batch holds the lock
// exits with exitBusy so cron wrappers can tell it from a failure.
const (
	exitOK = iota
	exitError
	exitUsage
	exitBusy
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli := cmd.NewCLI()
	applyEnvDefaults(cli)
	versionString := buildVersion()

	parser, err := kong.New(cli,
		kong.Name("jobwatch"),
		kong.Description("Track career pages and report new job listings."),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": versionString},
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		ui.New(os.Stdout, os.Stderr, ui.NormalizeColorMode(os.Getenv(config.EnvPrefix+"COLOR")), false).Errorf("%v", err)
		return exitUsage
	}

	configDir, err := config.ConfigDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	colorMode := ui.NormalizeColorMode(cli.Color)
	userInterface := ui.New(os.Stdout, os.Stderr, colorMode, cli.JSON || cli.Plain)
	logger := newLogger(os.Stderr, cli.Verbose, cfg.Stage, versionString)

	// Interrupts cancel in-flight fetches; the refresh engine still records
	// the failed runs before exiting.
	base, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx := &cmd.Context{
		Out:        os.Stdout,
		Err:        os.Stderr,
		UI:         userInterface,
		Config:     cfg,
		ConfigDir:  configDir,
		Logger:     logger,
		Verbose:    cli.Verbose,
		JSONOutput: cli.JSON,
		PlainText:  cli.Plain,
		Version:    versionString,
		ColorMode:  colorMode,
		Base:       base,
	}

	if err := kctx.Run(runCtx); err != nil {
		return report(userInterface, err)
	}
	return exitOK
}

func report(u *ui.UI, err error) int {
	if errors.Is(err, seen.ErrRefreshInProgress) {
		u.Warnf("Another refresh is running; try again when it finishes.")
		return exitBusy
	}
	u.Errorf("%v", err)
	return exitError
}

// newLogger writes JSON lines, or coloured console lines when stderr is a
// terminal, tagged with the stage and build.
func newLogger(w *os.File, verbose bool, stage, build string) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = w
	if isTerminal(w) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).With().
		Timestamp().
		Str("stage", stage).
		Str("version", build).
		Logger()
}

func buildVersion() string {
	parts := make([]string, 0, 2)
	if commit != "" {
		parts = append(parts, commit)
	}
	if date != "" {
		parts = append(parts, date)
	}
	if len(parts) == 0 {
		return version
	}
	return fmt.Sprintf("%s (%s)", version, strings.Join(parts, ", "))
}

func applyEnvDefaults(cli *cmd.CLI) {
	if envBool("JSON") {
		cli.JSON = true
	}
	if envBool("PLAIN") {
		cli.Plain = true
	}
	if envBool("VERBOSE") {
		cli.Verbose = true
	}
	if value := strings.TrimSpace(os.Getenv(config.EnvPrefix + "COLOR")); value != "" {
		cli.Color = value
	}
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(config.EnvPrefix + key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
