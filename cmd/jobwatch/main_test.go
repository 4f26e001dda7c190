package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jimezsa/jobwatch/internal/cmd"
	"github.com/jimezsa/jobwatch/internal/seen"
	"github.com/jimezsa/jobwatch/internal/ui"
)

func TestReportExitCodes(t *testing.T) {
	var out, errOut bytes.Buffer
	u := ui.New(&out, &errOut, ui.ColorNever, true)

	if got := report(u, fmt.Errorf("refresh all: %w", seen.ErrRefreshInProgress)); got != exitBusy {
		t.Fatalf("report(conflict) = %d, want %d", got, exitBusy)
	}
	if !strings.Contains(errOut.String(), "Another refresh is running") {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}

	errOut.Reset()
	if got := report(u, errors.New("boom")); got != exitError {
		t.Fatalf("report(error) = %d, want %d", got, exitError)
	}
	if strings.TrimSpace(errOut.String()) != "boom" {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}

func TestBuildVersion(t *testing.T) {
	defer func(v, c, d string) { version, commit, date = v, c, d }(version, commit, date)

	version, commit, date = "1.2.0", "", ""
	if got := buildVersion(); got != "1.2.0" {
		t.Fatalf("buildVersion() = %q", got)
	}
	commit, date = "abc123", "2025-03-01"
	if got := buildVersion(); got != "1.2.0 (abc123, 2025-03-01)" {
		t.Fatalf("buildVersion() = %q", got)
	}
	commit = ""
	if got := buildVersion(); got != "1.2.0 (2025-03-01)" {
		t.Fatalf("buildVersion() = %q", got)
	}
}

func TestApplyEnvDefaults(t *testing.T) {
	t.Setenv("JOBWATCH_JSON", "yes")
	t.Setenv("JOBWATCH_COLOR", "never")
	t.Setenv("JOBWATCH_VERBOSE", "0")

	cli := cmd.NewCLI()
	applyEnvDefaults(cli)
	if !cli.JSON || cli.Color != "never" || cli.Verbose {
		t.Fatalf("unexpected cli flags: %+v", cli)
	}
}
