package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"
	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
)

type buildDatasetCmd struct {
	companyID string
	output    string
}

func (*buildDatasetCmd) Name() string     { return "build-dataset" }
func (*buildDatasetCmd) Synopsis() string { return "export a company's daily history as CSV" }
func (*buildDatasetCmd) Usage() string {
	return `build-dataset -company <id> [-out data/daily_report.csv]:
  Load history from the configured source and write the normalized table.
`
}

func (c *buildDatasetCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.companyID, "company", "", "company id to export")
	f.StringVar(&c.output, "out", "data/daily_report.csv", "output CSV path")
}

func (c *buildDatasetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if strings.TrimSpace(c.companyID) == "" {
		fmt.Fprintln(os.Stderr, "-company is required")
		return subcommands.ExitUsageError
	}

	var svc datasetdomain.Service
	stop, err := startApp(ctx, appOptions{}, &svc)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer stop()

	if err := os.MkdirAll(filepath.Dir(c.output), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	tmp := c.output + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	rows, err := svc.Export(ctx, c.companyID, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, c.output)
	}
	if err != nil {
		_ = os.Remove(tmp)
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	fmt.Printf("wrote %d rows to %s\n", rows, c.output)
	return subcommands.ExitSuccess
}
