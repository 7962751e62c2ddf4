package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/forecast/internal/config"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	obsmetrics "github.com/smallbiznis/forecast/internal/observability/metrics"
)

const pushJob = "forecast_train"

type trainCmd struct {
	companyID   string
	csvPath     string
	name        string
	version     string
	horizonDays int
	commit      bool
	pushgateway string
}

func (*trainCmd) Name() string     { return "train" }
func (*trainCmd) Synopsis() string { return "train a model and write its forecast artifacts" }
func (*trainCmd) Usage() string {
	return `train -company <id> [-csv path] [-name forecast_rf] [-version v1] [-horizon-days n] [-commit] [-pushgateway url]:
  Train on the company's history, write metrics.json and forecast.json, and
  with -commit store the model as ACTIVE. Run metrics go to the Pushgateway
  when one is configured.
`
}

func (c *trainCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.companyID, "company", "", "company id to train")
	f.StringVar(&c.csvPath, "csv", "", "read history from this CSV instead of the configured source")
	f.StringVar(&c.name, "name", "", "model name (defaults to the configured name)")
	f.StringVar(&c.version, "version", "", "model version (defaults to a timestamp)")
	f.IntVar(&c.horizonDays, "horizon-days", 0, "project at least this many days")
	f.BoolVar(&c.commit, "commit", false, "commit the model and predictions to the store")
	f.StringVar(&c.pushgateway, "pushgateway", "", "push run metrics here (defaults to PUSHGATEWAY_URL)")
}

func (c *trainCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if strings.TrimSpace(c.companyID) == "" {
		fmt.Fprintln(os.Stderr, "-company is required")
		return subcommands.ExitUsageError
	}
	if c.horizonDays < 0 {
		fmt.Fprintln(os.Stderr, "-horizon-days must not be negative")
		return subcommands.ExitUsageError
	}

	var (
		pipeline forecastdomain.Pipeline
		cfg      config.Config
	)
	stop, err := startApp(ctx, appOptions{csvPath: c.csvPath, store: c.commit}, &pipeline, &cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer stop()

	result, err := pipeline.Train(ctx, forecastdomain.TrainRequest{
		CompanyID:   strings.TrimSpace(c.companyID),
		Name:        strings.TrimSpace(c.name),
		Version:     strings.TrimSpace(c.version),
		HorizonDays: c.horizonDays,
		SkipPersist: !c.commit,
	})
	c.pushMetrics(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	summary := map[string]any{
		"run_id":       result.RunID,
		"version":      result.Version,
		"rows":         result.Rows,
		"skipped_rows": result.SkippedRows,
		"metrics":      result.Metrics,
		"totals":       result.Forecast.Totals,
		"artifact_uri": result.ArtifactURI,
	}
	if result.ModelID != 0 {
		summary["model_id"] = fmt.Sprint(result.ModelID)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *trainCmd) pushMetrics(ctx context.Context, cfg config.Config) {
	endpoint := strings.TrimSpace(c.pushgateway)
	if endpoint == "" {
		endpoint = cfg.PushgatewayURL
	}
	pusher := obsmetrics.NewPusher(endpoint, pushJob, map[string]string{"company_id": c.companyID})
	if err := pusher.Push(ctx, prometheus.DefaultGatherer); err != nil {
		fmt.Fprintln(os.Stderr, "push metrics:", err)
	}
}
