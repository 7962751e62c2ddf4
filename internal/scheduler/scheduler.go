package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/forecast/internal/clock"
	obscontext "github.com/smallbiznis/forecast/internal/observability/context"
	obslogger "github.com/smallbiznis/forecast/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/forecast/internal/observability/metrics"
	refreshdomain "github.com/smallbiznis/forecast/internal/refresh/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobRefreshAll = "refresh_all"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Config  Config `optional:"true"`
	Refresh refreshdomain.Service
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *obsmetrics.ForecastMetrics `optional:"true"`
}

// Scheduler retrains every known company on a cron schedule.
type Scheduler struct {
	cfg     Config
	refresh refreshdomain.Service
	clock   clock.Clock
	log     *zap.Logger
	metrics *obsmetrics.ForecastMetrics

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func New(p Params) (*Scheduler, error) {
	if p.Refresh == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	if cfg.Enabled() {
		if _, err := cron.ParseStandard(cfg.Spec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	return &Scheduler{
		cfg:     cfg,
		refresh: p.Refresh,
		clock:   p.Clock,
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		metrics: p.Metrics,
	}, nil
}

// Start registers the refresh job and starts the cron loop. Jobs derive
// their context from parent, so cancelling it aborts an in-flight run.
func (s *Scheduler) Start(parent context.Context) error {
	if !s.cfg.Enabled() {
		s.log.Info("refresh schedule disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.cfg.Spec, func() {
		if err := s.RunOnce(parent); err != nil {
			s.log.Error("scheduled refresh failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.Info("refresh schedule started", zap.String("spec", s.cfg.Spec))
	return nil
}

// Stop halts the cron loop and waits for a running job until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("refresh schedule stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce retrains all companies immediately.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobRefreshAll, s.cfg.Timeout, func(ctx context.Context) error {
		results, err := s.refresh.TriggerRefresh(ctx, "")
		log := obslogger.WithContext(ctx, s.log)
		for _, result := range results {
			if strings.TrimSpace(result.Error) != "" {
				log.Warn("company refresh failed",
					zap.String("company_id", result.CompanyID),
					zap.String("error", result.Error),
				)
				continue
			}
			log.Info("company refreshed",
				zap.String("company_id", result.CompanyID),
				zap.String("model_id", result.ModelID),
				zap.String("version", result.Version),
			)
		}
		return err
	})
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	if parent == nil {
		parent = context.Background()
	}
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, runID := obscontext.EnsureRunID(ctx)
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)
	log.Info("job started")
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.ObserveJobDuration(name, elapsed)
	if err == nil {
		log.Info("job finished", zap.Int64("duration_ms", elapsed.Milliseconds()))
		return nil
	}

	s.metrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}
