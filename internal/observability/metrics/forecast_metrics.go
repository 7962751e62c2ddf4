package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	PipelineOutcomeSuccess = "success"
	PipelineOutcomeFailure = "failure"
)

// Pipeline stages observed by ObserveStage.
const (
	StageLoad     = "load"
	StageFeatures = "features"
	StageTrain    = "train"
	StageEvaluate = "evaluate"
	StageProject  = "project"
	StagePersist  = "persist"
	StageArtifact = "artifact"
)

// Read outcomes recorded by IncForecastRead.
const (
	ReadOutcomeHit           = "hit"
	ReadOutcomeRefreshed     = "refreshed"
	ReadOutcomeInsufficient  = "insufficient"
	ReadOutcomeNoActiveModel = "no_active_model"
	ReadOutcomeError         = "error"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonUnknown              = "unknown"
)

// ForecastMetrics captures pipeline and refresh health as Prometheus series.
type ForecastMetrics struct {
	pipelineRuns     *prometheus.CounterVec
	pipelineDuration prometheus.Observer
	stageDuration    *prometheus.HistogramVec
	reads            *prometheus.CounterVec
	lockWait         prometheus.Observer
	modelScore       *prometheus.GaugeVec
	jobRuns          *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	stageObservers   map[string]prometheus.Observer
}

var (
	forecastMetricsOnce sync.Once
	forecastMetrics     *ForecastMetrics
)

// Forecast returns the singleton forecast metrics registry.
func Forecast() *ForecastMetrics {
	return ForecastWithConfig(Config{})
}

// ForecastWithConfig returns the singleton registry using config labels.
func ForecastWithConfig(cfg Config) *ForecastMetrics {
	forecastMetricsOnce.Do(func() {
		forecastMetrics = newForecastMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return forecastMetrics
}

// ResetForecastMetricsForTest resets the singleton for tests.
func ResetForecastMetricsForTest() {
	forecastMetricsOnce = sync.Once{}
	forecastMetrics = nil
}

// NewForecastMetricsForTest builds an unshared registry against registerer.
func NewForecastMetricsForTest(registerer prometheus.Registerer) *ForecastMetrics {
	return newForecastMetrics(registerer, Config{ServiceName: "forecast", Environment: "test"})
}

func newForecastMetrics(registerer prometheus.Registerer, cfg Config) *ForecastMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "forecast"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	pipelineRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "forecast_pipeline_runs_total",
		Help:        "Training pipeline runs by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	pipelineDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "forecast_pipeline_duration_seconds",
		Help:        "End-to-end training pipeline latency.",
		Buckets:     []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "forecast_pipeline_stage_duration_seconds",
		Help:        "Training pipeline latency per stage.",
		Buckets:     []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 5, 10, 30, 60, 300},
		ConstLabels: constLabels,
	}, []string{"stage"})
	reads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "forecast_reads_total",
		Help:        "Forecast reads by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "forecast_refresh_lock_wait_seconds",
		Help:        "Time spent waiting for the per-company refresh lock.",
		Buckets:     []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		ConstLabels: constLabels,
	})
	modelScore := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "forecast_model_score",
		Help:        "Hold-out score of the latest trained model.",
		ConstLabels: constLabels,
	}, []string{"model", "metric"})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "forecast_scheduler_job_runs_total",
		Help:        "Scheduled refresh job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "forecast_scheduler_job_errors_total",
		Help:        "Scheduled refresh job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "forecast_scheduler_job_duration_seconds",
		Help:        "Scheduled refresh job latency.",
		Buckets:     []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800},
		ConstLabels: constLabels,
	}, []string{"job"})

	registerer.MustRegister(
		pipelineRuns,
		pipelineDuration,
		stageDuration,
		reads,
		lockWait,
		modelScore,
		jobRuns,
		jobErrors,
		jobDuration,
	)

	stageObservers := map[string]prometheus.Observer{}
	for _, stage := range []string{StageLoad, StageFeatures, StageTrain, StageEvaluate, StageProject, StagePersist, StageArtifact} {
		stageObservers[stage] = stageDuration.WithLabelValues(stage)
	}

	return &ForecastMetrics{
		pipelineRuns:     pipelineRuns,
		pipelineDuration: pipelineDuration,
		stageDuration:    stageDuration,
		reads:            reads,
		lockWait:         lockWait,
		modelScore:       modelScore,
		jobRuns:          jobRuns,
		jobErrors:        jobErrors,
		jobDuration:      jobDuration,
		stageObservers:   stageObservers,
	}
}

// ObservePipeline records one pipeline run.
func (m *ForecastMetrics) ObservePipeline(duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := PipelineOutcomeSuccess
	if err != nil {
		outcome = PipelineOutcomeFailure
	}
	m.pipelineRuns.WithLabelValues(outcome).Inc()
	m.pipelineDuration.Observe(duration.Seconds())
}

// ObserveStage records stage latency.
func (m *ForecastMetrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.stageObservers[stage]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *ForecastMetrics) IncForecastRead(outcome string) {
	if m == nil {
		return
	}
	m.reads.WithLabelValues(outcome).Inc()
}

func (m *ForecastMetrics) ObserveLockWait(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.lockWait.Observe(duration.Seconds())
}

// SetModelScore publishes a hold-out score. Missing scores are skipped.
func (m *ForecastMetrics) SetModelScore(model, metric string, value *float64) {
	if m == nil || value == nil {
		return
	}
	m.modelScore.WithLabelValues(model, metric).Set(*value)
}

func (m *ForecastMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *ForecastMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *ForecastMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if hasPGCode(err, pgerrcode.LockNotAvailable) {
		return JobReasonDBLockTimeout
	}
	if hasPGCode(err, pgerrcode.SerializationFailure) {
		return JobReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, pgerrcode.UniqueViolation) {
		return JobReasonUniqueViolation
	}
	return JobReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
