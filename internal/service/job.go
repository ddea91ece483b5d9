package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"swimnotify/internal/metrics"
	"swimnotify/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// RunSummary counts the outcome of one producer run
type RunSummary struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Queued    int `json:"queued"`
}

func (s *RunSummary) add(other RunSummary) {
	s.Attempted += other.Attempted
	s.Sent += other.Sent
	s.Failed += other.Failed
	s.Queued += other.Queued
}

// RunFunc is the body of a scheduled job
type RunFunc func(ctx context.Context) (RunSummary, error)

// Job wraps a RunFunc with a single-flight guard: a fire that arrives while
// a run is in progress is dropped.
type Job struct {
	name    string
	run     RunFunc
	running atomic.Bool
	logger  logrus.FieldLogger
}

func NewJob(name string, run RunFunc, logger logrus.FieldLogger) *Job {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Job{
		name:   name,
		run:    run,
		logger: logger.WithField(LogFieldJob, name),
	}
}

func (j *Job) Name() string {
	return j.name
}

// Running reports whether a run is in progress
func (j *Job) Running() bool {
	return j.running.Load()
}

// Run executes the job and blocks until it finishes. It returns false
// without running if another run is in progress.
func (j *Job) Run(ctx context.Context) bool {
	if !j.acquire() {
		return false
	}
	defer j.running.Store(false)
	j.execute(ctx)
	return true
}

// Start is Run in the background. The guard is taken before returning.
func (j *Job) Start(ctx context.Context) bool {
	if !j.acquire() {
		return false
	}
	go func() {
		defer j.running.Store(false)
		j.execute(ctx)
	}()
	return true
}

func (j *Job) acquire() bool {
	if j.running.CompareAndSwap(false, true) {
		return true
	}
	metrics.Inc(metrics.JobSkipped, map[string]string{"job": j.name})
	j.logger.Warn("Skipping job run: previous run still in progress")
	return false
}

func (j *Job) execute(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "job."+j.name, attribute.String("job", j.name))
	defer span.End()

	start := time.Now()
	result := "ok"
	defer func() {
		metrics.Inc(metrics.JobRuns, map[string]string{"job": j.name, "result": result})
	}()
	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			err := fmt.Errorf("job %s panicked: %v", j.name, r)
			tracing.RecordError(ctx, err)
			j.logger.WithField("stack", string(debug.Stack())).WithError(err).Error("Job panicked")
		}
	}()

	j.logger.Info("Starting job")
	summary, err := j.run(ctx)

	entry := j.logger.WithFields(logrus.Fields{
		LogFieldAttempted: summary.Attempted,
		LogFieldSent:      summary.Sent,
		LogFieldFailed:    summary.Failed,
		"queued":          summary.Queued,
		LogFieldDuration:  time.Since(start).Milliseconds(),
	})
	if err != nil {
		result = "error"
		tracing.RecordError(ctx, err)
		entry.WithError(err).Error("Failed to complete job")
		return
	}
	entry.Info("Completed job")
}
