package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"swimnotify/internal/constants"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronRunner fires registered jobs on cron expressions evaluated in a fixed
// time zone
type CronRunner struct {
	cron     *cron.Cron
	location *time.Location
	logger   logrus.FieldLogger

	mu      sync.RWMutex
	ctx     context.Context
	jobs    map[string]*Job
	entries map[string]cronEntry
}

type cronEntry struct {
	id   cron.EntryID
	spec string
}

// JobSchedule describes one registered job for status output
type JobSchedule struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Next    time.Time `json:"next"`
	Running bool      `json:"running"`
}

func NewCronRunner(timezone string, logger logrus.FieldLogger) (*CronRunner, error) {
	if timezone == "" {
		timezone = constants.DefaultTimezone
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", timezone, err)
	}

	logger = logger.WithField(LogFieldComponent, "cron")
	adapter := cronLogger{logger: logger}
	return &CronRunner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter)),
		),
		location: loc,
		logger:   logger,
		ctx:      context.Background(),
		jobs:     make(map[string]*Job),
		entries:  make(map[string]cronEntry),
	}, nil
}

func (r *CronRunner) Location() *time.Location {
	return r.location
}

// Register schedules job on a standard five-field cron expression
func (r *CronRunner) Register(spec string, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	id, err := r.cron.AddFunc(spec, func() {
		r.mu.RLock()
		ctx := r.ctx
		r.mu.RUnlock()
		job.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for job %s: %w", spec, job.Name(), err)
	}

	r.jobs[job.Name()] = job
	r.entries[job.Name()] = cronEntry{id: id, spec: spec}
	r.logger.WithFields(logrus.Fields{LogFieldJob: job.Name(), "spec": spec}).Info("Registered scheduled job")
	return nil
}

// Job returns a registered job by name
func (r *CronRunner) Job(name string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[name]
	return job, ok
}

// Schedule lists registered jobs ordered by name
func (r *CronRunner) Schedule() []JobSchedule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]JobSchedule, 0, len(r.jobs))
	for name, job := range r.jobs {
		registered := r.entries[name]
		out = append(out, JobSchedule{
			Name:    name,
			Spec:    registered.spec,
			Next:    r.cron.Entry(registered.id).Next,
			Running: job.Running(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins firing jobs. Runs receive ctx.
func (r *CronRunner) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	r.cron.Start()
	r.logger.WithField("timezone", r.location.String()).Info("Cron runner started")
}

// Stop prevents new fires and waits for running jobs or ctx
func (r *CronRunner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.logger.Info("Cron runner stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for running jobs: %w", ctx.Err())
	}
}

// cronLogger adapts logrus to cron.Logger
type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
