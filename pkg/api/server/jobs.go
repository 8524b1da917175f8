package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/metrics"
	"github.com/robfig/cron/v3"
)

// Job names, also used as the metrics label.
const (
	JobCachePurge      = "cache_purge"
	JobPriorityRefresh = "priority_refresh"
	JobStoreHealth     = "store_health"
)

// JobFunc is a unit of background work. The context is cancelled when the scheduler stops.
type JobFunc func(ctx context.Context) error

// Jobs runs the server's periodic maintenance on a cron schedule.
type Jobs struct {
	cron    *cron.Cron
	metrics *metrics.Metrics
	logger  log.Logger
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewJobs creates a scheduler. Specs are standard 5-field cron expressions or descriptors
// such as "@every 1m". Each run is bounded by timeout.
func NewJobs(m *metrics.Metrics, logger log.Logger, timeout time.Duration) *Jobs {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	logger = logger.WithComponent("jobs")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	adapter := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &Jobs{
		cron: cron.New(
			cron.WithParser(cron.NewParser(
				cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
			)),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		metrics: m,
		logger:  logger,
		timeout: timeout,
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add schedules fn under name. An empty spec disables the job.
func (j *Jobs) Add(name, spec string, fn JobFunc) error {
	if spec == "" {
		j.logger.Info("Job disabled", log.Str("job", name))
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.entries[name]; ok {
		return fmt.Errorf("job %q already scheduled", name)
	}
	id, err := j.cron.AddFunc(spec, func() { j.Run(name, fn) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	j.entries[name] = id
	j.logger.Debug("Job scheduled", log.Str("job", name), log.Str("schedule", spec))
	return nil
}

// Run executes fn once under name, recording the outcome.
func (j *Jobs) Run(name string, fn JobFunc) error {
	ctx, cancel := context.WithTimeout(j.ctx, j.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	j.metrics.ObserveJob(name, err)
	if err != nil {
		j.logger.Warn("Job failed", log.Str("job", name), log.Err(err), log.Duration("duration", time.Since(start)))
		return err
	}
	j.logger.Debug("Job finished", log.Str("job", name), log.Duration("duration", time.Since(start)))
	return nil
}

// Names returns the scheduled job names.
func (j *Jobs) Names() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	names := make([]string, 0, len(j.entries))
	for name := range j.entries {
		names = append(names, name)
	}
	return names
}

// Next returns the next activation of the named job.
func (j *Jobs) Next(name string) (time.Time, bool) {
	j.mu.Lock()
	id, ok := j.entries[name]
	j.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return j.cron.Entry(id).Next, true
}

func (j *Jobs) Start() {
	j.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (j *Jobs) Stop() {
	j.cancel()
	<-j.cron.Stop().Done()
}

// cronLogger adapts the structured logger to cron's logr-style interface.
type cronLogger struct {
	logger log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(kvFields(keysAndValues), log.Err(err))...)
}

func kvFields(kv []interface{}) []log.Field {
	fields := make([]log.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, log.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
