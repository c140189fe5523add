// Package scheduler runs named background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/logging"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 10 * time.Minute

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// Entry describes a registered job.
type Entry struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitempty"`
	Runs     int64     `json:"runs"`
	Failures int64     `json:"failures"`
}

type job struct {
	id       cron.EntryID
	name     string
	schedule string
	fn       JobFunc
	runs     int64
	failures int64
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are
// skipped, and panics are recovered into the error handler.
type Scheduler struct {
	cron    *cron.Cron
	log     *logging.Logger
	errors  *apperror.Handler
	timeout time.Duration

	mutex  sync.RWMutex
	jobs   map[string]*job
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a stopped scheduler. errs may be nil.
func New(log *logging.Logger, errs *apperror.Handler) *Scheduler {
	if log == nil {
		log = logging.Nop()
	}
	log = log.With("component", "scheduler")
	cl := cronLogger{log: log}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		log:     log,
		errors:  errs,
		timeout: DefaultJobTimeout,
		jobs:    make(map[string]*job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetJobTimeout changes the per-run timeout for jobs run from now on.
func (s *Scheduler) SetJobTimeout(d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if d > 0 {
		s.timeout = d
	}
}

// Add registers fn under name on a standard five-field cron spec or a
// descriptor such as "@every 15m".
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.jobs[name]; exists {
		return apperror.NewSchedulerError(apperror.ErrSchedulerTask, fmt.Sprintf("job %q already registered", name), nil)
	}

	j := &job{name: name, schedule: spec, fn: fn}
	id, err := s.cron.AddFunc(spec, func() { _ = s.run(j) })
	if err != nil {
		return apperror.NewSchedulerError(apperror.ErrSchedulerTask, fmt.Sprintf("invalid schedule for %s", name), err)
	}
	j.id = id
	s.jobs[name] = j
	s.log.Info("Scheduled job %s (%s)", name, spec)
	return nil
}

// RunNow runs a registered job immediately in the caller's goroutine.
func (s *Scheduler) RunNow(name string) error {
	s.mutex.RLock()
	j, ok := s.jobs[name]
	s.mutex.RUnlock()
	if !ok {
		return apperror.NewSchedulerError(apperror.ErrSchedulerTask, fmt.Sprintf("unknown job %q", name), nil)
	}
	return s.run(j)
}

func (s *Scheduler) run(j *job) (err error) {
	s.mutex.RLock()
	timeout := s.timeout
	s.mutex.RUnlock()

	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		s.mutex.Lock()
		j.runs++
		if err != nil {
			j.failures++
		}
		s.mutex.Unlock()

		if err != nil {
			wrapped := apperror.NewSchedulerError(apperror.ErrSchedulerTask, fmt.Sprintf("job %s failed", j.name), err)
			s.log.Error("%v", wrapped)
			if s.errors != nil {
				s.errors.Handle(wrapped, "scheduler")
			}
		}
	}()

	start := time.Now()
	err = j.fn(ctx)
	s.log.Debug("Job %s finished in %s", j.name, time.Since(start).Round(time.Millisecond))
	return err
}

// Entries lists registered jobs sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := s.cron.Entry(j.id)
		out = append(out, Entry{
			Name:     j.name,
			Schedule: j.schedule,
			Next:     e.Next,
			Prev:     e.Prev,
			Runs:     j.runs,
			Failures: j.failures,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels running jobs and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warning("Timed out waiting for running jobs")
	}
}

// cronLogger routes cron's own messages to our logger.
type cronLogger struct {
	log *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: %s: %v %v", msg, err, keysAndValues)
}
