package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cppla/incentive/utils"
)

// JobFunc is one idempotent unit of scheduled work evaluated at now.
type JobFunc func(ctx context.Context, now time.Time) error

// Job binds a name and schedule to a JobFunc.
type Job struct {
	Name     string
	Schedule Schedule
	Run      JobFunc
}

// Lease grants one holder per key for ttl across processes.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) bool
}

var (
	ErrJobExists       = errors.New("job already registered")
	ErrJobNotFound     = errors.New("job not found")
	ErrSchedulerActive = errors.New("scheduler already started")
)

// Scheduler runs each registered job on its schedule, one goroutine per job. A fire slot
// is claimed through the lease first, so concurrent instances run a slot once. Failures
// are logged and the job waits for its next slot.
type Scheduler struct {
	clock   utils.Clock
	lease   Lease
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	jobs    map[string]Job
	cancel  context.CancelFunc
	running bool
}

func NewScheduler(clock utils.Clock, lease Lease, timeout time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		clock:   clock,
		lease:   lease,
		timeout: timeout,
		log:     log.Named("scheduler"),
		jobs:    map[string]Job{},
	}
}

// Register adds a job; names are unique.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Schedule == nil || job.Run == nil {
		return fmt.Errorf("invalid job %q", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerActive
	}
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Name)
	}
	s.jobs[job.Name] = job
	return nil
}

// Jobs lists registered job names in order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerActive
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	s.log.Info("scheduler started", zap.Int("jobs", len(jobs)))
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			s.loop(gctx, job)
			return nil
		})
	}
	err := g.Wait()
	s.log.Info("scheduler stopped")
	return err
}

// Stop cancels a running Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	for {
		now := s.clock.Now()
		fireAt := job.Schedule.Next(now)
		s.log.Debug("job scheduled", zap.String("job", job.Name), zap.Time("fire_at", fireAt))

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(fireAt.Sub(now)):
		}

		if s.lease != nil {
			window := job.Schedule.Next(fireAt).Sub(fireAt)
			key := job.Name + ":" + fireAt.UTC().Format(time.RFC3339)
			if !s.lease.Acquire(ctx, key, window) {
				s.log.Info("job slot held elsewhere, skipping", zap.String("job", job.Name), zap.Time("fire_at", fireAt))
				continue
			}
		}
		_ = s.execute(ctx, job, s.clock.Now())
	}
}

// RunNow runs a job immediately, outside its schedule and without the lease.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.execute(ctx, job, s.clock.Now())
}

func (s *Scheduler) execute(ctx context.Context, job Job, now time.Time) (err error) {
	runID := uuid.NewString()
	log := s.log.With(zap.String("job", job.Name), zap.String("run_id", runID))
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
			log.Error("job panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
		fields := []zap.Field{zap.Duration("took", time.Since(started)), zap.Time("now", now)}
		if err != nil {
			log.Error("job failed", append(fields, zap.Error(err))...)
			return
		}
		log.Info("job finished", fields...)
	}()

	log.Info("job started", zap.Time("now", now))
	return job.Run(ctx, now)
}
