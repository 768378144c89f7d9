package newsledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pevans/newsledger/logger"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a crawl cycle every six hours.
const DefaultSchedule = "@every 6h"

// ErrCycleRunning is returned when a cycle is requested while one runs.
var ErrCycleRunning = errors.New("crawl cycle already running")

// Cycler runs one crawl cycle.
type Cycler interface {
	RunCycle(ctx context.Context) *CycleReport
}

// cronParser accepts standard five-field specs and descriptors such as
// @every 6h or @daily.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates a cron spec.
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// Status is a snapshot of the service state.
type Status struct {
	Running    bool         `json:"running"`
	Schedule   string       `json:"schedule"`
	NextRun    *time.Time   `json:"next_run,omitempty"`
	Cycles     int64        `json:"cycles"`
	LastReport *CycleReport `json:"last_report,omitempty"`
}

// Service runs crawl cycles on a schedule: once at start, then on every
// schedule tick, plus whenever Trigger is called. Cycles never overlap; a
// request that arrives while a cycle runs is skipped.
type Service struct {
	cycler   Cycler
	spec     string
	schedule cron.Schedule
	log      logger.Interface

	running atomic.Bool
	cycles  atomic.Int64
	trigger chan struct{}

	mu      sync.Mutex
	last    *CycleReport
	cron    *cron.Cron
	entryID cron.EntryID
	wg      sync.WaitGroup
}

// NewService validates spec and builds a service around cycler.
func NewService(cycler Cycler, spec string, log logger.Interface) (*Service, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Service{
		cycler:   cycler,
		spec:     spec,
		schedule: schedule,
		log:      log,
		trigger:  make(chan struct{}, 1),
	}, nil
}

// Run blocks until ctx is cancelled. It runs one cycle immediately, then
// follows the schedule. On cancellation it stops the scheduler and waits
// for the running cycle to return.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("Crawl service starting", "schedule", s.spec)

	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)
	entryID := c.Schedule(s.schedule, cron.FuncJob(func() {
		s.start(ctx, "schedule")
	}))

	s.mu.Lock()
	s.cron = c
	s.entryID = entryID
	s.mu.Unlock()

	s.start(ctx, "startup")
	c.Start()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Crawl service stopping, waiting for running cycle")
			<-c.Stop().Done()
			s.wg.Wait()
			s.log.Info("Crawl service stopped")
			return ctx.Err()
		case <-s.trigger:
			s.start(ctx, "trigger")
		}
	}
}

// Trigger requests an on-demand cycle. It returns ErrCycleRunning when a
// cycle is in progress.
func (s *Service) Trigger() error {
	if s.running.Load() {
		return ErrCycleRunning
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
	return nil
}

// start launches a cycle in the background unless one is running.
func (s *Service) start(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.log.Info("Crawl cycle already running, skipping", "reason", reason)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		s.log.Info("Crawl cycle triggered", "reason", reason)
		report := s.cycler.RunCycle(ctx)

		s.mu.Lock()
		s.last = report
		s.mu.Unlock()
		s.cycles.Add(1)
	}()
}

// Status reports whether a cycle is running and the last cycle's report.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:    s.running.Load(),
		Schedule:   s.spec,
		Cycles:     s.cycles.Load(),
		LastReport: s.last,
	}
	if s.cron != nil {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}
