package runner

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"rsstoot/models"
)

// DefaultInterval is the recurring run interval.
const DefaultInterval = 30 * time.Minute

// Scheduler owns the single recurring pipeline job. Lifecycle:
// Configure → Start → Stop; re-configuring replaces the recurring job
// rather than duplicating it. Manual triggers run out-of-band and do
// not move the next scheduled fire time.
type Scheduler struct {
	engine *Engine

	mu       sync.Mutex
	interval time.Duration
	nextRun  time.Time
	stop     chan struct{}
	done     chan struct{}
}

func NewScheduler(engine *Engine) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: DefaultInterval,
	}
}

// Configure sets the run interval. When the scheduler is already
// running, the recurring job is replaced with the new interval.
func (s *Scheduler) Configure(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.mu.Lock()
	running := s.stop != nil
	s.interval = interval
	s.mu.Unlock()

	if running {
		s.Stop()
		s.Start()
	}
}

// Start launches the recurring job. Starting an already-started
// scheduler replaces the previous registration.
func (s *Scheduler) Start() {
	s.Stop()

	s.mu.Lock()
	interval := s.interval
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop = stop
	s.done = done
	s.nextRun = time.Now().Add(interval)
	s.mu.Unlock()

	log.WithFields(log.Fields{"interval": interval}).Info("Scheduler running")

	go func() {
		defer close(done)
		for {
			s.mu.Lock()
			wait := time.Until(s.nextRun)
			s.mu.Unlock()

			timer := time.NewTimer(wait)
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
			}

			s.mu.Lock()
			s.nextRun = time.Now().Add(interval)
			s.mu.Unlock()

			s.engine.RunOnce(context.Background(), models.TriggerAuto)
		}
	}()
}

// Stop halts the recurring job. Queried state afterwards is the zero
// state. Safe to call on a never-started scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop = nil
	s.done = nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// TriggerNow runs the pipeline out-of-band on its own goroutine without
// altering the recurring schedule.
func (s *Scheduler) TriggerNow() {
	go s.engine.RunOnce(context.Background(), models.TriggerManual)
}

// NextRunInfo reports the next scheduled fire time for status surfaces.
// Before the scheduler has been started it reports an empty zero state.
func (s *Scheduler) NextRunInfo() models.NextRunInfo {
	s.mu.Lock()
	nextRun := s.nextRun
	interval := s.interval
	s.mu.Unlock()

	if nextRun.IsZero() {
		return models.NextRunInfo{Display: "—"}
	}

	secs := int64(time.Until(nextRun).Seconds())
	if secs < 0 {
		secs = 0
	}

	pct := 100 - int(float64(secs)/interval.Seconds()*100)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	return models.NextRunInfo{
		Display:          nextRun.Format("Jan 02, 15:04:05"),
		UnixTs:           nextRun.Unix(),
		SecondsRemaining: secs,
		PercentElapsed:   pct,
	}
}
