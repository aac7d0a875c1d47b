// Package sweep runs the scheduled batch recompute that keeps cached
// warmth scores fresh even when no events arrive.
package sweep

import (
	"context"
	"log"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/IsaiahDupree/EverReach-sub008/internal/engine"
)

// Service schedules full-database recompute sweeps.
type Service struct {
	engine   *engine.Engine
	schedule string
	pageSize int
	timeout  time.Duration
	cron     *rcron.Cron
}

// NewService creates a sweep service with the given cron schedule
// (standard 5-field expression) and page size.
func NewService(eng *engine.Engine, schedule string, pageSize int) *Service {
	return &Service{
		engine:   eng,
		schedule: schedule,
		pageSize: pageSize,
		timeout:  30 * time.Minute,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Service) Start() error {
	s.cron = rcron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			log.Printf("sweep: aborted: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("sweep: scheduled (%s)", s.schedule)
	return nil
}

// Stop halts the scheduler. A sweep already running finishes its current
// contact and then observes its context deadline.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Result totals one full sweep.
type Result struct {
	Processed int
	Failed    int
	Pages     int
	Resumed   bool
}

// RunOnce sweeps every contact, paging in stable id order. The cursor is
// persisted after each page, so a sweep interrupted by a crash or
// cancellation resumes from where it stopped instead of starting over.
// Per-contact failures are counted inside the engine and never abort the
// sweep.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	cursor, resumed, err := s.engine.DB.SweepCursor()
	if err != nil {
		return res, err
	}
	res.Resumed = resumed
	if resumed {
		log.Printf("sweep: resuming from cursor %q", cursor)
	}

	start := time.Now()
	for {
		page, err := s.engine.RecomputeBatch(ctx, cursor, s.pageSize)
		res.Processed += page.Processed
		res.Failed += page.Failed
		if page.Processed+page.Failed > 0 {
			res.Pages++
		}
		cursor = page.NextCursor

		if err != nil {
			// Interrupted mid-sweep; keep the cursor for the next run.
			if saveErr := s.engine.DB.SaveSweepCursor(cursor); saveErr != nil {
				log.Printf("sweep: save cursor: %v", saveErr)
			}
			return res, err
		}
		if page.Done {
			break
		}
		if err := s.engine.DB.SaveSweepCursor(cursor); err != nil {
			log.Printf("sweep: save cursor: %v", err)
		}
	}

	if err := s.engine.DB.ClearSweepCursor(); err != nil {
		log.Printf("sweep: clear cursor: %v", err)
	}
	log.Printf("sweep: done in %s — %d processed, %d failed, %d pages",
		time.Since(start).Round(time.Millisecond), res.Processed, res.Failed, res.Pages)
	return res, nil
}
