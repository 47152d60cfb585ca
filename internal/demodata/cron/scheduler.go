package cronjob

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/nocturne-health/demo-backend/internal/demodata/domain"
	"github.com/nocturne-health/demo-backend/internal/demodata/service"
	"github.com/robfig/cron/v3"
)

// Scheduler drives the live demo feed: one simulation step every five
// minutes, matching real CGM cadence, plus a nightly job that seeds history
// if none exists yet.
type Scheduler struct {
	svc *service.DemoDataService
}

// NewScheduler creates a new Scheduler
func NewScheduler(svc *service.DemoDataService) *Scheduler {
	return &Scheduler{svc: svc}
}

// Start initializes cron tasks
func (s *Scheduler) Start() {
	c := cron.New(cron.WithSeconds())

	if _, err := c.AddFunc("0 */5 * * * *", s.tick); err != nil {
		log.Printf("Failed to create tick cron job: %v", err)
		return
	}

	// (12:00 AM)
	if _, err := c.AddFunc("0 0 0 * * *", s.ensureHistory); err != nil {
		log.Printf("Failed to create nightly cron job: %v", err)
		return
	}

	log.Println("Demo scheduler started (tick every 5m, history check nightly)")
	c.Start()
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entry, err := s.svc.Tick(ctx, time.Now())
	if err != nil {
		log.Printf("Tick failed: %v", err)
		return
	}

	log.Printf("Tick: sgv=%d direction=%s", entry.SGV, entry.Direction)
}

func (s *Scheduler) ensureHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	_, err := s.svc.Status(ctx, time.Now())
	if err == nil {
		return
	}
	if !errors.Is(err, domain.ErrEntryNotFound) {
		log.Printf("Nightly history check failed: %v", err)
		return
	}

	log.Println("No demo data found, running backfill...")
	res, backfillErr := s.svc.Backfill(ctx)
	if backfillErr != nil {
		log.Printf("Backfill failed: %v", backfillErr)
		return
	}

	log.Printf("Backfill completed: %d entries, %d treatments over %d days",
		res.Entries, res.Treatments, res.Days)
}
