package service

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/nocturne-health/demo-backend/config"
	"github.com/nocturne-health/demo-backend/internal/demodata/domain"
	"github.com/nocturne-health/demo-backend/internal/demodata/engine"
)

// EntryStore is the persistence surface the service needs for readings.
type EntryStore interface {
	InsertBatch(ctx context.Context, entries []domain.Entry) error
	ListByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]domain.Entry, error)
	Latest(ctx context.Context) (*domain.Entry, error)
	DeleteDemo(ctx context.Context) (int64, error)
}

// TreatmentStore is the persistence surface for treatment records.
type TreatmentStore interface {
	InsertBatch(ctx context.Context, treatments []domain.Treatment) error
	ListByTimeRange(ctx context.Context, from, to time.Time, eventType string) ([]domain.Treatment, error)
	DeleteDemo(ctx context.Context) (int64, error)
}

// StateStore holds the live simulation state between ticks.
type StateStore interface {
	SaveState(ctx context.Context, st engine.State) error
	LoadState(ctx context.Context) (engine.State, error)
	SaveLatest(ctx context.Context, entry domain.Entry) error
	Latest(ctx context.Context) (*domain.Entry, error)
	Clear(ctx context.Context) error
}

// DemoDataService orchestrates the generator: historical backfill, live
// ticking, status, and bulk cleanup of generated data.
type DemoDataService struct {
	cfg        config.DemoConfig
	entries    EntryStore
	treatments TreatmentStore
	state      StateStore

	backfilling atomic.Bool
}

// NewDemoDataService creates a new DemoDataService
func NewDemoDataService(cfg config.DemoConfig, entries EntryStore, treatments TreatmentStore, state StateStore) *DemoDataService {
	return &DemoDataService{
		cfg:        cfg,
		entries:    entries,
		treatments: treatments,
		state:      state,
	}
}

// BackfillResult summarizes a completed backfill.
type BackfillResult struct {
	Entries    int   `json:"entries"`
	Treatments int   `json:"treatments"`
	Days       int   `json:"days"`
	Seed       int64 `json:"seed"`
}

// Backfill generates the configured history and persists both streams. The
// carried state is saved afterwards so live ticks continue from where the
// history ends. Only one backfill runs at a time; a second request while one
// is in flight fails with ErrBackfillInFlight.
func (s *DemoDataService) Backfill(ctx context.Context) (*BackfillResult, error) {
	if !s.backfilling.CompareAndSwap(false, true) {
		return nil, domain.ErrBackfillInFlight
	}
	defer s.backfilling.Store(false)

	seed := s.seed()

	eng, err := engine.New(s.engineConfig(), seed)
	if err != nil {
		return nil, err
	}

	entries, treatments, err := eng.GenerateHistoricalData(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.entries.InsertBatch(ctx, entries); err != nil {
		return nil, err
	}
	if err := s.treatments.InsertBatch(ctx, treatments); err != nil {
		return nil, err
	}

	if err := s.state.SaveState(ctx, eng.State()); err != nil {
		// The history is already persisted; the next tick will start a
		// fresh run instead of resuming.
		log.Printf("Warning: failed to save simulation state after backfill: %v", err)
	}

	return &BackfillResult{
		Entries:    len(entries),
		Treatments: len(treatments),
		Days:       s.cfg.HistoryDays,
		Seed:       seed,
	}, nil
}

// Tick advances the live simulation one step at now, persisting the reading
// and any treatments that came due.
func (s *DemoDataService) Tick(ctx context.Context, now time.Time) (*domain.Entry, error) {
	eng, err := engine.New(s.engineConfig(), s.tickSeed(now))
	if err != nil {
		return nil, err
	}

	st, err := s.state.LoadState(ctx)
	switch {
	case err == nil:
		eng.SetState(st)
	case errors.Is(err, domain.ErrStateNotFound):
		// First tick of a fresh run.
	default:
		return nil, err
	}

	entry, treatments := eng.GenerateCurrentEntry(now)

	if err := s.entries.InsertBatch(ctx, []domain.Entry{entry}); err != nil {
		return nil, err
	}
	if err := s.treatments.InsertBatch(ctx, treatments); err != nil {
		return nil, err
	}
	if err := s.state.SaveState(ctx, eng.State()); err != nil {
		return nil, err
	}
	if err := s.state.SaveLatest(ctx, entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

// Status reports the latest reading plus the remaining insulin and carb
// effect tracked by the simulation.
func (s *DemoDataService) Status(ctx context.Context, now time.Time) (*domain.Status, error) {
	entry, err := s.state.Latest(ctx)
	if errors.Is(err, domain.ErrEntryNotFound) {
		// Cache may have expired; fall back to storage.
		entry, err = s.entries.Latest(ctx)
	}
	if err != nil {
		return nil, err
	}

	status := &domain.Status{
		Value:     entry.SGV,
		ValueMmol: entry.ValueMmolL(),
		Direction: entry.Direction,
		Delta:     entry.Delta,
		Time:      entry.Time(),
	}

	st, err := s.state.LoadState(ctx)
	if err == nil {
		eng, engErr := engine.New(s.engineConfig(), s.seed())
		if engErr == nil {
			eng.SetState(st)
			status.IOB = eng.IOB(now)
			status.COB = eng.COB(now)
		}
	} else if !errors.Is(err, domain.ErrStateNotFound) {
		return nil, err
	}

	return status, nil
}

// PurgeResult summarizes a demo-data cleanup.
type PurgeResult struct {
	Entries    int64 `json:"entries"`
	Treatments int64 `json:"treatments"`
}

// Purge bulk-deletes generated data only, keyed off the is-demo tag, and
// clears the carried state so the next tick starts a fresh run.
func (s *DemoDataService) Purge(ctx context.Context) (*PurgeResult, error) {
	deletedEntries, err := s.entries.DeleteDemo(ctx)
	if err != nil {
		return nil, err
	}
	deletedTreatments, err := s.treatments.DeleteDemo(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.state.Clear(ctx); err != nil {
		return nil, err
	}

	return &PurgeResult{Entries: deletedEntries, Treatments: deletedTreatments}, nil
}

// Entries lists stored readings within a time range.
func (s *DemoDataService) Entries(ctx context.Context, from, to time.Time, limit int) ([]domain.Entry, error) {
	return s.entries.ListByTimeRange(ctx, from, to, limit)
}

// Treatments lists stored treatments within a time range, optionally by
// event type.
func (s *DemoDataService) Treatments(ctx context.Context, from, to time.Time, eventType string) ([]domain.Treatment, error) {
	return s.treatments.ListByTimeRange(ctx, from, to, eventType)
}

func (s *DemoDataService) engineConfig() engine.Config {
	return engine.Config{
		Device:                        s.cfg.Device,
		InitialGlucose:                s.cfg.InitialGlucose,
		MinGlucose:                    s.cfg.MinGlucose,
		MaxGlucose:                    s.cfg.MaxGlucose,
		TargetGlucose:                 s.cfg.TargetGlucose,
		CarbRatio:                     s.cfg.CarbRatio,
		CorrectionFactor:              s.cfg.CorrectionFactor,
		BasalRate:                     s.cfg.BasalRate,
		InsulinPeakMinutes:            s.cfg.InsulinPeakMinutes,
		InsulinDurationMinutes:        s.cfg.InsulinDurationMinutes,
		InsulinSensitivityFactor:      s.cfg.InsulinSensitivityFactor,
		CarbAbsorptionPeakMinutes:     s.cfg.CarbAbsorptionPeakMinutes,
		CarbAbsorptionDurationMinutes: s.cfg.CarbAbsorptionDurationMinutes,
		HistoryDays:                   s.cfg.HistoryDays,
		WalkVariance:                  s.cfg.WalkVariance,
	}
}

// seed returns the configured seed, or a clock-derived one when unset so
// every unseeded run differs.
func (s *DemoDataService) seed() int64 {
	if s.cfg.Seed != 0 {
		return s.cfg.Seed
	}
	return time.Now().UnixNano()
}

// tickSeed derives a per-step seed for live ticks: the RNG stream is not part
// of the persisted state, so each tick gets a stream that is deterministic
// given the configured seed and the tick time.
func (s *DemoDataService) tickSeed(now time.Time) int64 {
	return s.cfg.Seed + now.UnixMilli()
}
