// Package engine generates realistic synthetic CGM readings and treatment
// records. It is a pure, deterministic-given-seed computation: callers own
// persistence, transport and display.
package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/nocturne-health/demo-backend/internal/demodata/domain"
)

// Config is the caller-supplied generator configuration, immutable for a run.
type Config struct {
	Device                        string
	InitialGlucose                float64
	MinGlucose                    float64
	MaxGlucose                    float64
	TargetGlucose                 float64
	CarbRatio                     float64 // grams per unit
	CorrectionFactor              float64 // mg/dL per unit
	BasalRate                     float64 // units/hour
	InsulinPeakMinutes            float64
	InsulinDurationMinutes        float64
	InsulinSensitivityFactor      float64 // mg/dL per unit
	CarbAbsorptionPeakMinutes     float64
	CarbAbsorptionDurationMinutes float64
	HistoryDays                   int
	WalkVariance                  float64
}

// Validate rejects configurations that would divide by zero or invert the
// clamp range. It runs once before any simulation starts; the integrator
// itself has no error conditions.
func (c Config) Validate() error {
	if c.InsulinPeakMinutes <= 0 {
		return fmt.Errorf("%w: insulin peak minutes must be positive", domain.ErrInvalidConfig)
	}
	if c.InsulinDurationMinutes <= 0 {
		return fmt.Errorf("%w: insulin duration minutes must be positive", domain.ErrInvalidConfig)
	}
	if c.CarbAbsorptionPeakMinutes <= 0 {
		return fmt.Errorf("%w: carb absorption peak minutes must be positive", domain.ErrInvalidConfig)
	}
	if c.CarbAbsorptionDurationMinutes <= 0 {
		return fmt.Errorf("%w: carb absorption duration minutes must be positive", domain.ErrInvalidConfig)
	}
	if c.MinGlucose >= c.MaxGlucose {
		return fmt.Errorf("%w: min glucose must be below max glucose", domain.ErrInvalidConfig)
	}
	if c.HistoryDays < 0 {
		return fmt.Errorf("%w: history days cannot be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// enteredBy tags every generated treatment so it is distinguishable from
// user-entered data.
const enteredBy = "Nocturne Demo"

// Engine drives the simulation. It owns its RNG stream and carried state, so
// independent runs (one engine each) can execute in parallel without locking.
type Engine struct {
	cfg   Config
	rng   *rand.Rand
	state State
}

// New validates the configuration and prepares an engine seeded for a
// reproducible run.
func New(cfg Config, seed int64) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		state: State{Glucose: cfg.InitialGlucose},
	}, nil
}

// State returns a copy of the carried simulation state.
func (e *Engine) State() State {
	return e.state
}

// SetState restores previously carried state, letting a live ticker resume
// after a restart.
func (e *Engine) SetState(st State) {
	e.state = st
}

// IOB reports the insulin still acting at now, in units.
func (e *Engine) IOB(now time.Time) float64 {
	return round1(e.state.IOB(e.cfg, now))
}

// COB reports the carbs still absorbing at now, in grams.
func (e *Engine) COB(now time.Time) float64 {
	return round1(e.state.COB(e.cfg, now))
}

// GenerateHistoricalData backfills cfg.HistoryDays complete days ending at
// the midnight before now. Each day yields 288 readings, 24 hourly scheduled
// basal records and a variable number of meal and correction treatments.
// Cancellation is checked at day boundaries; a single run has no other
// suspension points.
func (e *Engine) GenerateHistoricalData(ctx context.Context) ([]domain.Entry, []domain.Treatment, error) {
	return e.generateHistory(ctx, time.Now())
}

func (e *Engine) generateHistory(ctx context.Context, now time.Time) ([]domain.Entry, []domain.Treatment, error) {
	entries := make([]domain.Entry, 0, e.cfg.HistoryDays*stepsPerDay)
	var treatments []domain.Treatment

	for d := e.cfg.HistoryDays; d >= 1; d-- {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		day := startOfDay(now.AddDate(0, 0, -d))
		dayEntries, dayTreatments := e.runDay(day)
		entries = append(entries, dayEntries...)
		treatments = append(treatments, dayTreatments...)
	}

	return entries, treatments, nil
}

// GenerateCurrentEntry runs a single live step against the carried state,
// returning the new reading plus any treatments that came due (planned meals
// or reactive corrections). Used for real-time demo ticking.
func (e *Engine) GenerateCurrentEntry(now time.Time) (domain.Entry, []domain.Treatment) {
	day := startOfDay(now)
	if e.state.Day != day.Format(dayFormat) {
		e.beginDay(day)
	}

	treatments := e.deliverDue(now)
	res := e.integrate(&e.state, now)
	treatments = append(treatments, e.correctionTreatments(res, now)...)

	return e.makeEntry(now, res), treatments
}

const (
	stepInterval = 5 * time.Minute
	stepsPerDay  = 24 * 60 / 5
	dayFormat    = "2006-01-02"
)

// beginDay selects the day's scenario, derives its parameters and lays out
// the meal and basal plan. Glucose and momentum are carried over, drifting
// only part way towards the new day's fasting baseline overnight.
func (e *Engine) beginDay(day time.Time) {
	kind := selectScenario(day, e.rng)
	params := deriveParameters(kind, e.cfg, e.rng)

	e.state.Day = day.Format(dayFormat)
	e.state.Params = params
	e.state.PendingMeals = planMeals(day, params, e.rng)
	e.state.PendingBasals = planBasalAdjustments(day, e.cfg, params, e.rng)

	if e.state.Glucose == 0 {
		e.state.Glucose = params.FastingGlucose
	} else {
		e.state.Glucose += (params.FastingGlucose - e.state.Glucose) * 0.15
	}
}

// deliverDue moves planned events whose time has arrived into the working
// lists and materializes their treatment records.
func (e *Engine) deliverDue(now time.Time) []domain.Treatment {
	var out []domain.Treatment

	remaining := e.state.PendingMeals[:0]
	for _, meal := range e.state.PendingMeals {
		if meal.Time.After(now) {
			remaining = append(remaining, meal)
			continue
		}

		e.state.CarbEvents = append(e.state.CarbEvents, CarbEvent{
			Time:          meal.Time,
			Carbs:         meal.Carbs,
			GlycemicIndex: meal.GlycemicIndex,
		})

		carbs := math.Round(meal.Carbs)
		if !meal.Bolused {
			out = append(out, e.newTreatment(domain.EventCarbs, meal.Time, &carbs, nil))
			continue
		}

		units := round1(meal.Carbs / e.state.Params.CarbRatio)
		e.state.InsulinEvents = append(e.state.InsulinEvents, InsulinEvent{
			Time:  meal.BolusTime(),
			Units: units,
		})

		eventType := domain.EventMealBolus
		if meal.Label == MealSnack {
			eventType = domain.EventSnackBolus
		}
		out = append(out, e.newTreatment(eventType, meal.BolusTime(), &carbs, &units))
	}
	e.state.PendingMeals = remaining

	basalsLeft := e.state.PendingBasals[:0]
	for _, adj := range e.state.PendingBasals {
		if adj.Time.After(now) {
			basalsLeft = append(basalsLeft, adj)
			continue
		}
		t := e.newTreatment(domain.EventTempBasal, adj.Time, nil, nil)
		rate := adj.Rate
		duration := adj.DurationMin
		t.Rate = &rate
		t.Duration = &duration
		out = append(out, t)
	}
	e.state.PendingBasals = basalsLeft

	return out
}

// correctionTreatments turns reactive corrections from a step into records.
func (e *Engine) correctionTreatments(res stepResult, now time.Time) []domain.Treatment {
	var out []domain.Treatment
	if res.lowCarbs > 0 {
		carbs := res.lowCarbs
		out = append(out, e.newTreatment(domain.EventCarbCorrection, now, &carbs, nil))
	}
	if res.bolusUnits > 0 {
		units := res.bolusUnits
		out = append(out, e.newTreatment(domain.EventCorrectionBolus, now, nil, &units))
	}
	return out
}

// runDay simulates one complete day at 5-minute resolution.
func (e *Engine) runDay(day time.Time) ([]domain.Entry, []domain.Treatment) {
	e.beginDay(day)

	entries := make([]domain.Entry, 0, stepsPerDay)
	var treatments []domain.Treatment

	for i := 0; i < stepsPerDay; i++ {
		now := day.Add(time.Duration(i) * stepInterval)

		treatments = append(treatments, e.deliverDue(now)...)
		res := e.integrate(&e.state, now)
		treatments = append(treatments, e.correctionTreatments(res, now)...)
		entries = append(entries, e.makeEntry(now, res))
	}

	treatments = append(treatments, e.scheduledBasals(day)...)

	return entries, treatments
}

// scheduledBasals emits the 24 hourly basal delivery records for a day,
// reflecting the circadian-adjusted rate.
func (e *Engine) scheduledBasals(day time.Time) []domain.Treatment {
	p := e.state.Params
	out := make([]domain.Treatment, 0, 24)

	for hour := 0; hour < 24; hour++ {
		rate := round2(e.cfg.BasalRate * p.BasalMultiplier * circadianMultiplier(hour, p.DawnPhenomenon))
		duration := 60.0

		t := e.newTreatment(domain.EventTempBasal, at(day, hour, 0), nil, nil)
		t.Rate = &rate
		t.Duration = &duration
		out = append(out, t)
	}

	return out
}

// circadianMultiplier is the fixed step function over scheduled basal rates:
// elevated through the dawn window (scaled by dawn strength), +10% midday,
// -10% overnight.
func circadianMultiplier(hour int, dawnStrength float64) float64 {
	switch {
	case hour >= 3 && hour < 8:
		return 1 + 0.15*dawnStrength
	case hour >= 11 && hour < 15:
		return 1.1
	case hour >= 22 || hour < 3:
		return 0.9
	default:
		return 1.0
	}
}

// makeEntry materializes one glucose reading. The filtered/unfiltered raw
// estimates and signal indices exist purely for device-format realism.
func (e *Engine) makeEntry(now time.Time, res stepResult) domain.Entry {
	direction := domain.DirectionForDelta(res.delta)
	filtered := math.Round(res.glucose * 1000)

	return domain.Entry{
		ID:         e.newID(),
		Device:     e.cfg.Device,
		Date:       now.UnixMilli(),
		DateString: now.Format(time.RFC3339),
		SGV:        int(math.Round(res.glucose)),
		Direction:  direction,
		Trend:      domain.TrendForDirection(direction),
		Delta:      round1(res.delta),
		Filtered:   filtered,
		Unfiltered: filtered + math.Round(e.gauss()*250),
		RSSI:       100,
		Noise:      1,
		Type:       "sgv",
		IsDemo:     true,
	}
}

func (e *Engine) newTreatment(eventType string, at time.Time, carbs, insulin *float64) domain.Treatment {
	return domain.Treatment{
		ID:        e.newID(),
		EventType: eventType,
		CreatedAt: at.Format(time.RFC3339),
		Date:      at.UnixMilli(),
		Carbs:     carbs,
		Insulin:   insulin,
		EnteredBy: enteredBy,
		IsDemo:    true,
	}
}

// newID draws a UUID from the engine's own RNG stream so that two runs with
// the same seed produce identical records, IDs included.
func (e *Engine) newID() string {
	id, err := uuid.NewRandomFromReader(e.rng)
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// round1 rounds half away from zero to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// round2 rounds half away from zero to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
