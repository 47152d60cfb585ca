package engine

import (
	"context"
	"testing"
	"time"

	"github.com/nocturne-health/demo-backend/internal/demodata/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig mirrors the documented example configuration.
func testConfig() Config {
	return Config{
		Device:                        "nocturne-demo-cgm",
		InitialGlucose:                100,
		MinGlucose:                    40,
		MaxGlucose:                    400,
		TargetGlucose:                 110,
		CarbRatio:                     10,
		CorrectionFactor:              50,
		BasalRate:                     1.0,
		InsulinPeakMinutes:            75,
		InsulinDurationMinutes:        300,
		InsulinSensitivityFactor:      50,
		CarbAbsorptionPeakMinutes:     45,
		CarbAbsorptionDurationMinutes: 180,
		HistoryDays:                   1,
		WalkVariance:                  1.0,
	}
}

var testNow = time.Date(2024, 6, 12, 14, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg Config, seed int64) *Engine {
	t.Helper()
	e, err := New(cfg, seed)
	require.NoError(t, err)
	return e
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero insulin peak", func(c *Config) { c.InsulinPeakMinutes = 0 }},
		{"negative insulin duration", func(c *Config) { c.InsulinDurationMinutes = -1 }},
		{"zero carb peak", func(c *Config) { c.CarbAbsorptionPeakMinutes = 0 }},
		{"zero carb duration", func(c *Config) { c.CarbAbsorptionDurationMinutes = 0 }},
		{"inverted clamp range", func(c *Config) { c.MinGlucose = 400; c.MaxGlucose = 40 }},
		{"negative history days", func(c *Config) { c.HistoryDays = -1 }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := testConfig()
			c.mutate(&cfg)

			_, err := New(cfg, 1)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, testConfig().Validate())
	})
}

func TestGenerateHistoryDeterministic(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryDays = 3

	a := newTestEngine(t, cfg, 42)
	b := newTestEngine(t, cfg, 42)

	entriesA, treatmentsA, err := a.generateHistory(context.Background(), testNow)
	require.NoError(t, err)
	entriesB, treatmentsB, err := b.generateHistory(context.Background(), testNow)
	require.NoError(t, err)

	// Identical seed means identical output, record IDs included.
	require.Equal(t, entriesA, entriesB)
	require.Equal(t, treatmentsA, treatmentsB)
}

func TestGenerateHistorySeedsDiverge(t *testing.T) {
	cfg := testConfig()

	a := newTestEngine(t, cfg, 1)
	b := newTestEngine(t, cfg, 2)

	entriesA, _, err := a.generateHistory(context.Background(), testNow)
	require.NoError(t, err)
	entriesB, _, err := b.generateHistory(context.Background(), testNow)
	require.NoError(t, err)

	assert.NotEqual(t, entriesA, entriesB)
}

func TestGenerateHistoryStepCounts(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryDays = 2

	e := newTestEngine(t, cfg, 7)
	entries, treatments, err := e.generateHistory(context.Background(), testNow)
	require.NoError(t, err)

	// 288 five-minute readings per day.
	require.Len(t, entries, 2*288)

	// 24 hourly scheduled basal records per day, recognizable by their
	// 60-minute duration. Planned overrides run 90 or 120 minutes.
	scheduled := 0
	for _, tr := range treatments {
		if tr.EventType == domain.EventTempBasal && tr.Duration != nil && *tr.Duration == 60 {
			scheduled++
		}
	}
	assert.Equal(t, 2*24, scheduled)
}

func TestGenerateHistoryEntriesChronological(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryDays = 2

	e := newTestEngine(t, cfg, 9)
	entries, _, err := e.generateHistory(context.Background(), testNow)
	require.NoError(t, err)

	for i := 1; i < len(entries); i++ {
		assert.Equal(t, int64(5*60*1000), entries[i].Date-entries[i-1].Date,
			"entries must be exactly five minutes apart")
	}

	last := entries[len(entries)-1].Time()
	assert.True(t, last.Before(startOfDay(testNow)), "history must end before today")
}

func TestGenerateHistoryExampleRun(t *testing.T) {
	cfg := testConfig()

	e := newTestEngine(t, cfg, 20240612)
	entries, treatments, err := e.generateHistory(context.Background(), testNow)
	require.NoError(t, err)

	require.Len(t, entries, 288)

	byType := make(map[string]int)
	for _, tr := range treatments {
		byType[tr.EventType]++
	}
	assert.Equal(t, 3, byType[domain.EventMealBolus], "breakfast, lunch and dinner")
	assert.GreaterOrEqual(t, byType[domain.EventTempBasal], 24)

	maxRate := cfg.BasalRate * 1.5 * 1.3
	for _, tr := range treatments {
		switch tr.EventType {
		case domain.EventTempBasal:
			require.NotNil(t, tr.Rate)
			require.NotNil(t, tr.Duration)
			assert.GreaterOrEqual(t, *tr.Rate, 0.0)
			assert.LessOrEqual(t, *tr.Rate, maxRate)
		case domain.EventCorrectionBolus:
			require.NotNil(t, tr.Insulin)
			assert.GreaterOrEqual(t, *tr.Insulin, 0.5, "correction boluses below the delivery minimum are dropped")
		case domain.EventMealBolus, domain.EventSnackBolus:
			require.NotNil(t, tr.Carbs)
			require.NotNil(t, tr.Insulin)
			assert.Greater(t, *tr.Insulin, 0.0)
		case domain.EventCarbs, domain.EventCarbCorrection:
			require.NotNil(t, tr.Carbs)
			assert.Nil(t, tr.Insulin)
		}
		assert.Equal(t, enteredBy, tr.EnteredBy)
		assert.True(t, tr.IsDemo)
	}
}

func TestGenerateHistoryClampInvariant(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryDays = 5
	cfg.MinGlucose = 60
	cfg.MaxGlucose = 250
	cfg.WalkVariance = 3.0 // exaggerate noise to press against the clamps

	e := newTestEngine(t, cfg, 99)
	entries, _, err := e.generateHistory(context.Background(), testNow)
	require.NoError(t, err)

	for _, en := range entries {
		assert.GreaterOrEqual(t, en.SGV, 60)
		assert.LessOrEqual(t, en.SGV, 250)
	}
}

func TestGenerateHistoryEntryShape(t *testing.T) {
	cfg := testConfig()

	e := newTestEngine(t, cfg, 3)
	entries, _, err := e.generateHistory(context.Background(), testNow)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, en := range entries {
		assert.Equal(t, "sgv", en.Type)
		assert.Equal(t, cfg.Device, en.Device)
		assert.True(t, en.IsDemo)
		assert.GreaterOrEqual(t, en.Trend, 1)
		assert.LessOrEqual(t, en.Trend, 7)
		assert.Equal(t, 100, en.RSSI)

		parsed, err := time.Parse(time.RFC3339, en.DateString)
		require.NoError(t, err)
		assert.Equal(t, en.Date, parsed.UnixMilli())

		assert.False(t, seen[en.ID], "duplicate entry id %s", en.ID)
		seen[en.ID] = true
	}
}

func TestGenerateHistoryRetentionBound(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryDays = 4

	e := newTestEngine(t, cfg, 17)
	_, _, err := e.generateHistory(context.Background(), testNow)
	require.NoError(t, err)

	// After a multi-day run the working lists must hold only events still
	// within their pharmacokinetic window plus slack, not the whole history.
	lastStep := startOfDay(testNow).Add(-stepInterval)
	st := e.State()

	for _, ev := range st.InsulinEvents {
		assert.LessOrEqual(t, lastStep.Sub(ev.Time).Minutes(), cfg.InsulinDurationMinutes+30)
	}
	for _, ev := range st.CarbEvents {
		assert.LessOrEqual(t, lastStep.Sub(ev.Time).Minutes(), cfg.CarbAbsorptionDurationMinutes+30)
	}
}

func TestGenerateHistoryCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryDays = 30

	e := newTestEngine(t, cfg, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.generateHistory(ctx, testNow)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateCurrentEntry(t *testing.T) {
	cfg := testConfig()

	e := newTestEngine(t, cfg, 13)

	first, _ := e.GenerateCurrentEntry(testNow)
	second, _ := e.GenerateCurrentEntry(testNow.Add(stepInterval))

	assert.Equal(t, testNow.UnixMilli(), first.Date)
	assert.Equal(t, testNow.Add(stepInterval).UnixMilli(), second.Date)
	assert.NotEqual(t, first.ID, second.ID)

	for _, en := range []domain.Entry{first, second} {
		assert.GreaterOrEqual(t, float64(en.SGV), cfg.MinGlucose)
		assert.LessOrEqual(t, float64(en.SGV), cfg.MaxGlucose)
	}

	st := e.State()
	assert.Equal(t, testNow.Format(dayFormat), st.Day)
}

func TestGenerateCurrentEntryDayRollover(t *testing.T) {
	cfg := testConfig()

	e := newTestEngine(t, cfg, 21)

	lateNight := time.Date(2024, 6, 12, 23, 55, 0, 0, time.UTC)
	e.GenerateCurrentEntry(lateNight)
	dayBefore := e.State().Day

	e.GenerateCurrentEntry(lateNight.Add(stepInterval))
	st := e.State()

	assert.NotEqual(t, dayBefore, st.Day)
	assert.Equal(t, "2024-06-13", st.Day)
	assert.NotEmpty(t, st.PendingMeals, "a fresh day must carry a meal plan")
}

func TestGenerateCurrentEntryDeliversPlannedMeals(t *testing.T) {
	cfg := testConfig()

	e := newTestEngine(t, cfg, 31)

	// Ticking through a full day must deliver every planned meal.
	day := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	var mealTreatments int
	for i := 0; i < stepsPerDay; i++ {
		_, treatments := e.GenerateCurrentEntry(day.Add(time.Duration(i) * stepInterval))
		for _, tr := range treatments {
			switch tr.EventType {
			case domain.EventMealBolus, domain.EventSnackBolus, domain.EventCarbs:
				mealTreatments++
			}
		}
	}

	assert.GreaterOrEqual(t, mealTreatments, 3)
	assert.Empty(t, e.State().PendingMeals)
	assert.Empty(t, e.State().PendingBasals)
}

func TestStateRoundTrip(t *testing.T) {
	cfg := testConfig()

	e := newTestEngine(t, cfg, 8)
	e.GenerateCurrentEntry(testNow)
	saved := e.State()

	restored := newTestEngine(t, cfg, 8)
	restored.SetState(saved)

	assert.Equal(t, saved, restored.State())
}

func TestIOBAndCOB(t *testing.T) {
	cfg := testConfig()

	e := newTestEngine(t, cfg, 12)
	st := State{
		Glucose: 120,
		InsulinEvents: []InsulinEvent{
			{Time: testNow.Add(-30 * time.Minute), Units: 4},
		},
		CarbEvents: []CarbEvent{
			{Time: testNow.Add(-30 * time.Minute), Carbs: 40, GlycemicIndex: 1.0},
		},
		Params: deriveParameters(ScenarioNormal, cfg, e.rng),
	}
	e.SetState(st)

	iob := e.IOB(testNow)
	assert.Greater(t, iob, 0.0)
	assert.Less(t, iob, 4.0, "some insulin must have acted after 30 minutes")

	cob := e.COB(testNow)
	assert.Greater(t, cob, 0.0)
	assert.Less(t, cob, 40.0, "some carbs must have absorbed after 30 minutes")

	// Both decay towards zero past the pharmacokinetic duration.
	assert.Zero(t, e.IOB(testNow.Add(6*time.Hour)))
	assert.InDelta(t, 0, e.COB(testNow.Add(12*time.Hour)), 0.2)
}
