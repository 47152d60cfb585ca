package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsulinActivityCurve(t *testing.T) {
	const tp, dia = 75.0, 300.0

	t.Run("zero outside the action window", func(t *testing.T) {
		assert.Zero(t, insulinActivity(-5, tp, dia))
		assert.Zero(t, insulinActivity(0, tp, dia))
		assert.Zero(t, insulinActivity(dia, tp, dia))
		assert.Zero(t, insulinActivity(dia+60, tp, dia))
	})

	t.Run("peaks near the configured peak time", func(t *testing.T) {
		var maxAct, maxAt float64
		for m := 1.0; m < dia; m++ {
			if act := insulinActivity(m, tp, dia); act > maxAct {
				maxAct, maxAt = act, m
			}
		}
		assert.InDelta(t, tp/1.4, maxAt, 2, "biexponential peak sits at tau")
		assert.Greater(t, maxAct, 0.0)
	})

	t.Run("integrates to roughly one dose", func(t *testing.T) {
		// Activity is a per-hour fraction; summing per-minute slices divides
		// by 60. The simplified normalization lands near one dose, not
		// exactly on it.
		var total float64
		for m := 0.5; m < dia; m++ {
			total += insulinActivity(m, tp, dia) / 60
		}
		assert.Greater(t, total, 0.9)
		assert.Less(t, total, 1.3)
	})
}

func TestInsulinAbsorbedFraction(t *testing.T) {
	const tp, dia = 75.0, 300.0

	assert.Zero(t, insulinAbsorbedFraction(0, tp, dia))
	assert.Equal(t, 1.0, insulinAbsorbedFraction(dia, tp, dia))
	assert.Equal(t, 1.0, insulinAbsorbedFraction(dia+100, tp, dia))

	// Non-decreasing throughout; the clamp pins late values at 1.
	prev := 0.0
	for m := 10.0; m < dia; m += 10 {
		f := insulinAbsorbedFraction(m, tp, dia)
		assert.GreaterOrEqual(t, f, prev, "absorbed fraction must never decrease")
		assert.LessOrEqual(t, f, 1.0)
		prev = f
	}
	assert.Greater(t, insulinAbsorbedFraction(60, tp, dia), insulinAbsorbedFraction(30, tp, dia))
}

func TestCarbAbsorptionCurve(t *testing.T) {
	const peak = 45.0

	assert.Zero(t, carbAbsorptionRate(0, peak))
	assert.Zero(t, carbAbsorptionRate(-10, peak))

	var maxRate, maxAt float64
	for m := 1.0; m < 300; m++ {
		if r := carbAbsorptionRate(m, peak); r > maxRate {
			maxRate, maxAt = r, m
		}
	}
	assert.InDelta(t, peak, maxAt, 1, "absorption rate peaks at the peak time")

	var total float64
	for m := 0.5; m < 1000; m++ {
		total += carbAbsorptionRate(m, peak)
	}
	assert.InDelta(t, 1.0, total, 0.02, "the whole load is eventually absorbed")
}

func TestPurgeStale(t *testing.T) {
	cfg := testConfig()
	now := testNow

	st := State{
		InsulinEvents: []InsulinEvent{
			{Time: now.Add(-10 * time.Minute), Units: 2},                       // fresh
			{Time: now.Add(-time.Duration(300+29) * time.Minute), Units: 1},    // inside slack
			{Time: now.Add(-time.Duration(300+31) * time.Minute), Units: 1},    // stale
		},
		CarbEvents: []CarbEvent{
			{Time: now.Add(-30 * time.Minute), Carbs: 40},                      // fresh
			{Time: now.Add(-time.Duration(180+31) * time.Minute), Carbs: 20},   // stale
		},
	}

	st.purgeStale(cfg, now)

	require.Len(t, st.InsulinEvents, 2)
	require.Len(t, st.CarbEvents, 1)
	assert.Equal(t, 40.0, st.CarbEvents[0].Carbs)
}

func TestDawnEffect(t *testing.T) {
	p := ScenarioParameters{DawnPhenomenon: 1.0}
	day := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)

	assert.Zero(t, dawnEffect(p, at(day, 2, 59)))
	assert.Zero(t, dawnEffect(p, at(day, 8, 0)))
	assert.Zero(t, dawnEffect(p, at(day, 14, 0)))

	// Sinusoidal over [03:00,08:00): rises to a midpoint peak then falls.
	early := dawnEffect(p, at(day, 3, 30))
	mid := dawnEffect(p, at(day, 5, 30))
	late := dawnEffect(p, at(day, 7, 30))

	assert.Greater(t, early, 0.0)
	assert.Greater(t, mid, early)
	assert.Greater(t, mid, late)
	assert.InDelta(t, 1.0, dawnEffect(p, at(day, 5, 30)), 0.01)

	assert.Zero(t, dawnEffect(ScenarioParameters{}, at(day, 5, 30)))
}

func TestExerciseEffect(t *testing.T) {
	day := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	active := ScenarioParameters{Exercise: true}

	assert.Zero(t, exerciseEffect(active, at(day, 12, 0)))
	assert.Equal(t, -1.5, exerciseEffect(active, at(day, 16, 30)))
	assert.Equal(t, -0.6, exerciseEffect(active, at(day, 19, 0)))
	assert.Zero(t, exerciseEffect(active, at(day, 22, 0)))

	inactive := ScenarioParameters{Exercise: false}
	assert.Zero(t, exerciseEffect(inactive, at(day, 17, 0)))
}

func TestIntegrateClampsGlucose(t *testing.T) {
	cfg := testConfig()
	cfg.MinGlucose = 80
	cfg.MaxGlucose = 180

	e := newTestEngine(t, cfg, 1)

	t.Run("floor", func(t *testing.T) {
		st := State{Glucose: 81, Momentum: -50, Params: deriveParameters(ScenarioNormal, cfg, e.rng)}
		res := e.integrate(&st, testNow)
		assert.GreaterOrEqual(t, res.glucose, 80.0)
	})

	t.Run("ceiling", func(t *testing.T) {
		st := State{Glucose: 179, Momentum: 50, Params: deriveParameters(ScenarioNormal, cfg, e.rng)}
		res := e.integrate(&st, testNow)
		assert.LessOrEqual(t, res.glucose, 180.0)
	})
}

func TestIntegrateLowCorrection(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(t, cfg, 4)

	// Pin glucose low and step repeatedly: the 70% per-step chance must fire
	// fast carbs within a handful of steps.
	fired := false
	for i := 0; i < 20 && !fired; i++ {
		st := State{Glucose: 55, Params: deriveParameters(ScenarioNormal, cfg, e.rng)}
		res := e.integrate(&st, testNow.Add(time.Duration(i)*stepInterval))
		if res.lowCarbs > 0 {
			fired = true
			assert.GreaterOrEqual(t, res.lowCarbs, 12.0)
			assert.LessOrEqual(t, res.lowCarbs, 20.0)
			require.NotEmpty(t, st.CarbEvents)
			assert.Equal(t, 1.5, st.CarbEvents[len(st.CarbEvents)-1].GlycemicIndex, "rescue carbs absorb fast")
		}
	}
	assert.True(t, fired, "low correction never fired while hypoglycemic")
}

func TestIntegrateHighCorrection(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(t, cfg, 4)

	fired := false
	for i := 0; i < 40 && !fired; i++ {
		st := State{Glucose: 280, Params: deriveParameters(ScenarioNormal, cfg, e.rng)}
		res := e.integrate(&st, testNow.Add(time.Duration(i)*stepInterval))
		if res.bolusUnits > 0 {
			fired = true
			assert.GreaterOrEqual(t, res.bolusUnits, 0.5)
			// Dose targets 120 mg/dL at the day's correction factor.
			expected := (st.Glucose - 120) / st.Params.CorrectionFactor
			assert.InDelta(t, expected, res.bolusUnits, 0.06)
			require.NotEmpty(t, st.InsulinEvents)
		}
	}
	assert.True(t, fired, "high correction never fired while hyperglycemic")
}

func TestIntegrateNoCorrectionInRange(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(t, cfg, 6)

	for i := 0; i < 50; i++ {
		st := State{Glucose: 120, Params: deriveParameters(ScenarioNormal, cfg, e.rng)}
		res := e.integrate(&st, testNow.Add(time.Duration(i)*stepInterval))
		assert.Zero(t, res.lowCarbs)
		assert.Zero(t, res.bolusUnits)
	}
}

func TestIntegrateMomentumSmoothing(t *testing.T) {
	cfg := testConfig()
	cfg.WalkVariance = 0 // silence noise so momentum is observable

	e := newTestEngine(t, cfg, 2)
	st := State{Glucose: 120, Momentum: 10, Params: deriveParameters(ScenarioNormal, cfg, e.rng)}

	e.integrate(&st, testNow)

	// With no active events the step's net change is tiny, so momentum must
	// decay towards it rather than persist.
	assert.Less(t, st.Momentum, 10.0)
	assert.Greater(t, st.Momentum, 0.0)
}

func TestStateIOBSumsActiveBoluses(t *testing.T) {
	cfg := testConfig()
	st := State{
		InsulinEvents: []InsulinEvent{
			{Time: testNow, Units: 3},
			{Time: testNow.Add(-150 * time.Minute), Units: 2},
		},
	}

	iob := st.IOB(cfg, testNow.Add(time.Minute))
	assert.Greater(t, iob, 2.9, "a just-delivered bolus is almost entirely on board")
	assert.Less(t, iob, 5.0)
}
