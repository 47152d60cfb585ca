package engine

import (
	"math"
	"time"
)

// Fixed policy constants for the reactive correction behavior. These model
// real-world self-treatment habits and are deliberately not configuration.
const (
	lowCorrectionThreshold  = 70.0 // mg/dL
	highCorrectionThreshold = 200.0
	lowCorrectionChance     = 0.7 // per step while low
	highCorrectionChance    = 0.4 // per step while high
	correctionTarget        = 120.0
	minCorrectionBolus      = 0.5 // units

	stepMinutes = 5.0

	// Hard physiological clamp, applied regardless of configuration.
	hardMinGlucose = 40.0
	hardMaxGlucose = 400.0

	// Working-list retention slack past the pharmacokinetic duration.
	eventRetentionSlackMin = 30.0

	// Glucose impact of one gram of carbohydrate at nominal sensitivity.
	carbImpactPerGram = 3.5 // mg/dL
)

// InsulinEvent is an active bolus contributing insulin activity.
type InsulinEvent struct {
	Time  time.Time `json:"time"`
	Units float64   `json:"units"`
}

// CarbEvent is an active carb intake contributing absorption.
type CarbEvent struct {
	Time          time.Time `json:"time"`
	Carbs         float64   `json:"carbs"`
	GlycemicIndex float64   `json:"glycemicIndex"`
}

// State is the simulation state carried from one step to the next (and from
// one day into the next, so a late dinner still acts past midnight). It is a
// plain value: each step consumes one and the engine hands it back updated,
// which keeps the integrator free of hidden state.
type State struct {
	Glucose  float64 `json:"glucose"`
	Momentum float64 `json:"momentum"`

	InsulinEvents []InsulinEvent `json:"insulinEvents"`
	CarbEvents    []CarbEvent    `json:"carbEvents"`

	// Day the current plan belongs to (YYYY-MM-DD) plus the plan itself,
	// kept so a live ticker can resume mid-day after a restart.
	Day           string             `json:"day"`
	Params        ScenarioParameters `json:"params"`
	PendingMeals  []MealEvent        `json:"pendingMeals,omitempty"`
	PendingBasals []BasalAdjustment  `json:"pendingBasals,omitempty"`
}

// insulinActivity is the biexponential absorption curve: the fraction of a
// dose acting per hour at minsAgo minutes after delivery. Peak time tp and
// duration of action dia are in minutes; the curve integrates to ~1 over dia.
func insulinActivity(minsAgo, tp, dia float64) float64 {
	if minsAgo <= 0 || minsAgo >= dia {
		return 0
	}
	tau := tp / 1.4
	s := 1 / (1 - tau/dia + (1+tau/dia)*math.Exp(-dia/tau))
	return s * (minsAgo / (tau * tau)) * math.Exp(-minsAgo/tau) * 60
}

// insulinAbsorbedFraction is the integral of the activity curve: how much of
// a dose has acted after minsAgo minutes. Used for IOB accounting.
func insulinAbsorbedFraction(minsAgo, tp, dia float64) float64 {
	if minsAgo <= 0 {
		return 0
	}
	if minsAgo >= dia {
		return 1
	}
	tau := tp / 1.4
	s := 1 / (1 - tau/dia + (1+tau/dia)*math.Exp(-dia/tau))
	f := s * (1 - math.Exp(-minsAgo/tau)*(1+minsAgo/tau))
	return math.Min(math.Max(f, 0), 1)
}

// carbAbsorptionRate is a normalized gamma-like curve (shape k=2): the
// fraction of a carb load absorbed per minute at minsAgo minutes after the
// meal, with the peak time already adjusted for glycemic index.
func carbAbsorptionRate(minsAgo, peak float64) float64 {
	if minsAgo <= 0 {
		return 0
	}
	return (minsAgo / peak) * math.Exp(-minsAgo/peak) / peak
}

// carbAbsorbedFraction is the cumulative absorbed fraction used to track
// carbs on board.
func carbAbsorbedFraction(minsAgo, duration float64) float64 {
	if minsAgo <= 0 {
		return 0
	}
	return 1 - math.Exp(-minsAgo/(duration/3))
}

// purgeStale drops events whose effect has decayed to nothing: insulin older
// than DIA+30min, carbs older than absorption duration+30min. This bounds the
// working lists for arbitrarily long runs.
func (st *State) purgeStale(cfg Config, now time.Time) {
	insKeep := st.InsulinEvents[:0]
	for _, ev := range st.InsulinEvents {
		if now.Sub(ev.Time).Minutes() <= cfg.InsulinDurationMinutes+eventRetentionSlackMin {
			insKeep = append(insKeep, ev)
		}
	}
	st.InsulinEvents = insKeep

	carbKeep := st.CarbEvents[:0]
	for _, ev := range st.CarbEvents {
		if now.Sub(ev.Time).Minutes() <= cfg.CarbAbsorptionDurationMinutes+eventRetentionSlackMin {
			carbKeep = append(carbKeep, ev)
		}
	}
	st.CarbEvents = carbKeep
}

// totalInsulinEffect sums the glucose drop (mg/dL) produced this step by all
// active boluses.
func totalInsulinEffect(cfg Config, p ScenarioParameters, st *State, now time.Time) float64 {
	var effect float64
	for _, ev := range st.InsulinEvents {
		minsAgo := now.Sub(ev.Time).Minutes()
		act := insulinActivity(minsAgo, cfg.InsulinPeakMinutes, cfg.InsulinDurationMinutes)
		effect += ev.Units * act * p.InsulinSensitivityMult * cfg.InsulinSensitivityFactor / 60 * stepMinutes
	}
	return effect
}

// totalCarbEffect sums the glucose rise (mg/dL) produced this step by all
// active carb events. The glycemic index compresses the absorption curve and
// scales its impact.
func totalCarbEffect(cfg Config, p ScenarioParameters, st *State, now time.Time) float64 {
	var effect float64
	for _, ev := range st.CarbEvents {
		minsAgo := now.Sub(ev.Time).Minutes()
		gi := ev.GlycemicIndex
		if gi <= 0 {
			gi = 1
		}
		adjPeak := cfg.CarbAbsorptionPeakMinutes / gi
		rate := carbAbsorptionRate(minsAgo, adjPeak)
		absorbedGrams := ev.Carbs * rate * stepMinutes
		effect += absorbedGrams * gi * carbImpactPerGram / p.InsulinSensitivityMult
	}
	return effect
}

// dawnEffect is a sinusoidal early-morning glucose bump in the [03:00,08:00)
// window, scaled by the day's dawn phenomenon strength.
func dawnEffect(p ScenarioParameters, now time.Time) float64 {
	h := float64(now.Hour()) + float64(now.Minute())/60
	if h < 3 || h >= 8 {
		return 0
	}
	return math.Sin((h-3)/5*math.Pi) * p.DawnPhenomenon
}

// exerciseEffect lowers glucose in two post-exercise windows: strongly during
// the session ([16:00,18:00)) and mildly for hours after ([18:00,22:00)).
func exerciseEffect(p ScenarioParameters, now time.Time) float64 {
	if !p.Exercise {
		return 0
	}
	switch h := now.Hour(); {
	case h >= 16 && h < 18:
		return -1.5
	case h >= 18 && h < 22:
		return -0.6
	}
	return 0
}

// IOB returns the insulin still acting at now, in units.
func (st *State) IOB(cfg Config, now time.Time) float64 {
	var iob float64
	for _, ev := range st.InsulinEvents {
		minsAgo := now.Sub(ev.Time).Minutes()
		iob += ev.Units * (1 - insulinAbsorbedFraction(minsAgo, cfg.InsulinPeakMinutes, cfg.InsulinDurationMinutes))
	}
	return iob
}

// COB returns the carbs still absorbing at now, in grams.
func (st *State) COB(cfg Config, now time.Time) float64 {
	var cob float64
	for _, ev := range st.CarbEvents {
		minsAgo := now.Sub(ev.Time).Minutes()
		gi := ev.GlycemicIndex
		if gi <= 0 {
			gi = 1
		}
		adjDuration := cfg.CarbAbsorptionDurationMinutes / gi
		cob += ev.Carbs * (1 - carbAbsorbedFraction(minsAgo, adjDuration))
	}
	return cob
}

// stepResult is what one 5-minute integration step produces: the new glucose
// value plus any reactive corrections that fired.
type stepResult struct {
	glucose    float64
	delta      float64
	lowCarbs   float64 // grams, 0 if no carb correction fired
	bolusUnits float64 // units, 0 if no correction bolus fired
}

// integrate advances the state by one 5-minute step ending at now and returns
// what happened. Reactive corrections are appended to the working lists here;
// turning them into treatment records is the emitter's job.
func (e *Engine) integrate(st *State, now time.Time) stepResult {
	cfg := e.cfg
	p := st.Params

	st.purgeStale(cfg, now)

	insulin := totalInsulinEffect(cfg, p, st, now)
	carbs := totalCarbEffect(cfg, p, st, now)
	basal := p.BasalMultiplier * 0.02
	homeostasis := (100 - st.Glucose) * 0.002
	dawn := dawnEffect(p, now)
	exercise := exerciseEffect(p, now)

	netChange := carbs - insulin + basal + homeostasis + dawn + exercise
	netChange += e.gauss() * 0.5 * cfg.WalkVariance

	// Momentum damping smooths the trace into something a CGM would plot
	// instead of jittering step to step.
	st.Momentum = st.Momentum*0.7 + netChange*0.3

	prev := st.Glucose
	st.Glucose += st.Momentum

	switch p.Kind {
	case ScenarioSickDay:
		// Persistent upward-biased jitter while ill.
		st.Glucose += uniform(e.rng, -0.1, 0.5)
	case ScenarioStressDay:
		if e.rng.Float64() < 0.05 {
			st.Glucose += uniform(e.rng, 5, 15)
		}
	}

	st.Glucose = clamp(st.Glucose, hardMinGlucose, hardMaxGlucose)
	st.Glucose = clamp(st.Glucose, cfg.MinGlucose, cfg.MaxGlucose)

	res := stepResult{glucose: st.Glucose, delta: st.Glucose - prev}

	// Reactive self-treatment: fast carbs on a low, a correction bolus on a
	// sustained high.
	if st.Glucose < lowCorrectionThreshold && e.rng.Float64() < lowCorrectionChance {
		grams := math.Round(uniform(e.rng, 12, 20))
		st.CarbEvents = append(st.CarbEvents, CarbEvent{Time: now, Carbs: grams, GlycemicIndex: 1.5})
		res.lowCarbs = grams
	} else if st.Glucose > highCorrectionThreshold && e.rng.Float64() < highCorrectionChance {
		bolus := round1((st.Glucose - correctionTarget) / p.CorrectionFactor)
		if bolus >= minCorrectionBolus {
			st.InsulinEvents = append(st.InsulinEvents, InsulinEvent{Time: now, Units: bolus})
			res.bolusUnits = bolus
		}
	}

	return res
}

// gauss draws a standard normal variate via the Box-Muller transform.
func (e *Engine) gauss() float64 {
	u1 := e.rng.Float64()
	for u1 == 0 {
		u1 = e.rng.Float64()
	}
	u2 := e.rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
