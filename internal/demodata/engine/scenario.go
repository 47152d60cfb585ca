package engine

import (
	"math/rand"
	"time"
)

// ScenarioKind is the daily physiological regime the generator runs under.
type ScenarioKind int

const (
	ScenarioNormal ScenarioKind = iota
	ScenarioHighDay
	ScenarioLowDay
	ScenarioExercise
	ScenarioSickDay
	ScenarioStressDay
	ScenarioPoorSleep
)

func (k ScenarioKind) String() string {
	switch k {
	case ScenarioNormal:
		return "normal"
	case ScenarioHighDay:
		return "high_day"
	case ScenarioLowDay:
		return "low_day"
	case ScenarioExercise:
		return "exercise"
	case ScenarioSickDay:
		return "sick_day"
	case ScenarioStressDay:
		return "stress_day"
	case ScenarioPoorSleep:
		return "poor_sleep"
	default:
		return "unknown"
	}
}

// ScenarioParameters is the per-day parameter bundle derived from the
// scenario kind. It is created once at day start and read-only afterwards.
type ScenarioParameters struct {
	Kind                   ScenarioKind `json:"kind"`
	FastingGlucose         float64      `json:"fastingGlucose"`
	CarbRatio              float64      `json:"carbRatio"`
	CorrectionFactor       float64      `json:"correctionFactor"`
	BasalMultiplier        float64      `json:"basalMultiplier"`
	InsulinSensitivityMult float64      `json:"insulinSensitivityMult"`
	DawnPhenomenon         float64      `json:"dawnPhenomenon"`
	Exercise               bool         `json:"exercise"`
}

// scenarioThreshold maps a cumulative upper bound on a [0,100) roll to a
// scenario kind. Tables are evaluated in order, first match wins, and the
// last entry always carries bound 100 so every roll lands somewhere.
type scenarioThreshold struct {
	upper int
	kind  ScenarioKind
}

var weekdayScenarios = []scenarioThreshold{
	{40, ScenarioNormal},
	{55, ScenarioHighDay},
	{65, ScenarioLowDay},
	{75, ScenarioExercise},
	{80, ScenarioSickDay},
	{92, ScenarioStressDay},
	{100, ScenarioPoorSleep},
}

var weekendScenarios = []scenarioThreshold{
	{30, ScenarioNormal},
	{55, ScenarioHighDay},
	{63, ScenarioLowDay},
	{78, ScenarioExercise},
	{83, ScenarioSickDay},
	{88, ScenarioStressDay},
	{100, ScenarioPoorSleep},
}

// selectScenario draws the regime for a day. Weekends skew towards bigger
// meals and later activity, weekdays towards stress.
func selectScenario(date time.Time, rng *rand.Rand) ScenarioKind {
	roll := rng.Intn(100)

	table := weekdayScenarios
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		table = weekendScenarios
	}

	for _, t := range table {
		if roll < t.upper {
			return t.kind
		}
	}
	return ScenarioNormal
}

// deriveParameters builds the day's parameter bundle: a scenario-specific
// base value per field plus bounded jitter.
func deriveParameters(kind ScenarioKind, cfg Config, rng *rand.Rand) ScenarioParameters {
	p := ScenarioParameters{
		Kind:             kind,
		CarbRatio:        cfg.CarbRatio,
		CorrectionFactor: cfg.CorrectionFactor,
	}

	switch kind {
	case ScenarioNormal:
		p.FastingGlucose = 100 + uniform(rng, -15, 20)
		p.BasalMultiplier = 1.0
		p.InsulinSensitivityMult = 1.0
		p.DawnPhenomenon = uniform(rng, 0.2, 0.7)
	case ScenarioHighDay:
		p.FastingGlucose = 160 + uniform(rng, -20, 40)
		p.CarbRatio = cfg.CarbRatio * 1.3
		p.BasalMultiplier = 0.9
		p.InsulinSensitivityMult = 0.7
		p.DawnPhenomenon = uniform(rng, 0.5, 1.2)
	case ScenarioLowDay:
		p.FastingGlucose = 85 + uniform(rng, -10, 10)
		p.CarbRatio = cfg.CarbRatio * 0.8
		p.BasalMultiplier = 1.1
		p.InsulinSensitivityMult = 1.3
		p.DawnPhenomenon = uniform(rng, 0, 0.3)
	case ScenarioExercise:
		p.FastingGlucose = 95 + uniform(rng, -10, 15)
		p.BasalMultiplier = 0.8
		p.InsulinSensitivityMult = 1.4
		p.DawnPhenomenon = uniform(rng, 0.1, 0.5)
		p.Exercise = true
	case ScenarioSickDay:
		p.FastingGlucose = 150 + uniform(rng, -10, 50)
		p.BasalMultiplier = 1.2
		p.InsulinSensitivityMult = 0.6
		p.DawnPhenomenon = uniform(rng, 0.4, 1.0)
	case ScenarioStressDay:
		p.FastingGlucose = 120 + uniform(rng, -10, 30)
		p.BasalMultiplier = 1.0
		p.InsulinSensitivityMult = 0.8
		p.DawnPhenomenon = uniform(rng, 0.3, 0.9)
	case ScenarioPoorSleep:
		p.FastingGlucose = 115 + uniform(rng, -10, 25)
		p.BasalMultiplier = 1.0
		p.InsulinSensitivityMult = 0.9
		p.DawnPhenomenon = uniform(rng, 0.6, 1.4)
	default:
		p.FastingGlucose = 100
		p.BasalMultiplier = 1.0
		p.InsulinSensitivityMult = 1.0
		p.DawnPhenomenon = 0.5
	}

	return p
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
