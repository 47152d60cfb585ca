package engine

import (
	"math/rand"
	"time"
)

// Meal labels used as food-type tags on planned events.
const (
	MealBreakfast = "Breakfast"
	MealLunch     = "Lunch"
	MealDinner    = "Dinner"
	MealSnack     = "Snack"
)

// MealEvent is a planned meal: when it is eaten, how many carbs, how fast
// they absorb, and when the matching bolus is delivered relative to the meal.
// A negative offset means pre-bolusing; positive offsets model bolusing after
// the meal, common for children and unpredictable eaters.
type MealEvent struct {
	Time           time.Time `json:"time"`
	Carbs          float64   `json:"carbs"`
	Label          string    `json:"label"`
	BolusOffsetMin int       `json:"bolusOffsetMin"`
	GlycemicIndex  float64   `json:"glycemicIndex"`
	Bolused        bool      `json:"bolused"`
}

// BolusTime returns when the bolus for this meal is delivered.
func (m MealEvent) BolusTime() time.Time {
	return m.Time.Add(time.Duration(m.BolusOffsetMin) * time.Minute)
}

// BasalAdjustment is a planned temporary basal rate override.
type BasalAdjustment struct {
	Time        time.Time `json:"time"`
	Rate        float64   `json:"rate"` // units/hour
	DurationMin float64   `json:"durationMin"`
}

// carbRange is a half-open [lo,hi) range of grams.
type carbRange struct {
	lo, hi float64
}

func (r carbRange) draw(rng *rand.Rand) float64 {
	return uniform(rng, r.lo, r.hi)
}

type mealCarbTable struct {
	breakfast carbRange
	lunch     carbRange
	dinner    carbRange
}

// carbRangesFor returns the scenario-conditioned carb ranges for the three
// main meals.
func carbRangesFor(kind ScenarioKind) mealCarbTable {
	switch kind {
	case ScenarioHighDay:
		return mealCarbTable{carbRange{50, 90}, carbRange{60, 100}, carbRange{70, 120}}
	case ScenarioLowDay:
		return mealCarbTable{carbRange{20, 40}, carbRange{30, 50}, carbRange{35, 55}}
	case ScenarioExercise:
		return mealCarbTable{carbRange{35, 65}, carbRange{45, 80}, carbRange{40, 70}}
	case ScenarioSickDay:
		// Reduced appetite.
		return mealCarbTable{carbRange{15, 35}, carbRange{20, 45}, carbRange{25, 50}}
	case ScenarioStressDay:
		return mealCarbTable{carbRange{30, 60}, carbRange{45, 85}, carbRange{50, 90}}
	case ScenarioPoorSleep:
		return mealCarbTable{carbRange{40, 75}, carbRange{45, 80}, carbRange{50, 85}}
	default:
		return mealCarbTable{carbRange{30, 60}, carbRange{40, 75}, carbRange{45, 80}}
	}
}

// bolusOffsetFor draws the bolus timing offset in minutes for a main meal.
// High days skew towards late boluses, low days towards pre-bolusing.
func bolusOffsetFor(kind ScenarioKind, label string, rng *rand.Rand) int {
	var lo, hi float64
	switch label {
	case MealBreakfast:
		lo, hi = -15, 10
	case MealLunch:
		lo, hi = -10, 20
	default:
		lo, hi = -10, 25
	}

	switch kind {
	case ScenarioHighDay:
		lo += 10
		hi += 10
	case ScenarioLowDay:
		lo -= 5
		hi -= 5
	}

	return int(uniform(rng, lo, hi))
}

// planMeals lays out the day's meals: breakfast, lunch and dinner always,
// plus up to three snacks drawn independently.
func planMeals(day time.Time, p ScenarioParameters, rng *rand.Rand) []MealEvent {
	ranges := carbRangesFor(p.Kind)

	meals := []MealEvent{
		{
			Time:           at(day, 6+rng.Intn(3), rng.Intn(60)),
			Carbs:          ranges.breakfast.draw(rng),
			Label:          MealBreakfast,
			BolusOffsetMin: bolusOffsetFor(p.Kind, MealBreakfast, rng),
			GlycemicIndex:  uniform(rng, 1.0, 1.5),
			Bolused:        true,
		},
		{
			Time:           at(day, 11+rng.Intn(2), rng.Intn(60)),
			Carbs:          ranges.lunch.draw(rng),
			Label:          MealLunch,
			BolusOffsetMin: bolusOffsetFor(p.Kind, MealLunch, rng),
			GlycemicIndex:  uniform(rng, 0.8, 1.2),
			Bolused:        true,
		},
		{
			Time:           at(day, 17+rng.Intn(3), rng.Intn(60)),
			Carbs:          ranges.dinner.draw(rng),
			Label:          MealDinner,
			BolusOffsetMin: bolusOffsetFor(p.Kind, MealDinner, rng),
			GlycemicIndex:  uniform(rng, 0.7, 1.1),
			Bolused:        true,
		},
	}

	snackWindows := []struct {
		hour int
		span int
		prob float64
	}{
		{9, 2, 0.5},  // morning
		{14, 2, 0.5}, // afternoon
		{20, 2, 0.3}, // evening
	}

	for _, w := range snackWindows {
		if rng.Float64() >= w.prob {
			continue
		}
		carbs := uniform(rng, 10, 25)
		// Small snacks often go unbolused; those surface as bare carb
		// records instead of a snack bolus.
		bolused := carbs >= 15 || rng.Float64() >= 0.4
		meals = append(meals, MealEvent{
			Time:           at(day, w.hour+rng.Intn(w.span), rng.Intn(60)),
			Carbs:          carbs,
			Label:          MealSnack,
			BolusOffsetMin: int(uniform(rng, -5, 15)),
			GlycemicIndex:  uniform(rng, 0.9, 1.6),
			Bolused:        bolused,
		})
	}

	return meals
}

// planBasalAdjustments produces at most one temp basal override for the day.
// Only exercise, low and high days get one; exercise always, the others by
// chance.
func planBasalAdjustments(day time.Time, cfg Config, p ScenarioParameters, rng *rand.Rand) []BasalAdjustment {
	scheduled := cfg.BasalRate * p.BasalMultiplier

	switch p.Kind {
	case ScenarioExercise:
		return []BasalAdjustment{{
			Time:        at(day, 15+rng.Intn(2), rng.Intn(60)),
			Rate:        round2(scheduled * 0.5),
			DurationMin: 120,
		}}
	case ScenarioLowDay:
		if rng.Float64() < 0.5 {
			return []BasalAdjustment{{
				Time:        at(day, 10+rng.Intn(6), rng.Intn(60)),
				Rate:        round2(scheduled * 0.6),
				DurationMin: 90,
			}}
		}
	case ScenarioHighDay:
		if rng.Float64() < 0.4 {
			return []BasalAdjustment{{
				Time:        at(day, 9+rng.Intn(8), rng.Intn(60)),
				Rate:        round2(scheduled * 1.3),
				DurationMin: 120,
			}}
		}
	}

	return nil
}

// at returns the given clock time on day, in day's location.
func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
