package domain

import "time"

// Entry is a single synthetic CGM reading in the Nightscout entry shape, so
// the dashboard can consume generated and real data through the same path.
type Entry struct {
	ID         string  `json:"_id"`
	Device     string  `json:"device"`
	Date       int64   `json:"date"` // Unix timestamp in milliseconds
	DateString string  `json:"dateString"`
	SGV        int     `json:"sgv"` // Sensor glucose value in mg/dL
	Direction  string  `json:"direction"`
	Trend      int     `json:"trend"` // Numeric direction (1-7)
	Delta      float64 `json:"delta"` // Change from previous reading, one decimal
	Filtered   float64 `json:"filtered"`
	Unfiltered float64 `json:"unfiltered"`
	RSSI       int     `json:"rssi"`
	Noise      int     `json:"noise"`
	Type       string  `json:"type"`
	IsDemo     bool    `json:"isDemo"`
}

// Time returns the time of the entry.
func (e *Entry) Time() time.Time {
	return time.UnixMilli(e.Date)
}

// ValueMmolL returns the glucose value in mmol/L.
func (e *Entry) ValueMmolL() float64 {
	return float64(e.SGV) / 18.0182
}

// Treatment is a Nightscout-style treatment record. Carbs, insulin, rate and
// duration are optional; which are set depends on the event type.
type Treatment struct {
	ID        string   `json:"_id"`
	EventType string   `json:"eventType"`
	CreatedAt string   `json:"created_at"`
	Date      int64    `json:"date"` // Unix timestamp in milliseconds
	Carbs     *float64 `json:"carbs,omitempty"`
	Insulin   *float64 `json:"insulin,omitempty"`
	Rate      *float64 `json:"rate,omitempty"`     // units/hour, temp basals only
	Duration  *float64 `json:"duration,omitempty"` // minutes, temp basals only
	EnteredBy string   `json:"enteredBy"`
	IsDemo    bool     `json:"isDemo"`
}

// Time returns the time of the treatment.
func (t *Treatment) Time() time.Time {
	return time.UnixMilli(t.Date)
}

// Nightscout careportal event types emitted by the generator.
const (
	EventCarbs           = "Carbs"
	EventMealBolus       = "Meal Bolus"
	EventSnackBolus      = "Snack Bolus"
	EventCorrectionBolus = "Correction Bolus"
	EventCarbCorrection  = "Carb Correction"
	EventTempBasal       = "Temp Basal"
)

// Trend directions, matching the CGM vocabulary.
const (
	DirectionDoubleUp      = "DoubleUp"
	DirectionSingleUp      = "SingleUp"
	DirectionFortyFiveUp   = "FortyFiveUp"
	DirectionFlat          = "Flat"
	DirectionFortyFiveDown = "FortyFiveDown"
	DirectionSingleDown    = "SingleDown"
	DirectionDoubleDown    = "DoubleDown"
)

// DirectionForDelta classifies a reading-to-reading delta (mg/dL per 5 min)
// into one of the seven trend directions.
func DirectionForDelta(delta float64) string {
	switch {
	case delta > 10:
		return DirectionDoubleUp
	case delta > 5:
		return DirectionSingleUp
	case delta > 2:
		return DirectionFortyFiveUp
	case delta > -2:
		return DirectionFlat
	case delta > -5:
		return DirectionFortyFiveDown
	case delta > -10:
		return DirectionSingleDown
	default:
		return DirectionDoubleDown
	}
}

// TrendForDirection maps a direction string to its numeric trend code.
func TrendForDirection(direction string) int {
	switch direction {
	case DirectionDoubleUp:
		return 1
	case DirectionSingleUp:
		return 2
	case DirectionFortyFiveUp:
		return 3
	case DirectionFlat:
		return 4
	case DirectionFortyFiveDown:
		return 5
	case DirectionSingleDown:
		return 6
	case DirectionDoubleDown:
		return 7
	default:
		return 0
	}
}

// Status is the live demo status exposed by the API: the latest reading plus
// the remaining insulin and carb effect tracked by the simulation.
type Status struct {
	Value     int       `json:"value"` // mg/dL
	ValueMmol float64   `json:"valueMmol"`
	Direction string    `json:"direction"`
	Delta     float64   `json:"delta"`
	Time      time.Time `json:"time"`
	IOB       float64   `json:"iob"` // Insulin on board (units)
	COB       float64   `json:"cob"` // Carbs on board (grams)
}
