package predictor

import "strings"

const (
	FallbackConfidence  = 0.6
	DefaultBaseDuration = 30
)

var baseDurations = map[string]int{
	"new_consultation": 30,
	"follow_up":        20,
	"procedure":        60,
	"vaccination":      15,
	"prenatal":         30,
	"checkup":          25,
	"emergency":        45,
	"telemedicine":     20,
}

// BaseDuration looks up the default duration of an appointment type,
// ignoring case.
func BaseDuration(appointmentType string) int {
	if d, ok := baseDurations[strings.ToLower(strings.TrimSpace(appointmentType))]; ok {
		return d
	}
	return DefaultBaseDuration
}

// Estimate is a duration produced without a trained model.
type Estimate struct {
	DurationMinutes int
	Confidence      float64
}

// EstimateFallback applies the rule table: base duration by type, then
// +10 for a first appointment, +3 per complexity point above 2, +5 before
// 10:00 and +5 on Mondays, rounded to 5 minutes.
//
// The result is not clamped to the model range; see DESIGN.md.
func EstimateFallback(rec Record) Estimate {
	duration := BaseDuration(rec.AppointmentType)
	if rec.IsFirstAppointment {
		duration += 10
	}
	if rec.PatientComplexity > 2 {
		duration += rec.PatientComplexity * 3
	}
	if rec.Hour < 10 {
		duration += 5
	}
	if rec.DayOfWeek == 0 {
		duration += 5
	}
	return Estimate{
		DurationMinutes: RoundToIncrement(float64(duration)),
		Confidence:      FallbackConfidence,
	}
}
