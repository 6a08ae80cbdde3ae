package predictor

import "fmt"

// Dataset column names, shared by the encoder tables, the CSV loader and
// the request attributes.
const (
	ColumnAppointmentType   = "appointment_type_id"
	ColumnProvider          = "doctor_id"
	ColumnPatientAge        = "patient_age"
	ColumnDayOfWeek         = "day_of_week"
	ColumnHour              = "hour"
	ColumnFirstAppointment  = "is_first_appointment"
	ColumnPatientComplexity = "patient_complexity"
	ColumnActualDuration    = "actual_duration_minutes"
)

// Valid label range for training rows, inclusive.
const (
	MinLabelMinutes = 5.0
	MaxLabelMinutes = 120.0
)

// Record is one appointment. Historical rows carry ActualDurationMinutes;
// inference queries leave it nil.
type Record struct {
	AppointmentType       string
	ProviderID            string
	PatientAge            int
	DayOfWeek             int
	Hour                  int
	IsFirstAppointment    bool
	PatientComplexity     int
	ActualDurationMinutes *float64
}

// HasValidLabel reports whether the record can be used as a training row.
func (r Record) HasValidLabel() bool {
	if r.ActualDurationMinutes == nil {
		return false
	}
	d := *r.ActualDurationMinutes
	return d >= MinLabelMinutes && d <= MaxLabelMinutes
}

// CategoricalColumns lists the columns that get an encoding table.
func CategoricalColumns() []string {
	return []string{ColumnAppointmentType, ColumnProvider}
}

func (r Record) categorical(column string) string {
	switch column {
	case ColumnAppointmentType:
		return r.AppointmentType
	case ColumnProvider:
		return r.ProviderID
	}
	return ""
}

// Validate checks the attribute ranges a feature vector can be built from.
func (r Record) Validate() error {
	if r.Hour < 0 || r.Hour > 23 {
		return fmt.Errorf("%w: hour %d outside 0-23", ErrInvalidAttribute, r.Hour)
	}
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week %d outside 0-6", ErrInvalidAttribute, r.DayOfWeek)
	}
	if r.PatientAge < 0 {
		return fmt.Errorf("%w: negative patient_age %d", ErrInvalidAttribute, r.PatientAge)
	}
	if r.PatientComplexity < 0 {
		return fmt.Errorf("%w: negative patient_complexity %d", ErrInvalidAttribute, r.PatientComplexity)
	}
	return nil
}
