package predictor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Request defaults for attributes the caller left out.
const (
	DefaultAppointmentType   = "follow_up"
	DefaultProviderID        = "unknown"
	DefaultPatientAge        = 40
	DefaultFirstAppointment  = false
	DefaultPatientComplexity = 0
)

// Attributes is a partial appointment as sent by a client. Nil fields take
// the documented defaults in Resolve.
type Attributes struct {
	AppointmentType    *string
	ProviderID         *string
	PatientAge         *int
	DayOfWeek          *int
	Hour               *int
	IsFirstAppointment *bool
	PatientComplexity  *int
}

// Resolve fills in defaults and returns a complete record.
func (a Attributes) Resolve() Record {
	rec := Record{
		AppointmentType:    DefaultAppointmentType,
		ProviderID:         DefaultProviderID,
		PatientAge:         DefaultPatientAge,
		DayOfWeek:          DefaultDayOfWeek,
		Hour:               DefaultHour,
		IsFirstAppointment: DefaultFirstAppointment,
		PatientComplexity:  DefaultPatientComplexity,
	}
	if a.AppointmentType != nil {
		rec.AppointmentType = *a.AppointmentType
	}
	if a.ProviderID != nil {
		rec.ProviderID = *a.ProviderID
	}
	if a.PatientAge != nil {
		rec.PatientAge = *a.PatientAge
	}
	if a.DayOfWeek != nil {
		rec.DayOfWeek = *a.DayOfWeek
	}
	if a.Hour != nil {
		rec.Hour = *a.Hour
	}
	if a.IsFirstAppointment != nil {
		rec.IsFirstAppointment = *a.IsFirstAppointment
	}
	if a.PatientComplexity != nil {
		rec.PatientComplexity = *a.PatientComplexity
	}
	return rec
}

// ParseAttributes converts a decoded JSON object into Attributes. Missing or
// null keys are left unset. Values of the wrong type are reported as
// ErrInvalidAttribute. Identifiers may be strings or numbers.
func ParseAttributes(raw map[string]any) (Attributes, error) {
	var a Attributes
	var err error

	if a.AppointmentType, err = stringAttr(raw, ColumnAppointmentType); err != nil {
		return Attributes{}, err
	}
	if a.ProviderID, err = stringAttr(raw, ColumnProvider); err != nil {
		return Attributes{}, err
	}
	if a.PatientAge, err = intAttr(raw, ColumnPatientAge); err != nil {
		return Attributes{}, err
	}
	if a.DayOfWeek, err = intAttr(raw, ColumnDayOfWeek); err != nil {
		return Attributes{}, err
	}
	if a.Hour, err = intAttr(raw, ColumnHour); err != nil {
		return Attributes{}, err
	}
	if a.IsFirstAppointment, err = boolAttr(raw, ColumnFirstAppointment); err != nil {
		return Attributes{}, err
	}
	if a.PatientComplexity, err = intAttr(raw, ColumnPatientComplexity); err != nil {
		return Attributes{}, err
	}
	return a, nil
}

func stringAttr(raw map[string]any, key string) (*string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		s = t.String()
	default:
		return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidAttribute, key, v)
	}
	return &s, nil
}

func intAttr(raw map[string]any, key string) (*int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAttribute, key, err)
		}
		f = parsed
	case bool:
		f = flag(t)
	default:
		return nil, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidAttribute, key, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidAttribute, key, f)
	}
	n := int(f)
	return &n, nil
}

func boolAttr(raw map[string]any, key string) (*bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case float64:
		b = t != 0
	case int:
		b = t != 0
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAttribute, key, err)
		}
		b = f != 0
	default:
		return nil, fmt.Errorf("%w: %s must be a flag, got %T", ErrInvalidAttribute, key, v)
	}
	return &b, nil
}
