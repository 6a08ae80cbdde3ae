package models

import (
	"time"

	"appointment-duration-api/predictor"
)

// AppointmentHistory is a completed appointment kept as a training row.
type AppointmentHistory struct {
	AppointmentID         string    `gorm:"column:appointment_id;primaryKey" json:"appointment_id"`
	CompletedAt           time.Time `gorm:"column:completed_at;index" json:"completed_at"`
	AppointmentTypeID     string    `gorm:"column:appointment_type_id" json:"appointment_type_id"`
	DoctorID              string    `gorm:"column:doctor_id" json:"doctor_id"`
	PatientAge            int       `gorm:"column:patient_age" json:"patient_age"`
	DayOfWeek             int       `gorm:"column:day_of_week" json:"day_of_week"`
	Hour                  int       `gorm:"column:hour" json:"hour"`
	IsFirstAppointment    bool      `gorm:"column:is_first_appointment" json:"is_first_appointment"`
	PatientComplexity     int       `gorm:"column:patient_complexity" json:"patient_complexity"`
	ActualDurationMinutes float64   `gorm:"column:actual_duration_minutes" json:"actual_duration_minutes"`
}

func (AppointmentHistory) TableName() string { return "appointment_history" }

func (h AppointmentHistory) Record() predictor.Record {
	label := h.ActualDurationMinutes
	return predictor.Record{
		AppointmentType:       h.AppointmentTypeID,
		ProviderID:            h.DoctorID,
		PatientAge:            h.PatientAge,
		DayOfWeek:             h.DayOfWeek,
		Hour:                  h.Hour,
		IsFirstAppointment:    h.IsFirstAppointment,
		PatientComplexity:     h.PatientComplexity,
		ActualDurationMinutes: &label,
	}
}
