package predictor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDefaults(t *testing.T) {
	rec := Attributes{}.Resolve()

	assert.Equal(t, "follow_up", rec.AppointmentType)
	assert.Equal(t, "unknown", rec.ProviderID)
	assert.Equal(t, 40, rec.PatientAge)
	assert.Equal(t, 0, rec.DayOfWeek)
	assert.Equal(t, 9, rec.Hour)
	assert.False(t, rec.IsFirstAppointment)
	assert.Equal(t, 0, rec.PatientComplexity)
	assert.Nil(t, rec.ActualDurationMinutes)
}

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return raw
}

func TestParseAttributes(t *testing.T) {
	raw := decode(t, `{
		"appointment_type_id": "procedure",
		"doctor_id": 17,
		"patient_age": 63,
		"day_of_week": 2,
		"hour": 15,
		"is_first_appointment": 1,
		"patient_complexity": 4
	}`)

	attrs, err := ParseAttributes(raw)
	require.NoError(t, err)
	rec := attrs.Resolve()

	assert.Equal(t, Record{
		AppointmentType:    "procedure",
		ProviderID:         "17",
		PatientAge:         63,
		DayOfWeek:          2,
		Hour:               15,
		IsFirstAppointment: true,
		PatientComplexity:  4,
	}, rec)
}

func TestParseAttributesPartial(t *testing.T) {
	attrs, err := ParseAttributes(decode(t, `{"hour": 11, "doctor_id": null, "is_first_appointment": true}`))
	require.NoError(t, err)
	rec := attrs.Resolve()

	assert.Equal(t, 11, rec.Hour)
	assert.Equal(t, DefaultProviderID, rec.ProviderID)
	assert.True(t, rec.IsFirstAppointment)
	assert.Equal(t, DefaultPatientAge, rec.PatientAge)
}

func TestParseAttributesRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"string hour", `{"hour": "nine"}`},
		{"fractional hour", `{"hour": 9.5}`},
		{"object type", `{"appointment_type_id": {"id": 1}}`},
		{"list flag", `{"is_first_appointment": [1]}`},
		{"string complexity", `{"patient_complexity": "high"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAttributes(decode(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidAttribute)
		})
	}
}
