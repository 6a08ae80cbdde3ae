package predictor

// Feature names. The order of CandidateFeatures is the column order of the
// training matrix.
const (
	FeatureAppointmentType   = "appointment_type_encoded"
	FeatureProvider          = "provider_encoded"
	FeaturePatientAge        = "patient_age"
	FeatureDayOfWeek         = "day_of_week"
	FeatureHour              = "hour"
	FeatureIsMorning         = "is_morning"
	FeatureIsAfternoon       = "is_afternoon"
	FeatureIsMonday          = "is_monday"
	FeatureIsFriday          = "is_friday"
	FeatureFirstAppointment  = "is_first_appointment"
	FeaturePatientComplexity = "patient_complexity"
)

// Defaults substituted when a record lacks the field.
const (
	DefaultHour      = 9
	DefaultDayOfWeek = 0
)

// MinFeatures is the smallest feature set worth training on. Below it the
// pipeline trains on MinimalFeatures instead.
const MinFeatures = 3

var CandidateFeatures = []string{
	FeatureAppointmentType,
	FeatureProvider,
	FeaturePatientAge,
	FeatureDayOfWeek,
	FeatureHour,
	FeatureIsMorning,
	FeatureIsAfternoon,
	FeatureIsMonday,
	FeatureIsFriday,
	FeatureFirstAppointment,
	FeaturePatientComplexity,
}

var MinimalFeatures = []string{FeatureHour, FeatureDayOfWeek}

// featureColumn maps each feature to the dataset column it is derived from.
var featureColumn = map[string]string{
	FeatureAppointmentType:   ColumnAppointmentType,
	FeatureProvider:          ColumnProvider,
	FeaturePatientAge:        ColumnPatientAge,
	FeatureDayOfWeek:         ColumnDayOfWeek,
	FeatureHour:              ColumnHour,
	FeatureIsMorning:         ColumnHour,
	FeatureIsAfternoon:       ColumnHour,
	FeatureIsMonday:          ColumnDayOfWeek,
	FeatureIsFriday:          ColumnDayOfWeek,
	FeatureFirstAppointment:  ColumnFirstAppointment,
	FeaturePatientComplexity: ColumnPatientComplexity,
}

// FeatureVector is an ordered list of named numeric features.
type FeatureVector struct {
	Names  []string
	Values []float64
}

// Get returns the value of a named feature.
func (v FeatureVector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// AvailableFeatures filters CandidateFeatures down to those whose source
// column is present.
func AvailableFeatures(columns map[string]bool) []string {
	var out []string
	for _, f := range CandidateFeatures {
		if columns[featureColumn[f]] {
			out = append(out, f)
		}
	}
	return out
}

// Derive builds the feature vector for rec, containing exactly the features
// named in features and in that order. Names it does not know produce 0.
// Training and inference both go through Derive.
func Derive(rec Record, enc Encoders, features []string) (FeatureVector, error) {
	if err := rec.Validate(); err != nil {
		return FeatureVector{}, err
	}

	vec := FeatureVector{
		Names:  make([]string, len(features)),
		Values: make([]float64, len(features)),
	}
	for i, name := range features {
		vec.Names[i] = name
		vec.Values[i] = featureValue(rec, enc, name)
	}
	return vec, nil
}

func featureValue(rec Record, enc Encoders, name string) float64 {
	switch name {
	case FeatureHour:
		return float64(rec.Hour)
	case FeatureDayOfWeek:
		return float64(rec.DayOfWeek)
	case FeatureIsMorning:
		return flag(rec.Hour < 12)
	case FeatureIsAfternoon:
		return flag(rec.Hour >= 12 && rec.Hour < 17)
	case FeatureIsMonday:
		return flag(rec.DayOfWeek == 0)
	case FeatureIsFriday:
		return flag(rec.DayOfWeek == 4)
	case FeaturePatientAge:
		return float64(rec.PatientAge)
	case FeatureFirstAppointment:
		return flag(rec.IsFirstAppointment)
	case FeaturePatientComplexity:
		return float64(rec.PatientComplexity)
	case FeatureAppointmentType:
		return float64(enc.Encode(ColumnAppointmentType, rec.AppointmentType))
	case FeatureProvider:
		return float64(enc.Encode(ColumnProvider, rec.ProviderID))
	}
	return 0
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
