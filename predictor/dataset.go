package predictor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Dataset is a set of historical appointments. Columns records which source
// columns were actually present; features derived from absent columns are
// not trained on.
type Dataset struct {
	Records []Record
	Columns map[string]bool
}

// NewDataset wraps fully populated records, e.g. rows read from the history
// table.
func NewDataset(records []Record) Dataset {
	return Dataset{Records: records, Columns: allColumns()}
}

func allColumns() map[string]bool {
	return map[string]bool{
		ColumnAppointmentType:   true,
		ColumnProvider:          true,
		ColumnPatientAge:        true,
		ColumnDayOfWeek:         true,
		ColumnHour:              true,
		ColumnFirstAppointment:  true,
		ColumnPatientComplexity: true,
		ColumnActualDuration:    true,
	}
}

// Usable returns the records with a label inside [5, 120].
func (d Dataset) Usable() []Record {
	out := make([]Record, 0, len(d.Records))
	for _, r := range d.Records {
		if r.HasValidLabel() {
			out = append(out, r)
		}
	}
	return out
}

// Alternative sources for the hour and weekday columns, in priority order.
var (
	hourColumns = []string{ColumnHour, "start_time", "appointment_time"}
	dayColumns  = []string{ColumnDayOfWeek, "appointment_date"}
)

// LoadCSV reads a dataset with a header row. The hour may come from an
// "hour" column or an "HH:MM" start_time/appointment_time column, the weekday
// from day_of_week or an appointment_date. When neither is present the
// defaults (9:00, Monday) are used. Rows whose label is empty or not a
// number are kept with no label and are dropped by Usable.
func LoadCSV(r io.Reader) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Dataset{}, errors.New("csv: empty input")
		}
		return Dataset{}, fmt.Errorf("csv: read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := pos[ColumnActualDuration]; !ok {
		return Dataset{}, fmt.Errorf("csv: missing %s column", ColumnActualDuration)
	}

	ds := Dataset{Columns: map[string]bool{ColumnHour: true, ColumnDayOfWeek: true}}
	for _, col := range []string{ColumnAppointmentType, ColumnProvider, ColumnPatientAge, ColumnFirstAppointment, ColumnPatientComplexity, ColumnActualDuration} {
		if _, ok := pos[col]; ok {
			ds.Columns[col] = true
		}
	}
	hourCol := firstPresent(pos, hourColumns)
	dayCol := firstPresent(pos, dayColumns)

	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return Dataset{}, fmt.Errorf("csv: line %d: %w", line, err)
		}
		rec, err := parseRow(row, pos, hourCol, dayCol)
		if err != nil {
			return Dataset{}, fmt.Errorf("csv: line %d: %w", line, err)
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

func firstPresent(pos map[string]int, candidates []string) string {
	for _, c := range candidates {
		if _, ok := pos[c]; ok {
			return c
		}
	}
	return ""
}

func parseRow(row []string, pos map[string]int, hourCol, dayCol string) (Record, error) {
	cell := func(col string) string {
		i, ok := pos[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := Record{
		AppointmentType: cell(ColumnAppointmentType),
		ProviderID:      cell(ColumnProvider),
		Hour:            DefaultHour,
		DayOfWeek:       DefaultDayOfWeek,
	}

	var err error
	if rec.PatientAge, err = parseIntCell(cell(ColumnPatientAge)); err != nil {
		return Record{}, fmt.Errorf("%s: %w", ColumnPatientAge, err)
	}
	if rec.PatientComplexity, err = parseIntCell(cell(ColumnPatientComplexity)); err != nil {
		return Record{}, fmt.Errorf("%s: %w", ColumnPatientComplexity, err)
	}
	first, err := parseIntCell(cell(ColumnFirstAppointment))
	if err != nil {
		b, berr := strconv.ParseBool(cell(ColumnFirstAppointment))
		if berr != nil {
			return Record{}, fmt.Errorf("%s: %w", ColumnFirstAppointment, err)
		}
		first = int(flag(b))
	}
	rec.IsFirstAppointment = first != 0

	switch hourCol {
	case ColumnHour:
		if rec.Hour, err = parseIntCell(cell(hourCol)); err != nil {
			return Record{}, fmt.Errorf("%s: %w", hourCol, err)
		}
	case "":
	default:
		if rec.Hour, err = parseClockHour(cell(hourCol)); err != nil {
			return Record{}, fmt.Errorf("%s: %w", hourCol, err)
		}
	}

	switch dayCol {
	case ColumnDayOfWeek:
		if rec.DayOfWeek, err = parseIntCell(cell(dayCol)); err != nil {
			return Record{}, fmt.Errorf("%s: %w", dayCol, err)
		}
	case "":
	default:
		if rec.DayOfWeek, err = parseDateWeekday(cell(dayCol)); err != nil {
			return Record{}, fmt.Errorf("%s: %w", dayCol, err)
		}
	}

	if label, err := strconv.ParseFloat(cell(ColumnActualDuration), 64); err == nil && !math.IsNaN(label) {
		rec.ActualDurationMinutes = &label
	}
	return rec, nil
}

// parseIntCell accepts integers, integral floats ("3.0") and empty cells
// (treated as 0).
func parseIntCell(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

func parseClockHour(s string) (int, error) {
	if s == "" {
		return DefaultHour, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), nil
		}
	}
	return 0, fmt.Errorf("not a HH:MM time: %q", s)
}

// parseDateWeekday returns the weekday with Monday as 0.
func parseDateWeekday(s string) (int, error) {
	if s == "" {
		return DefaultDayOfWeek, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return (int(t.Weekday()) + 6) % 7, nil
		}
	}
	return 0, fmt.Errorf("not a date: %q", s)
}
