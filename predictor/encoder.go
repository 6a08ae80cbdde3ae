package predictor

import (
	"encoding/json"
	"fmt"
	"sort"
)

// UnseenCode is the code assigned to values that were not observed when the
// table was fitted. Observed values are numbered from 1.
const UnseenCode = 0

// Encoder maps the values of one categorical column to stable integer codes.
// An Encoder is immutable after construction and safe for concurrent use.
type Encoder struct {
	classes []string
	index   map[string]int
}

// FitEncoder builds the table for a column. Distinct values are ordered
// lexicographically, so fitting the same values in any order yields the same
// codes.
func FitEncoder(values []string) *Encoder {
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return newEncoder(classes)
}

func newEncoder(classes []string) *Encoder {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i + 1
	}
	return &Encoder{classes: classes, index: index}
}

// Encode returns the code for value, or UnseenCode when the value is unknown.
func (e *Encoder) Encode(value string) int {
	if e == nil {
		return UnseenCode
	}
	code, ok := e.index[value]
	if !ok {
		return UnseenCode
	}
	return code
}

// Decode is the inverse of Encode for observed values.
func (e *Encoder) Decode(code int) (string, bool) {
	if e == nil || code < 1 || code > len(e.classes) {
		return "", false
	}
	return e.classes[code-1], true
}

// Len returns the number of observed values.
func (e *Encoder) Len() int {
	if e == nil {
		return 0
	}
	return len(e.classes)
}

// Classes returns a copy of the observed values in code order.
func (e *Encoder) Classes() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}

type encoderJSON struct {
	Classes []string `json:"classes"`
}

func (e *Encoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(encoderJSON{Classes: e.classes})
}

func (e *Encoder) UnmarshalJSON(data []byte) error {
	var raw encoderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for i := 1; i < len(raw.Classes); i++ {
		if raw.Classes[i-1] >= raw.Classes[i] {
			return fmt.Errorf("encoder classes not strictly sorted at %d (%q, %q)", i, raw.Classes[i-1], raw.Classes[i])
		}
	}
	*e = *newEncoder(raw.Classes)
	return nil
}

// Encoders holds one table per categorical column.
type Encoders map[string]*Encoder

// FitEncoders fits a table for every categorical column present in columns.
func FitEncoders(records []Record, columns map[string]bool) Encoders {
	out := make(Encoders)
	for _, col := range CategoricalColumns() {
		if !columns[col] {
			continue
		}
		values := make([]string, len(records))
		for i, r := range records {
			values[i] = r.categorical(col)
		}
		out[col] = FitEncoder(values)
	}
	return out
}

// Encode looks up value in the column's table. A missing table behaves like
// an empty one.
func (e Encoders) Encode(column, value string) int {
	return e[column].Encode(value)
}
