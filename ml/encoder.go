package ml

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
)

// UnknownCategory is the sentinel code for values unseen at fit time.
// Inference never re-fits the encoder: a fresh fit would produce a
// different code space, so unseen values fail closed to the sentinel.
const UnknownCategory = -1

// OrdinalEncoder maps each distinct value of its columns to a stable
// integer code. Codes are assigned over the sorted distinct values so
// fitting the same data always yields the same mapping.
type OrdinalEncoder struct {
	Columns []string         `json:"columns"`
	Codes   []map[string]int `json:"codes"`
}

// Fit learns the code tables. rows[i] holds one value per column.
func (e *OrdinalEncoder) Fit(columns []string, rows [][]string) error {
	if len(columns) == 0 {
		return errors.New("columns is empty")
	}
	if len(rows) == 0 {
		return errors.New("rows is empty")
	}

	distinct := make([]map[string]bool, len(columns))
	for i := range distinct {
		distinct[i] = make(map[string]bool)
	}
	for _, row := range rows {
		if len(row) != len(columns) {
			return errors.New("row width does not match columns")
		}
		for i, value := range row {
			distinct[i][value] = true
		}
	}

	e.Columns = append([]string(nil), columns...)
	e.Codes = make([]map[string]int, len(columns))
	for i, values := range distinct {
		sorted := make([]string, 0, len(values))
		for value := range values {
			sorted = append(sorted, value)
		}
		sort.Strings(sorted)
		codes := make(map[string]int, len(sorted))
		for code, value := range sorted {
			codes[value] = code
		}
		e.Codes[i] = codes
	}
	return nil
}

// Transform encodes one row of column values. Unseen values get the
// UnknownCategory sentinel.
func (e *OrdinalEncoder) Transform(row []string) ([]float64, error) {
	if len(e.Codes) == 0 {
		return nil, errors.New("encoder not fitted")
	}
	if len(row) != len(e.Columns) {
		return nil, errors.New("row width does not match columns")
	}
	encoded := make([]float64, len(row))
	for i, value := range row {
		code, ok := e.Codes[i][value]
		if !ok {
			code = UnknownCategory
		}
		encoded[i] = float64(code)
	}
	return encoded, nil
}

// Categories returns the sorted known values of one column.
func (e *OrdinalEncoder) Categories(column string) []string {
	for i, name := range e.Columns {
		if name != column {
			continue
		}
		values := make([]string, 0, len(e.Codes[i]))
		for value := range e.Codes[i] {
			values = append(values, value)
		}
		sort.Strings(values)
		return values
	}
	return nil
}

func (e *OrdinalEncoder) Save(path string) error {
	if len(e.Codes) == 0 {
		return errors.New("encoder not fitted")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (e *OrdinalEncoder) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded OrdinalEncoder
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return err
	}
	*e = loaded
	return nil
}
