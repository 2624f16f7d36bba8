package ml

import (
	"encoding/json"
	"errors"
	"os"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers every column to zero mean and unit variance.
// Constant columns keep a stored std of 1 so transforming them is a
// no-op instead of a division by zero.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return errors.New("feature matrix is empty")
	}
	width := len(X[0])
	column := make([]float64, len(X))
	s.Mean = make([]float64, width)
	s.Std = make([]float64, width)
	for j := 0; j < width; j++ {
		for i, row := range X {
			if len(row) != width {
				return errors.New("ragged feature matrix")
			}
			column[i] = row[j]
		}
		s.Mean[j] = stat.Mean(column, nil)
		std := stat.PopStdDev(column, nil)
		if std == 0 {
			std = 1
		}
		s.Std[j] = std
	}
	return nil
}

func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	scaled := make([][]float64, len(X))
	for i, row := range X {
		transformed, err := s.TransformRow(row)
		if err != nil {
			return nil, err
		}
		scaled[i] = transformed
	}
	return scaled, nil
}

func (s *StandardScaler) TransformRow(row []float64) ([]float64, error) {
	if len(s.Mean) == 0 {
		return nil, errors.New("scaler not fitted")
	}
	if len(row) != len(s.Mean) {
		return nil, errors.New("row width does not match fitted scaler")
	}
	scaled := make([]float64, len(row))
	for j, v := range row {
		scaled[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return scaled, nil
}

func (s *StandardScaler) Save(path string) error {
	if len(s.Mean) == 0 {
		return errors.New("scaler not fitted")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (s *StandardScaler) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded StandardScaler
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return err
	}
	*s = loaded
	return nil
}
