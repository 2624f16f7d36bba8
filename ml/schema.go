package ml

import (
	"errors"
	"math"
)

// Schema is the authoritative ordered feature list persisted at
// training time. Producers and consumers align against it explicitly:
// names absent from a feature map fill with 0, names the schema does
// not know are dropped. Order is load-bearing.
type Schema struct {
	Names []string `json:"names"`
}

func NewSchema(names []string) Schema {
	return Schema{Names: append([]string(nil), names...)}
}

// Reindex converts a named feature map into a vector in schema order.
func (s Schema) Reindex(features map[string]float64) []float64 {
	row := make([]float64, len(s.Names))
	for i, name := range s.Names {
		if v, ok := features[name]; ok && !math.IsNaN(v) {
			row[i] = v
		}
	}
	return row
}

// Validate rejects an empty or duplicated schema before it is persisted
// or used for inference.
func (s Schema) Validate() error {
	if len(s.Names) == 0 {
		return errors.New("schema has no feature names")
	}
	seen := make(map[string]bool, len(s.Names))
	for _, name := range s.Names {
		if name == "" {
			return errors.New("schema contains an empty feature name")
		}
		if seen[name] {
			return errors.New("schema contains duplicate feature name " + name)
		}
		seen[name] = true
	}
	return nil
}
