package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Artifact file names inside a generation directory. The CURRENT
// pointer file names the generation in force; replacing it is the
// atomic step that makes a new generation visible, so a reader never
// sees a model paired with a mismatched scaler, encoder or feature
// order.
const (
	currentPointer = "CURRENT"
	modelFile      = "model.json"
	scalerFile     = "scaler.json"
	encoderFile    = "encoder.json"
	metadataFile   = "metadata.json"
)

// ErrNoArtifacts reports that no trained generation exists yet.
var ErrNoArtifacts = errors.New("no model artifacts available")

// Metadata describes one trained generation.
type Metadata struct {
	Features        []string  `json:"features"`
	ModelType       string    `json:"model_type"`
	AvgR2           float64   `json:"avg_r2"`
	AvgMAE          float64   `json:"avg_mae"`
	TrainingSamples int       `json:"training_samples"`
	HorizonDays     int       `json:"horizon_days"`
	TrainedDate     time.Time `json:"trained_date"`
}

// Artifacts is one immutable generation: regressor, scaler, encoder and
// metadata, always produced and swapped together.
type Artifacts struct {
	Model      Regressor
	Scaler     *StandardScaler
	Encoder    *OrdinalEncoder
	Metadata   Metadata
	Generation string
}

func (a *Artifacts) Schema() Schema {
	return NewSchema(a.Metadata.Features)
}

// SaveArtifacts writes a new generation directory under dir and then
// swaps the CURRENT pointer to it with a rename. If any write fails the
// pointer is untouched and the previous generation stays in force.
func SaveArtifacts(dir string, a *Artifacts) (string, error) {
	schema := a.Schema()
	if err := schema.Validate(); err != nil {
		return "", err
	}

	generation := "gen-" + time.Now().UTC().Format("20060102T150405.000000000Z")
	genDir := filepath.Join(dir, generation)
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return "", err
	}

	if err := a.Model.Save(filepath.Join(genDir, modelFile)); err != nil {
		return "", fmt.Errorf("save model: %w", err)
	}
	if err := a.Scaler.Save(filepath.Join(genDir, scalerFile)); err != nil {
		return "", fmt.Errorf("save scaler: %w", err)
	}
	if err := a.Encoder.Save(filepath.Join(genDir, encoderFile)); err != nil {
		return "", fmt.Errorf("save encoder: %w", err)
	}
	payload, err := json.MarshalIndent(a.Metadata, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(genDir, metadataFile), payload, 0o600); err != nil {
		return "", fmt.Errorf("save metadata: %w", err)
	}

	pointer := filepath.Join(dir, currentPointer)
	tmp := pointer + ".tmp"
	if err := os.WriteFile(tmp, []byte(generation+"\n"), 0o600); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, pointer); err != nil {
		os.Remove(tmp)
		return "", err
	}
	a.Generation = generation
	return generation, nil
}

// LoadArtifacts reads the generation the CURRENT pointer names.
func LoadArtifacts(dir string) (*Artifacts, error) {
	raw, err := os.ReadFile(filepath.Join(dir, currentPointer))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoArtifacts
		}
		return nil, err
	}
	generation := strings.TrimSpace(string(raw))
	if generation == "" {
		return nil, ErrNoArtifacts
	}
	genDir := filepath.Join(dir, generation)

	payload, err := os.ReadFile(filepath.Join(genDir, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	var metadata Metadata
	if err := json.Unmarshal(payload, &metadata); err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	if err := NewSchema(metadata.Features).Validate(); err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	model, err := LoadModel(metadata.ModelType, filepath.Join(genDir, modelFile))
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	scaler := &StandardScaler{}
	if err := scaler.Load(filepath.Join(genDir, scalerFile)); err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	encoder := &OrdinalEncoder{}
	if err := encoder.Load(filepath.Join(genDir, encoderFile)); err != nil {
		return nil, fmt.Errorf("load encoder: %w", err)
	}

	return &Artifacts{
		Model:      model,
		Scaler:     scaler,
		Encoder:    encoder,
		Metadata:   metadata,
		Generation: generation,
	}, nil
}

// CurrentPointerPath is the file whose replacement signals a new
// generation; the artifact watcher keys on it.
func CurrentPointerPath(dir string) string {
	return filepath.Join(dir, currentPointer)
}
