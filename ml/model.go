package ml

import "errors"

// ModelTypeGradientBoosting is the only registered regressor type.
const ModelTypeGradientBoosting = "gradient_boosting"

type Regressor interface {
	Train(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
	Save(path string) error
	Load(path string) error
}

func LoadModel(modelType, path string) (Regressor, error) {
	switch modelType {
	case ModelTypeGradientBoosting:
		model := &GradientBoosting{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, errors.New("unsupported model type " + modelType)
	}
}
