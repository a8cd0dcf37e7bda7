package inference

import (
	"fmt"

	"github.com/sigilum/chainrisk/internal/features"
	"github.com/sigilum/chainrisk/internal/models"
)

// degenerateScale is the floor below which a training feature is considered
// constant; such features pass through the scaler unchanged.
const degenerateScale = 1e-9

// Scaler applies the per-feature affine normalization fitted at training
// time. Stateless after construction.
type Scaler struct {
	mean  []float64
	scale []float64
}

func NewScaler(meta *models.ModelMetadata) *Scaler {
	return &Scaler{mean: meta.ScalerMean, scale: meta.ScalerScale}
}

// Apply normalizes vector in feature order. Fails only on a length mismatch.
func (s *Scaler) Apply(vector []float64) ([]float64, error) {
	if len(vector) != len(s.mean) {
		return nil, fmt.Errorf("feature vector has %d entries, scaler expects %d", len(vector), len(s.mean))
	}
	out := make([]float64, len(vector))
	for i, v := range vector {
		if s.scale[i] > degenerateScale {
			out[i] = (v - s.mean[i]) / s.scale[i]
		} else {
			out[i] = v
		}
	}
	return out, nil
}

// Vectorize projects a feature map onto the trained feature order. A name
// absent from the map reads as zero so the vector is always well formed.
func Vectorize(m features.FeatureMap, names []string) []float64 {
	vector := make([]float64, len(names))
	for i, name := range names {
		vector[i] = m[name]
	}
	return vector
}
