package inference

import (
	"encoding/json"
	"fmt"

	"github.com/sigilum/chainrisk/internal/models"
)

// ParseMetadata decodes a model metadata artifact and checks its invariants
// before the metadata is handed to an engine. The feature list, the fitted
// scaler parameters, and the deployment threshold all come from the offline
// training run; a metadata artifact that fails here cannot drive inference.
func ParseMetadata(data []byte) (*models.ModelMetadata, error) {
	var meta models.ModelMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse model metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if meta.DeploymentThreshold <= 0 || meta.DeploymentThreshold >= 1 {
		return nil, fmt.Errorf("deployment threshold %.4f outside (0, 1)", meta.DeploymentThreshold)
	}
	return &meta, nil
}
