package models

import "errors"

var (
	// ErrEmptyMetadata indicates a model metadata artifact with no features.
	ErrEmptyMetadata = errors.New("model metadata has no feature names")
	// ErrMetadataLengthMismatch indicates feature names and scaler parameters
	// disagree in length.
	ErrMetadataLengthMismatch = errors.New("feature names and scaler parameters have different lengths")
)
