package risk

import (
	"math"

	"github.com/sigilum/chainrisk/internal/models"
)

// thresholdEpsilon floors the confidence denominators so a threshold at
// either end of [0, 1] cannot divide by zero.
const thresholdEpsilon = 1e-9

// Confidence band cutoffs on the normalized distance from the threshold.
const (
	highBandCutoff   = 0.66
	mediumBandCutoff = 0.33
)

// Assess turns a raw model probability into the final verdict. Confidence is
// the distance from the deployment threshold normalized toward the nearer
// bound, so a probability just past the threshold scores near zero and one
// at the bound scores near one.
func Assess(address string, chain models.ChainType, probability, threshold float64, transactionsAnalyzed uint32, dataSource string) *models.RiskAssessmentResult {
	verdict := probability >= threshold

	var confidence float64
	if verdict {
		confidence = (probability - threshold) / math.Max(1-threshold, thresholdEpsilon)
	} else {
		confidence = (threshold - probability) / math.Max(threshold, thresholdEpsilon)
	}

	band := models.BandLow
	switch {
	case confidence > highBandCutoff:
		band = models.BandHigh
	case confidence > mediumBandCutoff:
		band = models.BandMedium
	}

	return &models.RiskAssessmentResult{
		Address:              address,
		ChainType:            chain,
		Probability:          probability,
		Verdict:              verdict,
		ConfidenceBand:       band,
		ConfidenceScore:      confidence,
		ThresholdUsed:        threshold,
		TransactionsAnalyzed: transactionsAnalyzed,
		DataSource:           dataSource,
	}
}

// Inconclusive is the answer when no usable transfer history exists or a
// feature evaluated to a non-finite number. It is a valid result, not an
// error: the probability is an explicit zero and the verdict is negative.
func Inconclusive(address string, chain models.ChainType, threshold float64, transactionsAnalyzed uint32, dataSource string) *models.RiskAssessmentResult {
	return &models.RiskAssessmentResult{
		Address:              address,
		ChainType:            chain,
		Probability:          0.0,
		Verdict:              false,
		ConfidenceBand:       models.BandInconclusive,
		ConfidenceScore:      0.0,
		ThresholdUsed:        threshold,
		TransactionsAnalyzed: transactionsAnalyzed,
		DataSource:           dataSource,
	}
}
