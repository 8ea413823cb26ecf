package evaluation

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// HoldoutMetrics summarizes predictions for held-out records with known
// binary outcomes.
type HoldoutMetrics struct {
	NumSamples int `json:"num_samples"`
	// RMSE is the root mean squared error of the predicted probabilities.
	RMSE float64 `json:"rmse"`
	// Baseline is sqrt(p(1-p)) for the held-out positive rate p: the RMSE of
	// always predicting p.
	Baseline       float64   `json:"baseline"`
	PositiveRate   float64   `json:"positive_rate"`
	MeanPrediction float64   `json:"mean_prediction"`
	Distinct       []float64 `json:"distinct_predictions"`

	// Threshold classification at Cutoff.
	Cutoff          float64   `json:"cutoff"`
	Accuracy        float64   `json:"accuracy"`
	Precision       float64   `json:"precision"`
	Recall          float64   `json:"recall"`
	F1Score         float64   `json:"f1_score"`
	ConfusionMatrix [2][2]int `json:"confusion_matrix"`
}

// CalculateMetrics compares predicted probabilities with 0/1 outcomes.
// Predictions at or above cutoff count as positive.
func CalculateMetrics(yTrue, yPred []float64, cutoff float64) (*HoldoutMetrics, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("outcomes and predictions have different lengths: %d vs %d", len(yTrue), len(yPred))
	}
	m := &HoldoutMetrics{NumSamples: len(yTrue), Cutoff: cutoff}
	if len(yTrue) == 0 {
		return m, nil
	}

	var sqErr, positives, sumPred float64
	for i, t := range yTrue {
		d := yPred[i] - t
		sqErr += d * d
		positives += t
		sumPred += yPred[i]

		actual := 0
		if t >= 0.5 {
			actual = 1
		}
		predicted := 0
		if yPred[i] >= cutoff {
			predicted = 1
		}
		m.ConfusionMatrix[actual][predicted]++
	}
	n := float64(len(yTrue))
	m.RMSE = math.Sqrt(sqErr / n)
	m.PositiveRate = positives / n
	m.Baseline = math.Sqrt(m.PositiveRate * (1 - m.PositiveRate))
	m.MeanPrediction = sumPred / n

	m.Distinct = slices.Clone(yPred)
	slices.Sort(m.Distinct)
	m.Distinct = slices.Compact(m.Distinct)

	tp := float64(m.ConfusionMatrix[1][1])
	fp := float64(m.ConfusionMatrix[0][1])
	fn := float64(m.ConfusionMatrix[1][0])
	tn := float64(m.ConfusionMatrix[0][0])
	m.Accuracy = safeDivide(tp+tn, n)
	m.Precision = safeDivide(tp, tp+fp)
	m.Recall = safeDivide(tp, tp+fn)
	m.F1Score = safeDivide(2*m.Precision*m.Recall, m.Precision+m.Recall)
	return m, nil
}

// Improvement is how much lower the RMSE is than the baseline, as a
// fraction of the baseline.
func (m *HoldoutMetrics) Improvement() float64 {
	return safeDivide(m.Baseline-m.RMSE, m.Baseline)
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0.0
	}
	result := numerator / denominator
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0.0
	}
	return result
}

func round(f float64, places int32) string {
	return decimal.NewFromFloat(f).Round(places).String()
}

func (m *HoldoutMetrics) FormatMetrics() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Samples: %d\n", m.NumSamples)
	fmt.Fprintf(&b, "RMSE: %s (baseline %s, improvement %s%%)\n",
		round(m.RMSE, 4), round(m.Baseline, 4), round(100*m.Improvement(), 2))
	fmt.Fprintf(&b, "Positive rate: %s, mean prediction: %s\n",
		round(m.PositiveRate, 4), round(m.MeanPrediction, 4))
	fmt.Fprintf(&b, "At cutoff %s - Accuracy: %s, Precision: %s, Recall: %s, F1: %s\n",
		round(m.Cutoff, 2), round(m.Accuracy, 4), round(m.Precision, 4), round(m.Recall, 4), round(m.F1Score, 4))

	distinct := make([]string, len(m.Distinct))
	for i, d := range m.Distinct {
		distinct[i] = round(d, 4)
	}
	fmt.Fprintf(&b, "Distinct predictions (%d): [%s]\n", len(distinct), strings.Join(distinct, " "))
	return b.String()
}
