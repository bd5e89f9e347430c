package training

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultMinPositives is the minimum number of positive targets a feature
// needs before its ranking metrics are computed.
const DefaultMinPositives = 10

// PerformanceMetrics computes per-feature ranking metrics (ROC AUC and
// average precision) over evaluation predictions. Features with too few
// positive targets are skipped and reported as NaN.
type PerformanceMetrics struct {
	featureNames []string
	minPositives int

	// Most recent per-feature scores, by metric name.
	featureScores map[string][]float64
}

// NewPerformanceMetrics creates a metric tracker over the given features.
func NewPerformanceMetrics(featureNames []string, minPositives int) *PerformanceMetrics {
	if minPositives <= 0 {
		minPositives = DefaultMinPositives
	}
	return &PerformanceMetrics{
		featureNames:  featureNames,
		minPositives:  minPositives,
		featureScores: make(map[string][]float64),
	}
}

// Update computes per-feature scores for one evaluation pass and returns
// the cross-feature averages, keyed by metric name.
func (pm *PerformanceMetrics) Update(targets, predictions *mat.Dense) (map[string]float64, error) {
	tr, tc := targets.Dims()
	pr, pc := predictions.Dims()
	if tr != pr || tc != pc {
		return nil, fmt.Errorf("target shape [%d %d] does not match prediction shape [%d %d]",
			tr, tc, pr, pc)
	}
	if tc != len(pm.featureNames) {
		return nil, fmt.Errorf("matrix has %d features, metrics expect %d", tc, len(pm.featureNames))
	}

	rocAUCs := make([]float64, tc)
	avgPrecs := make([]float64, tc)
	for j := 0; j < tc; j++ {
		scores := make([]float64, tr)
		labels := make([]bool, tr)
		positives := 0
		for i := 0; i < tr; i++ {
			scores[i] = predictions.At(i, j)
			labels[i] = targets.At(i, j) > 0.5
			if labels[i] {
				positives++
			}
		}
		if positives < pm.minPositives || positives == tr {
			rocAUCs[j] = math.NaN()
			avgPrecs[j] = math.NaN()
			continue
		}
		rocAUCs[j] = rocAUC(scores, labels)
		avgPrecs[j] = averagePrecision(scores, labels)
	}

	pm.featureScores["roc_auc"] = rocAUCs
	pm.featureScores["average_precision"] = avgPrecs

	return map[string]float64{
		"roc_auc":           nanMean(rocAUCs),
		"average_precision": nanMean(avgPrecs),
	}, nil
}

// WriteFeatureScoresToFile writes the per-feature scores of the most
// recent Update as a tab-delimited report.
func (pm *PerformanceMetrics) WriteFeatureScoresToFile(path string) error {
	if len(pm.featureScores) == 0 {
		return fmt.Errorf("no scores recorded yet")
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create performance file %s: %w", path, err)
	}
	defer file.Close()

	metricNames := make([]string, 0, len(pm.featureScores))
	for name := range pm.featureScores {
		metricNames = append(metricNames, name)
	}
	sort.Strings(metricNames)

	w := bufio.NewWriter(file)
	header := append([]string{"class"}, metricNames...)
	if _, err := w.WriteString(strings.Join(header, "\t") + "\n"); err != nil {
		return fmt.Errorf("failed to write performance header: %w", err)
	}
	for i, feature := range pm.featureNames {
		fields := []string{feature}
		for _, metric := range metricNames {
			v := pm.featureScores[metric][i]
			if math.IsNaN(v) {
				fields = append(fields, "NA")
			} else {
				fields = append(fields, strconv.FormatFloat(v, 'f', 6, 64))
			}
		}
		if _, err := w.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return fmt.Errorf("failed to write performance row: %w", err)
		}
	}
	return w.Flush()
}

// rocAUC computes the area under the ROC curve for one feature.
func rocAUC(scores []float64, labels []bool) float64 {
	y := make([]float64, len(scores))
	copy(y, scores)
	classes := make([]bool, len(labels))
	copy(classes, labels)

	// stat.ROC requires scores in ascending order with classes aligned.
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return y[idx[a]] < y[idx[b]] })
	sorted := make([]float64, len(y))
	sortedClasses := make([]bool, len(classes))
	for i, id := range idx {
		sorted[i] = y[id]
		sortedClasses[i] = classes[id]
	}

	tpr, fpr, _ := stat.ROC(nil, sorted, sortedClasses, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// averagePrecision computes the area under the precision-recall curve
// using the step-wise interpolation over descending score order.
func averagePrecision(scores []float64, labels []bool) float64 {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	totalPositives := 0
	for _, l := range labels {
		if l {
			totalPositives++
		}
	}
	if totalPositives == 0 {
		return math.NaN()
	}

	var ap float64
	truePositives := 0
	for rank, id := range idx {
		if labels[id] {
			truePositives++
			precision := float64(truePositives) / float64(rank+1)
			ap += precision / float64(totalPositives)
		}
	}
	return ap
}

func nanMean(values []float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
