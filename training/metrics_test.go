package training

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestUpdatePerfectRanking(t *testing.T) {
	pm := NewPerformanceMetrics([]string{"f1"}, 2)

	// Predictions rank every positive above every negative.
	targets := mat.NewDense(6, 1, []float64{1, 1, 1, 0, 0, 0})
	preds := mat.NewDense(6, 1, []float64{0.9, 0.8, 0.7, 0.3, 0.2, 0.1})

	scores, err := pm.Update(targets, preds)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if math.Abs(scores["roc_auc"]-1.0) > 1e-9 {
		t.Errorf("expected ROC AUC 1.0 for a perfect ranking, got %f", scores["roc_auc"])
	}
	if math.Abs(scores["average_precision"]-1.0) > 1e-9 {
		t.Errorf("expected average precision 1.0, got %f", scores["average_precision"])
	}
}

func TestUpdateInvertedRanking(t *testing.T) {
	pm := NewPerformanceMetrics([]string{"f1"}, 2)

	targets := mat.NewDense(6, 1, []float64{1, 1, 1, 0, 0, 0})
	preds := mat.NewDense(6, 1, []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9})

	scores, err := pm.Update(targets, preds)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(scores["roc_auc"]) > 1e-9 {
		t.Errorf("expected ROC AUC 0 for an inverted ranking, got %f", scores["roc_auc"])
	}
}

func TestUpdateAveragePrecision(t *testing.T) {
	pm := NewPerformanceMetrics([]string{"f1"}, 1)

	// Descending score order interleaves positives at ranks 1 and 3:
	// AP = (1/1 + 2/3) / 2 = 5/6.
	targets := mat.NewDense(4, 1, []float64{1, 0, 1, 0})
	preds := mat.NewDense(4, 1, []float64{0.9, 0.8, 0.7, 0.6})

	scores, err := pm.Update(targets, preds)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(scores["average_precision"]-5.0/6.0) > 1e-9 {
		t.Errorf("expected average precision 5/6, got %f", scores["average_precision"])
	}
}

func TestUpdateSkipsSparseFeatures(t *testing.T) {
	pm := NewPerformanceMetrics([]string{"dense", "sparse"}, 3)

	targets := mat.NewDense(6, 2, []float64{
		1, 1,
		1, 0,
		1, 0,
		0, 0,
		0, 0,
		0, 0,
	})
	preds := mat.NewDense(6, 2, []float64{
		0.9, 0.9,
		0.8, 0.2,
		0.7, 0.2,
		0.3, 0.2,
		0.2, 0.2,
		0.1, 0.2,
	})

	scores, err := pm.Update(targets, preds)
	if err != nil {
		t.Fatal(err)
	}

	// The sparse feature has one positive, below the minimum of three, so
	// the average covers only the dense feature.
	if math.Abs(scores["roc_auc"]-1.0) > 1e-9 {
		t.Errorf("expected the sparse feature to be excluded, got average %f", scores["roc_auc"])
	}
	if !math.IsNaN(pm.featureScores["roc_auc"][1]) {
		t.Error("sparse feature should score NaN")
	}
}

func TestUpdateAllPositivesScoresNaN(t *testing.T) {
	pm := NewPerformanceMetrics([]string{"f1"}, 2)

	targets := mat.NewDense(4, 1, []float64{1, 1, 1, 1})
	preds := mat.NewDense(4, 1, []float64{0.9, 0.8, 0.7, 0.6})

	scores, err := pm.Update(targets, preds)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(scores["roc_auc"]) {
		t.Errorf("expected NaN when no negatives exist, got %f", scores["roc_auc"])
	}
}

func TestUpdateShapeMismatch(t *testing.T) {
	pm := NewPerformanceMetrics([]string{"f1"}, 2)
	targets := mat.NewDense(4, 1, nil)
	preds := mat.NewDense(3, 1, nil)
	if _, err := pm.Update(targets, preds); err == nil {
		t.Error("expected error for mismatched shapes")
	}

	wide := mat.NewDense(4, 2, nil)
	if _, err := pm.Update(wide, wide); err == nil {
		t.Error("expected error for feature count mismatch")
	}
}

func TestWriteFeatureScoresToFile(t *testing.T) {
	pm := NewPerformanceMetrics([]string{"dense", "sparse"}, 3)

	targets := mat.NewDense(6, 2, []float64{
		1, 0,
		1, 0,
		1, 0,
		0, 0,
		0, 0,
		0, 1,
	})
	preds := mat.NewDense(6, 2, []float64{
		0.9, 0.5,
		0.8, 0.5,
		0.7, 0.5,
		0.3, 0.5,
		0.2, 0.5,
		0.1, 0.5,
	})
	if _, err := pm.Update(targets, preds); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "performance.txt")
	if err := pm.WriteFeatureScoresToFile(path); err != nil {
		t.Fatalf("WriteFeatureScoresToFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 feature rows, got %d lines", len(lines))
	}
	if lines[0] != "class\taverage_precision\troc_auc" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	sparseFields := strings.Split(lines[2], "\t")
	if sparseFields[0] != "sparse" || sparseFields[1] != "NA" || sparseFields[2] != "NA" {
		t.Errorf("sparse feature should report NA scores: %q", lines[2])
	}
}

func TestWriteFeatureScoresBeforeUpdate(t *testing.T) {
	pm := NewPerformanceMetrics([]string{"f1"}, 2)
	if err := pm.WriteFeatureScoresToFile(filepath.Join(t.TempDir(), "performance.txt")); err == nil {
		t.Error("expected error before any Update")
	}
}
