package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const bceEpsilon = 1e-12

// BCELoss implements element-wise binary cross-entropy over a batch of
// per-feature probabilities, averaged over all elements.
type BCELoss struct{}

// NewBCELoss creates a binary cross-entropy loss.
func NewBCELoss() *BCELoss {
	return &BCELoss{}
}

// Forward computes the mean binary cross-entropy.
func (b *BCELoss) Forward(predicted, target *mat.Dense) (float64, error) {
	if err := checkSameDims(predicted, target); err != nil {
		return 0, err
	}

	rows, cols := predicted.Dims()
	var total float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			p := clampProb(predicted.At(i, j))
			t := target.At(i, j)
			total += -(t*math.Log(p) + (1-t)*math.Log(1-p))
		}
	}
	return total / float64(rows*cols), nil
}

// Backward returns dL/dp for the mean binary cross-entropy.
func (b *BCELoss) Backward(predicted, target *mat.Dense) (*mat.Dense, error) {
	if err := checkSameDims(predicted, target); err != nil {
		return nil, err
	}

	rows, cols := predicted.Dims()
	n := float64(rows * cols)
	grad := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			p := clampProb(predicted.At(i, j))
			t := target.At(i, j)
			grad.Set(i, j, (p-t)/(p*(1-p))/n)
		}
	}
	return grad, nil
}

// MSELoss implements mean squared error over all elements.
type MSELoss struct{}

// NewMSELoss creates a mean squared error loss.
func NewMSELoss() *MSELoss {
	return &MSELoss{}
}

// Forward computes the mean squared error.
func (m *MSELoss) Forward(predicted, target *mat.Dense) (float64, error) {
	if err := checkSameDims(predicted, target); err != nil {
		return 0, err
	}

	rows, cols := predicted.Dims()
	var total float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d := predicted.At(i, j) - target.At(i, j)
			total += d * d
		}
	}
	return total / float64(rows*cols), nil
}

// Backward returns dL/dp for the mean squared error.
func (m *MSELoss) Backward(predicted, target *mat.Dense) (*mat.Dense, error) {
	if err := checkSameDims(predicted, target); err != nil {
		return nil, err
	}

	rows, cols := predicted.Dims()
	n := float64(rows * cols)
	grad := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			grad.Set(i, j, 2*(predicted.At(i, j)-target.At(i, j))/n)
		}
	}
	return grad, nil
}

// NewLoss constructs a loss by name ("bce" or "mse").
func NewLoss(name string) (Loss, error) {
	switch name {
	case "bce", "":
		return NewBCELoss(), nil
	case "mse":
		return NewMSELoss(), nil
	default:
		return nil, fmt.Errorf("unknown loss function %q", name)
	}
}

func clampProb(p float64) float64 {
	if p < bceEpsilon {
		return bceEpsilon
	}
	if p > 1-bceEpsilon {
		return 1 - bceEpsilon
	}
	return p
}
