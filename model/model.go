package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Parameter is a named, flat model parameter tensor with its accumulated
// gradient. Optimizers update Value in place; Backward accumulates into
// Grad until ZeroGrad is called.
type Parameter struct {
	Name  string
	Shape []int
	Value []float64
	Grad  []float64
}

// NumElems returns the number of elements implied by the parameter shape.
func (p *Parameter) NumElems() int {
	n := 1
	for _, dim := range p.Shape {
		n *= dim
	}
	return n
}

// Model is the trainable-model contract: a differentiable function from a
// batch of one-hot sequence encodings to a batch-by-feature prediction
// matrix. Forward caches whatever Backward needs; Backward accumulates
// parameter gradients for the most recent Forward call.
type Model interface {
	// Forward runs the model over a batch of L-by-4 encodings and returns
	// a B-by-F prediction matrix.
	Forward(batch []*mat.Dense) (*mat.Dense, error)

	// Backward propagates the loss gradient with respect to the last
	// Forward output into the parameter gradients.
	Backward(gradOutput *mat.Dense) error

	// Parameters returns the model parameters in a stable order.
	Parameters() []*Parameter

	// ZeroGrad clears all accumulated parameter gradients.
	ZeroGrad()

	// Arch returns the architecture identifier recorded in checkpoints.
	Arch() string
}

// Loss scores a prediction matrix against a target matrix and provides the
// gradient of the loss with respect to the predictions.
type Loss interface {
	Forward(predicted, target *mat.Dense) (float64, error)
	Backward(predicted, target *mat.Dense) (*mat.Dense, error)
}

// New constructs a model by architecture identifier. It is used when
// rebuilding a model from a checkpoint.
func New(arch string, sequenceLength, numFeatures int) (Model, error) {
	switch arch {
	case "Linear":
		return NewLinear(sequenceLength, numFeatures)
	default:
		return nil, fmt.Errorf("unknown model architecture %q", arch)
	}
}

func checkSameDims(predicted, target *mat.Dense) error {
	pr, pc := predicted.Dims()
	tr, tc := target.Dims()
	if pr != tr || pc != tc {
		return fmt.Errorf("prediction shape [%d %d] does not match target shape [%d %d]",
			pr, pc, tr, tc)
	}
	return nil
}
