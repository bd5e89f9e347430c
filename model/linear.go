package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/jorenretel/selene/sequence"
)

// Linear is a single dense layer with a sigmoid output, mapping a flattened
// one-hot sequence encoding to per-feature probabilities. It exists to
// exercise the training and inference contracts; real deployments provide
// their own Model implementation.
type Linear struct {
	sequenceLength int
	numFeatures    int
	inFeatures     int

	weight *Parameter // [numFeatures, inFeatures]
	bias   *Parameter // [numFeatures]

	// Cached activations from the most recent Forward, consumed by Backward.
	lastInput  *mat.Dense
	lastOutput *mat.Dense
}

// NewLinear creates a Linear model for the given window length and feature
// count, with small random initial weights.
func NewLinear(sequenceLength, numFeatures int) (*Linear, error) {
	if sequenceLength <= 0 || numFeatures <= 0 {
		return nil, fmt.Errorf("invalid linear model dimensions: sequence length %d, features %d",
			sequenceLength, numFeatures)
	}

	inFeatures := sequenceLength * sequence.AlphabetSize
	scale := 1.0 / math.Sqrt(float64(inFeatures))

	weight := &Parameter{
		Name:  "linear.weight",
		Shape: []int{numFeatures, inFeatures},
		Value: make([]float64, numFeatures*inFeatures),
		Grad:  make([]float64, numFeatures*inFeatures),
	}
	for i := range weight.Value {
		weight.Value[i] = (rand.Float64()*2 - 1) * scale
	}

	bias := &Parameter{
		Name:  "linear.bias",
		Shape: []int{numFeatures},
		Value: make([]float64, numFeatures),
		Grad:  make([]float64, numFeatures),
	}

	return &Linear{
		sequenceLength: sequenceLength,
		numFeatures:    numFeatures,
		inFeatures:     inFeatures,
		weight:         weight,
		bias:           bias,
	}, nil
}

// Arch returns the architecture identifier.
func (l *Linear) Arch() string {
	return "Linear"
}

// SequenceLength returns the input window length the model was built for.
func (l *Linear) SequenceLength() int {
	return l.sequenceLength
}

// NumFeatures returns the model output feature count.
func (l *Linear) NumFeatures() int {
	return l.numFeatures
}

// Forward computes sigmoid(x W^T + b) for a batch of encodings.
func (l *Linear) Forward(batch []*mat.Dense) (*mat.Dense, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	input := mat.NewDense(len(batch), l.inFeatures, nil)
	for i, enc := range batch {
		rows, cols := enc.Dims()
		if rows*cols != l.inFeatures {
			return nil, fmt.Errorf("encoding %d has shape [%d %d], model expects %d inputs",
				i, rows, cols, l.inFeatures)
		}
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				input.Set(i, r*cols+c, enc.At(r, c))
			}
		}
	}

	weightMat := mat.NewDense(l.numFeatures, l.inFeatures, l.weight.Value)
	output := mat.NewDense(len(batch), l.numFeatures, nil)
	output.Mul(input, weightMat.T())

	for i := 0; i < len(batch); i++ {
		for j := 0; j < l.numFeatures; j++ {
			z := output.At(i, j) + l.bias.Value[j]
			output.Set(i, j, 1.0/(1.0+math.Exp(-z)))
		}
	}

	l.lastInput = input
	l.lastOutput = output
	return output, nil
}

// Backward accumulates parameter gradients given the loss gradient with
// respect to the last Forward output.
func (l *Linear) Backward(gradOutput *mat.Dense) error {
	if l.lastInput == nil || l.lastOutput == nil {
		return fmt.Errorf("backward called before forward")
	}
	if err := checkSameDims(gradOutput, l.lastOutput); err != nil {
		return fmt.Errorf("gradient shape mismatch: %w", err)
	}

	batchSize, _ := gradOutput.Dims()

	// Gradient through the sigmoid: dz = dL/dy * y * (1 - y).
	gradZ := mat.NewDense(batchSize, l.numFeatures, nil)
	for i := 0; i < batchSize; i++ {
		for j := 0; j < l.numFeatures; j++ {
			y := l.lastOutput.At(i, j)
			gradZ.Set(i, j, gradOutput.At(i, j)*y*(1-y))
		}
	}

	gradWeight := mat.NewDense(l.numFeatures, l.inFeatures, nil)
	gradWeight.Mul(gradZ.T(), l.lastInput)
	for i := 0; i < len(l.weight.Grad); i++ {
		l.weight.Grad[i] += gradWeight.RawMatrix().Data[i]
	}

	for j := 0; j < l.numFeatures; j++ {
		var sum float64
		for i := 0; i < batchSize; i++ {
			sum += gradZ.At(i, j)
		}
		l.bias.Grad[j] += sum
	}

	return nil
}

// Parameters returns the weight and bias parameters.
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// ZeroGrad clears accumulated gradients.
func (l *Linear) ZeroGrad() {
	for _, p := range l.Parameters() {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}
