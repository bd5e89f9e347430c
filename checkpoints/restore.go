package checkpoints

import (
	"fmt"

	"github.com/jorenretel/selene/model"
	"github.com/jorenretel/selene/sequence"
)

// RestoreModel rebuilds a model from a checkpoint: the architecture is
// constructed from the recorded identifier and weight shapes, then the
// checkpoint weights are loaded into it. The result is a frozen snapshot
// suitable for inference.
func RestoreModel(checkpoint *Checkpoint) (model.Model, error) {
	switch checkpoint.Arch {
	case "Linear":
		var weightShape []int
		for _, w := range checkpoint.Weights {
			if w.Name == "linear.weight" {
				weightShape = w.Shape
				break
			}
		}
		if len(weightShape) != 2 {
			return nil, fmt.Errorf("checkpoint has no linear.weight tensor with a 2-dimensional shape")
		}
		numFeatures := weightShape[0]
		if weightShape[1]%sequence.AlphabetSize != 0 {
			return nil, fmt.Errorf("linear.weight input dimension %d is not a multiple of the alphabet size", weightShape[1])
		}
		sequenceLength := weightShape[1] / sequence.AlphabetSize

		m, err := model.NewLinear(sequenceLength, numFeatures)
		if err != nil {
			return nil, err
		}
		if err := LoadWeights(checkpoint.Weights, m.Parameters()); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("cannot restore unknown architecture %q", checkpoint.Arch)
	}
}
