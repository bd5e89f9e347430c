package optimizer

import (
	"fmt"

	"github.com/jorenretel/selene/checkpoints"
	"github.com/jorenretel/selene/model"
)

// Optimizer is the common interface for all optimizers. It enables state
// save/restore for checkpoint functionality: a run resumed from a
// checkpoint reproduces the exact parameter updates an uninterrupted run
// would have made.
type Optimizer interface {
	// Step applies one optimization step to the parameters using their
	// accumulated gradients.
	Step(params []*model.Parameter) error

	// GetState extracts optimizer state for checkpointing.
	GetState() (*checkpoints.OptimizerState, error)

	// LoadState restores optimizer state from a checkpoint.
	LoadState(state *checkpoints.OptimizerState) error

	// GetStepCount returns the number of optimization steps taken.
	GetStepCount() uint64

	// LearningRate returns the current learning rate.
	LearningRate() float64

	// SetLearningRate updates the learning rate.
	SetLearningRate(lr float64)
}

// New constructs an optimizer by name ("sgd" or "adam") with the given
// hyperparameters. Unrecognized keys in args are rejected.
func New(name string, lr float64, args map[string]float64) (Optimizer, error) {
	switch name {
	case "sgd", "":
		cfg := DefaultSGDConfig()
		cfg.LearningRate = lr
		for k, v := range args {
			switch k {
			case "momentum":
				cfg.Momentum = v
			case "weight_decay":
				cfg.WeightDecay = v
			default:
				return nil, fmt.Errorf("unknown SGD argument %q", k)
			}
		}
		return NewSGD(cfg), nil
	case "adam":
		cfg := DefaultAdamConfig()
		cfg.LearningRate = lr
		for k, v := range args {
			switch k {
			case "beta1":
				cfg.Beta1 = v
			case "beta2":
				cfg.Beta2 = v
			case "epsilon":
				cfg.Epsilon = v
			case "weight_decay":
				cfg.WeightDecay = v
			default:
				return nil, fmt.Errorf("unknown Adam argument %q", k)
			}
		}
		return NewAdam(cfg), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}

// validateStateType ensures the state type matches the optimizer.
func validateStateType(optimizerType string, state *checkpoints.OptimizerState) error {
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}
