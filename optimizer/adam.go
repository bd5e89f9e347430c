package optimizer

import (
	"fmt"
	"math"

	"github.com/jorenretel/selene/checkpoints"
	"github.com/jorenretel/selene/model"
)

// Adam implements the Adam optimizer with bias correction.
type Adam struct {
	config AdamConfig

	// First and second moment buffers, one per parameter, allocated
	// lazily on the first step.
	m [][]float64
	v [][]float64

	// Step tracking for bias correction.
	stepCount uint64
}

// AdamConfig holds Adam hyperparameters.
type AdamConfig struct {
	LearningRate float64
	Beta1        float64 // Momentum decay (typically 0.9)
	Beta2        float64 // Variance decay (typically 0.999)
	Epsilon      float64 // Small constant to prevent division by zero
	WeightDecay  float64 // L2 regularization coefficient
}

// DefaultAdamConfig returns the default Adam configuration.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// NewAdam creates an Adam optimizer.
func NewAdam(config AdamConfig) *Adam {
	return &Adam{config: config}
}

// Step applies one Adam update to the parameters.
func (adam *Adam) Step(params []*model.Parameter) error {
	if len(params) == 0 {
		return fmt.Errorf("no parameters to update")
	}

	if adam.m == nil {
		adam.m = make([][]float64, len(params))
		adam.v = make([][]float64, len(params))
		for i, p := range params {
			adam.m[i] = make([]float64, len(p.Value))
			adam.v[i] = make([]float64, len(p.Value))
		}
	}
	if len(adam.m) != len(params) {
		return fmt.Errorf("parameter count changed: optimizer has %d moment buffers, got %d parameters",
			len(adam.m), len(params))
	}

	adam.stepCount++
	biasCorr1 := 1 - math.Pow(adam.config.Beta1, float64(adam.stepCount))
	biasCorr2 := 1 - math.Pow(adam.config.Beta2, float64(adam.stepCount))

	for i, p := range params {
		if len(adam.m[i]) != len(p.Value) {
			return fmt.Errorf("parameter %q size changed: moments %d, value %d",
				p.Name, len(adam.m[i]), len(p.Value))
		}
		for j := range p.Value {
			grad := p.Grad[j]
			if adam.config.WeightDecay != 0 {
				grad += adam.config.WeightDecay * p.Value[j]
			}

			adam.m[i][j] = adam.config.Beta1*adam.m[i][j] + (1-adam.config.Beta1)*grad
			adam.v[i][j] = adam.config.Beta2*adam.v[i][j] + (1-adam.config.Beta2)*grad*grad

			mHat := adam.m[i][j] / biasCorr1
			vHat := adam.v[i][j] / biasCorr2
			p.Value[j] -= adam.config.LearningRate * mHat / (math.Sqrt(vHat) + adam.config.Epsilon)
		}
	}
	return nil
}

// GetState extracts the Adam state for checkpointing.
func (adam *Adam) GetState() (*checkpoints.OptimizerState, error) {
	state := &checkpoints.OptimizerState{
		Type: "Adam",
		Parameters: map[string]any{
			"learning_rate": adam.config.LearningRate,
			"beta1":         adam.config.Beta1,
			"beta2":         adam.config.Beta2,
			"epsilon":       adam.config.Epsilon,
			"weight_decay":  adam.config.WeightDecay,
			"step_count":    adam.stepCount,
		},
	}
	for i := range adam.m {
		mData := make([]float64, len(adam.m[i]))
		copy(mData, adam.m[i])
		state.StateData = append(state.StateData, checkpoints.OptimizerTensor{
			Name:      fmt.Sprintf("m_%d", i),
			Shape:     []int{len(mData)},
			Data:      mData,
			StateType: "m",
		})

		vData := make([]float64, len(adam.v[i]))
		copy(vData, adam.v[i])
		state.StateData = append(state.StateData, checkpoints.OptimizerTensor{
			Name:      fmt.Sprintf("v_%d", i),
			Shape:     []int{len(vData)},
			Data:      vData,
			StateType: "v",
		})
	}
	return state, nil
}

// LoadState restores Adam state from a checkpoint.
func (adam *Adam) LoadState(state *checkpoints.OptimizerState) error {
	if err := validateStateType("Adam", state); err != nil {
		return err
	}

	adam.stepCount = stepCountFromParameters(state.Parameters)
	if lr, ok := floatParameter(state.Parameters, "learning_rate"); ok {
		adam.config.LearningRate = lr
	}

	var m, v [][]float64
	for _, tensor := range state.StateData {
		buf := make([]float64, len(tensor.Data))
		copy(buf, tensor.Data)
		switch tensor.StateType {
		case "m":
			m = append(m, buf)
		case "v":
			v = append(v, buf)
		default:
			return fmt.Errorf("unexpected Adam state tensor type %q", tensor.StateType)
		}
	}
	if len(m) != len(v) {
		return fmt.Errorf("inconsistent Adam state: %d m tensors, %d v tensors", len(m), len(v))
	}
	adam.m = m
	adam.v = v
	return nil
}

// GetStepCount returns the number of steps taken.
func (adam *Adam) GetStepCount() uint64 {
	return adam.stepCount
}

// LearningRate returns the current learning rate.
func (adam *Adam) LearningRate() float64 {
	return adam.config.LearningRate
}

// SetLearningRate updates the learning rate.
func (adam *Adam) SetLearningRate(lr float64) {
	adam.config.LearningRate = lr
}
