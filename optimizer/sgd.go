package optimizer

import (
	"fmt"

	"github.com/jorenretel/selene/checkpoints"
	"github.com/jorenretel/selene/model"
)

// SGD implements stochastic gradient descent with optional momentum and
// weight decay.
type SGD struct {
	config SGDConfig

	// One momentum buffer per parameter, allocated lazily on the first
	// step so the optimizer does not need the parameter shapes up front.
	momentum  [][]float64
	stepCount uint64
}

// SGDConfig holds SGD hyperparameters.
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
}

// DefaultSGDConfig returns the default SGD configuration.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.9,
		WeightDecay:  0.0,
	}
}

// NewSGD creates an SGD optimizer.
func NewSGD(config SGDConfig) *SGD {
	return &SGD{config: config}
}

// Step applies one SGD update to the parameters.
func (sgd *SGD) Step(params []*model.Parameter) error {
	if len(params) == 0 {
		return fmt.Errorf("no parameters to update")
	}

	if sgd.momentum == nil {
		sgd.momentum = make([][]float64, len(params))
		for i, p := range params {
			sgd.momentum[i] = make([]float64, len(p.Value))
		}
	}
	if len(sgd.momentum) != len(params) {
		return fmt.Errorf("parameter count changed: optimizer has %d momentum buffers, got %d parameters",
			len(sgd.momentum), len(params))
	}

	for i, p := range params {
		if len(sgd.momentum[i]) != len(p.Value) {
			return fmt.Errorf("parameter %q size changed: momentum %d, value %d",
				p.Name, len(sgd.momentum[i]), len(p.Value))
		}
		for j := range p.Value {
			grad := p.Grad[j]
			if sgd.config.WeightDecay != 0 {
				grad += sgd.config.WeightDecay * p.Value[j]
			}
			if sgd.config.Momentum != 0 {
				sgd.momentum[i][j] = sgd.config.Momentum*sgd.momentum[i][j] + grad
				grad = sgd.momentum[i][j]
			}
			p.Value[j] -= sgd.config.LearningRate * grad
		}
	}

	sgd.stepCount++
	return nil
}

// GetState extracts the SGD state for checkpointing.
func (sgd *SGD) GetState() (*checkpoints.OptimizerState, error) {
	state := &checkpoints.OptimizerState{
		Type: "SGD",
		Parameters: map[string]any{
			"learning_rate": sgd.config.LearningRate,
			"momentum":      sgd.config.Momentum,
			"weight_decay":  sgd.config.WeightDecay,
			"step_count":    sgd.stepCount,
		},
	}
	for i, buf := range sgd.momentum {
		data := make([]float64, len(buf))
		copy(data, buf)
		state.StateData = append(state.StateData, checkpoints.OptimizerTensor{
			Name:      fmt.Sprintf("momentum_%d", i),
			Shape:     []int{len(buf)},
			Data:      data,
			StateType: "momentum",
		})
	}
	return state, nil
}

// LoadState restores SGD state from a checkpoint.
func (sgd *SGD) LoadState(state *checkpoints.OptimizerState) error {
	if err := validateStateType("SGD", state); err != nil {
		return err
	}

	sgd.stepCount = stepCountFromParameters(state.Parameters)
	if lr, ok := floatParameter(state.Parameters, "learning_rate"); ok {
		sgd.config.LearningRate = lr
	}

	sgd.momentum = make([][]float64, len(state.StateData))
	for i, tensor := range state.StateData {
		if tensor.StateType != "momentum" {
			return fmt.Errorf("unexpected SGD state tensor type %q", tensor.StateType)
		}
		buf := make([]float64, len(tensor.Data))
		copy(buf, tensor.Data)
		sgd.momentum[i] = buf
	}
	return nil
}

// GetStepCount returns the number of steps taken.
func (sgd *SGD) GetStepCount() uint64 {
	return sgd.stepCount
}

// LearningRate returns the current learning rate.
func (sgd *SGD) LearningRate() float64 {
	return sgd.config.LearningRate
}

// SetLearningRate updates the learning rate.
func (sgd *SGD) SetLearningRate(lr float64) {
	sgd.config.LearningRate = lr
}

// stepCountFromParameters reads the persisted step counter. JSON round-trips
// numbers as float64, so both representations are accepted.
func stepCountFromParameters(params map[string]any) uint64 {
	switch v := params["step_count"].(type) {
	case uint64:
		return v
	case float64:
		return uint64(v)
	default:
		return 0
	}
}

func floatParameter(params map[string]any, key string) (float64, bool) {
	v, ok := params[key].(float64)
	return v, ok
}
